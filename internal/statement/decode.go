package statement

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/provgraph/internal/errs"
)

// Decode parses a JSON statement. The variant is chosen from the fields
// present, not from "@type": the credential kinds share a type, and Did
// attestations are distinguished by "vcomp".
func Decode(data []byte) (Statement, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, errs.Wrap(errs.CodeMalformedStatement, err, "statement is not a JSON object")
	}

	s, err := variantFor(fields)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(s); err != nil {
		if errs.CodeOf(err) != "" {
			return nil, err
		}
		return nil, errs.Wrap(errs.CodeMalformedStatement, err, "decode %s statement", s.Kind())
	}
	if err := s.Meta().check(); err != nil {
		return nil, err
	}
	if err := checkFields(s); err != nil {
		return nil, err
	}
	return s, nil
}

// DecodeValue decodes any JSON-marshalable value as a statement.
func DecodeValue(v any) (Statement, error) {
	if s, ok := v.(Statement); ok {
		return s, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal statement: %w", err)
	}
	return Decode(data)
}

func variantFor(fields map[string]json.RawMessage) (Statement, error) {
	has := func(k string) bool { _, ok := fields[k]; return ok }
	switch {
	case has("vcomp") || has("did"):
		return &Did{}, nil
	case has("credential"):
		return &CredentialVC{}, nil
	case has("credentialDsse"):
		return &CredentialDSSE{}, nil
	case has("sigstoreBundle"):
		return &CredentialSigstore{}, nil
	case has("input") && has("output"):
		return &Computation{}, nil
	case has("storedOn"):
		return &Storage{}, nil
	case has("association"):
		return &Association{}, nil
	case has("metadata"):
		return &Metadata{}, nil
	case has("entity"):
		return &Entity{}, nil
	case has("document"):
		return &Governance{}, nil
	case has("data"):
		return &Data{}, nil
	}
	var typ string
	_ = json.Unmarshal(fields["@type"], &typ)
	return nil, errs.NewMalformed("unrecognised statement shape").With("type", typ)
}

func checkFields(s Statement) error {
	missing := func(name string) error { return errs.NewMalformed("missing field `%s`", name) }
	switch v := s.(type) {
	case *Association:
		if v.Subject == "" {
			return missing("subject")
		}
		if v.Association == "" {
			return missing("association")
		}
	case *Data:
		if len(v.Data) == 0 {
			return errs.NewMalformed("CID list must not be empty.")
		}
	case *Metadata:
		if v.Subject == "" {
			return missing("subject")
		}
		if v.Metadata == "" {
			return missing("metadata")
		}
	case *Storage:
		if v.Data == "" {
			return missing("data")
		}
		if v.StoredOn == "" {
			return missing("storedOn")
		}
	case *Computation:
		if len(v.Input) == 0 || len(v.Output) == 0 {
			return errs.NewMalformed("CID list must not be empty.")
		}
		if v.OperatedBy == "" {
			return missing("operatedBy")
		}
	case *Entity:
		if len(v.Entity) == 0 {
			return errs.NewMalformed("CID list must not be empty.")
		}
	case *Governance:
		if v.Subject == "" {
			return missing("subject")
		}
		if v.Document == "" {
			return missing("document")
		}
	case *CredentialDSSE:
		if v.Envelope.Payload == "" {
			return missing("credentialDsse.payload")
		}
	case *CredentialSigstore:
		if v.Subject == "" {
			return missing("subject")
		}
	}
	return nil
}

// ToDocument returns s as a generic JSON object.
func ToDocument(s Statement) (map[string]any, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal statement: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode statement: %w", err)
	}
	return doc, nil
}
