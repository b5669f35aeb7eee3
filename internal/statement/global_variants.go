package statement

import (
	"encoding/base64"
	"strings"

	"github.com/roach88/provgraph/internal/cid"
)

// Governance records a governance document that applies to a subject.
type Governance struct {
	Header
	Subject  string `json:"subject"`
	Document string `json:"document"`
}

func (*Governance) Kind() Kind { return KindGovernance }
func (*Governance) isStatement() {}

func (s *Governance) ReferencedIdentifiers() []string {
	return []string{s.Subject, s.Document}
}

// evidenceKeys are the evidence properties that hold identifiers of
// attestation artifacts.
var evidenceKeys = []string{
	"report",
	"certificateChain",
	"reportCertificateChain",
	"tpmQuote",
	"tpmQuoteSignature",
	"tpmAKCertificate",
	"tpmLog",
	"azureBootLog",
}

// CredentialVC wraps a W3C Verifiable Credential document.
type CredentialVC struct {
	Header
	Credential map[string]any `json:"credential"`
}

func (*CredentialVC) Kind() Kind { return KindCredentialVC }
func (*CredentialVC) isStatement() {}

// ReferencedIdentifiers returns the credential id followed by every evidence
// artifact identifier.
func (s *CredentialVC) ReferencedIdentifiers() []string {
	var refs []string
	if id, ok := s.Credential["id"].(string); ok && id != "" {
		refs = append(refs, id)
	}
	for _, ev := range asList(s.Credential["evidence"]) {
		props, ok := ev.(map[string]any)
		if !ok {
			continue
		}
		for _, key := range evidenceKeys {
			if id, ok := props[key].(string); ok {
				refs = append(refs, id)
			}
		}
	}
	return refs
}

// CredentialSubject returns the id of the first credentialSubject.
func (s *CredentialVC) CredentialSubject() string {
	for _, subj := range asList(s.Credential["credentialSubject"]) {
		if m, ok := subj.(map[string]any); ok {
			if id, ok := m["id"].(string); ok {
				return id
			}
		}
	}
	return ""
}

// DSSE payload types.
const (
	PayloadTypeInToto       = "application/vnd.in-toto+json"
	PayloadTypeStatementURN = "https://eqtylab.io/terms/IntegrityStatementUrn"
)

// Envelope is a DSSE envelope. Payload and signatures are base64.
type Envelope struct {
	PayloadType string      `json:"payloadType"`
	Payload     string      `json:"payload"`
	Signatures  []Signature `json:"signatures"`
}

// Signature is one DSSE signature.
type Signature struct {
	KeyID string `json:"keyid"`
	Sig   string `json:"sig"`
}

// DecodedPayload returns the base64-decoded payload.
func (e Envelope) DecodedPayload() ([]byte, error) {
	return base64.StdEncoding.DecodeString(e.Payload)
}

// CredentialDSSE is a signed envelope whose payload names the statement it
// vouches for.
type CredentialDSSE struct {
	Header
	Envelope Envelope `json:"credentialDsse"`
}

func (*CredentialDSSE) Kind() Kind { return KindCredentialDSSE }
func (*CredentialDSSE) isStatement() {}

// ReferencedIdentifiers returns the decoded payload as a "urn:cid:" identifier.
// A payload that does not decode references nothing.
func (s *CredentialDSSE) ReferencedIdentifiers() []string {
	if subj := s.CredentialSubject(); subj != "" {
		return []string{subj}
	}
	return nil
}

// CredentialSubject returns the decoded payload normalised to "urn:cid:".
func (s *CredentialDSSE) CredentialSubject() string {
	raw, err := s.Envelope.DecodedPayload()
	if err != nil {
		return ""
	}
	subj := strings.TrimSpace(string(raw))
	if subj == "" {
		return ""
	}
	return cid.AddURN(subj)
}

// CredentialSigstore carries a base64-encoded, JCS-canonical Sigstore bundle.
type CredentialSigstore struct {
	Header
	Subject        string `json:"subject"`
	SigstoreBundle string `json:"sigstoreBundle"`
}

func (*CredentialSigstore) Kind() Kind { return KindCredentialSigstore }
func (*CredentialSigstore) isStatement() {}

// ReferencedIdentifiers is empty: the bundle is opaque to the graph.
func (*CredentialSigstore) ReferencedIdentifiers() []string { return nil }

func (s *CredentialSigstore) CredentialSubject() string { return s.Subject }

// Bundle decodes the embedded bundle.
func (s *CredentialSigstore) Bundle() (any, error) {
	raw, err := base64.StdEncoding.DecodeString(s.SigstoreBundle)
	if err != nil {
		return nil, err
	}
	return cid.DecodeGeneric(raw)
}

func asList(v any) []any {
	switch x := v.(type) {
	case []any:
		return x
	case nil:
		return nil
	default:
		return []any{x}
	}
}
