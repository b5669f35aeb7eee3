package statement

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/provgraph/internal/cid"
	"github.com/roach88/provgraph/internal/errs"
)

// Wire "@type" values.
const (
	TypeAssociation = "AssociationRegistration"
	TypeData        = "DataRegistration"
	TypeMetadata    = "MetadataRegistration"
	TypeStorage     = "StorageRegistration"
	TypeComputation = "ComputationRegistration"
	TypeEntity      = "EntityRegistration"
	TypeGovernance  = "GovernanceRegistration"
	TypeDid         = "DidRegistration"
	TypeCredential  = "CredentialRegistration"
)

// Kind identifies a statement variant. Several kinds share a wire "@type"
// (the three credential kinds), so Kind is the discriminant used internally.
type Kind string

const (
	KindAssociation        Kind = "association"
	KindData               Kind = "data"
	KindMetadata           Kind = "metadata"
	KindStorage            Kind = "storage"
	KindComputation        Kind = "computation"
	KindEntity             Kind = "entity"
	KindGovernance         Kind = "governance"
	KindDid                Kind = "did"
	KindCredentialVC       Kind = "credential-vc"
	KindCredentialDSSE     Kind = "credential-dsse"
	KindCredentialSigstore Kind = "credential-sigstore"
)

// Kinds lists every statement kind in a stable order.
var Kinds = []Kind{
	KindAssociation, KindData, KindMetadata, KindStorage, KindComputation, KindEntity,
	KindGovernance, KindDid, KindCredentialVC, KindCredentialDSSE, KindCredentialSigstore,
}

// Scope says whether a statement belongs to graphs or is addressable on its own.
type Scope int

const (
	// ScopeGraph statements are linked to graphs and found by closure retrieval.
	ScopeGraph Scope = iota
	// ScopeGlobal statements are found by identifier, independent of any graph.
	ScopeGlobal
)

func (s Scope) String() string {
	if s == ScopeGlobal {
		return "global"
	}
	return "graph"
}

// ScopeOf returns the registration scope of a kind.
func ScopeOf(k Kind) Scope {
	switch k {
	case KindAssociation, KindData, KindMetadata, KindStorage, KindComputation, KindEntity:
		return ScopeGraph
	default:
		return ScopeGlobal
	}
}

// Header holds the fields every statement carries.
type Header struct {
	Context      string `json:"@context"`
	ID           string `json:"@id"`
	Type         string `json:"@type"`
	RegisteredBy string `json:"registeredBy"`
	Timestamp    string `json:"timestamp"`
}

// Meta returns the header. Promoted to every variant that embeds Header.
func (h *Header) Meta() *Header { return h }

func (h *Header) check() error {
	switch {
	case h.Context == "":
		return errs.NewMalformed("missing field `@context`")
	case h.ID == "":
		return errs.NewMalformed("missing field `@id`")
	case h.Type == "":
		return errs.NewMalformed("missing field `@type`")
	case h.RegisteredBy == "":
		return errs.NewMalformed("missing field `registeredBy`")
	case h.Timestamp == "":
		return errs.NewMalformed("missing field `timestamp`")
	}
	return nil
}

// Statement is an immutable, content-identified provenance record.
//
// The set of implementations is closed: Association, Data, Metadata,
// Storage, Computation, Entity, Governance, Did, CredentialVC,
// CredentialDSSE and CredentialSigstore.
type Statement interface {
	// Meta returns the shared header fields.
	Meta() *Header

	// Kind returns the variant discriminant.
	Kind() Kind

	// ReferencedIdentifiers returns the identifiers this statement points to.
	// These are the edges of the provenance graph.
	ReferencedIdentifiers() []string

	isStatement()
}

// Credential is implemented by the three credential kinds.
type Credential interface {
	Statement

	// CredentialSubject returns the identifier the credential is about.
	CredentialSubject() string
}

// ID returns the statement identifier.
func ID(s Statement) string { return s.Meta().ID }

// ScopeOfStatement returns the registration scope of s.
func ScopeOfStatement(s Statement) Scope { return ScopeOf(s.Kind()) }

// IDList is one or more identifiers. A single element is encoded as a bare
// string, more than one as an array; both forms decode.
type IDList []string

// MarshalJSON implements json.Marshaler.
func (l IDList) MarshalJSON() ([]byte, error) {
	if len(l) == 1 {
		return json.Marshal(l[0])
	}
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(l))
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *IDList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = IDList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("expected string or array of strings: %w", err)
	}
	*l = IDList(many)
	return nil
}

// FormatCIDs drops empty strings and prefixes the rest with "urn:cid:".
// An empty result is a malformed statement.
func FormatCIDs(ids []string) (IDList, error) {
	return formatIDs(ids, cid.AddURN)
}

// FormatUUIDs drops empty strings and prefixes the rest with "urn:uuid:".
func FormatUUIDs(ids []string) (IDList, error) {
	return formatIDs(ids, cid.AddUUIDURN)
}

func formatIDs(ids []string, prefix func(string) string) (IDList, error) {
	out := make(IDList, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		out = append(out, prefix(id))
	}
	if len(out) == 0 {
		return nil, errs.NewMalformed("CID list must not be empty.")
	}
	return out, nil
}

// NormalizeRef prefixes a bare CID with "urn:cid:". Values that already
// carry a scheme (URNs, DIDs, URLs) are returned unchanged.
func NormalizeRef(s string) string {
	if s == "" || strings.Contains(s, ":") {
		return s
	}
	return cid.AddURN(s)
}

// NormalizeRefs applies NormalizeRef to every element.
func NormalizeRefs(refs []string) []string {
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		out = append(out, NormalizeRef(r))
	}
	return out
}

// NormalizeSubject keeps URNs and DIDs as given and treats anything else as
// a bare CID.
func NormalizeSubject(s string) string {
	if strings.HasPrefix(s, "urn:") || strings.HasPrefix(s, "did:") {
		return s
	}
	return cid.AddURN(s)
}
