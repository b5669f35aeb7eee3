package statement

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/roach88/provgraph/internal/cid"
	"github.com/roach88/provgraph/internal/errs"
)

// DefaultContext is the context reference stamped on new statements.
const DefaultContext = "https://w3id.org/provgraph/v1"

// TimestampLayout is RFC 3339 in UTC with whole seconds.
const TimestampLayout = "2006-01-02T15:04:05Z"

// Builder creates statements with computed identifiers.
type Builder struct {
	addr    *cid.Addresser
	context string
	now     func() time.Time
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithContext sets the "@context" reference.
func WithContext(ctx string) BuilderOption {
	return func(b *Builder) { b.context = ctx }
}

// WithClock sets the clock used for defaulted timestamps.
func WithClock(now func() time.Time) BuilderOption {
	return func(b *Builder) { b.now = now }
}

// NewBuilder creates a Builder that identifies statements with addr.
func NewBuilder(addr *cid.Addresser, opts ...BuilderOption) *Builder {
	b := &Builder{addr: addr, context: DefaultContext, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Addresser returns the addresser used for identifiers.
func (b *Builder) Addresser() *cid.Addresser { return b.addr }

func (b *Builder) header(typ, registeredBy, timestamp string) (Header, error) {
	if registeredBy == "" {
		return Header{}, errs.NewMalformed("missing field `registeredBy`")
	}
	if timestamp == "" {
		timestamp = b.now().UTC().Format(TimestampLayout)
	}
	return Header{Context: b.context, Type: typ, RegisteredBy: registeredBy, Timestamp: timestamp}, nil
}

// finalize computes and sets the identifier of s.
func (b *Builder) finalize(s Statement) error {
	s.Meta().ID = ""
	id, err := b.addr.ComputeIDOf(s)
	if err != nil {
		return fmt.Errorf("compute id: %w", err)
	}
	s.Meta().ID = id
	return nil
}

// NewAssociation links subject to association. Values that are neither URNs
// nor DIDs are treated as bare CIDs.
func (b *Builder) NewAssociation(subject, association, registeredBy, timestamp string) (*Association, error) {
	if subject == "" || association == "" {
		return nil, errs.NewMalformed("association requires subject and association")
	}
	h, err := b.header(TypeAssociation, registeredBy, timestamp)
	if err != nil {
		return nil, err
	}
	s := &Association{Header: h, Subject: NormalizeSubject(subject), Association: NormalizeSubject(association)}
	return s, b.finalize(s)
}

// NewData registers data identifiers.
func (b *Builder) NewData(data []string, registeredBy, timestamp string) (*Data, error) {
	ids, err := FormatCIDs(data)
	if err != nil {
		return nil, err
	}
	h, err := b.header(TypeData, registeredBy, timestamp)
	if err != nil {
		return nil, err
	}
	s := &Data{Header: h, Data: ids}
	return s, b.finalize(s)
}

// NewMetadata attaches the metadata document identified by metadata to subject.
func (b *Builder) NewMetadata(subject, metadata, registeredBy, timestamp string) (*Metadata, error) {
	if subject == "" || metadata == "" {
		return nil, errs.NewMalformed("metadata requires subject and metadata")
	}
	h, err := b.header(TypeMetadata, registeredBy, timestamp)
	if err != nil {
		return nil, err
	}
	s := &Metadata{Header: h, Subject: NormalizeSubject(subject), Metadata: cid.AddURN(metadata)}
	return s, b.finalize(s)
}

// NewMetadataFromJSON identifies doc by its JCS CID and attaches it to
// subject. The canonical bytes are returned for storage.
func (b *Builder) NewMetadataFromJSON(subject string, doc any, registeredBy, timestamp string) (*Metadata, []byte, error) {
	metaCID, canonical, err := cid.ComputeJSON(doc)
	if err != nil {
		return nil, nil, errs.Wrap(errs.CodeMalformedStatement, err, "metadata document")
	}
	s, err := b.NewMetadata(subject, metaCID, registeredBy, timestamp)
	if err != nil {
		return nil, nil, err
	}
	return s, canonical, nil
}

// NewStorage records data stored on storedOn. An empty operatedBy defaults
// to registeredBy.
func (b *Builder) NewStorage(data, storedOn, operatedBy, registeredBy, timestamp string) (*Storage, error) {
	if data == "" || storedOn == "" {
		return nil, errs.NewMalformed("storage requires data and storedOn")
	}
	h, err := b.header(TypeStorage, registeredBy, timestamp)
	if err != nil {
		return nil, err
	}
	if operatedBy == "" {
		operatedBy = registeredBy
	}
	s := &Storage{Header: h, Data: cid.AddURN(data), StoredOn: cid.AddURN(storedOn), OperatedBy: operatedBy}
	return s, b.finalize(s)
}

// ComputationSpec describes a computation to register.
type ComputationSpec struct {
	Computation string
	Input       []string
	Output      []string
	OperatedBy  string
	ExecutedOn  string
}

// NewComputation records a computation. Input and output must each hold at
// least one non-empty identifier.
func (b *Builder) NewComputation(spec ComputationSpec, registeredBy, timestamp string) (*Computation, error) {
	input, err := FormatCIDs(spec.Input)
	if err != nil {
		return nil, err
	}
	output, err := FormatCIDs(spec.Output)
	if err != nil {
		return nil, err
	}
	if spec.OperatedBy == "" {
		return nil, errs.NewMalformed("missing field `operatedBy`")
	}
	h, err := b.header(TypeComputation, registeredBy, timestamp)
	if err != nil {
		return nil, err
	}
	s := &Computation{
		Header:      h,
		Computation: cid.AddURN(spec.Computation),
		Input:       input,
		Output:      output,
		OperatedBy:  spec.OperatedBy,
		ExecutedOn:  spec.ExecutedOn,
	}
	return s, b.finalize(s)
}

// NewEntity registers entity UUIDs.
func (b *Builder) NewEntity(entities []string, registeredBy, timestamp string) (*Entity, error) {
	ids, err := FormatUUIDs(entities)
	if err != nil {
		return nil, err
	}
	h, err := b.header(TypeEntity, registeredBy, timestamp)
	if err != nil {
		return nil, err
	}
	s := &Entity{Header: h, Entity: ids}
	return s, b.finalize(s)
}

// NewGovernance records a governance document for subject.
func (b *Builder) NewGovernance(subject, document, registeredBy, timestamp string) (*Governance, error) {
	if subject == "" || document == "" {
		return nil, errs.NewMalformed("governance requires subject and document")
	}
	h, err := b.header(TypeGovernance, registeredBy, timestamp)
	if err != nil {
		return nil, err
	}
	s := &Governance{Header: h, Subject: subject, Document: document}
	return s, b.finalize(s)
}

// NewDid registers did. A nil vcomp produces a regular Did.
func (b *Builder) NewDid(did string, vcomp VComp, registeredBy, timestamp string) (*Did, error) {
	if did == "" {
		return nil, didError(DidRegular, fmt.Errorf("missing field `did`"))
	}
	if vcomp != nil {
		stampVCompType(vcomp)
		if err := vcomp.validate(); err != nil {
			return nil, didError(vcomp.VCompType(), err)
		}
	}
	h, err := b.header(TypeDid, registeredBy, timestamp)
	if err != nil {
		return nil, err
	}
	s := &Did{Header: h, DID: did, VComp: vcomp}
	return s, b.finalize(s)
}

func stampVCompType(v VComp) {
	switch x := v.(type) {
	case *AmdSevV1:
		x.Type = VCompAmdSevV1
	case *DockerV1:
		x.Type = VCompDockerV1
	case *CustomV1:
		x.Type = VCompCustomV1
	case *IntelTdxV0:
		x.Type = VCompIntelTdxV0
	case *AzureV1:
		x.Type = VCompAzureV1
	}
}

// NewCredentialVC wraps a verifiable credential document.
func (b *Builder) NewCredentialVC(credential map[string]any, registeredBy, timestamp string) (*CredentialVC, error) {
	if len(credential) == 0 {
		return nil, errs.NewMalformed("missing field `credential`")
	}
	h, err := b.header(TypeCredential, registeredBy, timestamp)
	if err != nil {
		return nil, err
	}
	s := &CredentialVC{Header: h, Credential: credential}
	return s, b.finalize(s)
}

// NewCredentialDSSE wraps a DSSE envelope. The payload must decode.
func (b *Builder) NewCredentialDSSE(env Envelope, registeredBy, timestamp string) (*CredentialDSSE, error) {
	if _, err := env.DecodedPayload(); err != nil {
		return nil, errs.Wrap(errs.CodeMalformedStatement, err, "credentialDsse payload is not base64")
	}
	if len(env.Signatures) == 0 {
		return nil, errs.NewMalformed("credentialDsse requires at least one signature")
	}
	h, err := b.header(TypeCredential, registeredBy, timestamp)
	if err != nil {
		return nil, err
	}
	s := &CredentialDSSE{Header: h, Envelope: env}
	return s, b.finalize(s)
}

// NewCredentialSigstore embeds bundle as base64 of its JCS form.
func (b *Builder) NewCredentialSigstore(subject string, bundle any, registeredBy, timestamp string) (*CredentialSigstore, error) {
	if subject == "" {
		return nil, errs.NewMalformed("missing field `subject`")
	}
	canonical, err := cid.MarshalCanonical(bundle)
	if err != nil {
		return nil, errs.Wrap(errs.CodeMalformedStatement, err, "sigstore bundle")
	}
	h, err := b.header(TypeCredential, registeredBy, timestamp)
	if err != nil {
		return nil, err
	}
	s := &CredentialSigstore{
		Header:         h,
		Subject:        subject,
		SigstoreBundle: base64.StdEncoding.EncodeToString(canonical),
	}
	return s, b.finalize(s)
}

// Verify recomputes the identifier of s and fails with an identity
// mismatch if it differs from s's "@id".
func Verify(addr *cid.Addresser, s Statement) error {
	if err := addr.ValidateIDOf(s); err != nil {
		return fmt.Errorf("verify %s: %w", s.Meta().ID, err)
	}
	return nil
}
