package cid

import (
	"fmt"
	"maps"
)

// IDField is the document key that carries a statement's own identifier.
const IDField = "@id"

// Canonicalizer turns a JSON document into the byte form that is hashed.
// Codec reports the multicodec tag placed in the resulting CID.
type Canonicalizer interface {
	Canonicalize(doc map[string]any) ([]byte, error)
	Codec() uint64
}

// JCS canonicalizes documents with RFC 8785.
type JCS struct{}

// Canonicalize implements Canonicalizer.
func (JCS) Canonicalize(doc map[string]any) ([]byte, error) {
	return MarshalCanonical(doc)
}

// Codec implements Canonicalizer.
func (JCS) Codec() uint64 { return JSONJCS }

// Addresser derives and checks statement identifiers.
//
// The identifier of a document is computed over the document with its "@id"
// field removed, so a statement's identifier never depends on itself.
type Addresser struct {
	canon Canonicalizer
}

// NewAddresser creates an Addresser using canon. A nil canon selects JCS.
func NewAddresser(canon Canonicalizer) *Addresser {
	if canon == nil {
		canon = JCS{}
	}
	return &Addresser{canon: canon}
}

// Codec returns the codec of identifiers produced by a.
func (a *Addresser) Codec() uint64 {
	return a.canon.Codec()
}

// Canonicalizer returns the canonicalizer in use.
func (a *Addresser) Canonicalizer() Canonicalizer {
	return a.canon
}

// Canonical returns the canonical bytes of doc with "@id" excluded.
func (a *Addresser) Canonical(doc map[string]any) ([]byte, error) {
	stripped := maps.Clone(doc)
	delete(stripped, IDField)
	out, err := a.canon.Canonicalize(stripped)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	return out, nil
}

// ComputeID returns the "urn:cid:"-prefixed identifier of doc.
func (a *Addresser) ComputeID(doc map[string]any) (string, error) {
	canonical, err := a.Canonical(doc)
	if err != nil {
		return "", err
	}
	c, err := Compute(a.canon.Codec(), canonical)
	if err != nil {
		return "", err
	}
	return AddURN(c), nil
}

// ComputeIDOf converts v to a JSON document and computes its identifier.
func (a *Addresser) ComputeIDOf(v any) (string, error) {
	doc, err := toDocument(v)
	if err != nil {
		return "", err
	}
	return a.ComputeID(doc)
}

// ValidateID checks that doc's "@id" equals its recomputed identifier.
// A missing or mismatched "@id" yields a *MismatchError.
func (a *Addresser) ValidateID(doc map[string]any) error {
	expected, _ := doc[IDField].(string)
	computed, err := a.ComputeID(doc)
	if err != nil {
		return err
	}
	if expected == "" || !Equal(computed, expected) {
		return &MismatchError{Computed: computed, Expected: expected}
	}
	return nil
}

// ValidateIDOf is ValidateID for any JSON-marshalable value.
func (a *Addresser) ValidateIDOf(v any) error {
	doc, err := toDocument(v)
	if err != nil {
		return err
	}
	return a.ValidateID(doc)
}

// ComputeJSON returns the JCS CID (unprefixed) of an arbitrary JSON value
// together with its canonical bytes.
func ComputeJSON(v any) (string, []byte, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", nil, err
	}
	c, err := Compute(JSONJCS, canonical)
	if err != nil {
		return "", nil, err
	}
	return c, canonical, nil
}

func toDocument(v any) (map[string]any, error) {
	if doc, ok := v.(map[string]any); ok {
		return doc, nil
	}
	generic, err := ToGeneric(v)
	if err != nil {
		return nil, err
	}
	doc, ok := generic.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("document must be a JSON object, got %T", generic)
	}
	return doc, nil
}
