package cid

import (
	"bytes"
	"fmt"
	"strings"

	gocid "github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"lukechampine.com/blake3"

	"github.com/roach88/provgraph/internal/errs"
)

const (
	// URNPrefix marks a content identifier in statement fields.
	URNPrefix = "urn:cid:"

	// UUIDURNPrefix marks an entity identifier.
	UUIDURNPrefix = "urn:uuid:"
)

// Compute hashes data with BLAKE3-256 and returns the CIDv1 string
// (base32 lower, "b" multibase prefix) tagged with codec.
// The result carries no "urn:cid:" prefix.
func Compute(codec uint64, data []byte) (string, error) {
	digest := blake3.Sum256(data)
	return FromDigest(codec, digest[:])
}

// MustCompute is Compute for tests and static inputs. Panics on error.
func MustCompute(codec uint64, data []byte) string {
	c, err := Compute(codec, data)
	if err != nil {
		panic(fmt.Sprintf("compute cid: %v", err))
	}
	return c
}

// FromDigest wraps an existing BLAKE3 digest as a CIDv1 string.
func FromDigest(codec uint64, digest []byte) (string, error) {
	mh, err := multihash.Encode(digest, HashBlake3)
	if err != nil {
		return "", fmt.Errorf("encode multihash: %w", err)
	}
	return gocid.NewCidV1(codec, mh).String(), nil
}

// MismatchError reports that content does not hash to the expected CID.
type MismatchError struct {
	Computed string
	Expected string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("Computed CID '%s' doesn't match provided CID '%s'.", e.Computed, e.Expected)
}

// Unwrap exposes the structured error so errs.IsIdentityMismatch matches.
func (e *MismatchError) Unwrap() error {
	return errs.New(errs.CodeIdentityMismatch, "identifier mismatch").
		With("computed", e.Computed).
		With("expected", e.Expected)
}

// Validate recomputes the CID of data and compares it to expected, which may
// carry the "urn:cid:" prefix. Returns the computed (unprefixed) CID.
func Validate(data []byte, codec uint64, expected string) (string, error) {
	computed, err := Compute(codec, data)
	if err != nil {
		return "", err
	}
	if !Equal(computed, expected) {
		return computed, &MismatchError{Computed: computed, Expected: StripURN(expected)}
	}
	return computed, nil
}

// Info is the decoded content of a CID.
type Info struct {
	Version  uint64
	Codec    uint64
	HashCode uint64
	Digest   []byte
}

// Parse decodes a CID string, with or without the "urn:cid:" prefix.
func Parse(s string) (Info, error) {
	c, err := gocid.Decode(StripURN(s))
	if err != nil {
		return Info{}, fmt.Errorf("parse cid %q: %w", s, err)
	}
	dec, err := multihash.Decode(c.Hash())
	if err != nil {
		return Info{}, fmt.Errorf("decode multihash of %q: %w", s, err)
	}
	p := c.Prefix()
	return Info{
		Version:  p.Version,
		Codec:    p.Codec,
		HashCode: dec.Code,
		Digest:   dec.Digest,
	}, nil
}

// Codec returns the multicodec of a CID string.
func Codec(s string) (uint64, error) {
	info, err := Parse(s)
	if err != nil {
		return 0, err
	}
	return info.Codec, nil
}

// Equal compares two identifiers after prefix normalisation. Decodable CIDs
// compare by codec and digest so that differing multibase encodings of the
// same CID are equal. Anything else compares as a string.
func Equal(a, b string) bool {
	a, b = StripURN(a), StripURN(b)
	if a == b {
		return true
	}
	ia, errA := Parse(a)
	ib, errB := Parse(b)
	if errA != nil || errB != nil {
		return false
	}
	return ia.Codec == ib.Codec && ia.HashCode == ib.HashCode && bytes.Equal(ia.Digest, ib.Digest)
}

// AddURN prepends "urn:cid:" unless already present. Empty input stays empty.
func AddURN(s string) string {
	if s == "" || strings.HasPrefix(s, URNPrefix) {
		return s
	}
	return URNPrefix + s
}

// StripURN removes a leading "urn:cid:".
func StripURN(s string) string {
	return strings.TrimPrefix(s, URNPrefix)
}

// AddUUIDURN prepends "urn:uuid:" unless already present.
func AddUUIDURN(s string) string {
	if s == "" || strings.HasPrefix(s, UUIDURNPrefix) {
		return s
	}
	return UUIDURNPrefix + s
}

// StripUUIDURN removes a leading "urn:uuid:".
func StripUUIDURN(s string) string {
	return strings.TrimPrefix(s, UUIDURNPrefix)
}
