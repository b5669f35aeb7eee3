package cid

import "fmt"

// Multicodec identifiers for content types.
const (
	// RawBinary is opaque bytes.
	RawBinary uint64 = 0x55

	// Blake3HashSeq is a BLAKE3 hash sequence.
	Blake3HashSeq uint64 = 0x80

	// RDFC10 is RDF Dataset Canonicalization 1.0 output (N-Quads).
	RDFC10 uint64 = 0xb403

	// JSONJCS is RFC 8785 canonical JSON.
	JSONJCS uint64 = 0xb601
)

// Multihash identifiers for hash algorithms.
const (
	HashSha2_256 uint64 = 0x12
	HashBlake3   uint64 = 0x1e
)

var codecNames = map[uint64]string{
	RawBinary:     "raw",
	Blake3HashSeq: "blake3-hashseq",
	RDFC10:        "rdfc-1",
	JSONJCS:       "json-jcs",
}

// CodecName returns the short name of a known codec, or its hex form.
func CodecName(codec uint64) string {
	if name, ok := codecNames[codec]; ok {
		return name
	}
	return fmt.Sprintf("0x%x", codec)
}

// ParseCodec accepts either a short codec name ("raw", "json-jcs", ...) or a
// hexadecimal code ("0x55").
func ParseCodec(s string) (uint64, error) {
	for code, name := range codecNames {
		if name == s {
			return code, nil
		}
	}
	var code uint64
	if _, err := fmt.Sscanf(s, "0x%x", &code); err == nil {
		return code, nil
	}
	return 0, fmt.Errorf("unknown codec %q", s)
}
