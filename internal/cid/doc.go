// Package cid computes and checks content identifiers.
//
// An identifier is a CIDv1 whose multihash is BLAKE3-256 (multihash code
// 0x1e) and whose codec names the form of the hashed bytes: raw bytes, RFC
// 8785 canonical JSON, or RDFC-1.0 canonical N-Quads. Strings are base32
// lower with the "b" multibase prefix. Inside statements identifiers carry
// a "urn:cid:" prefix; Compute and Validate work on the bare form.
//
// Identity is a pure function of canonical content: two documents with the
// same canonical bytes get the same identifier on every run and platform.
package cid
