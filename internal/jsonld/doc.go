// Package jsonld resolves JSON-LD contexts offline and canonicalizes
// statements to RDFC-1.0 N-Quads for content addressing.
package jsonld
