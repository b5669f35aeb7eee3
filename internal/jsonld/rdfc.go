package jsonld

import (
	"encoding/json"
	"fmt"
	"maps"

	"github.com/piprate/json-gold/ld"

	"github.com/roach88/provgraph/internal/cid"
)

const (
	formatNQuads = "application/n-quads"
	algorithm    = "URDNA2015"
)

// RDFC canonicalizes JSON-LD documents to RDFC-1.0 N-Quads. It implements
// cid.Canonicalizer with codec cid.RDFC10.
type RDFC struct {
	loader *Loader
	proc   *ld.JsonLdProcessor
}

// NewRDFC creates an RDFC canonicalizer resolving contexts with loader.
func NewRDFC(loader *Loader) *RDFC {
	return &RDFC{loader: loader, proc: ld.NewJsonLdProcessor()}
}

// Codec implements cid.Canonicalizer.
func (r *RDFC) Codec() uint64 { return cid.RDFC10 }

// Canonicalize implements cid.Canonicalizer.
func (r *RDFC) Canonicalize(doc map[string]any) ([]byte, error) {
	input, err := plainJSON(doc)
	if err != nil {
		return nil, err
	}
	opts := r.options()
	opts.Algorithm = algorithm
	out, err := r.proc.Normalize(input, opts)
	if err != nil {
		return nil, fmt.Errorf("rdfc normalize: %w", err)
	}
	nquads, ok := out.(string)
	if !ok {
		return nil, fmt.Errorf("rdfc normalize: unexpected output %T", out)
	}
	return []byte(nquads), nil
}

// ToNQuads expands doc to (non-canonical) N-Quads.
func (r *RDFC) ToNQuads(doc map[string]any) (string, error) {
	input, err := plainJSON(doc)
	if err != nil {
		return "", err
	}
	out, err := r.proc.ToRDF(input, r.options())
	if err != nil {
		return "", fmt.Errorf("to rdf: %w", err)
	}
	nquads, ok := out.(string)
	if !ok {
		return "", fmt.Errorf("to rdf: unexpected output %T", out)
	}
	return nquads, nil
}

func (r *RDFC) options() *ld.JsonLdOptions {
	opts := ld.NewJsonLdOptions("")
	opts.Format = formatNQuads
	opts.DocumentLoader = r.loader
	return opts
}

// plainJSON re-decodes doc with float64 numbers, the only numeric form the
// JSON-LD processor understands.
func plainJSON(doc map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(maps.Clone(doc))
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	return out, nil
}
