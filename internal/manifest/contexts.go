package manifest

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/provgraph/internal/jsonld"
	"github.com/roach88/provgraph/internal/statement"
)

// ContextResolver returns the JSON text of a context URI.
type ContextResolver interface {
	Resolve(uri string) ([]byte, error)
}

// embedContexts resolves every context referenced by statements,
// following string references inside resolved contexts. Contexts that
// cannot be resolved are logged and skipped.
func embedContexts(r ContextResolver, statements []statement.Statement, logger *slog.Logger) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage)
	if r == nil {
		return out, nil
	}

	var pending []string
	for _, s := range statements {
		doc, err := statement.ToDocument(s)
		if err != nil {
			return nil, fmt.Errorf("context links of %s: %w", statement.ID(s), err)
		}
		pending = append(pending, contextLinks(doc, logger)...)
	}

	for len(pending) > 0 {
		uri := pending[0]
		pending = pending[1:]
		if _, done := out[uri]; done {
			continue
		}
		raw, err := r.Resolve(uri)
		if err != nil {
			logger.Error("context not found for manifest", "uri", uri, "error", err)
			continue
		}
		out[uri] = json.RawMessage(raw)

		var ctx map[string]any
		if err := json.Unmarshal(raw, &ctx); err != nil {
			logger.Warn("context is not an object", "uri", uri)
			continue
		}
		pending = append(pending, jsonld.ContextURIs(ctx)...)
	}
	return out, nil
}

// contextLinks collects the string "@context" references anywhere in v.
func contextLinks(v any, logger *slog.Logger) []string {
	var out []string
	switch x := v.(type) {
	case map[string]any:
		for k, val := range x {
			if k != "@context" {
				out = append(out, contextLinks(val, logger)...)
				continue
			}
			switch c := val.(type) {
			case string:
				out = append(out, c)
			case []any:
				for _, item := range c {
					if s, ok := item.(string); ok {
						out = append(out, s)
					} else {
						logger.Warn("embedded context objects are not embedded in manifests")
					}
				}
			default:
				logger.Warn("embedded context objects are not embedded in manifests")
			}
		}
	case []any:
		for _, item := range x {
			out = append(out, contextLinks(item, logger)...)
		}
	}
	slices.Sort(out)
	return out
}
