package jsonld

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path"
	"sync"

	"github.com/piprate/json-gold/ld"

	"github.com/roach88/provgraph/internal/cid"
)

// DefaultContext is the context URL stamped on statements built by provgraph.
const DefaultContext = "https://w3id.org/provgraph/v1"

// ErrContextNotFound is returned when a context URI is neither an additional
// nor a static context.
var ErrContextNotFound = errors.New("missing context")

//go:embed contexts/*.jsonld
var contextFS embed.FS

var staticContextFiles = map[string]string{
	DefaultContext: "contexts/provgraph-v1.jsonld",
}

var (
	staticOnce     sync.Once
	staticContexts map[string][]byte
	staticErr      error
)

// StaticContexts returns the built-in context table. Each context is
// reachable by its URL and by the "urn:cid:" identifier of its raw bytes.
// The table is built once per process.
func StaticContexts() (map[string][]byte, error) {
	staticOnce.Do(func() {
		staticContexts, staticErr = buildStaticContexts()
	})
	return staticContexts, staticErr
}

func buildStaticContexts() (map[string][]byte, error) {
	out := make(map[string][]byte, len(staticContextFiles)*2)
	for url, file := range staticContextFiles {
		raw, err := contextFS.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read static context %s: %w", path.Base(file), err)
		}
		if !json.Valid(raw) {
			return nil, fmt.Errorf("static context %s is not valid JSON", path.Base(file))
		}
		id, err := cid.Compute(cid.RawBinary, raw)
		if err != nil {
			return nil, err
		}
		out[url] = raw
		out[cid.AddURN(id)] = raw
	}
	return out, nil
}

// Loader resolves context URIs without network access. Additional contexts
// take precedence over the static table.
type Loader struct {
	static     map[string][]byte
	additional map[string][]byte
}

// NewLoader creates a Loader with optional additional contexts (URI → JSON).
func NewLoader(additional map[string][]byte) (*Loader, error) {
	static, err := StaticContexts()
	if err != nil {
		return nil, err
	}
	for uri, raw := range additional {
		if !json.Valid(raw) {
			return nil, fmt.Errorf("additional context %s is not valid JSON", uri)
		}
	}
	return &Loader{static: static, additional: maps.Clone(additional)}, nil
}

// NewLoaderFromFiles reads additional contexts from local files (URI → path).
func NewLoaderFromFiles(files map[string]string) (*Loader, error) {
	additional := make(map[string][]byte, len(files))
	for uri, file := range files {
		raw, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read context %s: %w", uri, err)
		}
		additional[uri] = raw
	}
	return NewLoader(additional)
}

// Resolve returns the JSON text of the context at uri.
func (l *Loader) Resolve(uri string) ([]byte, error) {
	slog.Debug("loading context", "uri", uri)
	if raw, ok := l.additional[uri]; ok {
		return raw, nil
	}
	if raw, ok := l.static[uri]; ok {
		return raw, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrContextNotFound, uri)
}

// LoadDocument implements ld.DocumentLoader.
func (l *Loader) LoadDocument(u string) (*ld.RemoteDocument, error) {
	raw, err := l.Resolve(u)
	if err != nil {
		return nil, ld.NewJsonLdError(ld.LoadingDocumentFailed, err)
	}
	doc, err := ld.DocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, ld.NewJsonLdError(ld.LoadingDocumentFailed, err)
	}
	return &ld.RemoteDocument{DocumentURL: u, Document: doc}, nil
}

// ContextURIs returns the context references of doc's "@context" value.
// Inline context objects are skipped.
func ContextURIs(doc map[string]any) []string {
	var out []string
	switch ctx := doc["@context"].(type) {
	case string:
		out = append(out, ctx)
	case []any:
		for _, c := range ctx {
			if s, ok := c.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}
