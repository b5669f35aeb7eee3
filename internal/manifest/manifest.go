// Package manifest bundles statements, their JSON-LD contexts and the
// blobs they reference into a self-contained document.
//
// Version 3 keys statements by id. Version 4 groups them by graph.
package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"github.com/roach88/provgraph/internal/graphstore"
	"github.com/roach88/provgraph/internal/statement"
)

const (
	VersionV3 = "3"
	VersionV4 = "4"
)

// ErrVersionMismatch is returned when merging manifests of different versions.
var ErrVersionMismatch = errors.New("Manifests must be the same version.")

// Manifest is a version 3 bundle.
type Manifest struct {
	Version    string                     `json:"version"`
	Contexts   map[string]json.RawMessage `json:"contexts"`
	Statements StatementMap               `json:"statements"`
	// Blobs maps a CID to the base64 encoding of its bytes.
	Blobs      map[string]string `json:"blobs"`
	Attributes map[string]any    `json:"attributes,omitempty"`
}

// ManifestV4 is a version 4 bundle.
type ManifestV4 struct {
	Version  string                     `json:"version"`
	Contexts map[string]json.RawMessage `json:"contexts"`
	Graphs   []Graph                    `json:"graphs"`
	Blobs    map[string]string          `json:"blobs"`
}

// Graph is a graph and its retrieved statements.
type Graph struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	ParentID   string        `json:"parent_id,omitempty"`
	Statements StatementList `json:"statements"`
}

// GraphFrom converts a retrieved graph.
func GraphFrom(g graphstore.Graph) Graph {
	return Graph{ID: g.ID, Name: g.Name, ParentID: g.ParentID, Statements: g.Statements}
}

// StatementList is a list of statements that decodes by shape.
type StatementList []statement.Statement

// UnmarshalJSON decodes each element with statement.Decode.
func (l *StatementList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(StatementList, 0, len(raw))
	for i, r := range raw {
		s, err := statement.Decode(r)
		if err != nil {
			return fmt.Errorf("statement %d: %w", i, err)
		}
		out = append(out, s)
	}
	*l = out
	return nil
}

// StatementMap maps statement ids to statements.
type StatementMap map[string]statement.Statement

// UnmarshalJSON decodes each value with statement.Decode.
func (m *StatementMap) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(StatementMap, len(raw))
	for id, r := range raw {
		s, err := statement.Decode(r)
		if err != nil {
			return fmt.Errorf("statement %s: %w", id, err)
		}
		out[id] = s
	}
	*m = out
	return nil
}

// Options controls manifest generation.
type Options struct {
	// Contexts, when set, resolves the contexts to embed. Nil embeds none.
	Contexts ContextResolver

	Attributes map[string]any

	// Logger receives warnings about contexts that are skipped. Nil logs
	// to slog.Default().
	Logger *slog.Logger
}

// New builds a version 3 manifest.
func New(statements []statement.Statement, blobs map[string]string, opts Options) (*Manifest, error) {
	contexts, err := embedContexts(opts.Contexts, statements, loggerOrDefault(opts.Logger))
	if err != nil {
		return nil, err
	}
	m := &Manifest{
		Version:    VersionV3,
		Contexts:   contexts,
		Statements: make(StatementMap, len(statements)),
		Blobs:      nonNil(blobs),
		Attributes: opts.Attributes,
	}
	for _, s := range statements {
		m.Statements[statement.ID(s)] = s
	}
	return m, nil
}

// NewV4 builds a version 4 manifest.
func NewV4(graphs []Graph, blobs map[string]string, opts Options) (*ManifestV4, error) {
	var all []statement.Statement
	for _, g := range graphs {
		all = append(all, g.Statements...)
	}
	contexts, err := embedContexts(opts.Contexts, all, loggerOrDefault(opts.Logger))
	if err != nil {
		return nil, err
	}
	if graphs == nil {
		graphs = []Graph{}
	}
	return &ManifestV4{Version: VersionV4, Contexts: contexts, Graphs: graphs, Blobs: nonNil(blobs)}, nil
}

// Merge combines two version 3 manifests. Entries of b win on key
// collisions.
func Merge(a, b *Manifest) (*Manifest, error) {
	if a.Version != b.Version {
		return nil, ErrVersionMismatch
	}
	out := &Manifest{
		Version:    a.Version,
		Contexts:   maps.Clone(nonNilRaw(a.Contexts)),
		Statements: maps.Clone(a.Statements),
		Blobs:      maps.Clone(nonNil(a.Blobs)),
	}
	if out.Statements == nil {
		out.Statements = make(StatementMap)
	}
	maps.Copy(out.Contexts, b.Contexts)
	maps.Copy(out.Statements, b.Statements)
	maps.Copy(out.Blobs, b.Blobs)

	switch {
	case a.Attributes == nil && b.Attributes == nil:
	case a.Attributes == nil:
		out.Attributes = maps.Clone(b.Attributes)
	default:
		out.Attributes = maps.Clone(a.Attributes)
		maps.Copy(out.Attributes, b.Attributes)
	}
	return out, nil
}

// StatementsOf returns the statements of m ordered by id.
func (m *Manifest) StatementsOf() []statement.Statement {
	ids := sortedKeys(m.Statements)
	out := make([]statement.Statement, len(ids))
	for i, id := range ids {
		out[i] = m.Statements[id]
	}
	return out
}

func nonNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func nonNilRaw(m map[string]json.RawMessage) map[string]json.RawMessage {
	if m == nil {
		return map[string]json.RawMessage{}
	}
	return m
}

// Version reads the version field of an encoded manifest.
func Version(data []byte) (string, error) {
	var probe struct {
		Version string `json:"version"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&probe); err != nil {
		return "", fmt.Errorf("decode manifest version: %w", err)
	}
	return probe.Version, nil
}
