package jsonld

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const defaultContextCID = "urn:cid:bafkr4ibzcf2wfijl2uzmlu5csvghxttuubob4mes3y4dwif5cbnk55wkva"

func TestStaticContexts(t *testing.T) {
	ctxs, err := StaticContexts()
	require.NoError(t, err)

	byURL, ok := ctxs[DefaultContext]
	require.True(t, ok)
	byCID, ok := ctxs[defaultContextCID]
	require.True(t, ok, "static context must be reachable by its content id")
	assert.Equal(t, byURL, byCID)

	again, err := StaticContexts()
	require.NoError(t, err)
	assert.Equal(t, len(ctxs), len(again))
}

func TestLoaderResolve(t *testing.T) {
	override := []byte(`{"@context":{"name":"https://example.org/name"}}`)
	l, err := NewLoader(map[string][]byte{
		"https://example.org/ctx": []byte(`{"@context":{}}`),
		DefaultContext:            override,
	})
	require.NoError(t, err)

	t.Run("additional wins over static", func(t *testing.T) {
		raw, err := l.Resolve(DefaultContext)
		require.NoError(t, err)
		assert.Equal(t, override, raw)
	})

	t.Run("static by cid", func(t *testing.T) {
		_, err := l.Resolve(defaultContextCID)
		require.NoError(t, err)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := l.Resolve("https://example.org/unknown")
		require.ErrorIs(t, err, ErrContextNotFound)
		assert.Contains(t, err.Error(), "https://example.org/unknown")
	})

	t.Run("load document", func(t *testing.T) {
		doc, err := l.LoadDocument("https://example.org/ctx")
		require.NoError(t, err)
		assert.Equal(t, "https://example.org/ctx", doc.DocumentURL)
		assert.NotNil(t, doc.Document)

		_, err = l.LoadDocument("https://example.org/unknown")
		assert.Error(t, err)
	})
}

func TestNewLoaderRejectsInvalidJSON(t *testing.T) {
	_, err := NewLoader(map[string][]byte{"x": []byte("{not json")})
	assert.Error(t, err)
}

func TestNewLoaderFromFiles(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "ctx.jsonld")
	require.NoError(t, os.WriteFile(file, []byte(`{"@context":{}}`), 0o644))

	l, err := NewLoaderFromFiles(map[string]string{"https://example.org/file": file})
	require.NoError(t, err)
	_, err = l.Resolve("https://example.org/file")
	require.NoError(t, err)

	_, err = NewLoaderFromFiles(map[string]string{"x": filepath.Join(dir, "missing")})
	assert.Error(t, err)
}

func TestContextURIs(t *testing.T) {
	assert.Equal(t, []string{"a"}, ContextURIs(map[string]any{"@context": "a"}))
	assert.Equal(t, []string{"a", "b"}, ContextURIs(map[string]any{
		"@context": []any{"a", map[string]any{"x": "y"}, "b"},
	}))
	assert.Empty(t, ContextURIs(map[string]any{}))
}
