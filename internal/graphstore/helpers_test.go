package graphstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/provgraph/internal/cid"
	"github.com/roach88/provgraph/internal/statement"
	"github.com/roach88/provgraph/internal/testutil"
)

const registrar = "did:key:z6MkRegistrar"

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "graph.db")
	s, err := Open(path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestBuilder() *statement.Builder {
	clock := testutil.NewDeterministicClock()
	return statement.NewBuilder(cid.NewAddresser(nil), statement.WithClock(clock.Now))
}

func mustGraph(t *testing.T, s *Store, id, name, parent string) Graph {
	t.Helper()
	g, err := s.CreateGraph(context.Background(), Graph{ID: id, Name: name, ParentID: parent})
	require.NoError(t, err)
	return g
}

func mustRegister(t *testing.T, s *Store, st statement.Statement, graphID string) {
	t.Helper()
	require.NoError(t, s.Register(context.Background(), st, graphID))
}

func mustComputation(t *testing.T, b *statement.Builder, input, output []string) *statement.Computation {
	t.Helper()
	c, err := b.NewComputation(statement.ComputationSpec{
		Input:      input,
		Output:     output,
		OperatedBy: registrar,
	}, registrar, "")
	require.NoError(t, err)
	return c
}

func mustMetadata(t *testing.T, b *statement.Builder, subject, metadata string) *statement.Metadata {
	t.Helper()
	m, err := b.NewMetadata(subject, metadata, registrar, "")
	require.NoError(t, err)
	return m
}

func statementIDs(sts []statement.Statement) []string {
	ids := make([]string, 0, len(sts))
	for _, st := range sts {
		ids = append(ids, statement.ID(st))
	}
	return ids
}
