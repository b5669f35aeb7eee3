package graphstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/provgraph/internal/cid"
	"github.com/roach88/provgraph/internal/errs"
)

func TestListGraphs(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	empty, err := s.ListGraphs(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	mustGraph(t, s, "2", "beta", "")
	mustGraph(t, s, "1", "alpha", "")
	mustGraph(t, s, "3", "alpha", "1")

	graphs, err := s.ListGraphs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Graph{
		{ID: "1", Name: "alpha"},
		{ID: "3", Name: "alpha", ParentID: "1"},
		{ID: "2", Name: "beta"},
	}, graphs)
}

func TestChildGraphs(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	mustGraph(t, s, "root", "root", "")
	mustGraph(t, s, "a", "a", "root")
	mustGraph(t, s, "b", "b", "root")
	mustGraph(t, s, "a1", "a1", "a")
	mustGraph(t, s, "other", "other", "")

	children, err := s.ChildGraphs(ctx, "root")
	require.NoError(t, err)

	var ids []string
	for _, g := range children {
		ids = append(ids, g.ID)
	}
	assert.Equal(t, []string{"a", "a1", "b"}, ids)

	leaf, err := s.ChildGraphs(ctx, "a1")
	require.NoError(t, err)
	assert.Empty(t, leaf)

	_, err = s.ChildGraphs(ctx, "missing")
	assert.True(t, errs.IsNotFound(err))
}

func TestAncestors(t *testing.T) {
	s := createTestStore(t)
	mustGraph(t, s, "root", "root", "")
	mustGraph(t, s, "mid", "mid", "root")
	mustGraph(t, s, "leaf", "leaf", "mid")

	chain, err := s.Ancestors(context.Background(), "leaf")
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, "leaf", chain[0].ID)
	assert.Equal(t, "mid", chain[1].ID)
	assert.Equal(t, "root", chain[2].ID)
}

func TestAssociationLookups(t *testing.T) {
	s := createTestStore(t)
	b := newTestBuilder()
	ctx := context.Background()

	pairs := [][2]string{
		{"model", "dataset-b"},
		{"model", "dataset-a"},
		{"model", "dataset-a"},
		{"other", "dataset-a"},
		{"did:key:z6MkPerson", "model"},
	}
	for _, p := range pairs {
		a, err := b.NewAssociation(p[0], p[1], registrar, "")
		require.NoError(t, err)
		mustRegister(t, s, a, "")
	}

	assocs, err := s.AssociationsForSubject(ctx, "model")
	require.NoError(t, err)
	assert.Equal(t, []string{"urn:cid:dataset-a", "urn:cid:dataset-b"}, assocs)

	subjects, err := s.SubjectsForAssociation(ctx, "urn:cid:dataset-a")
	require.NoError(t, err)
	assert.Equal(t, []string{"urn:cid:model", "urn:cid:other"}, subjects)

	people, err := s.SubjectsForAssociation(ctx, "model")
	require.NoError(t, err)
	assert.Equal(t, []string{"did:key:z6MkPerson"}, people)

	none, err := s.AssociationsForSubject(ctx, "nothing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGetStatement(t *testing.T) {
	s := createTestStore(t)
	b := newTestBuilder()
	ctx := context.Background()

	meta := mustMetadata(t, b, "subject", "meta")
	mustRegister(t, s, meta, "")

	byURN, err := s.GetStatement(ctx, meta.ID)
	require.NoError(t, err)
	bare, err := s.GetStatement(ctx, cid.StripURN(meta.ID))
	require.NoError(t, err)
	assert.Equal(t, byURN, bare)

	_, err = s.GetStatement(ctx, "urn:cid:missing")
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
}
