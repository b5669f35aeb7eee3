package graphstore

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/provgraph/internal/cid"
	"github.com/roach88/provgraph/internal/errs"
	"github.com/roach88/provgraph/internal/statement"
)

func TestCreateGraph(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	root := mustGraph(t, s, "root", "Root", "")
	child := mustGraph(t, s, "child", "Child", root.ID)

	got, err := s.GetGraph(ctx, child.ID)
	require.NoError(t, err)
	assert.Equal(t, Graph{ID: "child", Name: "Child", ParentID: "root"}, got)
}

func TestCreateGraph_GeneratesID(t *testing.T) {
	s := createTestStore(t)

	g, err := s.CreateGraph(context.Background(), Graph{Name: "anonymous"})
	require.NoError(t, err)
	assert.Len(t, g.ID, 36)
}

func TestCreateGraph_Errors(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	mustGraph(t, s, "root", "Root", "")

	tests := []struct {
		name  string
		graph Graph
		check func(error) bool
	}{
		{"duplicate id", Graph{ID: "root", Name: "again"}, errs.IsAlreadyExists},
		{"unknown parent", Graph{ID: "orphan", Name: "o", ParentID: "missing"}, errs.IsNotFound},
		{"own parent", Graph{ID: "self", Name: "s", ParentID: "self"}, errs.IsIntegrity},
		{"empty name", Graph{ID: "nameless"}, errs.IsMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.CreateGraph(ctx, tt.graph)
			require.Error(t, err)
			assert.True(t, tt.check(err), err.Error())
		})
	}
}

func TestCreateGraph_RejectsParentInCycle(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	mustGraph(t, s, "a", "A", "")
	mustGraph(t, s, "b", "B", "a")
	_, err := s.DB().Exec(`UPDATE graphs SET parent_id = 'b' WHERE graph_id = 'a'`)
	require.NoError(t, err)

	_, err = s.CreateGraph(ctx, Graph{ID: "c", Name: "C", ParentID: "b"})
	require.Error(t, err)
	assert.True(t, errs.IsIntegrity(err))
}

func TestRegister_Idempotent(t *testing.T) {
	s := createTestStore(t)
	b := newTestBuilder()
	ctx := context.Background()
	mustGraph(t, s, "g", "G", "")

	data, err := b.NewData([]string{"a", "b"}, registrar, "")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Register(ctx, data, "g"))
	}

	var rows, subjects, links int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM data_statements`).Scan(&rows))
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM data_statement_subjects`).Scan(&subjects))
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM statement_graph_link`).Scan(&links))
	assert.Equal(t, 1, rows)
	assert.Equal(t, 2, subjects)
	assert.Equal(t, 1, links)
}

func TestRegister_DoesNotOverwriteBody(t *testing.T) {
	s := createTestStore(t)
	b := newTestBuilder()
	ctx := context.Background()

	meta := mustMetadata(t, b, "subject", "meta")
	mustRegister(t, s, meta, "")

	// Same id, different content: the first body wins.
	forged := *meta
	forged.Metadata = "urn:cid:forged"
	require.NoError(t, s.Register(ctx, &forged, ""))

	got, err := s.GetStatement(ctx, meta.ID)
	require.NoError(t, err)
	assert.Equal(t, "urn:cid:meta", got.(*statement.Metadata).Metadata)
}

// bareTwin re-decodes st with its "@id" stripped of the "urn:cid:" prefix.
func bareTwin(t *testing.T, st statement.Statement) statement.Statement {
	t.Helper()
	doc, err := statement.ToDocument(st)
	require.NoError(t, err)
	doc["@id"] = cid.StripURN(statement.ID(st))
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	twin, err := statement.Decode(data)
	require.NoError(t, err)
	require.False(t, strings.HasPrefix(statement.ID(twin), cid.URNPrefix))
	return twin
}

func TestRegister_NormalizesID(t *testing.T) {
	tests := []struct {
		name      string
		bareFirst bool
	}{
		{"prefixed then bare", false},
		{"bare then prefixed", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := createTestStore(t, WithVerifier(cid.NewAddresser(nil)))
			b := newTestBuilder()
			ctx := context.Background()
			mustGraph(t, s, "G", "G", "")

			comp := mustComputation(t, b, []string{"urn:cid:in1"}, []string{"urn:cid:out1"})
			id := comp.ID
			twin := bareTwin(t, comp)
			order := []statement.Statement{comp, twin}
			if tt.bareFirst {
				order = []statement.Statement{twin, comp}
			}
			for _, st := range order {
				mustRegister(t, s, st, "G")
			}
			assert.Equal(t, id, statement.ID(twin))

			var rows, links int
			require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM computation_statements`).Scan(&rows))
			require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM statement_graph_link`).Scan(&links))
			assert.Equal(t, 1, rows)
			assert.Equal(t, 1, links)

			g, err := s.RetrieveGraph(ctx, "G")
			require.NoError(t, err)
			assert.Equal(t, []string{id}, statementIDs(g.Statements))

			got, err := s.GetStatement(ctx, cid.StripURN(id))
			require.NoError(t, err)
			assert.Equal(t, id, statement.ID(got))

			graphs, err := s.GraphsForStatement(ctx, cid.StripURN(id))
			require.NoError(t, err)
			assert.Equal(t, []string{"G"}, graphs)
		})
	}
}

func TestCreateGraph_CanonicalUUID(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	const id = "6ba7b810-9dad-11d1-80b4-00c04fd430c8"

	root := mustGraph(t, s, strings.ToUpper(id), "root", "")
	assert.Equal(t, id, root.ID)

	for _, alias := range []string{id, strings.ToUpper(id), "urn:uuid:" + id, "{" + id + "}"} {
		t.Run(alias, func(t *testing.T) {
			got, err := s.GetGraph(ctx, alias)
			require.NoError(t, err)
			assert.Equal(t, id, got.ID)
		})
	}

	_, err := s.CreateGraph(ctx, Graph{ID: "urn:uuid:" + id, Name: "again"})
	require.Error(t, err)
	assert.True(t, errs.IsAlreadyExists(err))

	child := mustGraph(t, s, "", "child", "{"+id+"}")
	assert.Equal(t, id, child.ParentID)

	meta := mustMetadata(t, newTestBuilder(), "x", "y")
	mustRegister(t, s, meta, strings.ToUpper(id))
	graphs, err := s.GraphsForStatement(ctx, meta.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{id}, graphs)
}

func TestRegister_UnknownGraph(t *testing.T) {
	s := createTestStore(t)
	b := newTestBuilder()

	err := s.Register(context.Background(), mustMetadata(t, b, "x", "y"), "missing")
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
}

func TestRegister_VerifierRejectsMismatch(t *testing.T) {
	s := createTestStore(t, WithVerifier(cid.NewAddresser(nil)))
	b := newTestBuilder()
	ctx := context.Background()

	meta := mustMetadata(t, b, "subject", "meta")
	require.NoError(t, s.Register(ctx, meta, ""))

	tampered := *meta
	tampered.Subject = "urn:cid:other"
	err := s.Register(ctx, &tampered, "")
	require.Error(t, err)
	assert.True(t, errs.IsIdentityMismatch(err))
}

func TestRegister_MissingID(t *testing.T) {
	s := createTestStore(t)
	err := s.Register(context.Background(), &statement.Data{Data: statement.IDList{"urn:cid:a"}}, "")
	require.Error(t, err)
	assert.True(t, errs.IsMalformed(err))
}

func TestRegister_GlobalWithGraphIsStoredUnlinked(t *testing.T) {
	s := createTestStore(t)
	b := newTestBuilder()
	ctx := context.Background()
	mustGraph(t, s, "g", "G", "")

	did, err := b.NewDid("did:key:z6MkOther", nil, registrar, "")
	require.NoError(t, err)
	require.NoError(t, s.Register(ctx, did, "g"))

	got, err := s.GetStatement(ctx, did.ID)
	require.NoError(t, err)
	assert.Equal(t, statement.KindDid, got.Kind())

	graphs, err := s.GraphsForStatement(ctx, did.ID)
	require.NoError(t, err)
	assert.Empty(t, graphs)
}

func TestAssociateStatementToGraph(t *testing.T) {
	s := createTestStore(t)
	b := newTestBuilder()
	ctx := context.Background()
	mustGraph(t, s, "g1", "G1", "")
	mustGraph(t, s, "g2", "G2", "")

	meta := mustMetadata(t, b, "subject", "meta")
	mustRegister(t, s, meta, "g1")

	require.NoError(t, s.AssociateStatementToGraph(ctx, meta.ID, "g2"))
	require.NoError(t, s.AssociateStatementToGraph(ctx, cid.StripURN(meta.ID), "g2"))

	graphs, err := s.GraphsForStatement(ctx, meta.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"g1", "g2"}, graphs)

	err = s.AssociateStatementToGraph(ctx, "urn:cid:unknown", "g1")
	assert.True(t, errs.IsNotFound(err))

	err = s.AssociateStatementToGraph(ctx, meta.ID, "missing")
	assert.True(t, errs.IsNotFound(err))
}

func TestRegister_AllKinds(t *testing.T) {
	s := createTestStore(t)
	b := newTestBuilder()
	ctx := context.Background()

	sts := []statement.Statement{}
	add := func(st statement.Statement, err error) {
		require.NoError(t, err)
		sts = append(sts, st)
	}
	add(b.NewAssociation("subject", "assoc", registrar, ""))
	add(b.NewData([]string{"d"}, registrar, ""))
	add(b.NewMetadata("subject", "meta", registrar, ""))
	add(b.NewStorage("d", "bucket", "", registrar, ""))
	add(b.NewComputation(statement.ComputationSpec{Input: []string{"i"}, Output: []string{"o"}, OperatedBy: registrar}, registrar, ""))
	add(b.NewEntity([]string{"0b5d9b1a-2e4f-4f7c-9a4e-3f1c2d5e6a7b"}, registrar, ""))
	add(b.NewGovernance("urn:cid:subject", "urn:cid:doc", registrar, ""))
	add(b.NewDid(registrar, nil, registrar, ""))
	add(b.NewCredentialVC(map[string]any{"credentialSubject": map[string]any{"id": "urn:cid:subject"}}, registrar, ""))
	add(b.NewCredentialDSSE(statement.Envelope{
		PayloadType: statement.PayloadTypeStatementURN,
		Payload:     "c3ViamVjdA==",
		Signatures:  []statement.Signature{{KeyID: "k", Sig: "c2ln"}},
	}, registrar, ""))
	add(b.NewCredentialSigstore("urn:cid:subject", map[string]any{"b": 1}, registrar, ""))

	for _, st := range sts {
		t.Run(string(st.Kind()), func(t *testing.T) {
			require.NoError(t, s.Register(ctx, st, ""))
			got, err := s.GetStatement(ctx, statement.ID(st))
			require.NoError(t, err)
			assert.Equal(t, st.Kind(), got.Kind())
			assert.Equal(t, st.ReferencedIdentifiers(), got.ReferencedIdentifiers())
		})
	}
}
