package statement_test

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/provgraph/internal/cid"
	"github.com/roach88/provgraph/internal/errs"
	"github.com/roach88/provgraph/internal/statement"
	"github.com/roach88/provgraph/internal/testutil"
)

const (
	registrar = "did:key:z6MkTest"
	fixedTime = "2024-06-27T14:36:35Z"

	helloCID = "bafkr4igxjga67jykbseaxdmmdgc5a5o3zp3htom2l6mrjznk7fvyggu6eq"
	emptyCID = "bafkr4ifpcne3t5pzugtkaqcn5i3nzskjtpfslsnnyejlpte2spfoihzsmi"
)

func newBuilder() *statement.Builder {
	clock := testutil.NewDeterministicClock()
	return statement.NewBuilder(cid.NewAddresser(nil), statement.WithClock(clock.Now))
}

func TestBuilder_DataKnownIdentifier(t *testing.T) {
	b := newBuilder()

	s, err := b.NewData([]string{helloCID}, registrar, fixedTime)
	require.NoError(t, err)

	assert.Equal(t, "urn:cid:baga6yaq6eblrbanc2ierfo5324rw6udug4ihz3n27pzylrzek25plpu5uybwm", s.ID)
	assert.Equal(t, statement.IDList{"urn:cid:" + helloCID}, s.Data)
	assert.Equal(t, statement.TypeData, s.Type)
	assert.Equal(t, statement.DefaultContext, s.Context)
}

func TestBuilder_Deterministic(t *testing.T) {
	a, err := newBuilder().NewComputation(statement.ComputationSpec{
		Input: []string{helloCID}, Output: []string{emptyCID}, OperatedBy: registrar,
	}, registrar, "")
	require.NoError(t, err)

	b, err := newBuilder().NewComputation(statement.ComputationSpec{
		Input: []string{helloCID}, Output: []string{emptyCID}, OperatedBy: registrar,
	}, registrar, "")
	require.NoError(t, err)

	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, fixedTime, a.Timestamp)
}

func TestBuilder_TimestampChangesIdentifier(t *testing.T) {
	b := newBuilder()
	first, err := b.NewData([]string{helloCID}, registrar, "")
	require.NoError(t, err)
	second, err := b.NewData([]string{helloCID}, registrar, "")
	require.NoError(t, err)

	assert.NotEqual(t, first.Timestamp, second.Timestamp)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestBuilder_EmptyListsRejected(t *testing.T) {
	b := newBuilder()
	tests := []struct {
		name string
		run  func() error
	}{
		{"data nil", func() error { _, err := b.NewData(nil, registrar, fixedTime); return err }},
		{"data blanks", func() error { _, err := b.NewData([]string{"", "  "}, registrar, fixedTime); return err }},
		{"entity", func() error { _, err := b.NewEntity([]string{}, registrar, fixedTime); return err }},
		{"computation input", func() error {
			_, err := b.NewComputation(statement.ComputationSpec{Output: []string{helloCID}, OperatedBy: registrar}, registrar, fixedTime)
			return err
		}},
		{"computation output", func() error {
			_, err := b.NewComputation(statement.ComputationSpec{Input: []string{helloCID}, OperatedBy: registrar}, registrar, fixedTime)
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			require.Error(t, err)
			assert.True(t, errs.IsMalformed(err))
			assert.Contains(t, err.Error(), "CID list must not be empty.")
		})
	}
}

func TestBuilder_Normalization(t *testing.T) {
	b := newBuilder()

	t.Run("association keeps urns and dids", func(t *testing.T) {
		s, err := b.NewAssociation("did:web:example.com", "urn:uuid:1234", registrar, fixedTime)
		require.NoError(t, err)
		assert.Equal(t, "did:web:example.com", s.Subject)
		assert.Equal(t, "urn:uuid:1234", s.Association)
	})

	t.Run("association prefixes bare cids", func(t *testing.T) {
		s, err := b.NewAssociation(helloCID, emptyCID, registrar, fixedTime)
		require.NoError(t, err)
		assert.Equal(t, "urn:cid:"+helloCID, s.Subject)
		assert.Equal(t, "urn:cid:"+emptyCID, s.Association)
	})

	t.Run("data does not double prefix", func(t *testing.T) {
		s, err := b.NewData([]string{"urn:cid:" + helloCID, emptyCID}, registrar, fixedTime)
		require.NoError(t, err)
		assert.Equal(t, statement.IDList{"urn:cid:" + helloCID, "urn:cid:" + emptyCID}, s.Data)
	})

	t.Run("entity gets uuid urns", func(t *testing.T) {
		s, err := b.NewEntity([]string{"0b5d9b1a-2e4f-4f7c-9a4e-3f1c2d5e6a7b"}, registrar, fixedTime)
		require.NoError(t, err)
		assert.Equal(t, statement.IDList{"urn:uuid:0b5d9b1a-2e4f-4f7c-9a4e-3f1c2d5e6a7b"}, s.Entity)
	})

	t.Run("storage defaults operator", func(t *testing.T) {
		s, err := b.NewStorage(helloCID, emptyCID, "", registrar, fixedTime)
		require.NoError(t, err)
		assert.Equal(t, registrar, s.OperatedBy)
		assert.Equal(t, "urn:cid:"+emptyCID, s.StoredOn)
	})

	t.Run("computation executedOn kept as given", func(t *testing.T) {
		s, err := b.NewComputation(statement.ComputationSpec{
			Computation: helloCID,
			Input:       []string{helloCID},
			Output:      []string{emptyCID},
			OperatedBy:  registrar,
			ExecutedOn:  "did:key:z6MkHost",
		}, registrar, fixedTime)
		require.NoError(t, err)
		assert.Equal(t, "urn:cid:"+helloCID, s.Computation)
		assert.Equal(t, "did:key:z6MkHost", s.ExecutedOn)
	})
}

func TestBuilder_MissingRegistrar(t *testing.T) {
	_, err := newBuilder().NewData([]string{helloCID}, "", fixedTime)
	require.Error(t, err)
	assert.True(t, errs.IsMalformed(err))
}

func TestBuilder_MetadataFromJSON(t *testing.T) {
	b := newBuilder()
	s, canonical, err := b.NewMetadataFromJSON(helloCID, map[string]any{"a": 1}, registrar, fixedTime)
	require.NoError(t, err)

	assert.Equal(t, `{"a":1}`, string(canonical))
	assert.Equal(t, "urn:cid:baga6yaq6edkzwzlc27e3cin4s5qioplypcio6tkctkwthjylibn2ud5aripvg", s.Metadata)
}

func TestBuilder_SigstoreBundleIsCanonicalBase64(t *testing.T) {
	b := newBuilder()
	bundle := map[string]any{"z": true, "a": "x"}

	s, err := b.NewCredentialSigstore("urn:cid:"+helloCID, bundle, registrar, fixedTime)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(s.SigstoreBundle)
	require.NoError(t, err)
	assert.Equal(t, `{"a":"x","z":true}`, string(raw))

	decoded, err := s.Bundle()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": "x", "z": true}, decoded)
}

func TestBuilder_DSSESubject(t *testing.T) {
	b := newBuilder()
	env := statement.Envelope{
		PayloadType: statement.PayloadTypeStatementURN,
		Payload:     base64.StdEncoding.EncodeToString([]byte(helloCID)),
		Signatures:  []statement.Signature{{KeyID: "key-1", Sig: "c2ln"}},
	}

	s, err := b.NewCredentialDSSE(env, registrar, fixedTime)
	require.NoError(t, err)
	assert.Equal(t, "urn:cid:"+helloCID, s.CredentialSubject())
	assert.Equal(t, []string{"urn:cid:" + helloCID}, s.ReferencedIdentifiers())

	env.Payload = "not base64!"
	_, err = b.NewCredentialDSSE(env, registrar, fixedTime)
	assert.True(t, errs.IsMalformed(err))
}

func TestBuilder_CredentialVC(t *testing.T) {
	b := newBuilder()
	cred := map[string]any{
		"id":                "urn:cid:" + emptyCID,
		"credentialSubject": map[string]any{"id": "urn:cid:" + helloCID},
		"evidence": []any{
			map[string]any{"report": "urn:cid:report", "tpmLog": "urn:cid:log", "other": "ignored"},
		},
	}

	s, err := b.NewCredentialVC(cred, registrar, fixedTime)
	require.NoError(t, err)
	assert.Equal(t, "urn:cid:"+helloCID, s.CredentialSubject())
	assert.Equal(t, []string{"urn:cid:" + emptyCID, "urn:cid:report", "urn:cid:log"}, s.ReferencedIdentifiers())
}

func TestVerify(t *testing.T) {
	b := newBuilder()
	s, err := b.NewMetadata(helloCID, emptyCID, registrar, fixedTime)
	require.NoError(t, err)

	require.NoError(t, statement.Verify(b.Addresser(), s))

	s.Subject = "urn:cid:tampered"
	err = statement.Verify(b.Addresser(), s)
	require.Error(t, err)
	assert.True(t, errs.IsIdentityMismatch(err))
	assert.True(t, strings.Contains(err.Error(), "doesn't match provided CID"), err.Error())
}

func TestReferencedIdentifiers(t *testing.T) {
	b := newBuilder()

	comp, err := b.NewComputation(statement.ComputationSpec{
		Computation: "comp",
		Input:       []string{"in1", "in2"},
		Output:      []string{"out"},
		OperatedBy:  registrar,
		ExecutedOn:  "did:key:host",
	}, registrar, fixedTime)
	require.NoError(t, err)
	assert.Equal(t, []string{"urn:cid:in1", "urn:cid:in2", "urn:cid:out", "urn:cid:comp", "did:key:host"}, comp.ReferencedIdentifiers())

	meta, err := b.NewMetadata("subj", "meta", registrar, fixedTime)
	require.NoError(t, err)
	assert.Equal(t, []string{"urn:cid:meta", "urn:cid:subj"}, meta.ReferencedIdentifiers())

	ent, err := b.NewEntity([]string{"e"}, registrar, fixedTime)
	require.NoError(t, err)
	assert.Empty(t, ent.ReferencedIdentifiers())
}

func TestScopes(t *testing.T) {
	graph := []statement.Kind{
		statement.KindAssociation, statement.KindData, statement.KindMetadata,
		statement.KindStorage, statement.KindComputation, statement.KindEntity,
	}
	for _, k := range statement.Kinds {
		want := statement.ScopeGlobal
		for _, g := range graph {
			if g == k {
				want = statement.ScopeGraph
			}
		}
		assert.Equal(t, want, statement.ScopeOf(k), string(k))
	}
}

func TestNormalizeRef(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"bafkabc", "urn:cid:bafkabc"},
		{"urn:cid:bafkabc", "urn:cid:bafkabc"},
		{"urn:uuid:6ba7b810-9dad-11d1-80b4-00c04fd430c8", "urn:uuid:6ba7b810-9dad-11d1-80b4-00c04fd430c8"},
		{"did:key:z6MkTest", "did:key:z6MkTest"},
		{"https://example.com/x", "https://example.com/x"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, statement.NormalizeRef(tt.in))
		})
	}
	assert.Equal(t, []string{"urn:cid:a", "did:key:z"}, statement.NormalizeRefs([]string{"a", "did:key:z"}))
}
