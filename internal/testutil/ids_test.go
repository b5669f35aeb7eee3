package testutil

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/provgraph/internal/cid"
)

func TestIDGenerator_Reproducible(t *testing.T) {
	a := NewIDGenerator("data")
	b := NewIDGenerator("data")

	for i := 0; i < 5; i++ {
		assert.Equal(t, a.CID(), b.CID())
	}
}

func TestIDGenerator_Distinct(t *testing.T) {
	gen := NewIDGenerator("")
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		id := gen.CID()
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestIDGenerator_KnownFirstValue(t *testing.T) {
	gen := NewIDGenerator("artifact")
	assert.Equal(t, cid.MustCompute(cid.RawBinary, []byte("artifact-1")), gen.CID())
}

func TestIDGenerator_URN(t *testing.T) {
	gen := NewIDGenerator("x")
	id := gen.URN()
	assert.True(t, strings.HasPrefix(id, cid.URNPrefix+"bafkr4"), id)
}

func TestIDGenerator_UUID(t *testing.T) {
	gen := NewIDGenerator("entity")
	id := gen.UUID()
	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(5), parsed.Version())
}

func TestIDGenerator_Reset(t *testing.T) {
	gen := NewIDGenerator("r")
	first := gen.CID()
	gen.CID()

	gen.Reset()
	assert.Equal(t, first, gen.CID())
}
