package testutil

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/provgraph/internal/cid"
)

// IDGenerator hands out reproducible artifact identifiers.
//
// The Nth call to CID always returns the raw CID of "<prefix>-N", so a test
// scenario produces the same identifiers, and therefore the same statement
// identifiers, every run.
//
// Thread-safety: all methods are safe for concurrent use.
type IDGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewIDGenerator creates a generator. An empty prefix becomes "artifact".
func NewIDGenerator(prefix string) *IDGenerator {
	if prefix == "" {
		prefix = "artifact"
	}
	return &IDGenerator{prefix: prefix}
}

// CID returns the next bare raw CID.
func (g *IDGenerator) CID() string {
	return cid.MustCompute(cid.RawBinary, g.next())
}

// URN returns the next CID with the "urn:cid:" prefix.
func (g *IDGenerator) URN() string {
	return cid.AddURN(g.CID())
}

// UUID returns the next name-based UUID.
func (g *IDGenerator) UUID() string {
	return uuid.NewSHA1(uuid.NameSpaceURL, g.next()).String()
}

func (g *IDGenerator) next() []byte {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return []byte(fmt.Sprintf("%s-%d", g.prefix, g.n))
}

// Reset restarts the sequence.
func (g *IDGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
