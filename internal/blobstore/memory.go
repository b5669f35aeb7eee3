package blobstore

import (
	"context"
	"slices"
	"sync"

	"github.com/roach88/provgraph/internal/cid"
)

// Memory keeps blobs in a map.
//
// Thread-safety: all methods are safe for concurrent use.
type Memory struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte)}
}

// Exists implements Store.
func (m *Memory) Exists(_ context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blobs[cid.StripURN(id)]
	return ok, nil
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, id string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[cid.StripURN(id)]
	if !ok {
		return nil, notFound(id)
	}
	return slices.Clone(data), nil
}

// Put implements Store.
func (m *Memory) Put(_ context.Context, data []byte, codec uint64, expected string) (string, error) {
	id, err := identify(data, codec, expected)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[id]; !ok {
		m.blobs[id] = slices.Clone(data)
	}
	return id, nil
}

// Len returns the number of stored blobs.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}

// Close implements Store.
func (m *Memory) Close() error { return nil }
