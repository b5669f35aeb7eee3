package blobstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/roach88/provgraph/internal/cid"
	"github.com/roach88/provgraph/internal/errs"
)

// Key format: blob/<cid>
const blobPrefix = "blob/"

// Badger stores blobs in a Badger database.
type Badger struct {
	db *badger.DB
	options
}

var _ Store = (*Badger)(nil)

// OpenBadger opens a Badger database in dir. An empty dir opens an
// in-memory database.
func OpenBadger(dir string, opts ...Option) (*Badger, error) {
	bopts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		bopts = bopts.WithInMemory(true)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &Badger{db: db, options: buildOptions(opts)}, nil
}

func blobKey(id string) []byte {
	return []byte(blobPrefix + cid.StripURN(id))
}

// Exists implements Store.
func (b *Badger) Exists(_ context.Context, id string) (bool, error) {
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(blobKey(id))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errs.NewStorage("stat blob", err).With("blob", id)
	}
	return true, nil
}

// Get implements Store.
func (b *Badger) Get(ctx context.Context, id string) (data []byte, err error) {
	start := time.Now()
	defer func() { b.observe(ctx, "get", start, err) }()

	err = b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(blobKey(id))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, errs.NewStorage("read blob", err).With("blob", id)
	}
	return data, nil
}

// Put implements Store.
func (b *Badger) Put(ctx context.Context, data []byte, codec uint64, expected string) (id string, err error) {
	start := time.Now()
	defer func() { b.observe(ctx, "put", start, err) }()

	id, err = identify(data, codec, expected)
	if err != nil {
		return "", err
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(blobKey(id))
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(blobKey(id), data)
	})
	if err != nil {
		return "", errs.NewStorage("write blob", err).With("blob", id)
	}
	return id, nil
}

// Close implements Store.
func (b *Badger) Close() error {
	return b.db.Close()
}
