package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/roach88/provgraph/internal/cid"
	"github.com/roach88/provgraph/internal/errs"
)

// LocalFS stores one file per blob, named by CID, in a directory.
type LocalFS struct {
	dir string
	options
}

var _ Store = (*LocalFS)(nil)

// OpenLocalFS opens a store rooted at dir, creating it if needed.
func OpenLocalFS(dir string, opts ...Option) (*LocalFS, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob directory: %w", err)
	}
	return &LocalFS{dir: dir, options: buildOptions(opts)}, nil
}

// path returns the file for id. Identifiers that could escape the
// directory are rejected.
func (l *LocalFS) path(id string) (string, error) {
	id = cid.StripURN(id)
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", errs.New(errs.CodeNotFound, "invalid blob id").With("blob", id)
	}
	return filepath.Join(l.dir, id), nil
}

// Exists implements Store.
func (l *LocalFS) Exists(_ context.Context, id string) (bool, error) {
	p, err := l.path(id)
	if err != nil {
		return false, nil
	}
	_, err = os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, errs.NewStorage("stat blob", err).With("blob", id)
	}
	return true, nil
}

// Get implements Store.
func (l *LocalFS) Get(ctx context.Context, id string) (data []byte, err error) {
	start := time.Now()
	defer func() { l.observe(ctx, "get", start, err) }()

	p, err := l.path(id)
	if err != nil {
		return nil, err
	}
	data, err = os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, errs.NewStorage("read blob", err).With("blob", id)
	}
	return data, nil
}

// Put implements Store. Files are written to a temporary name and renamed
// into place.
func (l *LocalFS) Put(ctx context.Context, data []byte, codec uint64, expected string) (id string, err error) {
	start := time.Now()
	defer func() { l.observe(ctx, "put", start, err) }()

	id, err = identify(data, codec, expected)
	if err != nil {
		return "", err
	}
	p := filepath.Join(l.dir, id)
	if _, err := os.Stat(p); err == nil {
		return id, nil
	}

	tmp, err := os.CreateTemp(l.dir, ".blob-*")
	if err != nil {
		return "", errs.NewStorage("create blob", err).With("blob", id)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", errs.NewStorage("write blob", err).With("blob", id)
	}
	if err := tmp.Close(); err != nil {
		return "", errs.NewStorage("write blob", err).With("blob", id)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return "", errs.NewStorage("rename blob", err).With("blob", id)
	}
	l.logger.Debug("blob stored", "blob", id, "size", len(data))
	return id, nil
}

// Close implements Store.
func (l *LocalFS) Close() error { return nil }
