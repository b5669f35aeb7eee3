package manifest

import (
	"context"
	"encoding/base64"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/provgraph/internal/blobstore"
	"github.com/roach88/provgraph/internal/cid"
	"github.com/roach88/provgraph/internal/errs"
	"github.com/roach88/provgraph/internal/statement"
)

// DefaultConcurrency bounds parallel blob fetches.
const DefaultConcurrency = 8

// ReferencedCIDs returns the distinct CIDs referenced by statements, in
// first-seen order and without the "urn:cid:" prefix. Bare and prefixed
// references to the same CID count once.
func ReferencedCIDs(statements []statement.Statement) []string {
	var out []string
	seen := make(map[string]bool)
	for _, s := range statements {
		for _, ref := range s.ReferencedIdentifiers() {
			ref = statement.NormalizeRef(ref)
			if !strings.HasPrefix(ref, cid.URNPrefix) {
				continue
			}
			id := cid.StripURN(ref)
			if seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// ResolveBlobs fetches every blob referenced by statements and returns them
// base64 encoded, keyed by CID. Missing blobs are logged and skipped;
// store failures are logged and skipped as well. Only context cancellation
// aborts resolution. A nil logger logs to slog.Default().
func ResolveBlobs(ctx context.Context, statements []statement.Statement, store blobstore.Store, concurrency int, logger *slog.Logger) (map[string]string, error) {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	logger = loggerOrDefault(logger)

	var mu sync.Mutex
	blobs := make(map[string]string)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, id := range ReferencedCIDs(statements) {
		id := id
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := store.Get(gctx, id)
			switch {
			case errs.IsNotFound(err):
				logger.Warn("blob was not found in blob store", "blob", id)
				return nil
			case err != nil:
				logger.Error("failed to get blob", "blob", id, "error", err)
				return nil
			}
			mu.Lock()
			blobs[id] = base64.StdEncoding.EncodeToString(data)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	logger.Debug("resolved blobs", "count", len(blobs))
	return blobs, nil
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

// ImportBlobs stores the blobs of a manifest, checking each against its key.
func ImportBlobs(ctx context.Context, blobs map[string]string, store blobstore.Store) error {
	for _, id := range sortedKeys(blobs) {
		data, err := base64.StdEncoding.DecodeString(blobs[id])
		if err != nil {
			return errs.Wrap(errs.CodeMalformedStatement, err, "blob %s is not base64", id)
		}
		codec, err := cid.Codec(id)
		if err != nil {
			return errs.Wrap(errs.CodeMalformedStatement, err, "blob key %s is not a CID", id)
		}
		if _, err := store.Put(ctx, data, codec, id); err != nil {
			return err
		}
	}
	return nil
}
