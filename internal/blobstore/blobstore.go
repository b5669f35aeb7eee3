// Package blobstore stores content-addressed byte blobs.
//
// Every backend keys blobs by their CID without the "urn:cid:" prefix and
// accepts identifiers with or without it. Put computes the CID of the data,
// checks it against an optional expected identifier and is a no-op when the
// blob is already present.
package blobstore

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/provgraph/internal/cid"
	"github.com/roach88/provgraph/internal/errs"
	"github.com/roach88/provgraph/internal/metrics"
)

// Store is a content-addressed blob store.
type Store interface {
	// Exists reports whether the blob is stored.
	Exists(ctx context.Context, id string) (bool, error)

	// Get returns the blob bytes or a NOT_FOUND error.
	Get(ctx context.Context, id string) ([]byte, error)

	// Put stores data under its CID for codec and returns the CID. A
	// non-empty expected identifier must match the computed one.
	Put(ctx context.Context, data []byte, codec uint64, expected string) (string, error)

	Close() error
}

// Option configures a backend.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	metrics metrics.Collector
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default(), metrics: metrics.NewNoopCollector()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(c metrics.Collector) Option {
	return func(o *options) { o.metrics = c }
}

func (o options) observe(ctx context.Context, operation string, start time.Time, err error) {
	metrics.Observe(ctx, o.metrics, "blob_"+operation, start, err, func(err error) string {
		if code := errs.CodeOf(err); code != "" {
			return string(code)
		}
		return string(errs.CodeStorage)
	})
}

// identify computes the CID of data and validates it against expected.
func identify(data []byte, codec uint64, expected string) (string, error) {
	if expected == "" {
		id, err := cid.Compute(codec, data)
		if err != nil {
			return "", errs.Wrap(errs.CodeStorage, err, "compute blob id")
		}
		return id, nil
	}
	return cid.Validate(data, codec, expected)
}

func notFound(id string) error {
	return errs.NewNotFound("blob", id)
}
