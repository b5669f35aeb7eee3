package cli

import (
	"fmt"
	"log/slog"

	"github.com/roach88/provgraph/internal/attrstore"
	"github.com/roach88/provgraph/internal/blobstore"
	"github.com/roach88/provgraph/internal/cid"
	"github.com/roach88/provgraph/internal/config"
	"github.com/roach88/provgraph/internal/graphstore"
	"github.com/roach88/provgraph/internal/jsonld"
	"github.com/roach88/provgraph/internal/metrics"
	"github.com/roach88/provgraph/internal/statement"
)

// env is the set of collaborators built from the loaded config.
type env struct {
	cfg     *config.Config
	loader  *jsonld.Loader
	addr    *cid.Addresser
	metrics metrics.Collector
	prom    *metrics.PrometheusCollector
}

func newEnv(opts *RootOptions) (*env, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	loader, err := jsonld.NewLoaderFromFiles(cfg.Contexts)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load contexts", err)
	}

	e := &env{cfg: cfg, loader: loader, metrics: metrics.NewNoopCollector()}
	switch cfg.Canonicalization {
	case config.FormJCS:
		e.addr = cid.NewAddresser(cid.JCS{})
	default:
		e.addr = cid.NewAddresser(jsonld.NewRDFC(loader))
	}
	if cfg.Metrics.Enabled {
		e.prom = metrics.NewCollector()
		e.metrics = e.prom
	}
	return e, nil
}

func (e *env) builder() *statement.Builder {
	return statement.NewBuilder(e.addr)
}

func (e *env) openGraphStore() (*graphstore.Store, error) {
	st, err := graphstore.Open(e.cfg.GraphDB,
		graphstore.WithLogger(slog.Default()),
		graphstore.WithMetrics(e.metrics),
		graphstore.WithVerifier(e.addr),
	)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open graph store", err)
	}
	return st, nil
}

func (e *env) openAttrStore() (attrstore.Store, error) {
	opts := []attrstore.Option{
		attrstore.WithLogger(slog.Default()),
		attrstore.WithMetrics(e.metrics),
		attrstore.WithVerifier(e.addr),
	}
	var (
		st  attrstore.Store
		err error
	)
	switch e.cfg.Attributes.Backend {
	case config.BackendBadger:
		st, err = attrstore.OpenBadger(e.cfg.Attributes.Path, opts...)
	default:
		st, err = attrstore.OpenSQLite(e.cfg.Attributes.Path, opts...)
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open attribute store", err)
	}
	return st, nil
}

func (e *env) openBlobStore() (blobstore.Store, error) {
	opts := []blobstore.Option{
		blobstore.WithLogger(slog.Default()),
		blobstore.WithMetrics(e.metrics),
	}
	var (
		st  blobstore.Store
		err error
	)
	switch e.cfg.Blobs.Backend {
	case config.BackendMemory:
		return blobstore.NewMemory(), nil
	case config.BackendBadger:
		st, err = blobstore.OpenBadger(e.cfg.Blobs.Path, opts...)
	case config.BackendFS:
		st, err = blobstore.OpenLocalFS(e.cfg.Blobs.Path, opts...)
	default:
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("unknown blob backend %q", e.cfg.Blobs.Backend))
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open blob store", err)
	}
	return st, nil
}
