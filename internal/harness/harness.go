package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/provgraph/internal/attrstore"
	"github.com/roach88/provgraph/internal/cid"
	"github.com/roach88/provgraph/internal/errs"
	"github.com/roach88/provgraph/internal/graphstore"
	"github.com/roach88/provgraph/internal/jsonld"
	"github.com/roach88/provgraph/internal/statement"
	"github.com/roach88/provgraph/internal/testutil"
)

// Attribute backends for Options.
const (
	AttributesSQLite = "sqlite"
	AttributesBadger = "badger"
)

// Options configures a run.
type Options struct {
	// AttributeBackend selects the attribute index. Default: AttributesSQLite.
	AttributeBackend string

	// Logger receives store logs. Default: discarded.
	Logger *slog.Logger
}

// Harness holds the stores and helpers of one run.
type Harness struct {
	graphs  *graphstore.Store
	attrs   attrstore.Store
	builder *statement.Builder
	clock   *testutil.DeterministicClock
	logger  *slog.Logger
	result  *Result
}

// Run executes a scenario and returns the result.
//
// Each run uses fresh stores in a temporary directory and a clock starting
// at testutil.Epoch. An error is returned when the scenario cannot be set
// up; failed expectations and assertions are reported in the result.
func Run(ctx context.Context, scenario *Scenario, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	dir, err := os.MkdirTemp("", "provgraph-scenario-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario directory: %w", err)
	}
	defer os.RemoveAll(dir)

	addr, err := addresser(scenario.Canonicalization)
	if err != nil {
		return nil, err
	}

	gs, err := graphstore.Open(filepath.Join(dir, "graph.db"),
		graphstore.WithLogger(logger),
		graphstore.WithVerifier(addr),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open graph store: %w", err)
	}
	defer gs.Close()

	attrs, err := openAttributes(opts.AttributeBackend, dir, attrstore.WithLogger(logger), attrstore.WithVerifier(addr))
	if err != nil {
		return nil, err
	}
	defer attrs.Close()

	clock := testutil.NewDeterministicClock()
	h := &Harness{
		graphs:  gs,
		attrs:   attrs,
		builder: statement.NewBuilder(addr, statement.WithClock(clock.Now)),
		clock:   clock,
		logger:  logger,
		result:  NewResult(),
	}

	if err := h.createGraphs(ctx, scenario.Graphs); err != nil {
		return nil, fmt.Errorf("failed to create graphs: %w", err)
	}
	if err := h.registerStatements(ctx, scenario.Statements); err != nil {
		return nil, fmt.Errorf("failed to register statements: %w", err)
	}

	actx := &AssertionContext{
		Ctx:        ctx,
		Graphs:     gs,
		Attributes: attrs,
		Refs:       h.result.Refs,
	}
	for _, msg := range EvaluateAssertions(scenario.Assertions, actx) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

func addresser(form string) (*cid.Addresser, error) {
	if form == "rdfc" {
		loader, err := jsonld.NewLoader(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to load contexts: %w", err)
		}
		return cid.NewAddresser(jsonld.NewRDFC(loader)), nil
	}
	return cid.NewAddresser(cid.JCS{}), nil
}

func openAttributes(backend, dir string, opts ...attrstore.Option) (attrstore.Store, error) {
	switch backend {
	case "", AttributesSQLite:
		st, err := attrstore.OpenSQLite(filepath.Join(dir, "attributes.db"), opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to open attribute store: %w", err)
		}
		return st, nil
	case AttributesBadger:
		st, err := attrstore.OpenBadger("", opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to open attribute store: %w", err)
		}
		return st, nil
	}
	return nil, fmt.Errorf("unknown attribute backend %q", backend)
}

func (h *Harness) createGraphs(ctx context.Context, graphs []GraphStep) error {
	for i, step := range graphs {
		g, err := h.graphs.CreateGraph(ctx, graphstore.Graph{ID: step.ID, Name: step.Name, ParentID: step.Parent})
		if err != nil {
			return fmt.Errorf("graphs[%d]: %w", i, err)
		}
		h.result.addEvent(TraceEvent{Type: EventGraph, Graph: g.ID})
	}
	return nil
}

// registerStatements builds, registers and indexes each statement. A step
// with ExpectError must fail with that code; its failure is traced and the
// run continues.
func (h *Harness) registerStatements(ctx context.Context, steps []StatementStep) error {
	for i, step := range steps {
		st, err := h.build(step)
		if err == nil {
			err = h.graphs.Register(ctx, st, step.Graph)
		}
		if err == nil && step.Attributes != nil {
			err = h.attrs.Register(ctx, st, step.Attributes)
		}

		if step.ExpectError != "" {
			h.checkRejected(i, step, err)
			continue
		}
		if err != nil {
			return fmt.Errorf("statements[%d] %q: %w", i, step.Ref, err)
		}

		id := statement.ID(st)
		h.result.Refs[step.Ref] = id
		h.result.addEvent(TraceEvent{Type: EventRegister, Ref: step.Ref, Kind: string(st.Kind()), Graph: step.Graph, ID: id})
		if step.Attributes != nil {
			h.result.addEvent(TraceEvent{Type: EventIndex, Ref: step.Ref, ID: id})
		}
		h.logger.Debug("scenario statement registered", "ref", step.Ref, "id", id)
	}
	return nil
}

func (h *Harness) checkRejected(index int, step StatementStep, err error) {
	if err == nil {
		h.result.AddError(fmt.Sprintf("statements[%d] %q: expected %s, but it was registered", index, step.Ref, step.ExpectError))
		return
	}
	code := string(errs.CodeOf(err))
	if code != step.ExpectError {
		h.result.AddError(fmt.Sprintf("statements[%d] %q: expected %s, got %s: %v", index, step.Ref, step.ExpectError, orNone(code), err))
		return
	}
	h.result.addEvent(TraceEvent{Type: EventRejected, Ref: step.Ref, Kind: step.Kind, Code: code})
}

func orNone(code string) string {
	if code == "" {
		return "an uncoded error"
	}
	return code
}

// build creates the statement described by step.
func (h *Harness) build(step StatementStep) (statement.Statement, error) {
	r := &resolver{refs: h.result.Refs}
	a := step.Args
	b := h.builder
	by := r.one(step.RegisteredBy)
	ts := step.Timestamp

	var (
		st  statement.Statement
		err error
	)
	switch statement.Kind(step.Kind) {
	case statement.KindAssociation:
		st, err = b.NewAssociation(r.one(a.Subject), r.one(a.Association), by, ts)
	case statement.KindData:
		st, err = b.NewData(r.list(a.Data), by, ts)
	case statement.KindMetadata:
		st, err = b.NewMetadata(r.one(a.Subject), r.one(a.Metadata), by, ts)
	case statement.KindStorage:
		st, err = b.NewStorage(r.one(firstOf(a.Data)), r.one(a.StoredOn), r.one(a.OperatedBy), by, ts)
	case statement.KindComputation:
		st, err = b.NewComputation(statement.ComputationSpec{
			Computation: r.one(a.Computation),
			Input:       r.list(a.Input),
			Output:      r.list(a.Output),
			OperatedBy:  r.one(a.OperatedBy),
			ExecutedOn:  r.one(a.ExecutedOn),
		}, by, ts)
	case statement.KindEntity:
		st, err = b.NewEntity(r.list(a.Entity), by, ts)
	case statement.KindGovernance:
		st, err = b.NewGovernance(r.one(a.Subject), r.one(a.Document), by, ts)
	case statement.KindDid:
		st, err = b.NewDid(r.one(a.DID), nil, by, ts)
	default:
		return nil, errs.NewUnsupported(step.Kind, "build")
	}
	if r.err != nil {
		return nil, r.err
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}

func firstOf(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// resolver expands "$ref" and "blob:" values, keeping the first error.
type resolver struct {
	refs map[string]string
	err  error
}

func (r *resolver) one(v string) string {
	out, err := resolveValue(v, r.refs)
	if err != nil && r.err == nil {
		r.err = err
	}
	return out
}

func (r *resolver) list(vs []string) []string {
	if vs == nil {
		return nil
	}
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = r.one(v)
	}
	return out
}

func resolveValue(v string, refs map[string]string) (string, error) {
	switch {
	case strings.HasPrefix(v, "$"):
		id, ok := refs[v[1:]]
		if !ok {
			return "", fmt.Errorf("unknown statement ref %q", v)
		}
		return id, nil
	case strings.HasPrefix(v, "blob:"):
		return cid.MustCompute(cid.RawBinary, []byte(strings.TrimPrefix(v, "blob:"))), nil
	}
	return v, nil
}
