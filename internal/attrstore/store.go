package attrstore

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/roach88/provgraph/internal/cid"
	"github.com/roach88/provgraph/internal/errs"
	"github.com/roach88/provgraph/internal/filter"
	"github.com/roach88/provgraph/internal/metrics"
	"github.com/roach88/provgraph/internal/statement"
)

// Store is an attribute index over statements.
type Store interface {
	// Register stores st with attrs, replacing any previous entry for the
	// same id. A nil attrs is stored as an empty object.
	Register(ctx context.Context, st statement.Statement, attrs map[string]any) error

	// Retrieve returns the statements matching f ordered by id, and their
	// attributes keyed by id. A nil filter matches everything.
	Retrieve(ctx context.Context, f filter.Filter) ([]statement.Statement, map[string]map[string]any, error)

	// Get returns one statement and its attributes.
	Get(ctx context.Context, id string) (Record, error)

	// UniqueAttributes returns the distinct values seen for every key.
	UniqueAttributes(ctx context.Context) (map[string]UniqueValues, error)

	// UpdateAttributes merges patch into the attributes of each id. Unknown
	// ids are skipped.
	UpdateAttributes(ctx context.Context, ids []string, patch map[string]any) error

	// RemoveAttributes deletes keys from the attributes of each id. Unknown
	// ids are skipped.
	RemoveAttributes(ctx context.Context, ids []string, keys []string) error

	// Delete removes the statements matching f and reports how many were
	// removed. A nil filter removes everything.
	Delete(ctx context.Context, f filter.Filter) (int64, error)

	// Count returns the number of indexed statements.
	Count(ctx context.Context) (int64, error)

	Close() error
}

// Record is a stored statement with its attributes.
type Record struct {
	Statement  statement.Statement `json:"statement"`
	Attributes map[string]any      `json:"attributes"`
}

// UniqueValues lists the distinct values of one attribute key.
type UniqueValues struct {
	N      int   `json:"n"`
	Values []any `json:"values"`
}

// RetrieveQuery parses expr and retrieves the matching statements. An
// empty expr matches everything.
func RetrieveQuery(ctx context.Context, s Store, expr string) ([]statement.Statement, map[string]map[string]any, error) {
	f, err := parseOptional(expr)
	if err != nil {
		return nil, nil, err
	}
	return s.Retrieve(ctx, f)
}

// DeleteQuery parses expr and deletes the matching statements. An empty
// expr deletes everything.
func DeleteQuery(ctx context.Context, s Store, expr string) (int64, error) {
	f, err := parseOptional(expr)
	if err != nil {
		return 0, err
	}
	return s.Delete(ctx, f)
}

func parseOptional(expr string) (filter.Filter, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, nil
	}
	return filter.Parse(expr)
}

// Option configures a Store.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	metrics metrics.Collector
	addr    *cid.Addresser
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

// WithVerifier makes Register reject statements whose identifier does not
// match their content.
func WithVerifier(addr *cid.Addresser) Option {
	return func(o *options) { o.addr = addr }
}

func (o options) observe(ctx context.Context, operation string, start time.Time, err error) {
	metrics.Observe(ctx, o.metrics, "attributes_"+operation, start, err, func(err error) string {
		if code := errs.CodeOf(err); code != "" {
			return string(code)
		}
		return string(errs.CodeStorage)
	})
}

// prepare checks st before it is stored and returns its id. The "@id" of st
// is rewritten to its "urn:cid:" form, which is the storage key.
func (o options) prepare(st statement.Statement) (string, error) {
	id := statement.ID(st)
	if id == "" {
		return "", errs.NewMalformed("missing field `@id`")
	}
	if o.addr != nil {
		if err := statement.Verify(o.addr, st); err != nil {
			return "", err
		}
	}
	id = cid.AddURN(id)
	st.Meta().ID = id
	return id, nil
}

// normalizeIDs returns ids in their "urn:cid:" form without duplicates.
func normalizeIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = cid.AddURN(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// decodeAttributes parses a stored attribute object. Numbers decode as
// json.Number so integers keep their exact value.
func decodeAttributes(data []byte) (map[string]any, error) {
	attrs := make(map[string]any)
	if len(data) == 0 {
		return attrs, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&attrs); err != nil {
		return nil, err
	}
	if attrs == nil {
		attrs = make(map[string]any)
	}
	return attrs, nil
}

func encodeAttributes(attrs map[string]any) ([]byte, error) {
	if attrs == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		return nil, errs.Wrap(errs.CodeMalformedStatement, err, "attributes are not valid JSON")
	}
	return data, nil
}

// uniqueCollector gathers distinct attribute values in memory.
type uniqueCollector struct {
	seen   map[string]map[string]bool
	values map[string][]any
}

func newUniqueCollector() *uniqueCollector {
	return &uniqueCollector{seen: make(map[string]map[string]bool), values: make(map[string][]any)}
}

func (u *uniqueCollector) add(attrs map[string]any) {
	for k, v := range attrs {
		enc, err := json.Marshal(v)
		if err != nil {
			continue
		}
		if u.seen[k] == nil {
			u.seen[k] = make(map[string]bool)
		}
		if u.seen[k][string(enc)] {
			continue
		}
		u.seen[k][string(enc)] = true
		u.values[k] = append(u.values[k], v)
	}
}

func (u *uniqueCollector) result() map[string]UniqueValues {
	out := make(map[string]UniqueValues, len(u.values))
	for k, vs := range u.values {
		slices.SortStableFunc(vs, compareValues)
		out[k] = UniqueValues{N: len(vs), Values: vs}
	}
	return out
}

// compareValues orders JSON values the way SQLite orders json_each values:
// null, then numbers and booleans, then strings, then objects and arrays.
func compareValues(a, b any) int {
	ra, rb := valueRank(a), valueRank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch ra {
	case 1:
		return cmp.Compare(numeric(a), numeric(b))
	case 2:
		return cmp.Compare(a.(string), b.(string))
	case 3:
		ea, _ := json.Marshal(a)
		eb, _ := json.Marshal(b)
		return bytes.Compare(ea, eb)
	}
	return 0
}

func valueRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool, json.Number, float64, int, int64:
		return 1
	case string:
		return 2
	}
	return 3
}

func numeric(v any) float64 {
	switch x := v.(type) {
	case bool:
		if x {
			return 1
		}
		return 0
	case json.Number:
		f, _ := x.Float64()
		return f
	case float64:
		return x
	case int:
		return float64(x)
	case int64:
		return float64(x)
	}
	return 0
}
