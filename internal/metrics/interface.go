package metrics

import "context"

// Collector is the interface for metrics collection.
// Implementations are the Prometheus-backed PrometheusCollector and NoopCollector.
type Collector interface {
	RecordOperation(ctx context.Context, operation string, status string, durationMs int64)
	RecordError(ctx context.Context, operation string, code string)
	SetStorageCount(ctx context.Context, storageType string, count int64)
}

// Operation status labels.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)
