package otel

import (
	"context"
	"time"
)

// NoOpExporter is a metrics exporter that does nothing.
type NoOpExporter struct{}

// NewNoOpExporter creates a new no-op exporter for graceful degradation.
func NewNoOpExporter() *NoOpExporter {
	return &NoOpExporter{}
}

func (e *NoOpExporter) RecordIngest(context.Context, string, int64) {}

func (e *NoOpExporter) RecordRankingRun(context.Context, string, int, time.Duration, bool) {}

func (e *NoOpExporter) RecordCacheLookup(context.Context, bool) {}

func (e *NoOpExporter) Close(ctx context.Context) error {
	return nil
}
