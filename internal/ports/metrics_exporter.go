package ports

import (
	"context"
	"time"
)

// Ingest outcomes reported to the metrics exporter.
const (
	IngestCreated   = "created"
	IngestDuplicate = "duplicate"
	IngestRejected  = "rejected"
)

// MetricsExporter exports service metrics to an external observability system.
type MetricsExporter interface {
	// RecordIngest counts ingested sessions by outcome.
	RecordIngest(ctx context.Context, outcome string, count int64)
	// RecordRankingRun records one period's ranking computation.
	RecordRankingRun(ctx context.Context, period string, users int, duration time.Duration, failed bool)
	// RecordCacheLookup counts leaderboard cache hits and misses.
	RecordCacheLookup(ctx context.Context, hit bool)
	// Close shuts down the exporter and flushes any pending metrics.
	Close(ctx context.Context) error
}
