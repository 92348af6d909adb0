package otel

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/modu-ai/moai-rank/internal/config"
)

const (
	serviceName    = "moai-rank"
	serviceVersion = "1.0.0"
)

// Exporter exports service metrics to an OTEL Collector.
type Exporter struct {
	provider       *sdkmetric.MeterProvider
	sessionsTotal  metric.Int64Counter
	rankingRuns    metric.Int64Counter
	rankingUsers   metric.Int64Histogram
	rankingSeconds metric.Float64Histogram
	cacheLookups   metric.Int64Counter
}

// NewExporter creates a new OTEL metrics exporter.
func NewExporter(ctx context.Context, cfg config.Metrics) (*Exporter, error) {
	if !cfg.Enabled || cfg.Endpoint == "" {
		return nil, fmt.Errorf("OTEL exporter is disabled or endpoint not configured")
	}

	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(provider)

	return NewExporterWithProvider(provider)
}

// NewExporterWithProvider registers the instruments on an existing provider.
func NewExporterWithProvider(provider *sdkmetric.MeterProvider) (*Exporter, error) {
	meter := provider.Meter(serviceName)

	sessionsTotal, err := meter.Int64Counter(
		"moai_rank_sessions_ingested_total",
		metric.WithDescription("Ingested sessions by outcome"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating sessions counter: %w", err)
	}

	rankingRuns, err := meter.Int64Counter(
		"moai_rank_ranking_runs_total",
		metric.WithDescription("Ranking period computations by status"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating ranking runs counter: %w", err)
	}

	rankingUsers, err := meter.Int64Histogram(
		"moai_rank_ranking_users",
		metric.WithDescription("Users ranked per period computation"),
		metric.WithUnit("{user}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating ranking users histogram: %w", err)
	}

	rankingSeconds, err := meter.Float64Histogram(
		"moai_rank_ranking_duration_seconds",
		metric.WithDescription("Ranking period computation duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating ranking duration histogram: %w", err)
	}

	cacheLookups, err := meter.Int64Counter(
		"moai_rank_leaderboard_cache_lookups_total",
		metric.WithDescription("Leaderboard cache lookups by result"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating cache lookups counter: %w", err)
	}

	return &Exporter{
		provider:       provider,
		sessionsTotal:  sessionsTotal,
		rankingRuns:    rankingRuns,
		rankingUsers:   rankingUsers,
		rankingSeconds: rankingSeconds,
		cacheLookups:   cacheLookups,
	}, nil
}

func (e *Exporter) RecordIngest(ctx context.Context, outcome string, count int64) {
	if count <= 0 {
		return
	}
	e.sessionsTotal.Add(ctx, count, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (e *Exporter) RecordRankingRun(ctx context.Context, period string, users int, duration time.Duration, failed bool) {
	status := "success"
	if failed {
		status = "failure"
	}
	opt := metric.WithAttributes(
		attribute.String("period", period),
		attribute.String("status", status),
	)
	e.rankingRuns.Add(ctx, 1, opt)
	e.rankingSeconds.Record(ctx, duration.Seconds(), opt)
	if !failed {
		e.rankingUsers.Record(ctx, int64(users), metric.WithAttributes(attribute.String("period", period)))
	}
}

func (e *Exporter) RecordCacheLookup(ctx context.Context, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	e.cacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// Close shuts down the exporter and flushes any pending metrics.
func (e *Exporter) Close(ctx context.Context) error {
	return e.provider.Shutdown(ctx)
}
