package monitor

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds operational metrics using OTEL semantic conventions
type Metrics struct {
	cycles        metric.Int64Counter
	cycleDuration metric.Float64Histogram
	changesSeen   metric.Int64Counter
	analysisCalls metric.Int64Counter
	analysisCost  metric.Float64Counter
	insightsFound metric.Int64Counter
}

// NewMetrics creates monitor metrics following OTEL semantic conventions
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("homewatch.monitor")

	cycles, err := meter.Int64Counter(
		"homewatch.monitor.cycles",
		metric.WithDescription("Number of monitoring cycles"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return nil, err
	}

	cycleDuration, err := meter.Float64Histogram(
		"homewatch.monitor.cycle.duration",
		metric.WithDescription("Duration of monitoring cycles"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	changesSeen, err := meter.Int64Counter(
		"homewatch.changes",
		metric.WithDescription("Number of entity state changes detected"),
		metric.WithUnit("{change}"),
	)
	if err != nil {
		return nil, err
	}

	analysisCalls, err := meter.Int64Counter(
		"homewatch.analysis.calls",
		metric.WithDescription("Number of analysis calls by tier"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	analysisCost, err := meter.Float64Counter(
		"homewatch.analysis.cost",
		metric.WithDescription("Cumulative analysis spend"),
		metric.WithUnit("USD"),
	)
	if err != nil {
		return nil, err
	}

	insightsFound, err := meter.Int64Counter(
		"homewatch.insights",
		metric.WithDescription("Number of insights produced"),
		metric.WithUnit("{insight}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		cycles:        cycles,
		cycleDuration: cycleDuration,
		changesSeen:   changesSeen,
		analysisCalls: analysisCalls,
		analysisCost:  analysisCost,
		insightsFound: insightsFound,
	}, nil
}

// RecordCycle records a completed monitoring cycle with status
func (m *Metrics) RecordCycle(ctx context.Context, status string, durationSeconds float64) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.cycles.Add(ctx, 1, attrs)
	m.cycleDuration.Record(ctx, durationSeconds, attrs)
}

// RecordChanges records detected state changes
func (m *Metrics) RecordChanges(ctx context.Context, count int64) {
	m.changesSeen.Add(ctx, count)
}

// RecordAnalysis records one analysis call with its tier and cost
func (m *Metrics) RecordAnalysis(ctx context.Context, tier string, success bool, costUSD float64, insightCount int64) {
	attrs := metric.WithAttributes(
		attribute.String("tier", tier),
		attribute.Bool("success", success),
	)
	m.analysisCalls.Add(ctx, 1, attrs)
	m.analysisCost.Add(ctx, costUSD, metric.WithAttributes(attribute.String("tier", tier)))
	m.insightsFound.Add(ctx, insightCount, metric.WithAttributes(attribute.String("tier", tier)))
}
