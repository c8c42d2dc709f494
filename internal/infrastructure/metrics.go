package infrastructure

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
)

// AnalysisMetrics are the instruments recorded by the HTTP layer and the
// analysis service.
type AnalysisMetrics struct {
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram
	HTTPActiveRequests  metric.Int64UpDownCounter

	WorkbooksParsed metric.Int64Counter
	ParseDuration   metric.Float64Histogram
	RecordsParsed   metric.Int64Counter
	ParseFailures   metric.Int64Counter
	UploadBytes     metric.Int64Histogram
	SheetFetches    metric.Int64Counter
	AnalysesTotal   metric.Int64Counter
}

// CreateAnalysisMetrics registers every instrument on meter
func CreateAnalysisMetrics(meter metric.Meter) (*AnalysisMetrics, error) {
	m := &AnalysisMetrics{}
	var err error

	if m.HTTPRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	); err != nil {
		return nil, err
	}
	if m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.HTTPActiveRequests, err = meter.Int64UpDownCounter(
		"http_active_requests",
		metric.WithDescription("Number of in-flight HTTP requests"),
	); err != nil {
		return nil, err
	}
	if m.WorkbooksParsed, err = meter.Int64Counter(
		"workbooks_parsed_total",
		metric.WithDescription("Workbooks run through the trade parser"),
	); err != nil {
		return nil, err
	}
	if m.ParseDuration, err = meter.Float64Histogram(
		"workbook_parse_duration_seconds",
		metric.WithDescription("Time spent parsing one workbook"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.RecordsParsed, err = meter.Int64Counter(
		"trade_records_parsed_total",
		metric.WithDescription("Trade records extracted from workbooks"),
	); err != nil {
		return nil, err
	}
	if m.ParseFailures, err = meter.Int64Counter(
		"workbook_parse_failures_total",
		metric.WithDescription("Workbooks rejected by the parser, by failure kind"),
	); err != nil {
		return nil, err
	}
	if m.UploadBytes, err = meter.Int64Histogram(
		"workbook_size_bytes",
		metric.WithDescription("Size of analyzed workbooks"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if m.SheetFetches, err = meter.Int64Counter(
		"sheet_fetches_total",
		metric.WithDescription("Google Sheets exports fetched"),
	); err != nil {
		return nil, err
	}
	if m.AnalysesTotal, err = meter.Int64Counter(
		"analyses_total",
		metric.WithDescription("Analyses served, by source"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

// NoopAnalysisMetrics returns instruments that record nothing
func NoopAnalysisMetrics() *AnalysisMetrics {
	m, _ := CreateAnalysisMetrics(metricnoop.NewMeterProvider().Meter(InstrumentationName))
	return m
}

// RecordParse records one parser run. failureKind is empty on success.
func RecordParse(ctx context.Context, m *AnalysisMetrics, size int, duration time.Duration, records int, failureKind string) {
	if m == nil {
		return
	}

	status := "success"
	if failureKind != "" {
		status = "failure"
		m.ParseFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", failureKind)))
	}
	m.WorkbooksParsed.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	m.ParseDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("status", status)))
	m.UploadBytes.Record(ctx, int64(size))
	if records > 0 {
		m.RecordsParsed.Add(ctx, int64(records))
	}
}

// RecordSheetFetch records a remote export download
func RecordSheetFetch(ctx context.Context, m *AnalysisMetrics, method string, success bool) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	m.SheetFetches.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("status", status),
	))
}

// RecordAnalysis counts a served analysis by source (file, upload, sheet, batch)
func RecordAnalysis(ctx context.Context, m *AnalysisMetrics, source string) {
	if m == nil {
		return
	}
	m.AnalysesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}
