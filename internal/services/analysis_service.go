package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"tradepulse/internal/dataprocessing"
	apierrors "tradepulse/internal/errors"
	"tradepulse/internal/exporter"
	"tradepulse/internal/files"
	"tradepulse/internal/infrastructure"
	"tradepulse/internal/sources"
	"tradepulse/pkg/contracts/domain"
)

// Analysis sources reported in metrics and on domain.Analysis.Source.
const (
	SourceUpload = "upload"
	SourceStored = "stored"
	SourceSheet  = "sheet"
	SourceFile   = "file"
)

// WorkbookStore persists uploaded workbooks
type WorkbookStore interface {
	List(ctx context.Context) ([]files.StoredFile, error)
	Stat(ctx context.Context, name string) (files.StoredFile, error)
	Read(ctx context.Context, name string) ([]byte, error)
	Save(ctx context.Context, originalName string, r io.Reader) (files.StoredFile, error)
	Delete(ctx context.Context, name string) error
}

// SheetSource downloads remote spreadsheets
type SheetSource interface {
	Fetch(ctx context.Context, ref sources.SheetRef) ([]byte, error)
	Method() string
}

// AnalysisOptions selects the date range and whether the filtered trade
// records are returned alongside the aggregates.
type AnalysisOptions struct {
	Range          domain.DateRange
	IncludeRecords bool
}

// WorkbookInput is one entry of a batch analysis
type WorkbookInput struct {
	Name string
	Load func(ctx context.Context) ([]byte, error)
}

// BatchResult is the outcome for one workbook of a batch
type BatchResult struct {
	Name     string           `json:"name"`
	Analysis *domain.Analysis `json:"analysis,omitempty"`
	Error    string           `json:"error,omitempty"`
	Err      error            `json:"-"`
}

// AnalysisDeps are the collaborators of an AnalysisService
type AnalysisDeps struct {
	Parser      *dataprocessing.Parser
	Aggregator  *dataprocessing.Aggregator
	Store       WorkbookStore
	Sheets      SheetSource
	CSV         *exporter.CSVWriter
	Tracer      trace.Tracer
	Metrics     *infrastructure.AnalysisMetrics
	Logger      *slog.Logger
	Concurrency int
	PreviewRows int
	Now         func() time.Time
}

// AnalysisService runs the parse and aggregate pipeline for uploaded,
// stored and remote workbooks.
type AnalysisService struct {
	parser      *dataprocessing.Parser
	agg         *dataprocessing.Aggregator
	store       WorkbookStore
	sheets      SheetSource
	csv         *exporter.CSVWriter
	tracer      trace.Tracer
	metrics     *infrastructure.AnalysisMetrics
	logger      *slog.Logger
	concurrency int
	previewRows int
	now         func() time.Time
}

// NewAnalysisService creates an analysis service. Missing parser, aggregator,
// tracer and metrics fall back to defaults; Store and Sheets stay optional.
func NewAnalysisService(deps AnalysisDeps) *AnalysisService {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &AnalysisService{
		parser:      deps.Parser,
		agg:         deps.Aggregator,
		store:       deps.Store,
		sheets:      deps.Sheets,
		csv:         deps.CSV,
		tracer:      deps.Tracer,
		metrics:     deps.Metrics,
		logger:      infrastructure.WithComponent(logger, "analysis_service"),
		concurrency: deps.Concurrency,
		previewRows: deps.PreviewRows,
		now:         deps.Now,
	}
	if s.parser == nil {
		s.parser = dataprocessing.NewParser(dataprocessing.WithParserLogger(logger))
	}
	if s.agg == nil {
		s.agg = dataprocessing.NewAggregator(dataprocessing.WithAggregatorLocation(s.parser.Location()))
	}
	if s.csv == nil {
		s.csv = exporter.NewCSVWriter(logger)
	}
	if s.tracer == nil {
		s.tracer = noop.NewTracerProvider().Tracer(infrastructure.InstrumentationName)
	}
	if s.metrics == nil {
		s.metrics = infrastructure.NoopAnalysisMetrics()
	}
	if s.concurrency < 1 {
		s.concurrency = 1
	}
	if s.previewRows < 1 {
		s.previewRows = dataprocessing.DefaultPreviewRows
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Location returns the time zone used for day and week boundaries.
func (s *AnalysisService) Location() *time.Location {
	return s.agg.Location()
}

// ParseWorkbook parses buf, recording a span and parse metrics.
func (s *AnalysisService) ParseWorkbook(ctx context.Context, name string, buf []byte) ([]domain.TradeRecord, error) {
	ctx, span := s.tracer.Start(ctx, "analysis.parse", trace.WithAttributes(
		attribute.String("workbook.name", name),
		attribute.Int("workbook.bytes", len(buf)),
	))
	defer span.End()

	start := time.Now()
	records, err := s.parser.ParseNamed(name, buf)
	duration := time.Since(start)

	if err != nil {
		kind := failureKind(err)
		infrastructure.RecordParse(ctx, s.metrics, len(buf), duration, 0, kind)
		span.RecordError(err)
		span.SetStatus(codes.Error, kind)
		s.logger.WarnContext(ctx, "workbook rejected",
			slog.String("file", name),
			slog.String("kind", kind),
			slog.Duration("duration", duration))
		return nil, err
	}

	infrastructure.RecordParse(ctx, s.metrics, len(buf), duration, len(records), "")
	span.SetAttributes(attribute.Int("workbook.records", len(records)))
	s.logger.InfoContext(ctx, "workbook parsed",
		slog.String("file", name),
		slog.Int("records", len(records)),
		slog.Duration("duration", duration))
	return records, nil
}

// Analyze aggregates records. A range with no bounds that is not marked
// full defaults to the current week, see DefaultRange.
func (s *AnalysisService) Analyze(ctx context.Context, source string, records []domain.TradeRecord, opts AnalysisOptions) domain.Analysis {
	_, span := s.tracer.Start(ctx, "analysis.aggregate", trace.WithAttributes(
		attribute.String("analysis.source", source),
		attribute.Int("analysis.records", len(records)),
	))
	defer span.End()

	rng := opts.Range
	if isUnbounded(rng) {
		rng = s.DefaultRange(records)
	}

	analysis := s.agg.Analyze(records, rng)
	analysis.Source = source
	if !opts.IncludeRecords {
		analysis.Records = nil
	}

	span.SetAttributes(
		attribute.String("analysis.start", rng.StartDate),
		attribute.String("analysis.end", rng.EndDate),
		attribute.Int("analysis.trades", analysis.Summary.TotalTrades),
	)
	return analysis
}

// DefaultRange is the Monday to Sunday week containing now, clamped into the
// data. When all trades predate that week, the last week with trades is used.
func (s *AnalysisService) DefaultRange(records []domain.TradeRecord) domain.DateRange {
	bounds := s.agg.Bounds(records)
	rng := s.agg.RecentWeekRange(s.now(), bounds)
	if rng.FullRange || rng.StartDate <= rng.EndDate {
		return rng
	}
	last, err := time.ParseInLocation("2006-01-02", bounds.MaxDate, s.agg.Location())
	if err != nil {
		return domain.DateRange{FullRange: true}
	}
	return s.agg.RecentWeekRange(last, bounds)
}

// AnalyzeUpload parses and analyzes a workbook that is not stored.
func (s *AnalysisService) AnalyzeUpload(ctx context.Context, name string, buf []byte, opts AnalysisOptions) (domain.Analysis, error) {
	return s.analyzeBytes(ctx, SourceUpload, name, buf, opts)
}

// AnalyzeStoredFile loads a workbook from the store and analyzes it.
func (s *AnalysisService) AnalyzeStoredFile(ctx context.Context, name string, opts AnalysisOptions) (domain.Analysis, error) {
	buf, label, err := s.readStored(ctx, name)
	if err != nil {
		return domain.Analysis{}, err
	}
	return s.analyzeBytes(ctx, SourceStored, label, buf, opts)
}

// AnalyzeSheet downloads a Google Sheet and analyzes it.
func (s *AnalysisService) AnalyzeSheet(ctx context.Context, rawURL string, opts AnalysisOptions) (domain.Analysis, error) {
	if s.sheets == nil {
		return domain.Analysis{}, apierrors.NewConfigError("sheet import unavailable", ErrNoSheetSource)
	}
	ref, err := sources.ParseSheetURL(rawURL)
	if err != nil {
		return domain.Analysis{}, apierrors.NewAppError(apierrors.ErrTypeValidation, "invalid sheet url", err)
	}

	buf, err := s.sheets.Fetch(ctx, ref)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Analysis{}, ctx.Err()
		}
		return domain.Analysis{}, apierrors.NewNetworkError("sheet could not be downloaded", err).
			WithContext("spreadsheet_id", ref.SpreadsheetID).
			WithContext("method", s.sheets.Method())
	}
	return s.analyzeBytes(ctx, SourceSheet, ref.Label(), buf, opts)
}

// AnalyzeBatch analyzes several workbooks concurrently. Per-workbook
// failures are reported in the results; only cancellation aborts the batch.
// Results keep the input order.
func (s *AnalysisService) AnalyzeBatch(ctx context.Context, inputs []WorkbookInput, opts AnalysisOptions) ([]BatchResult, error) {
	if len(inputs) == 0 {
		return nil, ErrEmptyBatch
	}

	ctx, span := s.tracer.Start(ctx, "analysis.batch", trace.WithAttributes(
		attribute.Int("batch.size", len(inputs)),
		attribute.Int("batch.concurrency", s.concurrency),
	))
	defer span.End()

	results := make([]BatchResult, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, in := range inputs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = s.analyzeInput(gctx, in, opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	span.SetAttributes(attribute.Int("batch.failed", failed))
	s.logger.InfoContext(ctx, "batch analysis finished",
		slog.Int("workbooks", len(inputs)),
		slog.Int("failed", failed))
	return results, nil
}

func (s *AnalysisService) analyzeInput(ctx context.Context, in WorkbookInput, opts AnalysisOptions) BatchResult {
	res := BatchResult{Name: in.Name}
	if in.Load == nil {
		res.Err = fmt.Errorf("%w: no loader for %s", ErrInvalidInput, in.Name)
		res.Error = res.Err.Error()
		return res
	}
	buf, err := in.Load(ctx)
	if err != nil {
		res.Err = err
		res.Error = err.Error()
		return res
	}
	analysis, err := s.analyzeBytes(ctx, SourceFile, in.Name, buf, opts)
	if err != nil {
		res.Err = err
		res.Error = err.Error()
		return res
	}
	res.Analysis = &analysis
	return res
}

// StoredInputs builds batch inputs that read from the store.
func (s *AnalysisService) StoredInputs(names []string) []WorkbookInput {
	inputs := make([]WorkbookInput, 0, len(names))
	for _, name := range names {
		inputs = append(inputs, WorkbookInput{
			Name: name,
			Load: func(ctx context.Context) ([]byte, error) {
				buf, _, err := s.readStored(ctx, name)
				return buf, err
			},
		})
	}
	return inputs
}

// PreviewStoredFile returns the first rows of a stored workbook.
func (s *AnalysisService) PreviewStoredFile(ctx context.Context, name string, rows int) (*dataprocessing.Preview, error) {
	buf, _, err := s.readStored(ctx, name)
	if err != nil {
		return nil, err
	}
	return s.Preview(ctx, buf, rows)
}

// Preview returns the first rows of a workbook. rows <= 0 uses the
// configured default.
func (s *AnalysisService) Preview(ctx context.Context, buf []byte, rows int) (*dataprocessing.Preview, error) {
	if rows <= 0 {
		rows = s.previewRows
	}
	_, span := s.tracer.Start(ctx, "analysis.preview")
	defer span.End()

	pv, err := s.parser.Preview(buf, rows)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return pv, nil
}

// Calendar analyzes a stored workbook and lays its daily profit out as a
// month grid. An empty month selects the latest month with trades.
func (s *AnalysisService) Calendar(ctx context.Context, name, month string, rng domain.DateRange) (domain.CalendarMonth, error) {
	if isUnbounded(rng) {
		rng.FullRange = true
	}
	analysis, err := s.AnalyzeStoredFile(ctx, name, AnalysisOptions{Range: rng})
	if err != nil {
		return domain.CalendarMonth{}, err
	}
	return s.agg.Calendar(analysis.Daily, month), nil
}

// Export writes one series of an analysis as CSV.
func (s *AnalysisService) Export(ctx context.Context, w io.Writer, analysis domain.Analysis, series exporter.Series) error {
	_, span := s.tracer.Start(ctx, "analysis.export", trace.WithAttributes(
		attribute.String("export.series", string(series)),
	))
	defer span.End()

	if err := s.csv.Export(w, analysis, series, s.Location()); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// ListFiles returns the stored workbooks, newest first.
func (s *AnalysisService) ListFiles(ctx context.Context) ([]files.StoredFile, error) {
	if s.store == nil {
		return nil, apierrors.NewConfigError("file store unavailable", ErrNoStore)
	}
	list, err := s.store.List(ctx)
	if err != nil {
		return nil, apierrors.NewStorageError("list workbooks", err)
	}
	return list, nil
}

// SaveFile stores an uploaded workbook after checking that it parses.
func (s *AnalysisService) SaveFile(ctx context.Context, originalName string, buf []byte) (files.StoredFile, int, error) {
	if s.store == nil {
		return files.StoredFile{}, 0, apierrors.NewConfigError("file store unavailable", ErrNoStore)
	}
	records, err := s.ParseWorkbook(ctx, originalName, buf)
	if err != nil {
		return files.StoredFile{}, 0, err
	}
	saved, err := s.store.Save(ctx, originalName, bytes.NewReader(buf))
	if err != nil {
		return files.StoredFile{}, 0, storeError(err, originalName)
	}
	return saved, len(records), nil
}

// DeleteFile removes a stored workbook.
func (s *AnalysisService) DeleteFile(ctx context.Context, name string) error {
	if s.store == nil {
		return apierrors.NewConfigError("file store unavailable", ErrNoStore)
	}
	if err := s.store.Delete(ctx, name); err != nil {
		return storeError(err, name)
	}
	return nil
}

func (s *AnalysisService) analyzeBytes(ctx context.Context, source, name string, buf []byte, opts AnalysisOptions) (domain.Analysis, error) {
	records, err := s.ParseWorkbook(ctx, name, buf)
	if err != nil {
		return domain.Analysis{}, err
	}
	infrastructure.RecordAnalysis(ctx, s.metrics, source)
	return s.Analyze(ctx, source, records, opts), nil
}

// readStored returns the workbook bytes and the name it was uploaded under.
func (s *AnalysisService) readStored(ctx context.Context, name string) ([]byte, string, error) {
	if s.store == nil {
		return nil, "", apierrors.NewConfigError("file store unavailable", ErrNoStore)
	}
	info, err := s.store.Stat(ctx, name)
	if err != nil {
		return nil, "", storeError(err, name)
	}
	buf, err := s.store.Read(ctx, name)
	if err != nil {
		return nil, "", storeError(err, name)
	}
	return buf, info.OriginalName, nil
}

// storeError classifies file store failures.
func storeError(err error, name string) error {
	switch {
	case errors.Is(err, files.ErrNotFound):
		return apierrors.NewNotFoundError("workbook", err).WithContext("name", name)
	case errors.Is(err, files.ErrInvalidName), errors.Is(err, files.ErrUnsupportedType):
		return apierrors.NewAppError(apierrors.ErrTypeValidation, "invalid workbook name", err).
			WithContext("name", name)
	default:
		return apierrors.NewStorageError("workbook storage failed", err).WithContext("name", name)
	}
}

func isUnbounded(r domain.DateRange) bool {
	return !r.FullRange && r.StartDate == "" && r.EndDate == ""
}

// failureKind names a parse failure for metrics and logs.
func failureKind(err error) string {
	switch {
	case errors.Is(err, dataprocessing.ErrInvalidWorkbook):
		return "invalid_workbook"
	case errors.Is(err, dataprocessing.ErrInsufficientRows):
		return "insufficient_rows"
	case errors.Is(err, dataprocessing.ErrHeaderNotFound):
		return "header_not_found"
	case errors.Is(err, dataprocessing.ErrMissingColumns):
		return "missing_columns"
	case errors.Is(err, dataprocessing.ErrNoValidRecords):
		return "no_valid_records"
	}
	return "unknown"
}
