package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"tradepulse/internal/config"
	"tradepulse/internal/infrastructure"
)

const xlsxMimeType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Fetch methods reported in metrics and logs.
const (
	MethodExport = "export"
	MethodDrive  = "drive"
)

var (
	// ErrFetchFailed is returned when the remote sheet could not be downloaded.
	ErrFetchFailed = errors.New("sheet download failed")
	// ErrSheetNotPublic is returned when the export answers with a sign-in page.
	ErrSheetNotPublic = errors.New("sheet is not shared publicly")
	// ErrSheetTooLarge is returned when the export exceeds the size limit.
	ErrSheetTooLarge = errors.New("sheet export exceeds size limit")
)

// SheetFetcher downloads Google Sheets as xlsx workbooks. With an API key it
// goes through the Drive v3 export endpoint; otherwise it requests the public
// export URL directly.
type SheetFetcher struct {
	client   *resty.Client
	drive    *drive.Service
	baseURL  string
	maxBytes int64

	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *infrastructure.AnalysisMetrics
}

// FetcherOption configures a SheetFetcher
type FetcherOption func(*fetcherOptions)

type fetcherOptions struct {
	logger       *slog.Logger
	tracer       trace.Tracer
	metrics      *infrastructure.AnalysisMetrics
	maxBytes     int64
	driveOptions []option.ClientOption
}

// WithFetcherLogger sets the logger
func WithFetcherLogger(logger *slog.Logger) FetcherOption {
	return func(o *fetcherOptions) { o.logger = logger }
}

// WithFetcherTracer sets the tracer used for fetch spans
func WithFetcherTracer(tracer trace.Tracer) FetcherOption {
	return func(o *fetcherOptions) { o.tracer = tracer }
}

// WithFetcherMetrics sets the metrics sink
func WithFetcherMetrics(m *infrastructure.AnalysisMetrics) FetcherOption {
	return func(o *fetcherOptions) { o.metrics = m }
}

// WithMaxBytes caps the size of a downloaded workbook
func WithMaxBytes(n int64) FetcherOption {
	return func(o *fetcherOptions) { o.maxBytes = n }
}

// WithDriveOptions appends client options for the Drive service, such as a
// custom endpoint.
func WithDriveOptions(opts ...option.ClientOption) FetcherOption {
	return func(o *fetcherOptions) { o.driveOptions = append(o.driveOptions, opts...) }
}

// NewSheetFetcher builds a fetcher from the sheets configuration.
func NewSheetFetcher(ctx context.Context, cfg config.SheetsConfig, opts ...FetcherOption) (*SheetFetcher, error) {
	o := fetcherOptions{maxBytes: config.DefaultMaxUploadBytes}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.tracer == nil {
		o.tracer = noop.NewTracerProvider().Tracer(infrastructure.InstrumentationName)
	}

	baseURL := cfg.ExportBaseURL
	if baseURL == "" {
		baseURL = config.DefaultSheetsBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultHTTPTimeout
	}

	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(cfg.RetryMaxWait).
		AddRetryCondition(isRetryable).
		SetHeader("Accept", xlsxMimeType+", */*")

	f := &SheetFetcher{
		client:   client,
		baseURL:  baseURL,
		maxBytes: o.maxBytes,
		logger:   infrastructure.WithComponent(o.logger, "sheet_fetcher"),
		tracer:   o.tracer,
		metrics:  o.metrics,
	}

	if cfg.APIKey != "" {
		driveOpts := append([]option.ClientOption{
			option.WithAPIKey(cfg.APIKey),
			option.WithHTTPClient(&http.Client{Timeout: timeout}),
		}, o.driveOptions...)
		svc, err := drive.NewService(ctx, driveOpts...)
		if err != nil {
			return nil, fmt.Errorf("create drive service: %w", err)
		}
		f.drive = svc
	}
	return f, nil
}

// Method reports which download path Fetch uses.
func (f *SheetFetcher) Method() string {
	if f.drive != nil {
		return MethodDrive
	}
	return MethodExport
}

// Fetch downloads the referenced sheet as xlsx bytes.
func (f *SheetFetcher) Fetch(ctx context.Context, ref SheetRef) ([]byte, error) {
	method := f.Method()
	ctx, span := f.tracer.Start(ctx, "sheets.fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("sheets.spreadsheet_id", ref.SpreadsheetID),
			attribute.String("sheets.gid", ref.GID),
			attribute.String("sheets.method", method),
		))
	defer span.End()

	start := time.Now()
	var (
		data []byte
		err  error
	)
	if f.drive != nil {
		data, err = f.fetchDrive(ctx, ref)
	} else {
		data, err = f.fetchExport(ctx, ref)
	}

	infrastructure.RecordSheetFetch(ctx, f.metrics, method, err == nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		infrastructure.WithError(f.logger, err).WarnContext(ctx, "sheet fetch failed",
			slog.String("spreadsheet_id", ref.SpreadsheetID),
			slog.String("method", method))
		return nil, err
	}

	span.SetAttributes(attribute.Int("sheets.bytes", len(data)))
	f.logger.InfoContext(ctx, "sheet fetched",
		slog.String("spreadsheet_id", ref.SpreadsheetID),
		slog.String("gid", ref.GID),
		slog.String("method", method),
		slog.Int("bytes", len(data)),
		slog.Duration("duration", time.Since(start)))
	return data, nil
}

// fetchExport streams the public export so an oversized sheet is cut off at
// the size limit instead of being buffered whole.
func (f *SheetFetcher) fetchExport(ctx context.Context, ref SheetRef) ([]byte, error) {
	resp, err := f.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(ref.ExportURL(f.baseURL))
	if resp != nil && resp.RawResponse != nil {
		defer resp.RawBody().Close()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrFetchFailed, resp.StatusCode())
	}
	// Private sheets redirect to a sign-in page that answers 200.
	if strings.HasPrefix(resp.Header().Get("Content-Type"), "text/html") {
		return nil, ErrSheetNotPublic
	}
	return f.readLimited(resp.RawBody())
}

// fetchDrive exports the whole spreadsheet; the parser reads its first tab.
func (f *SheetFetcher) fetchDrive(ctx context.Context, ref SheetRef) ([]byte, error) {
	resp, err := f.drive.Files.Export(ref.SpreadsheetID, xlsxMimeType).Context(ctx).Download()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && (gerr.Code == http.StatusForbidden || gerr.Code == http.StatusUnauthorized) {
			return nil, fmt.Errorf("%w: %v", ErrSheetNotPublic, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	return f.readLimited(resp.Body)
}

// readLimited reads at most maxBytes (DefaultMaxUploadBytes when unset).
func (f *SheetFetcher) readLimited(r io.Reader) ([]byte, error) {
	limit := f.maxBytes
	if limit <= 0 {
		limit = config.DefaultMaxUploadBytes
	}
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrSheetTooLarge, limit)
	}
	return body, nil
}

func isRetryable(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}
	code := r.StatusCode()
	return code >= 500 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
}
