package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"tradepulse/internal/config"
	"tradepulse/internal/dataprocessing"
	apierrors "tradepulse/internal/errors"
	"tradepulse/internal/exporter"
	"tradepulse/internal/files"
	"tradepulse/internal/infrastructure"
	"tradepulse/internal/middleware"
	"tradepulse/internal/services"
	"tradepulse/internal/validation"
	"tradepulse/pkg/contracts/domain"
)

const maxPreviewRows = 500

// AnalysisService is the part of services.AnalysisService the handlers use
type AnalysisService interface {
	ListFiles(ctx context.Context) ([]files.StoredFile, error)
	SaveFile(ctx context.Context, originalName string, buf []byte) (files.StoredFile, int, error)
	DeleteFile(ctx context.Context, name string) error
	AnalyzeStoredFile(ctx context.Context, name string, opts services.AnalysisOptions) (domain.Analysis, error)
	AnalyzeUpload(ctx context.Context, name string, buf []byte, opts services.AnalysisOptions) (domain.Analysis, error)
	AnalyzeSheet(ctx context.Context, rawURL string, opts services.AnalysisOptions) (domain.Analysis, error)
	AnalyzeBatch(ctx context.Context, inputs []services.WorkbookInput, opts services.AnalysisOptions) ([]services.BatchResult, error)
	StoredInputs(names []string) []services.WorkbookInput
	PreviewStoredFile(ctx context.Context, name string, rows int) (*dataprocessing.Preview, error)
	Calendar(ctx context.Context, name, month string, rng domain.DateRange) (domain.CalendarMonth, error)
	Export(ctx context.Context, w io.Writer, analysis domain.Analysis, series exporter.Series) error
}

// SheetRequest is the body of POST /api/analysis/sheet
type SheetRequest struct {
	URL string `json:"url" validate:"required,sheeturl"`
	domain.DateRange
	IncludeRecords bool `json:"include_records"`
}

// BatchRequest is the body of POST /api/analysis/batch
type BatchRequest struct {
	Names []string `json:"names" validate:"required,min=1,max=20,dive,filename"`
	domain.DateRange
}

type fileNameKey struct{}

// AnalysisHandler serves the workbook and analysis endpoints
type AnalysisHandler struct {
	service      AnalysisService
	validation   *middleware.ValidationMiddleware
	query        *middleware.QueryParamValidator
	errorHandler *apierrors.ErrorHandler
	logger       *slog.Logger
	maxUpload    int64
}

// NewAnalysisHandler creates a new analysis handler. maxUpload caps the
// size of multipart workbook uploads.
func NewAnalysisHandler(service AnalysisService, logger *slog.Logger, errorHandler *apierrors.ErrorHandler, maxUpload int64) *AnalysisHandler {
	if maxUpload <= 0 {
		maxUpload = config.DefaultMaxUploadBytes
	}
	return &AnalysisHandler{
		service:      service,
		validation:   middleware.NewValidationMiddleware(logger, errorHandler),
		query:        middleware.NewQueryParamValidator(logger, errorHandler),
		errorHandler: errorHandler,
		logger:       logger.With(slog.String("component", "analysis_handler")),
		maxUpload:    maxUpload,
	}
}

// FileRoutes returns the routes mounted at /api/files
func (h *AnalysisHandler) FileRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListFiles)
	r.With(middleware.MaxBodySize(h.maxUpload+1<<20)).Post("/", h.UploadFile)

	r.Route("/{name}", func(r chi.Router) {
		r.Use(h.FileCtx)
		r.Delete("/", h.DeleteFile)
		r.Get("/analysis", h.GetAnalysis)
		r.Get("/preview", h.GetPreview)
		r.Get("/calendar", h.GetCalendar)
		r.Get("/export/{series}", h.ExportSeries)
	})
	return r
}

// AnalysisRoutes returns the routes mounted at /api/analysis
func (h *AnalysisHandler) AnalysisRoutes() chi.Router {
	r := chi.NewRouter()
	r.With(middleware.MaxBodySize(h.maxUpload+1<<20)).Post("/upload", h.AnalyzeUpload)

	r.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeValidator("application/json"))
		r.Use(h.validation.ValidateRequest)
		r.Post("/sheet", h.AnalyzeSheet)
		r.Post("/batch", h.AnalyzeBatch)
	})
	return r
}

// FileCtx validates the {name} parameter and stores it in the context
func (h *AnalysisHandler) FileCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if err := h.validation.ValidateVar("name", name, "required,filename"); err != nil {
			h.errorHandler.HandleError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), fileNameKey{}, name)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func fileName(r *http.Request) string {
	name, _ := r.Context().Value(fileNameKey{}).(string)
	return name
}

// ListFiles handles GET /api/files
func (h *AnalysisHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListFiles(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   list,
		"count":  len(list),
	})
}

// UploadFile handles POST /api/files
func (h *AnalysisHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	name, buf, err := h.readUpload(w, r)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	saved, records, err := h.service.SaveFile(r.Context(), name, buf)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	infrastructure.AddSpanEvent(r.Context(), "workbook.stored", map[string]interface{}{
		"name":    saved.Name,
		"records": records,
	})
	h.logger.InfoContext(r.Context(), "workbook uploaded",
		slog.String("name", saved.Name),
		slog.String("original_name", saved.OriginalName),
		slog.Int("records", records),
		slog.String("request_id", middleware.GetReqID(r.Context())))

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, map[string]interface{}{
		"status":  "success",
		"data":    saved,
		"records": records,
	})
}

// DeleteFile handles DELETE /api/files/{name}
func (h *AnalysisHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteFile(r.Context(), fileName(r)); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetAnalysis handles GET /api/files/{name}/analysis?start=&end=&full=&records=
func (h *AnalysisHandler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	opts, ok := h.analysisOptions(w, r)
	if !ok {
		return
	}
	analysis, err := h.service.AnalyzeStoredFile(r.Context(), fileName(r), opts)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   analysis,
	})
}

// GetPreview handles GET /api/files/{name}/preview?rows=
func (h *AnalysisHandler) GetPreview(w http.ResponseWriter, r *http.Request) {
	rows, ok := h.query.ValidateInt(w, r, "rows", 1, maxPreviewRows, 0)
	if !ok {
		return
	}
	preview, err := h.service.PreviewStoredFile(r.Context(), fileName(r), rows)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   preview,
	})
}

// GetCalendar handles GET /api/files/{name}/calendar?month=YYYY-MM
func (h *AnalysisHandler) GetCalendar(w http.ResponseWriter, r *http.Request) {
	month := r.URL.Query().Get("month")
	if month != "" {
		if err := h.validation.ValidateVar("month", month, "datetime=2006-01"); err != nil {
			h.errorHandler.HandleError(w, r, err)
			return
		}
	}
	opts, ok := h.analysisOptions(w, r)
	if !ok {
		return
	}

	cal, err := h.service.Calendar(r.Context(), fileName(r), month, opts.Range)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   cal,
	})
}

// ExportSeries handles GET /api/files/{name}/export/{series}
func (h *AnalysisHandler) ExportSeries(w http.ResponseWriter, r *http.Request) {
	series, err := exporter.ParseSeries(chi.URLParam(r, "series"))
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("series", err.Error()))
		return
	}
	opts, ok := h.analysisOptions(w, r)
	if !ok {
		return
	}
	opts.IncludeRecords = series == exporter.SeriesTrades

	name := fileName(r)
	infrastructure.SetSpanAttributes(r.Context(), map[string]interface{}{
		"export.series": string(series),
		"export.file":   name,
	})
	analysis, err := h.service.AnalyzeStoredFile(r.Context(), name, opts)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := h.service.Export(r.Context(), &buf, analysis, series); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", series.FileName(name)))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// AnalyzeUpload handles POST /api/analysis/upload. The workbook is analyzed
// without being stored; range fields come from the form.
func (h *AnalysisHandler) AnalyzeUpload(w http.ResponseWriter, r *http.Request) {
	name, buf, err := h.readUpload(w, r)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	opts := services.AnalysisOptions{
		Range: domain.DateRange{
			StartDate: r.FormValue("start_date"),
			EndDate:   r.FormValue("end_date"),
			FullRange: isTrue(r.FormValue("full_range")),
		},
		IncludeRecords: isTrue(r.FormValue("include_records")),
	}
	if err := h.validation.ValidateStruct(opts.Range); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	analysis, err := h.service.AnalyzeUpload(r.Context(), name, buf, opts)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   analysis,
	})
}

// AnalyzeSheet handles POST /api/analysis/sheet
func (h *AnalysisHandler) AnalyzeSheet(w http.ResponseWriter, r *http.Request) {
	var req SheetRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}
	if err := h.validation.ValidateStruct(req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	analysis, err := h.service.AnalyzeSheet(r.Context(), req.URL, services.AnalysisOptions{
		Range:          req.DateRange,
		IncludeRecords: req.IncludeRecords,
	})
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   analysis,
	})
}

// AnalyzeBatch handles POST /api/analysis/batch over stored workbooks
func (h *AnalysisHandler) AnalyzeBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}
	if err := h.validation.ValidateStruct(req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	results, err := h.service.AnalyzeBatch(r.Context(), h.service.StoredInputs(req.Names), services.AnalysisOptions{Range: req.DateRange})
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
		}
	}
	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   results,
		"count":  len(results),
		"failed": failed,
	})
}

// analysisOptions reads start, end, full and records query parameters.
func (h *AnalysisHandler) analysisOptions(w http.ResponseWriter, r *http.Request) (services.AnalysisOptions, bool) {
	full, ok := h.query.ValidateBool(w, r, "full", false)
	if !ok {
		return services.AnalysisOptions{}, false
	}
	records, ok := h.query.ValidateBool(w, r, "records", false)
	if !ok {
		return services.AnalysisOptions{}, false
	}

	q := r.URL.Query()
	rng := domain.DateRange{
		StartDate: q.Get("start"),
		EndDate:   q.Get("end"),
		FullRange: full,
	}
	if err := h.validation.ValidateStruct(rng); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return services.AnalysisOptions{}, false
	}
	return services.AnalysisOptions{Range: rng, IncludeRecords: records}, true
}

// readUpload extracts the "file" part of a multipart upload.
func (h *AnalysisHandler) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return "", nil, err
		}
		return "", nil, apierrors.InvalidRequestWithError(err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return "", nil, apierrors.ErrValidation("file", "file is required")
		}
		return "", nil, apierrors.InvalidRequestWithError(err)
	}
	defer file.Close()

	name := filepath.Base(strings.ReplaceAll(header.Filename, "\\", "/"))
	if !files.IsWorkbook(name) {
		return "", nil, apierrors.ErrUnsupportedFileType
	}
	if header.Size > h.maxUpload {
		return "", nil, &http.MaxBytesError{Limit: h.maxUpload}
	}

	buf, err := readPart(file, h.maxUpload)
	if err != nil {
		return "", nil, err
	}
	if err := validation.SniffWorkbook(buf); err != nil {
		return "", nil, apierrors.ErrUnsupportedFileType
	}
	return name, buf, nil
}

func readPart(file multipart.File, limit int64) ([]byte, error) {
	buf, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return nil, apierrors.InvalidRequestWithError(err)
	}
	if int64(len(buf)) > limit {
		return nil, &http.MaxBytesError{Limit: limit}
	}
	return buf, nil
}

func isTrue(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
