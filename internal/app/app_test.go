package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradepulse/internal/config"
	"tradepulse/internal/shared/testutil"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.DataDir = filepath.Join(t.TempDir(), "data")
	cfg.Logging.Output = "stdout"
	cfg.Logging.FilePath = filepath.Join(t.TempDir(), "app.log")
	cfg.Security.RateLimit.Enabled = false
	cfg.Analysis.Timezone = "UTC"
	cfg.Sheets.RetryCount = 0
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) *Application {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := New(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		a.OTelProviders.Shutdown(context.Background())
	})
	return a
}

func doRequest(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, path, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestNewWiresComponents(t *testing.T) {
	a := newTestApp(t, testConfig(t))

	assert.NotNil(t, a.Router)
	assert.NotNil(t, a.Server)
	assert.NotNil(t, a.Store)
	assert.NotNil(t, a.AnalysisService)
	assert.NotNil(t, a.HealthService)
	assert.Equal(t, ":8080", a.Server.Addr)
	assert.Equal(t, "export", a.Sheets.Method())
	assert.Equal(t, time.UTC, a.AnalysisService.Location())
}

func TestNewRejectsBadTimezone(t *testing.T) {
	cfg := testConfig(t)
	cfg.Analysis.Timezone = "Mars/Olympus"
	_, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	a := newTestApp(t, testConfig(t))

	rec := doRequest(t, a.Router, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = doRequest(t, a.Router, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")

	rec = doRequest(t, a.Router, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploadAnalyzeExportDelete(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	workbook := testutil.SampleWorkbook(t)

	rec := doRequest(t, a.Router, uploadRequest(t, "/api/files", "history.xlsx", workbook))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		Data struct {
			Name         string `json:"name"`
			OriginalName string `json:"original_name"`
		} `json:"data"`
		Records int `json:"records"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "history.xlsx", created.Data.OriginalName)
	assert.Equal(t, 3, created.Records)
	name := created.Data.Name

	rec = doRequest(t, a.Router, httptest.NewRequest(http.MethodGet, "/api/files/"+name+"/analysis?full=true", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var analysis struct {
		Data struct {
			Summary struct {
				TotalTrades int     `json:"total_trades"`
				TotalProfit float64 `json:"total_profit"`
			} `json:"summary"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &analysis))
	assert.Equal(t, 3, analysis.Data.Summary.TotalTrades)
	assert.InDelta(t, 56.0, analysis.Data.Summary.TotalProfit, 1e-9)

	rec = doRequest(t, a.Router, httptest.NewRequest(http.MethodGet, "/api/files/"+name+"/export/monthly?full=true", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := strings.TrimPrefix(rec.Body.String(), "\ufeff")
	assert.True(t, strings.HasPrefix(body, "month,profit,cumulative"))
	assert.Contains(t, body, "2024-01,56.00,56.00")

	rec = doRequest(t, a.Router, httptest.NewRequest(http.MethodDelete, "/api/files/"+name, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, a.Router, httptest.NewRequest(http.MethodGet, "/api/files/"+name+"/analysis", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploadRejectsInvalidWorkbook(t *testing.T) {
	a := newTestApp(t, testConfig(t))

	header := make([]interface{}, len(testutil.ExplicitHeaders))
	for i, h := range testutil.ExplicitHeaders {
		header[i] = h
	}
	// Header only, no trades.
	workbook := testutil.Workbook(t, header)

	rec := doRequest(t, a.Router, uploadRequest(t, "/api/files", "empty.xlsx", workbook))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doRequest(t, a.Router, httptest.NewRequest(http.MethodGet, "/api/files", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":0`)
}

func TestAnalyzeSheetThroughExportServer(t *testing.T) {
	workbook := testutil.SampleWorkbook(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/abc123/export") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Write(workbook)
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Sheets.ExportBaseURL = srv.URL
	a := newTestApp(t, cfg)

	req := httptest.NewRequest(http.MethodPost, "/api/analysis/sheet",
		strings.NewReader(`{"url":"https://docs.google.com/spreadsheets/d/abc123/edit#gid=0","full_range":true}`))
	req.Header.Set("Content-Type", "application/json")
	rec := doRequest(t, a.Router, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"source":"sheet"`)

	req = httptest.NewRequest(http.MethodPost, "/api/analysis/sheet",
		strings.NewReader(`{"url":"https://docs.google.com/spreadsheets/d/missing/edit"}`))
	req.Header.Set("Content-Type", "application/json")
	rec = doRequest(t, a.Router, req)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestStartStop(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	a.Server.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Start(ctx, cancel))

	resp, err := http.Get("http://" + a.Addr() + config.HealthEndpoint)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, a.Stop(context.Background()))

	_, err = http.Get("http://" + a.Addr() + config.HealthEndpoint)
	assert.Error(t, err)
}
