package sources

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"tradepulse/internal/config"
	"tradepulse/internal/shared/testutil"
)

func testSheetsConfig(baseURL string) config.SheetsConfig {
	return config.SheetsConfig{
		ExportBaseURL: baseURL,
		Timeout:       2 * time.Second,
		RetryCount:    2,
		RetryWait:     5 * time.Millisecond,
		RetryMaxWait:  10 * time.Millisecond,
	}
}

func TestFetchExport(t *testing.T) {
	workbook := testutil.SampleWorkbook(t)
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", xlsxMimeType)
		w.Write(workbook)
	}))
	defer srv.Close()

	logger, logs := testutil.NewTestLogger(t)
	f, err := NewSheetFetcher(context.Background(), testSheetsConfig(srv.URL), WithFetcherLogger(logger))
	require.NoError(t, err)
	assert.Equal(t, MethodExport, f.Method())

	data, err := f.Fetch(context.Background(), SheetRef{SpreadsheetID: "sheet1", GID: "9"})
	require.NoError(t, err)
	assert.Equal(t, workbook, data)
	assert.Equal(t, "/sheet1/export", gotPath)
	assert.Equal(t, "format=xlsx&gid=9", gotQuery)
	testutil.AssertLogged(t, logs, slog.LevelInfo, "sheet fetched")
}

func TestFetchExportRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("xlsx"))
	}))
	defer srv.Close()

	f, err := NewSheetFetcher(context.Background(), testSheetsConfig(srv.URL))
	require.NoError(t, err)

	data, err := f.Fetch(context.Background(), SheetRef{SpreadsheetID: "s", GID: "0"})
	require.NoError(t, err)
	assert.Equal(t, []byte("xlsx"), data)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestFetchExportFailures(t *testing.T) {
	tests := []struct {
		name      string
		handler   http.HandlerFunc
		maxBytes  int64
		wantErr   error
		wantCalls int32
	}{
		{
			name: "not found is not retried",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
			wantErr:   ErrFetchFailed,
			wantCalls: 1,
		},
		{
			name: "sign-in page",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html; charset=utf-8")
				w.Write([]byte("<html>sign in</html>"))
			},
			wantErr:   ErrSheetNotPublic,
			wantCalls: 1,
		},
		{
			name: "too large",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(strings.Repeat("x", 64)))
			},
			maxBytes:  16,
			wantErr:   ErrSheetTooLarge,
			wantCalls: 1,
		},
		{
			name: "server errors exhaust retries",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			wantErr:   ErrFetchFailed,
			wantCalls: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				tt.handler(w, r)
			}))
			defer srv.Close()

			opts := []FetcherOption{}
			if tt.maxBytes > 0 {
				opts = append(opts, WithMaxBytes(tt.maxBytes))
			}
			f, err := NewSheetFetcher(context.Background(), testSheetsConfig(srv.URL), opts...)
			require.NoError(t, err)

			_, err = f.Fetch(context.Background(), SheetRef{SpreadsheetID: "s", GID: "0"})
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantCalls, atomic.LoadInt32(&calls))
		})
	}
}

func TestFetchExportStopsReadingAtLimit(t *testing.T) {
	const total = 64 << 20
	var written int64
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer close(done)
		w.Header().Set("Content-Type", xlsxMimeType)
		chunk := make([]byte, 32<<10)
		for atomic.LoadInt64(&written) < total {
			n, err := w.Write(chunk)
			atomic.AddInt64(&written, int64(n))
			if err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	f, err := NewSheetFetcher(context.Background(), testSheetsConfig(srv.URL), WithMaxBytes(1024))
	require.NoError(t, err)

	_, err = f.Fetch(context.Background(), SheetRef{SpreadsheetID: "s", GID: "0"})
	assert.ErrorIs(t, err, ErrSheetTooLarge)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("export handler still writing after the limit was hit")
	}
	assert.Less(t, atomic.LoadInt64(&written), int64(total))
}

func TestFetchDrive(t *testing.T) {
	workbook := testutil.SampleWorkbook(t)
	var gotPath, gotKey, gotMime string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		gotMime = r.URL.Query().Get("mimeType")
		if r.URL.Query().Get("key") != "secret" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write(workbook)
	}))
	defer srv.Close()

	cfg := testSheetsConfig("http://unused.invalid")
	cfg.APIKey = "secret"
	f, err := NewSheetFetcher(context.Background(), cfg, WithDriveOptions(option.WithEndpoint(srv.URL+"/drive/v3/")))
	require.NoError(t, err)
	assert.Equal(t, MethodDrive, f.Method())

	data, err := f.Fetch(context.Background(), SheetRef{SpreadsheetID: "sheet1", GID: "0"})
	require.NoError(t, err)
	assert.Equal(t, workbook, data)
	assert.True(t, strings.HasSuffix(gotPath, "/files/sheet1/export"), gotPath)
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, xlsxMimeType, gotMime)
}

func TestFetchDriveForbidden(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"code":403,"message":"forbidden"}}`))
	}))
	defer srv.Close()

	cfg := testSheetsConfig("http://unused.invalid")
	cfg.APIKey = "secret"
	f, err := NewSheetFetcher(context.Background(), cfg, WithDriveOptions(option.WithEndpoint(srv.URL+"/drive/v3/")))
	require.NoError(t, err)

	_, err = f.Fetch(context.Background(), SheetRef{SpreadsheetID: "private", GID: "0"})
	assert.ErrorIs(t, err, ErrSheetNotPublic)
}
