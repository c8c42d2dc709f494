package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "tradepulse/internal/errors"
	"tradepulse/internal/shared/testutil"
	"tradepulse/pkg/contracts/domain"
)

type sheetBody struct {
	URL   string           `json:"url" validate:"required,url,sheeturl"`
	Range domain.DateRange `json:"range"`
}

type fileParam struct {
	Name string `json:"name" validate:"filename"`
}

func newValidation(t *testing.T) *ValidationMiddleware {
	logger, _ := testutil.NewTestLogger(t)
	return NewValidationMiddleware(logger, apierrors.NewErrorHandler(logger, false))
}

func fieldsOf(t *testing.T, err error) []string {
	t.Helper()
	var apiErr *apierrors.APIError
	require.ErrorAs(t, err, &apiErr)
	details, ok := apiErr.Details.(apierrors.ValidationErrors)
	require.True(t, ok)
	var fields []string
	for _, e := range details.Errors {
		fields = append(fields, e.Field)
	}
	return fields
}

func TestValidateStruct(t *testing.T) {
	m := newValidation(t)
	sheet := "https://docs.google.com/spreadsheets/d/abc123/edit#gid=0"

	assert.NoError(t, m.ValidateStruct(sheetBody{URL: sheet}))
	assert.NoError(t, m.ValidateStruct(sheetBody{URL: sheet, Range: domain.DateRange{StartDate: "2024-01-01", EndDate: "2024-01-31"}}))

	err := m.ValidateStruct(sheetBody{URL: "https://example.com/file.xlsx"})
	assert.Equal(t, []string{"url"}, fieldsOf(t, err))

	err = m.ValidateStruct(sheetBody{URL: sheet, Range: domain.DateRange{StartDate: "01/02/2024"}})
	assert.Equal(t, []string{"start_date"}, fieldsOf(t, err))

	err = m.ValidateStruct(sheetBody{URL: sheet, Range: domain.DateRange{StartDate: "2024-02-01", EndDate: "2024-01-01"}})
	assert.Equal(t, []string{"end_date"}, fieldsOf(t, err))

	// a full range ignores the bounds ordering
	assert.NoError(t, m.ValidateStruct(sheetBody{URL: sheet, Range: domain.DateRange{StartDate: "2024-02-01", EndDate: "2024-01-01", FullRange: true}}))
}

func TestFilenameTag(t *testing.T) {
	m := newValidation(t)
	for _, bad := range []string{"", "..", "../etc/passwd", `a\b.xlsx`, "dir/a.xlsx"} {
		assert.Error(t, m.ValidateStruct(fileParam{Name: bad}), bad)
	}
	assert.NoError(t, m.ValidateStruct(fileParam{Name: "1712345678901_ab12.xlsx"}))
}

func TestValidateRequest(t *testing.T) {
	m := newValidation(t)
	var got string
	h := m.ValidateRequest(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		got = body["url"]
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"url":"x"}`)))
	assert.Equal(t, "x", got)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"url":`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_JSON")
}

func TestContentTypeValidator(t *testing.T) {
	h := ContentTypeValidator("application/json")(okHandler)

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{}"))
	r.Header.Set("Content-Type", "application/json; charset=utf-8")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("x"))
	r.Header.Set("Content-Type", "text/plain")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("x")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQueryParamValidator(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	v := NewQueryParamValidator(logger, apierrors.NewErrorHandler(logger, false))

	r := httptest.NewRequest(http.MethodGet, "/?rows=25&series=weekly&full=true", nil)
	w := httptest.NewRecorder()

	rows, ok := v.ValidateInt(w, r, "rows", 1, 100, 10)
	assert.True(t, ok)
	assert.Equal(t, 25, rows)

	full, ok := v.ValidateBool(w, r, "full", false)
	assert.True(t, ok)
	assert.True(t, full)

	def, ok := v.ValidateInt(w, r, "missing", 1, 100, 10)
	assert.True(t, ok)
	assert.Equal(t, 10, def)

	bad := httptest.NewRecorder()
	_, ok = v.ValidateInt(bad, httptest.NewRequest(http.MethodGet, "/?rows=500", nil), "rows", 1, 100, 10)
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, bad.Code)

	bad = httptest.NewRecorder()
	_, ok = v.ValidateBool(bad, httptest.NewRequest(http.MethodGet, "/?full=maybe", nil), "full", false)
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}
