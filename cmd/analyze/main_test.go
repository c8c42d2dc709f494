package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradepulse/internal/exporter"
	"tradepulse/internal/shared/testutil"
)

func writeWorkbook(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

type cliResult struct {
	Name     string `json:"name"`
	Error    string `json:"error"`
	Analysis *struct {
		Summary struct {
			TotalTrades int     `json:"total_trades"`
			TotalProfit float64 `json:"total_profit"`
		} `json:"summary"`
		Records []json.RawMessage `json:"records"`
	} `json:"analysis"`
}

func runCLI(t *testing.T, args ...string) (int, []cliResult, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	var results []cliResult
	if stdout.Len() > 0 {
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &results), stdout.String())
	}
	return code, results, stderr.String()
}

func TestRunAnalyzesDirectory(t *testing.T) {
	dir := t.TempDir()
	writeWorkbook(t, dir, "history.xlsx", testutil.SampleWorkbook(t))
	writeWorkbook(t, dir, "notes.txt", []byte("ignored"))

	code, results, stderr := runCLI(t, "-tz", "UTC", dir)
	require.Equal(t, 0, code, stderr)
	require.Len(t, results, 1)
	assert.Equal(t, filepath.Join(dir, "history.xlsx"), results[0].Name)
	require.NotNil(t, results[0].Analysis)
	assert.Equal(t, 3, results[0].Analysis.Summary.TotalTrades)
	assert.InDelta(t, 56.0, results[0].Analysis.Summary.TotalProfit, 1e-9)
	assert.Empty(t, results[0].Analysis.Records)
}

func TestRunReportsFailuresPerInput(t *testing.T) {
	dir := t.TempDir()
	good := writeWorkbook(t, dir, "good.xlsx", testutil.SampleWorkbook(t))
	bad := writeWorkbook(t, dir, "bad.xlsx", []byte("not a workbook"))

	code, results, _ := runCLI(t, "-tz", "UTC", "-records", good, bad)
	assert.Equal(t, 1, code)
	require.Len(t, results, 2)
	assert.Empty(t, results[0].Error)
	assert.Len(t, results[0].Analysis.Records, 3)
	assert.NotEmpty(t, results[1].Error)
	assert.Nil(t, results[1].Analysis)
}

func TestRunExportsCSV(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(t.TempDir(), "exports")
	path := writeWorkbook(t, dir, "history.xlsx", testutil.SampleWorkbook(t))

	code, _, stderr := runCLI(t, "-tz", "UTC", "-out", out, "-series", "daily,trades", path)
	require.Equal(t, 0, code, stderr)

	daily, err := os.ReadFile(filepath.Join(out, exporter.SeriesDaily.FileName("history.xlsx")))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(strings.TrimPrefix(string(daily), "\ufeff")), "\n")
	assert.Equal(t, "date,weekday,profit,cumulative,EURUSD,XAUUSD", strings.TrimSpace(lines[0]))
	assert.Len(t, lines, 3)

	trades, err := os.ReadFile(filepath.Join(out, exporter.SeriesTrades.FileName("history.xlsx")))
	require.NoError(t, err)
	assert.Equal(t, 4, strings.Count(strings.TrimSpace(string(trades)), "\n")+1)
}

func TestRunRange(t *testing.T) {
	dir := t.TempDir()
	path := writeWorkbook(t, dir, "history.xlsx", testutil.SampleWorkbook(t))

	code, results, _ := runCLI(t, "-tz", "UTC", "-start", "2024-01-02", "-end", "2024-01-02", path)
	require.Equal(t, 0, code)
	require.Len(t, results, 1)
	assert.Equal(t, 2, results[0].Analysis.Summary.TotalTrades)
	assert.InDelta(t, 7.0, results[0].Analysis.Summary.TotalProfit, 1e-9)
}

func TestRunUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no inputs", nil},
		{"bad date", []string{"-start", "2024/01/01", "x.xlsx"}},
		{"week with range", []string{"-week", "-start", "2024-01-01", "x.xlsx"}},
		{"unknown series", []string{"-series", "yearly", "x.xlsx"}},
		{"bad timezone", []string{"-tz", "Nowhere/City", "x.xlsx"}},
		{"missing path", []string{filepath.Join(t.TempDir(), "missing.xlsx")}},
		{"bad sheet url", []string{"https://example.com/sheet"}},
		{"unknown flag", []string{"-bogus", "x.xlsx"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, results, _ := runCLI(t, tt.args...)
			assert.Equal(t, 2, code)
			assert.Empty(t, results)
		})
	}
}

func TestExportBase(t *testing.T) {
	assert.Equal(t, "history.xlsx", exportBase("/tmp/in/history.xlsx"))
	assert.Equal(t, "Google_Sheet_abc_gid_0", exportBase("Google Sheet abc#gid=0"))
}
