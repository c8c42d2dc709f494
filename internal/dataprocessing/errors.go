package dataprocessing

import (
	"errors"
	"fmt"
	"strings"
)

// Ingestion errors
var (
	ErrInvalidWorkbook   = errors.New("workbook could not be read")
	ErrInsufficientRows  = errors.New("sheet has fewer than 2 rows")
	ErrHeaderNotFound    = errors.New("header row not found")
	ErrMissingColumns    = errors.New("required columns missing")
	ErrNoValidRecords    = errors.New("no valid trade records")
	ErrNoDataRows        = errors.New("no data rows below header")
	ErrAllRowsZeroProfit = errors.New("all data rows have zero profit")
)

// Supported layouts shown when the header row cannot be found.
const supportedLayouts = "compact (MT5): 시간, 포지션, 통화, 종류, 거래량, 가격, S / L, T / P, 시간, 가격, 커미션, 스왑, 수익\n" +
	"explicit: 진입시간, 청산시간, 포지션, 통화, 종류, 거래량, 진입가격, 청산가격, 커미션, 스왑, 수익"

// ParseError is returned for every unrecoverable ingestion failure. Kind is
// one of the Err* sentinels so callers can use errors.Is.
type ParseError struct {
	Kind  error
	File  string
	Cause error

	// ErrHeaderNotFound
	SampleRows []string
	// ErrMissingColumns
	Layout       string
	Missing      []string
	FoundColumns []string
	// ErrNoValidRecords
	TotalRows   int
	SkippedRows int
}

func (e *ParseError) Error() string {
	var b strings.Builder
	if e.File != "" {
		fmt.Fprintf(&b, "[%s] ", e.File)
	}
	if e.Kind == ErrNoDataRows || e.Kind == ErrAllRowsZeroProfit {
		fmt.Fprintf(&b, "%v (%v)", ErrNoValidRecords, e.Kind)
	} else {
		b.WriteString(e.Kind.Error())
	}

	switch {
	case errors.Is(e.Kind, ErrHeaderNotFound):
		b.WriteString("\n\nsupported layouts:\n")
		b.WriteString(supportedLayouts)
		b.WriteString("\n\nfirst rows of the sheet:")
		for _, s := range e.SampleRows {
			b.WriteString("\n  ")
			b.WriteString(s)
		}
	case errors.Is(e.Kind, ErrMissingColumns):
		fmt.Fprintf(&b, " for %s layout: %s", e.Layout, strings.Join(e.Missing, ", "))
		found := strings.Join(e.FoundColumns, ", ")
		if found == "" {
			found = "(none)"
		}
		fmt.Fprintf(&b, "; found columns: %s", found)
	case e.Kind == ErrNoDataRows || e.Kind == ErrAllRowsZeroProfit:
		fmt.Fprintf(&b, ": %d data rows, %d skipped with zero profit", e.TotalRows, e.SkippedRows)
	}

	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Is matches the error kind and, for empty results, the generic
// ErrNoValidRecords sentinel.
func (e *ParseError) Is(target error) bool {
	if target == e.Kind {
		return true
	}
	if target == ErrNoValidRecords {
		return e.Kind == ErrNoDataRows || e.Kind == ErrAllRowsZeroProfit
	}
	return false
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// sampleRows renders the first n rows (up to 10 non-empty cells each) for
// the header-not-found diagnostic.
func sampleRows(rows [][]string, n int) []string {
	var out []string
	for i := 0; i < len(rows) && i < n; i++ {
		var cells []string
		for j, c := range rows[i] {
			if j >= 10 {
				break
			}
			if c = strings.TrimSpace(c); c != "" {
				cells = append(cells, c)
			}
		}
		text := strings.Join(cells, ", ")
		if text == "" {
			text = "(empty row)"
		}
		out = append(out, fmt.Sprintf("row %d: %s", i+1, text))
	}
	return out
}
