package dataprocessing

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"tradepulse/pkg/contracts/domain"
)

// Parser turns trade-history workbooks into normalized trade records. It
// holds no per-call state and is safe for concurrent use.
type Parser struct {
	logger   *slog.Logger
	location *time.Location
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithParserLogger sets the logger used for parse diagnostics.
func WithParserLogger(logger *slog.Logger) ParserOption {
	return func(p *Parser) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithLocation sets the location used to interpret wall-clock cell values.
func WithLocation(loc *time.Location) ParserOption {
	return func(p *Parser) {
		if loc != nil {
			p.location = loc
		}
	}
}

// NewParser creates a Parser. Without options it logs to slog.Default and
// reads times in time.Local.
func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{
		logger:   slog.Default(),
		location: time.Local,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(slog.String("component", "trade_parser"))
	return p
}

// Location returns the location used for wall-clock values.
func (p *Parser) Location() *time.Location {
	return p.location
}

// Parse reads the first sheet of buf and returns its trade records.
func (p *Parser) Parse(buf []byte) ([]domain.TradeRecord, error) {
	return p.ParseNamed("", buf)
}

// ParseNamed is Parse with a file label prefixed to every diagnostic.
func (p *Parser) ParseNamed(name string, buf []byte) ([]domain.TradeRecord, error) {
	logger := p.logger
	if name != "" {
		logger = logger.With(slog.String("file", name))
	}
	logger.Debug("Parsing workbook", slog.Int("bytes", len(buf)))

	sheet, rows, date1904, err := readFirstSheet(buf)
	if err != nil {
		logger.Warn("Workbook could not be read", slog.String("error", err.Error()))
		return nil, &ParseError{Kind: ErrInvalidWorkbook, File: name, Cause: err}
	}
	logger.Debug("Sheet loaded", slog.String("sheet", sheet), slog.Int("rows", len(rows)))

	if len(rows) < 2 {
		return nil, &ParseError{Kind: ErrInsufficientRows, File: name}
	}

	headerRow := findHeaderRow(rows)
	if headerRow < 0 {
		samples := sampleRows(rows, 5)
		logger.Warn("Header row not found", slog.Any("sample_rows", samples))
		return nil, &ParseError{Kind: ErrHeaderNotFound, File: name, SampleRows: samples}
	}

	hi := buildHeaderIndex(rows[headerRow])
	plan, err := resolvePlan(hi)
	if err != nil {
		var pe *ParseError
		if !errors.As(err, &pe) {
			return nil, err
		}
		pe.File = name
		logger.Warn("Required columns missing",
			slog.String("layout", pe.Layout),
			slog.Any("missing", pe.Missing),
			slog.Any("found", pe.FoundColumns))
		return nil, pe
	}
	logger.Debug("Columns resolved",
		slog.Int("header_row", headerRow),
		slog.String("plan", plan.String()))

	dates := newDateParser(p.location, date1904)
	var (
		records   []domain.TradeRecord
		totalRows int
		skipped   int
	)
	for _, row := range rows[headerRow+1:] {
		if isBlankRow(row) {
			continue
		}
		totalRows++

		rec := extractRecord(plan, row, dates)
		// Zero net and gross profit marks a non-trade row (deposit,
		// withdrawal, balance line). Break-even trades are dropped as well.
		if rec.NetProfit == 0 && rec.GrossProfit == 0 {
			skipped++
			continue
		}
		records = append(records, rec)
	}

	logger.Info("Workbook parsed",
		slog.String("layout", plan.layout.String()),
		slog.Int("records", len(records)),
		slog.Int("data_rows", totalRows),
		slog.Int("skipped_rows", skipped))

	if len(records) == 0 {
		kind := ErrAllRowsZeroProfit
		if totalRows == 0 {
			kind = ErrNoDataRows
		}
		return nil, &ParseError{Kind: kind, File: name, TotalRows: totalRows, SkippedRows: skipped}
	}
	return records, nil
}

// readFirstSheet returns the first sheet's rows as raw cell text.
func readFirstSheet(buf []byte) (string, [][]string, bool, error) {
	f, err := excelize.OpenReader(bytes.NewReader(buf))
	if err != nil {
		return "", nil, false, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return "", nil, false, fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return "", nil, false, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}

	date1904 := false
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		date1904 = *props.Date1904
	}
	return sheets[0], rows, date1904, nil
}

func extractRecord(plan columnPlan, row []string, dates *dateParser) domain.TradeRecord {
	rec := domain.TradeRecord{
		EntryTime:   dates.parse(cellAt(row, plan.entryTime)),
		ExitTime:    dates.parse(cellAt(row, plan.exitTime)),
		PositionID:  strings.TrimSpace(cellAt(row, plan.position)),
		Symbol:      strings.TrimSpace(cellAt(row, plan.symbol)),
		Side:        strings.TrimSpace(cellAt(row, plan.side)),
		Volume:      parseNumber(cellAt(row, plan.volume)),
		ExitPrice:   parseNumber(cellAt(row, plan.exitPrice)),
		StopLoss:    parseOptional(cellAt(row, plan.stopLoss)),
		TakeProfit:  parseOptional(cellAt(row, plan.takeProfit)),
		Commission:  parseNumber(cellAt(row, plan.commission)),
		Swap:        parseNumber(cellAt(row, plan.swap)),
		GrossProfit: parseNumber(cellAt(row, plan.profit)),
		AccountID:   optionalText(cellAt(row, plan.account)),
		EntryBasis:  optionalText(cellAt(row, plan.entryBasis)),
		Note:        optionalText(cellAt(row, plan.note)),
	}

	if v := cellAt(row, plan.entryPrice); strings.TrimSpace(v) != "" {
		rec.EntryPrice = parseNumber(v)
	} else {
		rec.EntryPrice = parseNumber(cellAt(row, plan.entryPriceLegacy))
	}

	if v := cellAt(row, plan.netProfit); strings.TrimSpace(v) != "" {
		rec.NetProfit = parseNumber(v)
	} else {
		rec.NetProfit = decimal.NewFromFloat(rec.Commission).
			Add(decimal.NewFromFloat(rec.Swap)).
			Add(decimal.NewFromFloat(rec.GrossProfit)).
			InexactFloat64()
	}
	return rec
}

func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// thousandsGrouped matches numbers written with comma thousands separators.
// Any other comma (a locale decimal such as "1,5") makes the cell non-numeric.
var thousandsGrouped = regexp.MustCompile(`^[-+]?\d{1,3}(,\d{3})+(\.\d+)?$`)

// parseNumber strips thousands separators and returns 0 for anything that
// is not a finite number.
func parseNumber(s string) float64 {
	v, ok := toFloat(s)
	if !ok {
		return 0
	}
	return v
}

// parseOptional keeps blank and non-numeric cells absent.
func parseOptional(s string) domain.NullFloat {
	v, ok := toFloat(s)
	if !ok {
		return domain.NullFloat{}
	}
	return domain.Float(v)
}

func toFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	s = strings.ReplaceAll(s, " ", "")
	if strings.Contains(s, ",") {
		if !thousandsGrouped.MatchString(s) {
			return 0, false
		}
		s = strings.ReplaceAll(s, ",", "")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func optionalText(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
