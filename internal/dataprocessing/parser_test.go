package dataprocessing

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradepulse/internal/shared/testutil"
)

func newTestParser() *Parser {
	return NewParser(WithLocation(time.UTC))
}

var explicitHeader = []interface{}{
	"EntryTime", "ExitTime", "Position", "Symbol", "Side", "Volume",
	"EntryPrice", "ExitPrice", "Commission", "Swap", "Profit",
}

var compactHeader = []interface{}{
	"시간", "포지션", "통화", "종류", "거래량", "가격", "S / L", "T / P", "시간", "가격", "커미션", "스왑", "수익",
}

func TestParseExplicitLayout(t *testing.T) {
	buf := testutil.Workbook(t,
		explicitHeader,
		[]interface{}{"2024.01.01 09:00:00", "2024.01.01 10:00:00", "P1", "EURUSD", "buy", 1.0, 1.1, 1.105, -2, 0, 50},
	)

	records, err := newTestParser().Parse(buf)
	require.NoError(t, err)
	require.Len(t, records, 1)

	r := records[0]
	require.NotNil(t, r.EntryTime)
	require.NotNil(t, r.ExitTime)
	assert.Equal(t, time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), *r.EntryTime)
	assert.Equal(t, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC), *r.ExitTime)
	assert.Equal(t, "P1", r.PositionID)
	assert.Equal(t, "EURUSD", r.Symbol)
	assert.Equal(t, "buy", r.Side)
	assert.Equal(t, 1.0, r.Volume)
	assert.Equal(t, 1.1, r.EntryPrice)
	assert.Equal(t, 1.105, r.ExitPrice)
	assert.Equal(t, -2.0, r.Commission)
	assert.Equal(t, 50.0, r.GrossProfit)
	assert.Equal(t, 48.0, r.NetProfit)
	assert.False(t, r.StopLoss.Valid)
	assert.False(t, r.TakeProfit.Valid)
	assert.Nil(t, r.AccountID)

	daily := NewAggregator(WithAggregatorLocation(time.UTC)).AggregateDaily(records)
	require.Len(t, daily, 1)
	assert.Equal(t, "2024-01-01", daily[0].Key)
	assert.Equal(t, 48.0, daily[0].Profit)
	assert.Equal(t, 48.0, daily[0].Cumulative)
}

func TestParseCompactLayout(t *testing.T) {
	buf := testutil.Workbook(t,
		[]interface{}{"Trade History Report"},
		[]interface{}{"Account:", "12345"},
		compactHeader,
		[]interface{}{"2024.03.04 08:15:00", "1001", "XAUUSD", "sell", 0.5, 2100.5, "", 2090, "2024.03.05 14:30:10", 2095.25, -3.5, -1.25, 262.5},
		[]interface{}{},
		[]interface{}{"2024.03.06 09:00:00", "1002", "EURUSD", "buy", 1, 1.08, 1.07, "", "2024.03.06 11:00:00", 1.075, 0, 0, -50},
	)

	records, err := newTestParser().Parse(buf)
	require.NoError(t, err)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, time.Date(2024, 3, 4, 8, 15, 0, 0, time.UTC), *first.EntryTime)
	assert.Equal(t, time.Date(2024, 3, 5, 14, 30, 10, 0, time.UTC), *first.ExitTime)
	assert.Equal(t, 2100.5, first.EntryPrice)
	assert.Equal(t, 2095.25, first.ExitPrice)
	assert.False(t, first.StopLoss.Valid, "blank stop loss stays absent")
	require.True(t, first.TakeProfit.Valid)
	assert.Equal(t, 2090.0, first.TakeProfit.Float64)
	assert.Equal(t, 257.75, first.NetProfit)

	second := records[1]
	assert.Equal(t, "1002", second.PositionID)
	require.True(t, second.StopLoss.Valid)
	assert.Equal(t, 1.07, second.StopLoss.Float64)
	assert.False(t, second.TakeProfit.Valid)
	assert.Equal(t, -50.0, second.NetProfit)
}

func TestParseNetProfitColumn(t *testing.T) {
	header := append(append([]interface{}{}, explicitHeader...), "실수익", "계좌번호", "진입기준", "비고")
	buf := testutil.Workbook(t,
		header,
		[]interface{}{"2024-02-01 09:00:00", "2024-02-01 10:00:00", "P1", "EURUSD", "buy", 1, 1.1, 1.2, -2, -1, 100, 90, "ACC-1", "breakout", "note"},
		[]interface{}{"2024-02-02 09:00:00", "2024-02-02 10:00:00", "P2", "EURUSD", "buy", 1, 1.1, 1.2, -2, -1, 100, ""},
	)

	records, err := newTestParser().Parse(buf)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, 90.0, records[0].NetProfit, "explicit net profit wins")
	require.NotNil(t, records[0].AccountID)
	assert.Equal(t, "ACC-1", *records[0].AccountID)
	require.NotNil(t, records[0].EntryBasis)
	assert.Equal(t, "breakout", *records[0].EntryBasis)
	require.NotNil(t, records[0].Note)
	assert.Equal(t, "note", *records[0].Note)

	assert.Equal(t, 97.0, records[1].NetProfit, "blank net profit falls back to the sum")
	assert.Nil(t, records[1].AccountID)
}

func TestParseExplicitUsesLastDuplicateColumn(t *testing.T) {
	buf := testutil.Workbook(t,
		[]interface{}{"진입시간", "청산시간", "포지션", "수익", "수익"},
		[]interface{}{"2024/05/01 09:00:00", "2024/05/01 10:00:00", "P1", 10, 25},
	)

	records, err := newTestParser().Parse(buf)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 25.0, records[0].GrossProfit)
}

func TestParseLegacyEntryPriceAndSeparators(t *testing.T) {
	buf := testutil.Workbook(t,
		[]interface{}{"진입시간", "청산시간", "포지션", "전입가격", "청산가격", "수익"},
		[]interface{}{"2024.05.01 09:00:00", "2024.05.01 10:00:00", "P1", "1,234.5", "1,240", "1,050.25"},
	)

	records, err := newTestParser().Parse(buf)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 1234.5, records[0].EntryPrice)
	assert.Equal(t, 1240.0, records[0].ExitPrice)
	assert.Equal(t, 1050.25, records[0].NetProfit)
}

func TestParseCommaDecimalsAreNotNumbers(t *testing.T) {
	buf := testutil.Workbook(t,
		[]interface{}{"진입시간", "청산시간", "포지션", "진입가격", "커미션", "수익"},
		[]interface{}{"2024.05.01 09:00:00", "2024.05.01 10:00:00", "P1", "1,5", "-2,50", "10"},
		[]interface{}{"2024.05.02 09:00:00", "2024.05.02 10:00:00", "P2", "12,345,678.9", "-1,000", "1,234,567"},
	)

	records, err := newTestParser().Parse(buf)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, 0.0, records[0].EntryPrice)
	assert.Equal(t, 0.0, records[0].Commission)
	assert.Equal(t, 10.0, records[0].NetProfit)

	assert.Equal(t, 12345678.9, records[1].EntryPrice)
	assert.Equal(t, -1000.0, records[1].Commission)
	assert.Equal(t, 1233567.0, records[1].NetProfit)
}

func TestToFloat(t *testing.T) {
	tests := []struct {
		in     string
		want   float64
		wantOK bool
	}{
		{"12.5", 12.5, true},
		{" -3 ", -3, true},
		{"1,234", 1234, true},
		{"-1,234,567.25", -1234567.25, true},
		{"1,5", 0, false},
		{"-2,50", 0, false},
		{"1,23,456", 0, false},
		{"12,34.5", 0, false},
		{",123", 0, false},
		{"", 0, false},
		{"NaN", 0, false},
		{"n/a", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := toFloat(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, 0.0, parseNumber("-2,50"))
	assert.False(t, parseOptional("1,5").Valid)
}

func TestParseSerialDates(t *testing.T) {
	buf := testutil.Workbook(t,
		explicitHeader,
		[]interface{}{45292.375, 45293.5, "P1", "EURUSD", "buy", 1, 1.1, 1.2, 0, 0, 10},
	)

	records, err := newTestParser().Parse(buf)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), *records[0].EntryTime)
	assert.Equal(t, time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC), *records[0].ExitTime)
}

func TestParseBadCellsDegradeLocally(t *testing.T) {
	buf := testutil.Workbook(t,
		explicitHeader,
		[]interface{}{"not a date", "2024.01.01 10:00:00", "P1", "EURUSD", "hedge", "n/a", 1.1, 1.2, 0, 0, 10},
	)

	records, err := newTestParser().Parse(buf)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Nil(t, records[0].EntryTime)
	assert.NotNil(t, records[0].ExitTime)
	assert.Equal(t, 0.0, records[0].Volume)
	assert.Equal(t, "hedge", records[0].Side)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		buf   func(t *testing.T) []byte
		kind  error
		check func(t *testing.T, pe *ParseError)
	}{
		{
			name: "invalid workbook",
			buf:  func(t *testing.T) []byte { return []byte("not a workbook") },
			kind: ErrInvalidWorkbook,
		},
		{
			name: "single row",
			buf: func(t *testing.T) []byte {
				return testutil.Workbook(t, explicitHeader)
			},
			kind: ErrInsufficientRows,
		},
		{
			name: "header not found",
			buf: func(t *testing.T) []byte {
				return testutil.Workbook(t,
					[]interface{}{"Date", "Amount"},
					[]interface{}{"2024-01-01", 10},
				)
			},
			kind: ErrHeaderNotFound,
			check: func(t *testing.T, pe *ParseError) {
				require.Len(t, pe.SampleRows, 2)
				assert.Equal(t, "row 1: Date, Amount", pe.SampleRows[0])
				assert.Contains(t, pe.Error(), "진입시간")
			},
		},
		{
			name: "explicit missing columns",
			buf: func(t *testing.T) []byte {
				return testutil.Workbook(t,
					[]interface{}{"진입시간", "포지션", "통화"},
					[]interface{}{"2024.01.01 09:00:00", "P1", "EURUSD"},
				)
			},
			kind: ErrMissingColumns,
			check: func(t *testing.T, pe *ParseError) {
				assert.Equal(t, "explicit", pe.Layout)
				assert.Equal(t, []string{"ExitTime (청산시간)", "Profit (수익)"}, pe.Missing)
				assert.Equal(t, []string{"진입시간", "포지션", "통화"}, pe.FoundColumns)
			},
		},
		{
			name: "compact missing profit",
			buf: func(t *testing.T) []byte {
				return testutil.Workbook(t,
					[]interface{}{"시간", "포지션", "가격", "시간", "가격"},
					[]interface{}{"2024.01.01 09:00:00", "P1", 1, "2024.01.01 10:00:00", 2},
				)
			},
			kind: ErrMissingColumns,
			check: func(t *testing.T, pe *ParseError) {
				assert.Equal(t, "compact", pe.Layout)
				assert.Equal(t, []string{"Profit (수익)"}, pe.Missing)
			},
		},
		{
			name: "all rows zero profit",
			buf: func(t *testing.T) []byte {
				return testutil.Workbook(t,
					explicitHeader,
					[]interface{}{"2024.01.01 09:00:00", "2024.01.01 10:00:00", "P1", "EURUSD", "buy", 1, 1.1, 1.2, 0, 0, 0},
					[]interface{}{"2024.01.02 09:00:00", "2024.01.02 10:00:00", "P2", "EURUSD", "buy", 1, 1.1, 1.2, 0, 0, 0},
				)
			},
			kind: ErrAllRowsZeroProfit,
			check: func(t *testing.T, pe *ParseError) {
				assert.Equal(t, 2, pe.TotalRows)
				assert.Equal(t, 2, pe.SkippedRows)
				assert.Contains(t, pe.Error(), "2 data rows, 2 skipped")
			},
		},
		{
			name: "no data rows",
			buf: func(t *testing.T) []byte {
				return testutil.Workbook(t,
					[]interface{}{"Report"},
					explicitHeader,
				)
			},
			kind: ErrNoDataRows,
			check: func(t *testing.T, pe *ParseError) {
				assert.Equal(t, 0, pe.TotalRows)
				assert.Equal(t, 0, pe.SkippedRows)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestParser().ParseNamed("trades.xlsx", tt.buf(t))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.kind), "got %v", err)

			var pe *ParseError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, "trades.xlsx", pe.File)
			assert.Contains(t, err.Error(), "[trades.xlsx]")
			if tt.check != nil {
				tt.check(t, pe)
			}
		})
	}
}

func TestEmptyResultKindsShareSentinel(t *testing.T) {
	zero := &ParseError{Kind: ErrAllRowsZeroProfit, TotalRows: 3, SkippedRows: 3}
	none := &ParseError{Kind: ErrNoDataRows}

	assert.ErrorIs(t, zero, ErrNoValidRecords)
	assert.ErrorIs(t, none, ErrNoValidRecords)
	assert.NotErrorIs(t, zero, ErrNoDataRows)
	assert.NotEqual(t, zero.Error(), none.Error())
}

func TestParserIsReentrant(t *testing.T) {
	p := newTestParser()
	buf := testutil.Workbook(t,
		explicitHeader,
		[]interface{}{"2024.01.01 09:00:00", "2024.01.01 10:00:00", "P1", "EURUSD", "buy", 1, 1.1, 1.2, 0, 0, 10},
	)

	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			records, err := p.Parse(buf)
			if err == nil && len(records) != 1 {
				err = fmt.Errorf("expected 1 record, got %d", len(records))
			}
			errs <- err
		}()
	}
	for i := 0; i < 8; i++ {
		assert.NoError(t, <-errs)
	}
}

func TestPreview(t *testing.T) {
	buf := testutil.Workbook(t,
		[]interface{}{"Trade History Report"},
		compactHeader,
		[]interface{}{"2024.03.04 08:15:00", "1001", "XAUUSD"},
		[]interface{}{"2024.03.05 08:15:00", "1002", "EURUSD"},
		[]interface{}{"2024.03.06 08:15:00", "1003", "GBPUSD"},
	)

	pv, err := newTestParser().Preview(buf, 2)
	require.NoError(t, err)
	assert.True(t, pv.HeaderDetected)
	assert.Equal(t, "Sheet1", pv.SheetName)
	assert.Equal(t, "시간", pv.Headers[0])
	assert.Equal(t, 3, pv.TotalRows)
	require.Len(t, pv.Rows, 2)
	assert.Equal(t, "1001", pv.Rows[0][1])

	plain := testutil.Workbook(t, []interface{}{"a", "b"}, []interface{}{"1", "2"})
	pv, err = newTestParser().Preview(plain, 0)
	require.NoError(t, err)
	assert.False(t, pv.HeaderDetected)
	assert.Equal(t, []string{"a", "b"}, pv.Headers)
	assert.Equal(t, 1, pv.TotalRows)
}
