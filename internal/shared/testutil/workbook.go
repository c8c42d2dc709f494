package testutil

import (
	"testing"

	"github.com/xuri/excelize/v2"
)

// ExplicitHeaders is a header row with dedicated entry and exit columns
var ExplicitHeaders = []string{"진입시간", "청산시간", "포지션", "통화", "종류", "거래량", "진입가격", "청산가격", "커미션", "스왑", "수익"}

// CompactHeaders is the position-history layout with repeated time and price columns
var CompactHeaders = []string{"시간", "포지션", "통화", "종류", "거래량", "가격", "S / L", "T / P", "시간", "가격", "커미션", "스왑", "수익"}

// Workbook writes rows to the first sheet of a new xlsx file and returns its bytes.
func Workbook(t testing.TB, rows ...[]interface{}) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		row := row
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("write row %d: %v", i+1, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf.Bytes()
}

// ExplicitTrade builds one explicit-layout data row
func ExplicitTrade(entry, exit, symbol string, commission, swap, profit float64) []interface{} {
	return []interface{}{entry, exit, "P-" + symbol, symbol, "buy", 1.0, 100.0, 101.0, commission, swap, profit}
}

// SampleWorkbook is a small explicit-layout history spanning two days and two symbols
func SampleWorkbook(t testing.TB) []byte {
	t.Helper()

	header := make([]interface{}, len(ExplicitHeaders))
	for i, h := range ExplicitHeaders {
		header[i] = h
	}
	return Workbook(t,
		[]interface{}{"Trade history"},
		header,
		ExplicitTrade("2024.01.01 09:00:00", "2024.01.01 10:00:00", "EURUSD", -1, 0, 50),
		ExplicitTrade("2024.01.02 09:00:00", "2024.01.02 11:00:00", "XAUUSD", -2, -1, -20),
		ExplicitTrade("2024.01.02 12:00:00", "2024.01.02 13:00:00", "EURUSD", 0, 0, 30),
	)
}
