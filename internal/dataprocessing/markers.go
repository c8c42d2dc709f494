package dataprocessing

import "strings"

// column identifies a canonical trade-history column independent of the
// header text used by a particular export.
type column int

const (
	colTime column = iota
	colPrice
	colEntryTime
	colExitTime
	colPosition
	colSymbol
	colSide
	colVolume
	colEntryPrice
	colEntryPriceLegacy
	colExitPrice
	colStopLoss
	colTakeProfit
	colCommission
	colSwap
	colProfit
	colNetProfit
	colAccount
	colEntryBasis
	colNote
)

// columnSpec lists the header markers recognised for a column. The first
// marker is the one brokers emit in the Korean MT5 export and is used when
// reporting missing columns.
type columnSpec struct {
	name    string
	markers []string
}

var columnSpecs = map[column]columnSpec{
	colTime:             {"Time", []string{"시간", "Time"}},
	colPrice:            {"Price", []string{"가격", "Price"}},
	colEntryTime:        {"EntryTime", []string{"진입시간", "EntryTime"}},
	colExitTime:         {"ExitTime", []string{"청산시간", "ExitTime"}},
	colPosition:         {"Position", []string{"포지션", "Position"}},
	colSymbol:           {"Symbol", []string{"통화", "Symbol"}},
	colSide:             {"Side", []string{"종류", "Side", "Type"}},
	colVolume:           {"Volume", []string{"거래량", "Volume"}},
	colEntryPrice:       {"EntryPrice", []string{"진입가격", "EntryPrice"}},
	colEntryPriceLegacy: {"EntryPrice", []string{"전입가격"}},
	colExitPrice:        {"ExitPrice", []string{"청산가격", "ExitPrice"}},
	colStopLoss:         {"S/L", []string{"S / L", "S/L", "StopLoss"}},
	colTakeProfit:       {"T/P", []string{"T / P", "T/P", "TakeProfit"}},
	colCommission:       {"Commission", []string{"커미션", "Commission"}},
	colSwap:             {"Swap", []string{"스왑", "Swap"}},
	colProfit:           {"Profit", []string{"수익", "Profit"}},
	colNetProfit:        {"NetProfit", []string{"실수익", "NetProfit", "Net Profit"}},
	colAccount:          {"Account", []string{"계좌번호", "Account"}},
	colEntryBasis:       {"EntryBasis", []string{"진입기준", "EntryBasis"}},
	colNote:             {"Note", []string{"비고", "Note", "Comment"}},
}

// markerIndex maps a normalised header label to its canonical column.
var markerIndex = buildMarkerIndex()

func buildMarkerIndex() map[string]column {
	idx := make(map[string]column)
	for col, spec := range columnSpecs {
		for _, m := range spec.markers {
			idx[normalizeLabel(m)] = col
		}
	}
	return idx
}

// displayName renders a column as "English (Korean)" for diagnostics.
func displayName(col column) string {
	spec := columnSpecs[col]
	return spec.name + " (" + spec.markers[0] + ")"
}

// normalizeLabel folds case and drops spaces, underscores and slashes so
// that "S / L", "S/L" and "sl" compare equal.
func normalizeLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '_', '/', '\n', '\r':
			return -1
		}
		return r
	}, s)
}

// lookupColumn resolves header text to a canonical column.
func lookupColumn(header string) (column, bool) {
	if header == "" {
		return 0, false
	}
	col, ok := markerIndex[normalizeLabel(header)]
	return col, ok
}

var (
	entryExitMarkers = []string{"진입시간", "청산시간", "entrytime", "exittime"}
	timeMarkers      = []string{"시간", "time"}
	positionMarkers  = []string{"포지션", "position"}
)

// isHeaderRow reports whether row looks like a trade-history header: a cell
// containing an entry/exit time marker, or a bare time marker alongside a
// position marker.
func isHeaderRow(row []string) bool {
	hasPosition := false
	for _, cell := range row {
		if matchesAny(normalizeLabel(cell), positionMarkers) {
			hasPosition = true
			break
		}
	}
	for _, cell := range row {
		norm := normalizeLabel(cell)
		if norm == "" {
			continue
		}
		for _, m := range entryExitMarkers {
			if strings.Contains(norm, m) {
				return true
			}
		}
		if hasPosition && matchesAny(norm, timeMarkers) {
			return true
		}
	}
	return false
}

func matchesAny(s string, candidates []string) bool {
	for _, c := range candidates {
		if s == c {
			return true
		}
	}
	return false
}

// findHeaderRow returns the index of the first header row, or -1.
func findHeaderRow(rows [][]string) int {
	for i, row := range rows {
		if isHeaderRow(row) {
			return i
		}
	}
	return -1
}
