package dataprocessing

import (
	"fmt"
	"strings"
)

// Layout is the column layout of a trade-history sheet.
type Layout int

const (
	// LayoutExplicit has dedicated entry and exit columns.
	LayoutExplicit Layout = iota
	// LayoutCompact repeats the Time and Price headers, first for entry
	// and then for exit (MT5 position history).
	LayoutCompact
)

func (l Layout) String() string {
	if l == LayoutCompact {
		return "compact"
	}
	return "explicit"
}

// headerIndex maps each recognised column to the indices where it appears,
// in sheet order, and keeps the raw header labels for diagnostics.
type headerIndex struct {
	positions map[column][]int
	labels    []string
}

func buildHeaderIndex(header []string) headerIndex {
	hi := headerIndex{positions: make(map[column][]int)}
	for i, raw := range header {
		label := strings.TrimSpace(raw)
		if label == "" {
			continue
		}
		hi.labels = append(hi.labels, label)
		if col, ok := lookupColumn(label); ok {
			hi.positions[col] = append(hi.positions[col], i)
		}
	}
	return hi
}

func (hi headerIndex) count(col column) int {
	return len(hi.positions[col])
}

func (hi headerIndex) first(col column) int {
	if p := hi.positions[col]; len(p) > 0 {
		return p[0]
	}
	return -1
}

func (hi headerIndex) last(col column) int {
	if p := hi.positions[col]; len(p) > 0 {
		return p[len(p)-1]
	}
	return -1
}

func (hi headerIndex) nth(col column, n int) int {
	if p := hi.positions[col]; len(p) > n {
		return p[n]
	}
	return -1
}

// layout classifies the sheet. Compact requires exactly two Time and two
// Price columns and no EntryTime column.
func (hi headerIndex) layout() Layout {
	if hi.count(colTime) == 2 && hi.count(colPrice) == 2 && hi.count(colEntryTime) == 0 {
		return LayoutCompact
	}
	return LayoutExplicit
}

// missing lists the required columns absent for the given layout.
func (hi headerIndex) missing(layout Layout) []string {
	var missing []string
	if layout == LayoutCompact {
		for _, col := range []column{colTime, colPrice, colPosition, colProfit} {
			if hi.count(col) == 0 {
				missing = append(missing, displayName(col))
			}
		}
		if hi.count(colTime) != 2 {
			missing = append(missing, displayName(colTime)+" x2 (entry and exit)")
		}
		if hi.count(colPrice) != 2 {
			missing = append(missing, displayName(colPrice)+" x2 (entry and exit)")
		}
		return missing
	}
	for _, col := range []column{colEntryTime, colExitTime, colPosition, colProfit} {
		if hi.count(col) == 0 {
			missing = append(missing, displayName(col))
		}
	}
	return missing
}

// columnPlan is the resolved per-sheet extraction plan. Every field holds a
// cell index, or -1 when the sheet lacks that column.
type columnPlan struct {
	layout Layout

	entryTime        int
	exitTime         int
	entryPrice       int
	entryPriceLegacy int
	exitPrice        int

	position   int
	symbol     int
	side       int
	volume     int
	stopLoss   int
	takeProfit int
	commission int
	swap       int
	profit     int
	netProfit  int
	account    int
	entryBasis int
	note       int
}

// resolvePlan builds the extraction plan. Compact sheets take the first
// occurrence of each label with the second Time/Price pair as exit; explicit
// sheets take the last occurrence of a duplicated label.
func resolvePlan(hi headerIndex) (columnPlan, error) {
	layout := hi.layout()
	if missing := hi.missing(layout); len(missing) > 0 {
		return columnPlan{}, &ParseError{
			Kind:         ErrMissingColumns,
			Layout:       layout.String(),
			Missing:      missing,
			FoundColumns: hi.labels,
		}
	}

	pick := hi.last
	if layout == LayoutCompact {
		pick = hi.first
	}

	plan := columnPlan{
		layout:           layout,
		entryPriceLegacy: pick(colEntryPriceLegacy),
		position:         pick(colPosition),
		symbol:           pick(colSymbol),
		side:             pick(colSide),
		volume:           pick(colVolume),
		stopLoss:         pick(colStopLoss),
		takeProfit:       pick(colTakeProfit),
		commission:       pick(colCommission),
		swap:             pick(colSwap),
		profit:           pick(colProfit),
		netProfit:        pick(colNetProfit),
		account:          pick(colAccount),
		entryBasis:       pick(colEntryBasis),
		note:             pick(colNote),
	}

	if layout == LayoutCompact {
		plan.entryTime = hi.nth(colTime, 0)
		plan.exitTime = hi.nth(colTime, 1)
		plan.entryPrice = hi.nth(colPrice, 0)
		plan.exitPrice = hi.nth(colPrice, 1)
	} else {
		plan.entryTime = pick(colEntryTime)
		plan.exitTime = pick(colExitTime)
		plan.entryPrice = pick(colEntryPrice)
		plan.exitPrice = pick(colExitPrice)
	}

	return plan, nil
}

func (p columnPlan) String() string {
	return fmt.Sprintf("%s(entry=%d exit=%d profit=%d net=%d)", p.layout, p.entryTime, p.exitTime, p.profit, p.netProfit)
}
