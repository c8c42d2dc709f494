package exporter

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"tradepulse/pkg/contracts/domain"
)

// Series names one exportable view of an analysis
type Series string

const (
	SeriesDaily   Series = "daily"
	SeriesWeekly  Series = "weekly"
	SeriesMonthly Series = "monthly"
	SeriesSymbols Series = "symbols"
	SeriesTrades  Series = "trades"
)

// AllSeries lists every series in export order
var AllSeries = []Series{SeriesDaily, SeriesWeekly, SeriesMonthly, SeriesSymbols, SeriesTrades}

// ErrUnknownSeries is returned by ParseSeries for unsupported names.
var ErrUnknownSeries = errors.New("unknown export series")

// ParseSeries validates a series name.
func ParseSeries(s string) (Series, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, series := range AllSeries {
		if string(series) == s {
			return series, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSeries, s)
}

// FileName suggests a download name such as history_daily.csv.
func (s Series) FileName(base string) string {
	base = strings.TrimSuffix(base, ".xlsx")
	if base == "" {
		base = "analysis"
	}
	return fmt.Sprintf("%s_%s.csv", base, s)
}

// Table converts one series of an analysis to CSV headers and rows. Trade
// times are rendered in loc.
func Table(a domain.Analysis, s Series, loc *time.Location) (WriteOptions, error) {
	switch s {
	case SeriesDaily:
		return dailyTable(a.Daily), nil
	case SeriesWeekly:
		return weeklyTable(a.Weekly), nil
	case SeriesMonthly:
		return monthlyTable(a.Monthly), nil
	case SeriesSymbols:
		return symbolTable(a.Symbols), nil
	case SeriesTrades:
		return tradeTable(a.Records, loc), nil
	}
	return WriteOptions{}, fmt.Errorf("%w: %q", ErrUnknownSeries, s)
}

// Export writes one series as CSV with a UTF-8 BOM.
func (c *CSVWriter) Export(w io.Writer, a domain.Analysis, s Series, loc *time.Location) error {
	table, err := Table(a, s, loc)
	if err != nil {
		return err
	}
	table.BOMPrefix = true
	return c.Write(w, table)
}

// dailyTable adds one column per symbol traded anywhere in the range.
func dailyTable(daily []domain.DailyBucket) WriteOptions {
	seen := make(map[string]bool)
	var symbols []string
	for _, d := range daily {
		for sym := range d.BySymbol {
			if !seen[sym] {
				seen[sym] = true
				symbols = append(symbols, sym)
			}
		}
	}
	sort.Strings(symbols)

	headers := append([]string{"date", "weekday", "profit", "cumulative"}, symbols...)
	rows := make([][]string, 0, len(daily))
	for _, d := range daily {
		row := []string{d.Key, d.Weekday, formatFloat(d.Profit), formatFloat(d.Cumulative)}
		for _, sym := range symbols {
			v, ok := d.BySymbol[sym]
			if !ok {
				row = append(row, "")
				continue
			}
			row = append(row, formatFloat(v))
		}
		rows = append(rows, row)
	}
	return WriteOptions{Headers: headers, Records: rows}
}

func weeklyTable(weekly []domain.WeeklyBucket) WriteOptions {
	rows := make([][]string, 0, len(weekly))
	for _, w := range weekly {
		rows = append(rows, []string{w.Key, w.WeekStart, w.WeekEnd, w.Label, formatFloat(w.Profit), formatFloat(w.Cumulative)})
	}
	return WriteOptions{
		Headers: []string{"week", "week_start", "week_end", "label", "profit", "cumulative"},
		Records: rows,
	}
}

func monthlyTable(monthly []domain.PeriodBucket) WriteOptions {
	rows := make([][]string, 0, len(monthly))
	for _, m := range monthly {
		rows = append(rows, []string{m.Key, formatFloat(m.Profit), formatFloat(m.Cumulative)})
	}
	return WriteOptions{
		Headers: []string{"month", "profit", "cumulative"},
		Records: rows,
	}
}

func symbolTable(stats []domain.SymbolStats) WriteOptions {
	rows := make([][]string, 0, len(stats))
	for _, s := range stats {
		rows = append(rows, []string{
			s.Symbol,
			formatInt(s.TradeCount),
			formatFloat(s.TotalProfit),
			formatFloat(s.TotalVolume),
			formatInt(s.WinCount),
			formatInt(s.LossCount),
			formatRate(s.WinRate),
			formatFloat(s.AvgWin),
			formatFloat(s.AvgLoss),
		})
	}
	return WriteOptions{
		Headers: []string{"symbol", "trades", "total_profit", "total_volume", "wins", "losses", "win_rate", "avg_win", "avg_loss"},
		Records: rows,
	}
}

func tradeTable(records []domain.TradeRecord, loc *time.Location) WriteOptions {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			formatTime(r.EntryTime, loc),
			formatTime(r.ExitTime, loc),
			r.PositionID,
			r.Symbol,
			r.Side,
			formatNumber(r.Volume),
			formatNumber(r.EntryPrice),
			formatNumber(r.ExitPrice),
			formatNull(r.StopLoss),
			formatNull(r.TakeProfit),
			formatFloat(r.Commission),
			formatFloat(r.Swap),
			formatFloat(r.GrossProfit),
			formatFloat(r.NetProfit),
		})
	}
	return WriteOptions{
		Headers: []string{
			"entry_time", "exit_time", "position", "symbol", "side", "volume",
			"entry_price", "exit_price", "stop_loss", "take_profit",
			"commission", "swap", "gross_profit", "net_profit",
		},
		Records: rows,
	}
}
