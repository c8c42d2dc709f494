// Package dataprocessing turns broker trade-history workbooks into trade
// records and derives profit analytics from them.
//
// # Architecture
//
// The package has two strictly pipelined components:
//
// 1. Parser: reads the first sheet of an .xlsx buffer, detects the header
// row and column layout, and extracts one domain.TradeRecord per row
// 2. Aggregator: filters records by exit date and computes a summary,
// daily/weekly/monthly profit series and per-symbol statistics
//
// Neither component performs I/O or keeps state between calls, so both are
// safe for concurrent use.
//
// # Layouts
//
// Two header layouts are recognised. The compact layout (MT5 position
// history) repeats 시간 and 가격, first for entry and then for exit:
//
//	시간, 포지션, 통화, 종류, 거래량, 가격, S / L, T / P, 시간, 가격, 커미션, 스왑, 수익
//
// The explicit layout has dedicated columns:
//
//	진입시간, 청산시간, 포지션, 통화, 종류, 거래량, 진입가격, 청산가격, 커미션, 스왑, 수익
//
// English equivalents (EntryTime, ExitTime, Time, Price, Position, Symbol,
// Side, Volume, EntryPrice, ExitPrice, Commission, Swap, Profit, NetProfit)
// are accepted in place of the Korean markers.
//
// # Usage
//
//	parser := dataprocessing.NewParser(dataprocessing.WithLocation(loc))
//	records, err := parser.ParseNamed("history.xlsx", buf)
//	if err != nil {
//	    return err
//	}
//
//	agg := dataprocessing.NewAggregator(dataprocessing.WithAggregatorLocation(loc))
//	analysis := agg.Analyze(records, domain.DateRange{StartDate: "2024-01-01"})
//
// # Error Handling
//
// Ingestion failures are returned as *ParseError carrying the file label and
// enough context (sample rows, missing and found columns, row counts) for a
// user to fix the source file. Use errors.Is with the Err* sentinels to
// branch on the failure kind. Bad individual cells never fail a parse: dates
// become nil, numbers become 0, and stop-loss/take-profit stay absent.
//
// Aggregation never fails; empty input yields empty or zero results.
package dataprocessing
