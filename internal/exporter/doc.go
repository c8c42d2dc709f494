// Package exporter writes analysis series as CSV tables.
//
// Table turns one Series (daily, weekly, monthly, symbols or trades) of a
// domain.Analysis into headers and rows. CSVWriter writes such tables to a
// stream or a file, with an optional UTF-8 BOM so spreadsheet programs
// detect the encoding of Korean weekday labels.
//
// Example usage:
//
//	writer := exporter.NewCSVWriter(logger)
//	series, err := exporter.ParseSeries("daily")
//	if err != nil {
//	    return err
//	}
//	err = writer.Export(w, analysis, series, loc)
package exporter
