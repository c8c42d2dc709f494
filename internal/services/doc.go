// Package services implements the business logic layer of tradepulse. It
// sits between the HTTP handlers and the parser, aggregator, workbook store
// and sheet importer, so every entry point shares one pipeline.
//
// # Analysis pipeline
//
// AnalysisService accepts workbook bytes from an upload, the local store, a
// Google Sheet or a batch of files, and then:
//
//  1. parses them with dataprocessing.Parser inside an "analysis.parse" span
//  2. records parse metrics (count, duration, records, failure kind)
//  3. filters and aggregates with dataprocessing.Aggregator
//
// Parse failures are returned unchanged as *dataprocessing.ParseError so
// the HTTP layer can report the missing columns or sample rows. Store and
// network failures are wrapped in errors.AppError with the matching type.
//
// # Date ranges
//
// A request without start, end or full range defaults to the current
// Monday to Sunday week clamped into the data. When every trade predates
// that week the last week with trades is used instead.
//
// # Batches
//
// AnalyzeBatch runs each workbook through the pipeline on an errgroup with
// a bounded number of goroutines. A bad workbook fails only its own result.
//
// # Health
//
// HealthService reports version, uptime and whether the data directory is
// writable.
package services
