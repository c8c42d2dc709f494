// Package shared holds helpers used by more than one layer.
//
// The testutil subpackage provides a capturing slog handler for log
// assertions and builders for in-memory trade-history workbooks.
package shared
