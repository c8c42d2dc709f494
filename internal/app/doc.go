// Package app wires the trade history web service together.
//
// New builds every component from a config.Config: the JSON logger,
// OpenTelemetry providers and analysis metrics, the workbook store, the
// Google Sheets fetcher, the parse and aggregate services and finally the
// chi router and HTTP server. Start serves in the background, Stop shuts the
// server and the telemetry providers down, and Run blocks until SIGINT or
// SIGTERM.
//
// The router applies RequestID, RealIP, OTel, StructuredLogger, Recoverer and
// SecurityHeaders to every request. CORS and rate limiting wrap the /api
// routes only, so Prometheus scrapes of /metrics are never throttled.
package app
