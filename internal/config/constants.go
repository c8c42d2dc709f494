package config

import "time"

// Application info
const (
	AppName    = "tradepulse"
	AppVersion = "1.0.0"
)

// Defaults shared by Default and the command-line tools
const (
	DefaultDataDir      = "data"
	DefaultLogsDir      = "logs"
	DefaultManifestName = "files.json"
	DefaultLogLevel     = "info"

	DefaultRateLimit = 100
	DefaultBurstSize = 50

	DefaultHTTPTimeout     = 30 * time.Second
	DefaultAnalysisTimeout = 2 * time.Minute

	// 20 MiB comfortably fits a multi-year position history
	DefaultMaxUploadBytes int64 = 20 << 20

	DefaultSheetsBaseURL = "https://docs.google.com/spreadsheets/d"
)

// API endpoints
const (
	APIBasePath     = "/api"
	HealthEndpoint  = "/api/health"
	MetricsEndpoint = "/metrics"
)

// AllowedWorkbookExtensions lists upload extensions the store accepts.
// Legacy BIFF .xls workbooks cannot be decoded and are rejected.
var AllowedWorkbookExtensions = []string{".xlsx"}
