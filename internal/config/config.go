package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v2"
)

// EnvPrefix namespaces every environment variable, e.g. TRADEPULSE_SERVER_PORT.
const EnvPrefix = "TRADEPULSE"

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Storage   StorageConfig   `yaml:"storage" envconfig:"STORAGE"`
	Sheets    SheetsConfig    `yaml:"sheets" envconfig:"SHEETS"`
	Analysis  AnalysisConfig  `yaml:"analysis" envconfig:"ANALYSIS"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	// AnalysisTimeout bounds a single analysis request, sheet download included.
	AnalysisTimeout time.Duration `yaml:"analysis_timeout" envconfig:"ANALYSIS_TIMEOUT"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes" envconfig:"MAX_UPLOAD_BYTES"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	EnableCORS     bool            `yaml:"enable_cors" envconfig:"ENABLE_CORS"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS"`
	Burst   int     `yaml:"burst" envconfig:"BURST"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LEVEL"`
	Format      string `yaml:"format" envconfig:"FORMAT"`
	Output      string `yaml:"output" envconfig:"OUTPUT"`
	FilePath    string `yaml:"file_path" envconfig:"FILE_PATH"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT"`
}

// StorageConfig locates uploaded workbooks
type StorageConfig struct {
	DataDir      string `yaml:"data_dir" envconfig:"DATA_DIR"`
	ManifestName string `yaml:"manifest_name" envconfig:"MANIFEST_NAME"`
}

// SheetsConfig controls Google Sheets imports
type SheetsConfig struct {
	ExportBaseURL string        `yaml:"export_base_url" envconfig:"EXPORT_BASE_URL"`
	APIKey        string        `yaml:"api_key" envconfig:"API_KEY"`
	Timeout       time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
	RetryCount    int           `yaml:"retry_count" envconfig:"RETRY_COUNT"`
	RetryWait     time.Duration `yaml:"retry_wait" envconfig:"RETRY_WAIT"`
	RetryMaxWait  time.Duration `yaml:"retry_max_wait" envconfig:"RETRY_MAX_WAIT"`
}

// AnalysisConfig controls how trade times are bucketed
type AnalysisConfig struct {
	// Timezone is an IANA name; wall-clock cells are read in this zone.
	Timezone         string `yaml:"timezone" envconfig:"TIMEZONE"`
	Locale           string `yaml:"locale" envconfig:"LOCALE"`
	BatchConcurrency int    `yaml:"batch_concurrency" envconfig:"BATCH_CONCURRENCY"`
	PreviewRows      int    `yaml:"preview_rows" envconfig:"PREVIEW_ROWS"`
}

// TelemetryConfig toggles tracing and metrics
type TelemetryConfig struct {
	ServiceName     string  `yaml:"service_name" envconfig:"SERVICE_NAME"`
	Environment     string  `yaml:"environment" envconfig:"ENVIRONMENT"`
	TracingEnabled  bool    `yaml:"tracing_enabled" envconfig:"TRACING_ENABLED"`
	MetricsEnabled  bool    `yaml:"metrics_enabled" envconfig:"METRICS_ENABLED"`
	TraceExporter   string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER"`
	TraceSampleRate float64 `yaml:"trace_sample_rate" envconfig:"TRACE_SAMPLE_RATE"`
}

// Load builds the configuration from defaults, then the YAML file if one
// exists, then TRADEPULSE_* environment variables.
func Load() (*Config, error) {
	cfg := Default()

	if configFile := getConfigFilePath(); configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Fields without a matching variable keep their current value.
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadFile is Load with an explicit YAML path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := loadFromFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from file: %w", err)
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFromFile overlays YAML onto cfg; keys absent from the file are untouched.
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload bytes must be positive")
	}
	if c.Security.EnableCORS && len(c.Security.AllowedOrigins) == 0 {
		return fmt.Errorf("at least one allowed origin must be specified")
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage data dir must be set")
	}
	if c.Sheets.RetryCount < 0 {
		return fmt.Errorf("sheets retry count must not be negative")
	}
	if _, err := c.Analysis.LoadLocation(); err != nil {
		return fmt.Errorf("invalid analysis timezone %q: %w", c.Analysis.Timezone, err)
	}
	if _, err := language.Parse(c.Analysis.Locale); err != nil {
		return fmt.Errorf("invalid analysis locale %q: %w", c.Analysis.Locale, err)
	}
	if c.Analysis.BatchConcurrency < 1 {
		c.Analysis.BatchConcurrency = 1
	}
	if c.Telemetry.TraceSampleRate < 0 || c.Telemetry.TraceSampleRate > 1 {
		return fmt.Errorf("trace sample rate must be within [0, 1]")
	}

	// JSON logs are the only supported format.
	c.Logging.Format = "json"
	switch c.Logging.Output {
	case "stdout", "file", "both":
	default:
		c.Logging.Output = "both"
	}
	if c.Logging.FilePath == "" {
		c.Logging.FilePath = filepath.Join(DefaultLogsDir, "app.log")
	}
	return nil
}

// LoadLocation resolves Timezone; an empty name or "Local" means the host zone.
func (a AnalysisConfig) LoadLocation() (*time.Location, error) {
	if a.Timezone == "" || strings.EqualFold(a.Timezone, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(a.Timezone)
}

// ManifestPath is the absolute location of the upload manifest
func (s StorageConfig) ManifestPath() string {
	return filepath.Join(s.DataDir, s.ManifestName)
}

// getConfigFilePath returns the first config file found, or "".
func getConfigFilePath() string {
	if p := os.Getenv(EnvPrefix + "_CONFIG_FILE"); p != "" {
		return p
	}

	locations := []string{
		"config.yaml",
		"configs/config.yaml",
		"../configs/config.yaml",
		"../../configs/config.yaml",
	}
	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}
	return ""
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20,
			ShutdownTimeout: 30 * time.Second,
			AnalysisTimeout: DefaultAnalysisTimeout,
			MaxUploadBytes:  DefaultMaxUploadBytes,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:8080"},
			EnableCORS:     true,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     DefaultRateLimit,
				Burst:   DefaultBurstSize,
			},
		},
		Logging: LoggingConfig{
			Level:    DefaultLogLevel,
			Format:   "json",
			Output:   "both",
			FilePath: filepath.Join(DefaultLogsDir, "app.log"),
		},
		Storage: StorageConfig{
			DataDir:      DefaultDataDir,
			ManifestName: DefaultManifestName,
		},
		Sheets: SheetsConfig{
			ExportBaseURL: DefaultSheetsBaseURL,
			Timeout:       DefaultHTTPTimeout,
			RetryCount:    3,
			RetryWait:     500 * time.Millisecond,
			RetryMaxWait:  5 * time.Second,
		},
		Analysis: AnalysisConfig{
			Timezone:         "Local",
			Locale:           "ko",
			BatchConcurrency: 4,
			PreviewRows:      10,
		},
		Telemetry: TelemetryConfig{
			ServiceName:     AppName,
			Environment:     "development",
			TracingEnabled:  false,
			MetricsEnabled:  true,
			TraceExporter:   "stdout",
			TraceSampleRate: 1.0,
		},
	}
}
