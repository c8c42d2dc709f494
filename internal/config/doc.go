// Package config loads the service configuration.
//
// Values are resolved in three layers, later layers winning:
//
//  1. Default()
//  2. a YAML file: $TRADEPULSE_CONFIG_FILE, config.yaml or configs/config.yaml
//  3. TRADEPULSE_* environment variables
//
// Environment variables mirror the struct nesting:
//
//	TRADEPULSE_SERVER_PORT=9090
//	TRADEPULSE_STORAGE_DATA_DIR=/var/lib/tradepulse
//	TRADEPULSE_SHEETS_API_KEY=...
//	TRADEPULSE_ANALYSIS_TIMEZONE=Asia/Seoul
//	TRADEPULSE_LOGGING_LEVEL=debug
//
// Load validates the result and normalizes the logging section to JSON output.
package config
