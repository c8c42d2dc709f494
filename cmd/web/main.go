// Command web serves the trade history analysis API.
//
// Configuration is read from config.yaml (or TRADEPULSE_CONFIG_FILE) and
// TRADEPULSE_* environment variables.
package main

import (
	"log/slog"
	"os"

	"tradepulse/internal/app"
)

func main() {
	application, err := app.NewApplication()
	if err != nil {
		slog.Error("Failed to initialize application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		slog.Error("Application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
