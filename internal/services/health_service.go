package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// HealthService provides health check functionality
type HealthService struct {
	version   string
	buildTime string
	dataDir   string
	store     WorkbookStore
	sheets    SheetSource
	startTime time.Time
	logger    *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Version   string                   `json:"version"`
	Runtime   map[string]interface{}   `json:"runtime,omitempty"`
	Services  map[string]ServiceHealth `json:"services,omitempty"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// StoreStats summarises the workbook store
type StoreStats struct {
	UptimeSeconds  float64 `json:"uptime_seconds"`
	TotalFiles     int     `json:"total_files"`
	TotalSizeBytes int64   `json:"total_size_bytes"`
	GoVersion      string  `json:"go_version"`
	OS             string  `json:"os"`
	Arch           string  `json:"arch"`
}

// NewHealthService creates a new health service. store and sheets may be nil.
func NewHealthService(version, buildTime, dataDir string, store WorkbookStore, sheets SheetSource, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("HealthService initialized",
		slog.String("version", version),
		slog.String("data_dir", dataDir))

	return &HealthService{
		version:   version,
		buildTime: buildTime,
		dataDir:   dataDir,
		store:     store,
		sheets:    sheets,
		startTime: time.Now(),
		logger:    logger.With(slog.String("component", "health_service")),
	}
}

// HealthCheck reports readiness of the store and the sheet importer.
func (hs *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   hs.version,
		Runtime: map[string]interface{}{
			"uptime":     time.Since(hs.startTime).Seconds(),
			"go_version": runtime.Version(),
			"goroutines": runtime.NumGoroutine(),
		},
		Services: map[string]ServiceHealth{
			"storage": hs.checkStorageHealth(ctx),
			"sheets":  hs.checkSheetsHealth(),
		},
	}
	if status.Services["storage"].Status != "ready" {
		status.Status = "degraded"
	}

	hs.logger.DebugContext(ctx, "HealthCheck: completed", slog.String("status", status.Status))
	return status
}

// Version returns version information
func (hs *HealthService) Version() map[string]interface{} {
	result := map[string]interface{}{
		"version":      hs.version,
		"go_version":   runtime.Version(),
		"os":           runtime.GOOS,
		"arch":         runtime.GOARCH,
		"uptime":       time.Since(hs.startTime).Seconds(),
		"start_time":   hs.startTime.Format(time.RFC3339),
		"current_time": time.Now().Format(time.RFC3339),
	}
	if hs.buildTime != "" {
		result["build_time"] = hs.buildTime
	}
	return result
}

// Stats counts the stored workbooks and their total size.
func (hs *HealthService) Stats(ctx context.Context) (StoreStats, error) {
	stats := StoreStats{
		UptimeSeconds: time.Since(hs.startTime).Seconds(),
		GoVersion:     runtime.Version(),
		OS:            runtime.GOOS,
		Arch:          runtime.GOARCH,
	}
	if hs.store == nil {
		return stats, nil
	}
	list, err := hs.store.List(ctx)
	if err != nil {
		return stats, err
	}
	stats.TotalFiles = len(list)
	for _, f := range list {
		stats.TotalSizeBytes += f.Size
	}
	return stats, nil
}

// checkStorageHealth verifies the data directory exists and is writable
func (hs *HealthService) checkStorageHealth(ctx context.Context) ServiceHealth {
	if hs.store == nil {
		return ServiceHealth{Status: "not_ready", Message: "workbook store not configured"}
	}
	if _, err := os.Stat(hs.dataDir); err != nil {
		return ServiceHealth{
			Status:  "not_ready",
			Message: fmt.Sprintf("Data directory not accessible: %v", err),
		}
	}
	tmp, err := os.CreateTemp(hs.dataDir, ".health-*")
	if err != nil {
		return ServiceHealth{
			Status:  "not_ready",
			Message: fmt.Sprintf("Cannot write to data directory: %v", err),
		}
	}
	tmp.Close()
	os.Remove(filepath.Clean(tmp.Name()))

	list, err := hs.store.List(ctx)
	if err != nil {
		return ServiceHealth{Status: "not_ready", Message: err.Error()}
	}
	return ServiceHealth{
		Status:  "ready",
		Message: fmt.Sprintf("%d workbooks stored", len(list)),
	}
}

func (hs *HealthService) checkSheetsHealth() ServiceHealth {
	if hs.sheets == nil {
		return ServiceHealth{Status: "disabled", Message: "sheet import not configured"}
	}
	return ServiceHealth{Status: "ready", Message: "using " + hs.sheets.Method()}
}
