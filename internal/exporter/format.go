package exporter

import (
	"strconv"
	"time"

	"tradepulse/pkg/contracts/domain"
)

// formatFloat formats a float64 value for CSV output with exactly 2 decimal places
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}

// formatNumber keeps every significant digit, for prices and volumes
func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// formatRate formats a 0-100 percentage with one decimal place
func formatRate(f float64) string {
	return strconv.FormatFloat(f, 'f', 1, 64)
}

// formatInt formats an int value for CSV output
func formatInt(i int) string {
	return strconv.Itoa(i)
}

// formatNull leaves absent values empty
func formatNull(n domain.NullFloat) string {
	if !n.Valid {
		return ""
	}
	return formatNumber(n.Float64)
}

// formatTime renders wall-clock time in loc, or empty for a missing time
func formatTime(t *time.Time, loc *time.Location) string {
	if t == nil || t.IsZero() {
		return ""
	}
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format("2006-01-02 15:04:05")
}
