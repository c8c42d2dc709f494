package dataprocessing

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jinzhu/now"
	"github.com/xuri/excelize/v2"
)

// Text layouts accepted before the generic fallback, in priority order.
var dateTimePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(\d{4})\.(\d{2})\.(\d{2})\s+(\d{2}):(\d{2}):(\d{2})$`),
	regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})\s+(\d{2}):(\d{2}):(\d{2})$`),
	regexp.MustCompile(`^(\d{4})/(\d{2})/(\d{2})\s+(\d{2}):(\d{2}):(\d{2})$`),
}

// Layouts handed to the generic fallback. Single-digit fields and trailing
// fractional seconds are accepted. Time-only and zone-name layouts are left
// out: now.Parse fills their missing fields from the current clock.
var fallbackLayouts = []string{
	time.RFC3339,
	"2006-1-2T15:4:5",
	"2006-1-2 15:4:5",
	"2006.1.2 15:4:5",
	"2006/1/2 15:4:5",
	"2006-1-2 15:4",
	"2006.1.2 15:4",
	"2006/1/2 15:4",
	"2006-1-2",
	"2006.1.2",
	"2006/1/2",
	"1/2/2006 15:4:5",
	"1/2/2006 15:4",
	"1/2/2006",
	"Mon Jan 2 2006 15:4:5",
	"Jan 2 2006 15:4:5",
	"Jan 2, 2006 15:4:5",
	"Jan 2 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006 15:4:5",
	"2 Jan 2006",
}

// dateParser converts raw cell text into wall-clock times in loc.
type dateParser struct {
	loc      *time.Location
	date1904 bool
	fallback *now.Config
}

func newDateParser(loc *time.Location, date1904 bool) *dateParser {
	if loc == nil {
		loc = time.Local
	}
	return &dateParser{
		loc:      loc,
		date1904: date1904,
		fallback: &now.Config{
			WeekStartDay: time.Monday,
			TimeLocation: loc,
			TimeFormats:  fallbackLayouts,
		},
	}
}

// parse never fails: cells that are not a date become nil.
func (p *dateParser) parse(raw string) *time.Time {
	cleaned := strings.TrimSpace(strings.ReplaceAll(raw, "\n", " "))
	if cleaned == "" {
		return nil
	}

	if serial, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return p.fromSerial(serial)
	}

	for _, re := range dateTimePatterns {
		m := re.FindStringSubmatch(cleaned)
		if m == nil {
			continue
		}
		parts := make([]int, 6)
		for i := range parts {
			parts[i], _ = strconv.Atoi(m[i+1])
		}
		t := time.Date(parts[0], time.Month(parts[1]), parts[2], parts[3], parts[4], parts[5], 0, p.loc)
		return &t
	}

	if t, err := p.fallback.Parse(cleaned); err == nil {
		return &t
	}
	return nil
}

// fromSerial decodes a spreadsheet serial date, keeping its wall-clock
// components in the parser's location.
func (p *dateParser) fromSerial(serial float64) *time.Time {
	if serial <= 0 || math.IsNaN(serial) || math.IsInf(serial, 0) {
		return nil
	}
	t, err := excelize.ExcelDateToTime(serial, p.date1904)
	if err != nil {
		return nil
	}
	t = t.Round(time.Second)
	local := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, p.loc)
	return &local
}
