package sources

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ErrInvalidSheetURL is returned when a URL does not name a spreadsheet.
var ErrInvalidSheetURL = errors.New("not a Google Sheets URL")

var (
	spreadsheetIDPattern = regexp.MustCompile(`/d/([a-zA-Z0-9_-]+)`)
	gidPattern           = regexp.MustCompile(`gid=(\d+)`)
)

// SheetRef identifies one tab of a Google spreadsheet.
type SheetRef struct {
	SpreadsheetID string `json:"spreadsheet_id"`
	GID           string `json:"gid"`
}

// ParseSheetURL extracts the spreadsheet id and tab gid from a sharing or
// edit URL. The gid defaults to "0", the first tab.
func ParseSheetURL(raw string) (SheetRef, error) {
	raw = strings.TrimSpace(raw)
	m := spreadsheetIDPattern.FindStringSubmatch(raw)
	if m == nil {
		return SheetRef{}, fmt.Errorf("%w: %q", ErrInvalidSheetURL, raw)
	}

	ref := SheetRef{SpreadsheetID: m[1], GID: "0"}
	if g := gidPattern.FindStringSubmatch(raw); g != nil {
		ref.GID = g[1]
	}
	return ref, nil
}

// ExportURL returns the xlsx export address of the tab under base, for
// example https://docs.google.com/spreadsheets/d.
func (r SheetRef) ExportURL(base string) string {
	q := url.Values{}
	q.Set("format", "xlsx")
	q.Set("gid", r.GID)
	return fmt.Sprintf("%s/%s/export?%s", strings.TrimRight(base, "/"), url.PathEscape(r.SpreadsheetID), q.Encode())
}

// Label names the sheet in logs and parse diagnostics.
func (r SheetRef) Label() string {
	return fmt.Sprintf("Google Sheet %s#gid=%s", r.SpreadsheetID, r.GID)
}
