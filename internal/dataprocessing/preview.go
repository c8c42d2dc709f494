package dataprocessing

import "strings"

// DefaultPreviewRows is the number of data rows returned when the caller
// does not ask for a specific count.
const DefaultPreviewRows = 10

// Preview is a raw look at the first sheet of a workbook, used to show a
// user what the parser sees before committing to a full parse.
type Preview struct {
	SheetName string     `json:"sheet_name"`
	Headers   []string   `json:"headers"`
	Rows      [][]string `json:"rows"`
	TotalRows int        `json:"total_rows"`
	// HeaderDetected is false when the first row was used as a stand-in.
	HeaderDetected bool `json:"header_detected"`
}

// Preview returns the detected header row and up to maxRows rows below it.
func (p *Parser) Preview(buf []byte, maxRows int) (*Preview, error) {
	if maxRows <= 0 {
		maxRows = DefaultPreviewRows
	}

	sheet, rows, _, err := readFirstSheet(buf)
	if err != nil {
		return nil, &ParseError{Kind: ErrInvalidWorkbook, Cause: err}
	}

	pv := &Preview{SheetName: sheet, Headers: []string{}, Rows: [][]string{}}
	if len(rows) == 0 {
		return pv, nil
	}

	start := findHeaderRow(rows)
	pv.HeaderDetected = start >= 0
	if start < 0 {
		start = 0
	}

	for _, h := range rows[start] {
		pv.Headers = append(pv.Headers, strings.TrimSpace(h))
	}
	data := rows[start+1:]
	pv.TotalRows = len(data)
	for i := 0; i < len(data) && i < maxRows; i++ {
		pv.Rows = append(pv.Rows, append([]string(nil), data[i]...))
	}
	return pv, nil
}
