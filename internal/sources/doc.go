// Package sources loads trade-history workbooks from remote locations.
//
// ParseSheetURL turns a Google Sheets sharing link into a SheetRef and
// SheetFetcher downloads that sheet as an xlsx workbook, either through the
// public export URL (resty, retried on 5xx and 429) or, when an API key is
// configured, through the Drive v3 export endpoint.
package sources
