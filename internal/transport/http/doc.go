// Package http implements the HTTP handlers of the trade history web service.
// Handlers stay thin: they decode and validate requests, call the analysis
// and health services, and render either a JSON envelope or a CSV download.
//
// # Routes
//
//	GET    /api/files                          list stored workbooks
//	POST   /api/files                          upload and store a workbook
//	DELETE /api/files/{name}                   delete a stored workbook
//	GET    /api/files/{name}/analysis          analyze a stored workbook
//	GET    /api/files/{name}/preview           raw rows of the first sheet
//	GET    /api/files/{name}/calendar          month calendar of daily profit
//	GET    /api/files/{name}/export/{series}   CSV export of one series
//	POST   /api/analysis/upload                analyze an upload without storing it
//	POST   /api/analysis/sheet                 analyze a public Google Sheet
//	POST   /api/analysis/batch                 analyze several stored workbooks
//
// Date ranges are given as start and end (YYYY-MM-DD) plus full. Without any
// of them the most recent trading week is analyzed.
//
// # Responses
//
// Successful JSON responses use the envelope
//
//	{"status": "success", "data": ..., "count": n}
//
// Failures are rendered by errors.ErrorHandler as RFC 7807 problem details.
// Parse failures carry the missing columns and sample rows as extensions.
package http
