package services

import "errors"

// Analysis service errors
var (
	ErrNoSheetSource = errors.New("sheet import is not configured")
	ErrNoStore       = errors.New("workbook store is not configured")
	ErrInvalidInput  = errors.New("invalid input")
	ErrEmptyBatch    = errors.New("no workbooks to analyze")
)
