package validation

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"tradepulse/internal/files"
)

var (
	// ErrNotWorkbook is returned for files that are not .xlsx workbooks.
	ErrNotWorkbook = errors.New("not an Excel workbook")
	// ErrLegacyWorkbook is returned for OLE2 .xls workbooks. It wraps ErrNotWorkbook.
	ErrLegacyWorkbook = fmt.Errorf("%w: legacy .xls format, save the file as .xlsx", ErrNotWorkbook)
	// ErrLockFile is returned for the ~$ owner files Excel leaves next to open workbooks.
	ErrLockFile = errors.New("temporary Excel lock file")
	// ErrFileTooLarge is returned when a workbook exceeds the size limit.
	ErrFileTooLarge = errors.New("workbook exceeds size limit")
)

var (
	// xlsx is a zip container
	zipMagic = []byte("PK\x03\x04")
	// legacy xls is an OLE2 compound document, recognized only to explain the rejection
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// FileValidator checks workbook paths and contents before they are parsed
type FileValidator struct {
	logger *slog.Logger
}

// NewFileValidator creates a new file validator
func NewFileValidator(logger *slog.Logger) *FileValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileValidator{
		logger: logger.With(slog.String("component", "file_validator")),
	}
}

// ValidateOutputDirectory ensures output directory exists or can be created
func (v *FileValidator) ValidateOutputDirectory(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		v.logger.Error("Failed to create output directory",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	testFile := filepath.Join(dir, ".write_test")
	file, err := os.Create(testFile)
	if err != nil {
		v.logger.Error("Output directory is not writable",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return fmt.Errorf("output directory %s is not writable: %w", dir, err)
	}
	file.Close()
	os.Remove(testFile)

	v.logger.Debug("Output directory validated", slog.String("directory", dir))
	return nil
}

// ValidateWorkbookFile checks that path names a readable workbook of at most
// maxBytes bytes. maxBytes <= 0 disables the size check.
func (v *FileValidator) ValidateWorkbookFile(path string, maxBytes int64) error {
	base := filepath.Base(path)
	if strings.HasPrefix(base, "~$") {
		return fmt.Errorf("%w: %s", ErrLockFile, path)
	}
	if !files.IsWorkbook(base) {
		return fmt.Errorf("%w: %s", ErrNotWorkbook, path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, not a file", path)
	}
	if maxBytes > 0 && info.Size() > maxBytes {
		return fmt.Errorf("%w: %s is %d bytes, limit %d", ErrFileTooLarge, path, info.Size(), maxBytes)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("file %s is not readable: %w", path, err)
	}
	defer f.Close()

	head := make([]byte, len(oleMagic))
	n, _ := f.Read(head)
	if err := SniffWorkbook(head[:n]); err != nil {
		v.logger.Warn("Workbook signature mismatch",
			slog.String("file", path),
			slog.Int64("size", info.Size()))
		return fmt.Errorf("%s: %w", path, err)
	}

	v.logger.Debug("Workbook validated",
		slog.String("file", path),
		slog.Int64("size", info.Size()))
	return nil
}

// SniffWorkbook reports whether buf starts with the xlsx (zip) signature.
func SniffWorkbook(buf []byte) error {
	switch {
	case bytes.HasPrefix(buf, zipMagic):
		return nil
	case bytes.HasPrefix(buf, oleMagic):
		return ErrLegacyWorkbook
	}
	return ErrNotWorkbook
}
