package files

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"tradepulse/internal/config"
)

// FileInfo describes a workbook found on disk
type FileInfo struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
}

// IsWorkbook reports whether name has an accepted spreadsheet extension.
func IsWorkbook(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range config.AllowedWorkbookExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// FindWorkbooks lists the .xlsx files directly inside dir,
// newest first. Subdirectories and lock files are skipped.
func FindWorkbooks(dir string) ([]FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var found []FileInfo
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, "~$") || !IsWorkbook(name) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		found = append(found, FileInfo{
			Path:    filepath.Join(dir, name),
			Name:    name,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.SliceStable(found, func(i, j int) bool {
		if found[i].ModTime.Equal(found[j].ModTime) {
			return found[i].Name > found[j].Name
		}
		return found[i].ModTime.After(found[j].ModTime)
	})
	return found, nil
}

// ExpandPaths resolves a mix of workbook paths and directories into a list
// of workbook paths. Directories contribute every workbook they contain.
func ExpandPaths(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		found, err := FindWorkbooks(p)
		if err != nil {
			return nil, err
		}
		for _, f := range found {
			out = append(out, f.Path)
		}
	}
	return out, nil
}
