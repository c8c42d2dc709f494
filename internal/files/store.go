package files

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound wraps fs.ErrNotExist so HTTP error mapping yields a 404.
	ErrNotFound = fmt.Errorf("workbook not found: %w", fs.ErrNotExist)
	// ErrInvalidName is returned for names that escape the data directory.
	ErrInvalidName = errors.New("invalid workbook name")
	// ErrUnsupportedType is returned when saving a non-workbook file.
	ErrUnsupportedType = errors.New("unsupported workbook type")
)

// StoredFile is a workbook held in the store
type StoredFile struct {
	Name         string    `json:"name"`
	OriginalName string    `json:"original_name"`
	Size         int64     `json:"size"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type manifestEntry struct {
	Name         string    `json:"name"`
	OriginalName string    `json:"originalName"`
	Size         int64     `json:"size"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Store keeps uploaded workbooks in a single directory. A JSON manifest next
// to them records the name each file was uploaded under.
type Store struct {
	dir          string
	manifestPath string
	logger       *slog.Logger

	mu  sync.RWMutex
	now func() time.Time
}

// NewStore creates the data directory if needed and returns a store over it.
func NewStore(dir, manifestName string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory %s: %w", dir, err)
	}
	return &Store{
		dir:          dir,
		manifestPath: filepath.Join(dir, manifestName),
		logger:       logger.With(slog.String("component", "file_store")),
		now:          time.Now,
	}, nil
}

// Dir returns the directory backing the store.
func (s *Store) Dir() string {
	return s.dir
}

// List returns every workbook, newest first.
func (s *Store) List(ctx context.Context) ([]StoredFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	found, err := FindWorkbooks(s.dir)
	if err != nil {
		return nil, err
	}
	manifest, err := s.readManifest()
	if err != nil {
		return nil, err
	}

	out := make([]StoredFile, 0, len(found))
	for _, f := range found {
		sf := StoredFile{
			Name:         f.Name,
			OriginalName: f.Name,
			Size:         f.Size,
			CreatedAt:    f.ModTime,
			UpdatedAt:    f.ModTime,
		}
		if entry, ok := manifest[f.Name]; ok {
			sf.OriginalName = entry.OriginalName
			if !entry.CreatedAt.IsZero() {
				sf.CreatedAt = entry.CreatedAt
			}
		}
		out = append(out, sf)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	s.logger.DebugContext(ctx, "listed workbooks", slog.Int("count", len(out)))
	return out, nil
}

// Stat returns metadata for a single workbook.
func (s *Store) Stat(ctx context.Context, name string) (StoredFile, error) {
	path, err := s.resolve(name)
	if err != nil {
		return StoredFile{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return StoredFile{}, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return StoredFile{}, err
	}
	sf := StoredFile{
		Name:         name,
		OriginalName: name,
		Size:         info.Size(),
		CreatedAt:    info.ModTime(),
		UpdatedAt:    info.ModTime(),
	}
	manifest, err := s.readManifest()
	if err != nil {
		return StoredFile{}, err
	}
	if entry, ok := manifest[name]; ok {
		sf.OriginalName = entry.OriginalName
		if !entry.CreatedAt.IsZero() {
			sf.CreatedAt = entry.CreatedAt
		}
	}
	return sf, nil
}

// Read returns the bytes of a stored workbook.
func (s *Store) Read(ctx context.Context, name string) ([]byte, error) {
	path, err := s.resolve(name)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("read workbook %s: %w", name, err)
	}

	s.logger.DebugContext(ctx, "read workbook",
		slog.String("name", name),
		slog.Int("bytes", len(data)))
	return data, nil
}

// Save stores r under a generated name of the form <unixms>_<id>.<ext> and
// records originalName in the manifest.
func (s *Store) Save(ctx context.Context, originalName string, r io.Reader) (StoredFile, error) {
	base := filepath.Base(strings.ReplaceAll(originalName, "\\", "/"))
	if !IsWorkbook(base) {
		return StoredFile{}, fmt.Errorf("%w: %s", ErrUnsupportedType, originalName)
	}
	ext := strings.ToLower(filepath.Ext(base))

	created := s.now()
	name := fmt.Sprintf("%d_%s%s", created.UnixMilli(), uuid.NewString()[:8], ext)

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return StoredFile{}, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	size, err := io.Copy(tmp, r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return StoredFile{}, fmt.Errorf("write workbook: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		return StoredFile{}, fmt.Errorf("store workbook: %w", err)
	}

	manifest, err := s.readManifest()
	if err != nil {
		return StoredFile{}, err
	}
	manifest[name] = manifestEntry{
		Name:         name,
		OriginalName: base,
		Size:         size,
		CreatedAt:    created,
	}
	if err := s.writeManifest(manifest); err != nil {
		return StoredFile{}, err
	}

	s.logger.InfoContext(ctx, "workbook saved",
		slog.String("name", name),
		slog.String("original_name", base),
		slog.Int64("bytes", size))

	return StoredFile{
		Name:         name,
		OriginalName: base,
		Size:         size,
		CreatedAt:    created,
		UpdatedAt:    created,
	}, nil
}

// Delete removes a workbook and its manifest entry.
func (s *Store) Delete(ctx context.Context, name string) error {
	path, err := s.resolve(name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return fmt.Errorf("delete workbook %s: %w", name, err)
	}

	manifest, err := s.readManifest()
	if err != nil {
		return err
	}
	if _, ok := manifest[name]; ok {
		delete(manifest, name)
		if err := s.writeManifest(manifest); err != nil {
			return err
		}
	}

	s.logger.InfoContext(ctx, "workbook deleted", slog.String("name", name))
	return nil
}

// resolve maps a workbook name to a path inside the data directory.
func (s *Store) resolve(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) ||
		name == "." || name == ".." || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if !IsWorkbook(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.dir, name), nil
}

func (s *Store) readManifest() (map[string]manifestEntry, error) {
	manifest := make(map[string]manifestEntry)
	data, err := os.ReadFile(s.manifestPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return manifest, nil
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var entries []manifestEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		s.logger.Warn("ignoring unreadable manifest",
			slog.String("path", s.manifestPath),
			slog.String("error", err.Error()))
		return manifest, nil
	}
	for _, e := range entries {
		manifest[e.Name] = e
	}
	return manifest, nil
}

func (s *Store) writeManifest(manifest map[string]manifestEntry) error {
	entries := make([]manifestEntry, 0, len(manifest))
	for _, e := range manifest {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	tmp := s.manifestPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return os.Rename(tmp, s.manifestPath)
}
