package digest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"discback/internal/logging"
)

type document struct {
	Algorithm string            `json:"algorithm"`
	Entries   map[string]string `json:"entries"`
}

// Store persists one digest map as a JSON file.
type Store struct {
	path   string
	logger *slog.Logger
}

// NewStore returns a store backed by path. The file is created on first Save.
func NewStore(path string, logger *slog.Logger) *Store {
	return &Store{path: path, logger: logging.NewComponentLogger(logger, "digest")}
}

// Path returns the backing file location.
func (s *Store) Path() string {
	return s.path
}

// Load returns the persisted map. A missing, unreadable, or corrupt file is
// treated as no prior knowledge: the map is empty and a warning is logged.
func (s *Store) Load() Map {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Debug("no prior digest map", logging.String("path", s.path))
			return Map{}
		}
		s.warnLoad("digest map unreadable", err)
		return Map{}
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		s.warnLoad("digest map corrupt", err)
		return Map{}
	}
	if doc.Algorithm != Algorithm {
		s.warnLoad("digest map algorithm mismatch", fmt.Errorf("found %q, want %q", doc.Algorithm, Algorithm))
		return Map{}
	}
	if doc.Entries == nil {
		return Map{}
	}

	s.logger.Debug("loaded digest map",
		logging.Int("entry_count", len(doc.Entries)),
		logging.String("path", s.path))
	return Map(doc.Entries)
}

// Save overwrites the persisted map atomically via a temp file.
func (s *Store) Save(m Map) error {
	if m == nil {
		m = Map{}
	}
	data, err := json.MarshalIndent(document{Algorithm: Algorithm, Entries: m}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal digest map: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create digest directory: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}

	s.logger.Debug("saved digest map",
		logging.Int("entry_count", len(m)),
		logging.String("path", s.path))
	return nil
}

// Reset removes the persisted map so the next run starts from scratch.
func (s *Store) Reset() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove digest map: %w", err)
	}
	return nil
}

func (s *Store) warnLoad(msg string, err error) {
	logging.WarnWithContext(s.logger, msg, "digest_load_failed",
		logging.String("path", s.path),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "run 'discback digest reset' if the file is damaged"),
		logging.String(logging.FieldImpact, "every file is treated as changed for this run"))
}
