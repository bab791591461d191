package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"pagewatch/internal/model"
)

// File names used by JSONFile inside its data directory.
const (
	TargetsFile  = "targets.json"
	SettingsFile = "settings.json"
	MetaFile     = "meta.json"

	// LegacyTargetsFile is read when TargetsFile does not exist yet. The
	// next save writes TargetsFile and leaves the legacy file untouched.
	LegacyTargetsFile = "monitoring_db.json"
)

type meta struct {
	LastID int64 `json:"last_id"`
}

// JSONFile implements Store with two human-readable JSON documents.
type JSONFile struct {
	dir string
	log *slog.Logger

	mu sync.Mutex
}

// NewJSONFile returns a store rooted at dir, creating the directory if needed.
func NewJSONFile(dir string, log *slog.Logger) (*JSONFile, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return &JSONFile{dir: dir, log: log}, nil
}

// Close is a no-op; files are not held open between calls.
func (s *JSONFile) Close() error {
	return nil
}

// LoadAll reads targets.json, falling back to monitoring_db.json. A missing
// or corrupt file yields no targets.
func (s *JSONFile) LoadAll(_ context.Context) ([]model.Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadTargets()
}

func (s *JSONFile) loadTargets() ([]model.Target, error) {
	name := TargetsFile
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		name = LegacyTargetsFile
		data, err = os.ReadFile(filepath.Join(s.dir, name))
	}
	if errors.Is(err, fs.ErrNotExist) {
		return []model.Target{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read targets: %w", err)
	}

	var targets []model.Target
	if err := json.Unmarshal(data, &targets); err != nil {
		s.log.Warn("targets file is corrupt, starting empty", "path", name, "error", err)
		return []model.Target{}, nil
	}
	if targets == nil {
		targets = []model.Target{}
	}
	return targets, nil
}

// SaveAll replaces targets.json.
func (s *JSONFile) SaveAll(_ context.Context, targets []model.Target) error {
	if targets == nil {
		targets = []model.Target{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(TargetsFile, targets)
}

// ReserveID records the next id in meta.json. A missing or corrupt meta
// file is rebuilt from the largest id in the targets file.
func (s *JSONFile) ReserveID(_ context.Context, atLeast int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var m meta
	data, err := os.ReadFile(filepath.Join(s.dir, MetaFile))
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &m); err != nil {
			s.log.Warn("meta file is corrupt, rebuilding", "path", MetaFile, "error", err)
			m = meta{}
		}
	case !errors.Is(err, fs.ErrNotExist):
		return 0, fmt.Errorf("read meta: %w", err)
	}
	if m.LastID == 0 {
		targets, err := s.loadTargets()
		if err != nil {
			return 0, err
		}
		for _, t := range targets {
			m.LastID = max(m.LastID, t.ID)
		}
	}

	id := max(m.LastID+1, atLeast, 1)
	if err := s.write(MetaFile, meta{LastID: id}); err != nil {
		return 0, err
	}
	return id, nil
}

// LoadSettings reads settings.json. A missing or corrupt file yields empty settings.
func (s *JSONFile) LoadSettings(_ context.Context) (model.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st model.Settings
	data, err := os.ReadFile(filepath.Join(s.dir, SettingsFile))
	if errors.Is(err, fs.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("read settings: %w", err)
	}
	if err := json.Unmarshal(data, &st); err != nil {
		s.log.Warn("settings file is corrupt, using empty settings", "path", SettingsFile, "error", err)
		return model.Settings{}, nil
	}
	return st, nil
}

// SaveSettings replaces settings.json.
func (s *JSONFile) SaveSettings(_ context.Context, st model.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(SettingsFile, st)
}

// write encodes v and renames it over name so readers never see a partial file.
func (s *JSONFile) write(name string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+name+"-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}
