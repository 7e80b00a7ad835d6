package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileStore keeps one JSON file per key under Dir. The directory is created
// on the first write.
type FileStore struct {
	Dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

func (s *FileStore) path(hash string) string {
	return filepath.Join(s.Dir, hash+".json")
}

func (s *FileStore) Load(hash string) (Entry, error) {
	b, err := os.ReadFile(s.path(hash))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, err
	}

	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		return Entry{}, fmt.Errorf("%w: %s: %v", ErrCorrupt, hash, err)
	}
	return e, nil
}

// Save writes to a temp file and renames it into place so readers never see
// a partial entry.
func (s *FileStore) Save(hash string, e Entry) error {
	if s.Dir == "" {
		return fmt.Errorf("file cache: empty dir")
	}

	b, err := json.Marshal(e)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.Dir, hash+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.path(hash)); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

func (s *FileStore) Prune(cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}

	removed := 0
	for _, de := range entries {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		e, err := s.Load(strings.TrimSuffix(name, ".json"))
		if err == nil && !e.Timestamp.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.Dir, name)); err == nil {
			removed++
		}
	}
	return removed, nil
}

func (s *FileStore) Close() error {
	return nil
}
