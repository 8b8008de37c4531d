package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shiftgrid/realtime/internal/model"
)

// FileStore persists each key's queue as a JSON array in its own file.
// Writes go through a temp file and rename so a crash mid-write never
// corrupts the previous copy.
type FileStore struct {
	dir string
}

// NewFileStore creates the storage directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Load reads the persisted queue for a key. Missing file means empty queue.
func (s *FileStore) Load(ctx context.Context, key string) ([]model.QueuedAction, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read queue file: %w", err)
	}

	var actions []model.QueuedAction
	if err := json.Unmarshal(data, &actions); err != nil {
		return nil, fmt.Errorf("decode queue file: %w", err)
	}

	return actions, nil
}

// Save rewrites the persisted queue for a key.
func (s *FileStore) Save(ctx context.Context, key string, actions []model.QueuedAction) error {
	if actions == nil {
		actions = []model.QueuedAction{}
	}

	data, err := json.Marshal(actions)
	if err != nil {
		return fmt.Errorf("encode queue: %w", err)
	}

	path := s.path(key)
	tmp := path + ".tmp"

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write queue file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace queue file: %w", err)
	}

	return nil
}

// path maps a key to a file under the storage directory. Key characters
// that are unsafe in filenames are replaced.
func (s *FileStore) path(key string) string {
	safe := strings.Map(func(r rune) rune {
		switch r {
		case ':', '/', '\\', '.', ' ':
			return '_'
		}
		return r
	}, key)
	return filepath.Join(s.dir, safe+".json")
}
