package refindex

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rpattn/stackshift/internal/domain"
)

// Persister reads and writes the reference index file under a stack
// directory. Saving merges previously persisted references so entry UIDs
// handed out by earlier runs survive a re-run.
type Persister struct {
	dir string
}

// NewPersister creates a persister rooted at the stack directory.
func NewPersister(dir string) *Persister {
	return &Persister{dir: dir}
}

func (p *Persister) path() string {
	return filepath.Join(p.dir, "reference", "references.json")
}

// Load reads previously persisted references. A missing file yields an
// empty map.
func (p *Persister) Load() (map[string]domain.ReferenceIndexEntry, error) {
	data, err := os.ReadFile(p.path())
	if errors.Is(err, os.ErrNotExist) {
		return map[string]domain.ReferenceIndexEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read reference index: %w", err)
	}
	var entries map[string]domain.ReferenceIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode reference index: %w", err)
	}
	return entries, nil
}

// Save merges the persisted references into index, then writes the
// combined map back. Ids written during the current pass win.
func (p *Persister) Save(index *domain.ReferenceIndex) error {
	persisted, err := p.Load()
	if err != nil {
		return err
	}
	index.Merge(persisted)

	if err := os.MkdirAll(filepath.Dir(p.path()), 0o755); err != nil {
		return fmt.Errorf("create reference directory: %w", err)
	}
	data, err := json.MarshalIndent(index.Entries(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal reference index: %w", err)
	}
	if err := os.WriteFile(p.path(), data, 0o644); err != nil {
		return fmt.Errorf("write reference index: %w", err)
	}
	return nil
}
