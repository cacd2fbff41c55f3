package rulefile

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/MrSnakeDoc/vodrules/internal/domain"
	"github.com/MrSnakeDoc/vodrules/internal/utils"
)

// Store loads and saves the persisted rule file.
type Store struct {
	filePath string
	format   Format
}

// NewStore creates a rule file store for filePath.
func NewStore(filePath string, format Format) *Store {
	return &Store{
		filePath: filePath,
		format:   format,
	}
}

// Path returns the rule file location.
func (s *Store) Path() string { return s.filePath }

// Load reads the rule file. A missing file is a first run and yields an
// empty rule set.
func (s *Store) Load() (Decoded, error) {
	f, err := os.Open(s.filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Decoded{Rules: domain.NewRuleSet()}, nil
		}
		return Decoded{}, fmt.Errorf("failed to open rule file: %w", err)
	}
	defer utils.Close(f)

	return Decode(f)
}

// Save replaces the rule file atomically: the rule set is written to a
// temporary file in the same directory, synced, then renamed over the
// target. Readers never observe a partial file.
func (s *Store) Save(rs domain.RuleSet) error {
	var buf bytes.Buffer
	if err := Encode(&buf, rs, s.format); err != nil {
		return err
	}

	dir := filepath.Dir(s.filePath)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.filePath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp rule file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write temp rule file: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("failed to chmod temp rule file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp rule file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp rule file: %w", err)
	}
	if err := os.Rename(tmpName, s.filePath); err != nil {
		_ = os.Remove(tmpName)
		committed = true
		return fmt.Errorf("failed to replace rule file: %w", err)
	}
	committed = true
	return nil
}
