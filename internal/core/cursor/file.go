package cursor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// FileStore keeps the cursor in one text file.
type FileStore struct {
	path string
}

// NewFileStore creates a file-backed cursor. The file is created on first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the cursor file location.
func (s *FileStore) Path() string {
	return s.path
}

// SaveState writes the block number through a temp file and rename,
// so a crash never leaves a truncated cursor behind.
func (s *FileStore) SaveState(_ context.Context, lastBlock uint64) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cursor dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".cursor-*")
	if err != nil {
		return fmt.Errorf("create cursor temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(strconv.FormatUint(lastBlock, 10)); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write cursor: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close cursor: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace cursor: %w", err)
	}
	return nil
}

// RestoreState reads the cursor file.
func (s *FileStore) RestoreState(_ context.Context, defaultBlock uint64) (bool, uint64, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, defaultBlock, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("read cursor: %w", err)
	}

	last, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return false, 0, fmt.Errorf("%w: %s: %v", ErrCorruptCursor, s.path, err)
	}
	return true, last + 1, nil
}

// Reset deletes the cursor file.
func (s *FileStore) Reset(_ context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove cursor: %w", err)
	}
	return nil
}
