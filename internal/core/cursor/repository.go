package cursor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/vietddude/reorgscan/internal/core/domain"
	"github.com/vietddude/reorgscan/internal/infra/storage"
)

// RepositoryStore adapts a storage.CursorRepository to Store.
type RepositoryStore struct {
	repo storage.CursorRepository
	name string
	now  func() time.Time
}

// NewRepositoryStore creates a cursor stored under name in repo.
func NewRepositoryStore(repo storage.CursorRepository, name string) *RepositoryStore {
	return &RepositoryStore{repo: repo, name: name, now: time.Now}
}

// SaveState overwrites the cursor.
func (s *RepositoryStore) SaveState(ctx context.Context, lastBlock uint64) error {
	return s.repo.Save(ctx, &domain.ScanCursor{
		Name:      s.name,
		LastBlock: lastBlock,
		UpdatedAt: s.now(),
	})
}

// RestoreState loads the cursor.
func (s *RepositoryStore) RestoreState(ctx context.Context, defaultBlock uint64) (bool, uint64, error) {
	c, err := s.repo.Get(ctx, s.name)
	if errors.Is(err, storage.ErrCursorNotFound) {
		return false, defaultBlock, nil
	}
	if err != nil {
		return false, 0, err
	}

	slog.Debug("Cursor restored", "name", s.name, "last_block", c.LastBlock, "updated_at", c.UpdatedAt)
	return true, c.NextBlock(), nil
}

// Reset deletes the cursor.
func (s *RepositoryStore) Reset(ctx context.Context) error {
	return s.repo.Delete(ctx, s.name)
}
