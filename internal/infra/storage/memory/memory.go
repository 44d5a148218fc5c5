package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/reorgscan/internal/core/domain"
	"github.com/vietddude/reorgscan/internal/infra/storage"
)

// CursorRepo implements storage.CursorRepository in process memory.
type CursorRepo struct {
	mu      sync.RWMutex
	cursors map[string]domain.ScanCursor
}

func NewCursorRepo() *CursorRepo {
	return &CursorRepo{
		cursors: make(map[string]domain.ScanCursor),
	}
}

func (r *CursorRepo) Get(ctx context.Context, name string) (*domain.ScanCursor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.cursors[name]
	if !ok {
		return nil, storage.ErrCursorNotFound
	}
	return &c, nil
}

func (r *CursorRepo) Save(ctx context.Context, cursor *domain.ScanCursor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := *cursor
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now()
	}
	r.cursors[c.Name] = c
	return nil
}

func (r *CursorRepo) Delete(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.cursors, name)
	return nil
}
