package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/reorgscan/internal/core/domain"
	"github.com/vietddude/reorgscan/internal/infra/storage"
)

const (
	fieldLastBlock = "last_block"
	fieldUpdatedAt = "updated_at"
)

// CursorRepo implements storage.CursorRepository using a Redis hash per cursor.
type CursorRepo struct {
	client *Client
}

// NewCursorRepo creates a new Redis-backed cursor repository.
func NewCursorRepo(client *Client) *CursorRepo {
	return &CursorRepo{client: client}
}

// Get retrieves a cursor by name.
func (r *CursorRepo) Get(ctx context.Context, name string) (*domain.ScanCursor, error) {
	vals, err := r.client.rdb.HGetAll(ctx, r.client.cursorKey(name)).Result()
	if errors.Is(err, redis.Nil) || (err == nil && len(vals) == 0) {
		return nil, storage.ErrCursorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("hgetall failed: %w", err)
	}
	return decodeCursor(name, vals)
}

func decodeCursor(name string, vals map[string]string) (*domain.ScanCursor, error) {
	last, err := strconv.ParseUint(vals[fieldLastBlock], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", storage.ErrCorruptCursor, name, err)
	}

	c := &domain.ScanCursor{Name: name, LastBlock: last}
	if ts, err := strconv.ParseInt(vals[fieldUpdatedAt], 10, 64); err == nil {
		c.UpdatedAt = time.Unix(ts, 0)
	}
	return c, nil
}

// Save overwrites the cursor.
func (r *CursorRepo) Save(ctx context.Context, cursor *domain.ScanCursor) error {
	updated := cursor.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	err := r.client.rdb.HSet(ctx, r.client.cursorKey(cursor.Name),
		fieldLastBlock, strconv.FormatUint(cursor.LastBlock, 10),
		fieldUpdatedAt, strconv.FormatInt(updated.Unix(), 10),
	).Err()
	if err != nil {
		return fmt.Errorf("hset failed: %w", err)
	}
	return nil
}

// Delete removes the cursor.
func (r *CursorRepo) Delete(ctx context.Context, name string) error {
	return r.client.rdb.Del(ctx, r.client.cursorKey(name)).Err()
}
