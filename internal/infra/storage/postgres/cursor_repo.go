package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/reorgscan/internal/core/domain"
	"github.com/vietddude/reorgscan/internal/infra/storage"
)

// CursorRepo implements storage.CursorRepository using PostgreSQL.
type CursorRepo struct {
	db *DB
}

// NewCursorRepo creates a new PostgreSQL cursor repository.
func NewCursorRepo(db *DB) *CursorRepo {
	return &CursorRepo{db: db}
}

type cursorRow struct {
	Name      string    `db:"name"`
	LastBlock int64     `db:"last_block"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Save upserts a cursor.
func (r *CursorRepo) Save(ctx context.Context, cursor *domain.ScanCursor) error {
	updated := cursor.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO scan_cursors (name, last_block, updated_at)
		VALUES (:name, :last_block, :updated_at)
		ON CONFLICT (name) DO UPDATE
		SET last_block = EXCLUDED.last_block, updated_at = EXCLUDED.updated_at`,
		cursorRow{Name: cursor.Name, LastBlock: int64(cursor.LastBlock), UpdatedAt: updated},
	)
	if err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}
	return nil
}

// Get retrieves a cursor by name.
func (r *CursorRepo) Get(ctx context.Context, name string) (*domain.ScanCursor, error) {
	var row cursorRow
	err := r.db.GetContext(ctx, &row,
		`SELECT name, last_block, updated_at FROM scan_cursors WHERE name = $1`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrCursorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cursor: %w", err)
	}

	return &domain.ScanCursor{
		Name:      row.Name,
		LastBlock: uint64(row.LastBlock),
		UpdatedAt: row.UpdatedAt,
	}, nil
}

// Delete removes a cursor.
func (r *CursorRepo) Delete(ctx context.Context, name string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM scan_cursors WHERE name = $1`, name); err != nil {
		return fmt.Errorf("failed to delete cursor: %w", err)
	}
	return nil
}
