package storage

import (
	"context"
	"errors"

	"github.com/vietddude/reorgscan/internal/core/domain"
)

var (
	// ErrCursorNotFound is returned when a cursor doesn't exist
	ErrCursorNotFound = errors.New("cursor not found")

	// ErrCorruptCursor is returned when a stored cursor cannot be parsed
	ErrCorruptCursor = errors.New("corrupt cursor")
)

// CursorRepository handles scan cursor storage operations
type CursorRepository interface {
	// Get retrieves a cursor by name, or ErrCursorNotFound
	Get(ctx context.Context, name string) (*domain.ScanCursor, error)

	// Save overwrites the cursor
	Save(ctx context.Context, cursor *domain.ScanCursor) error

	// Delete removes the cursor; deleting a missing cursor is not an error
	Delete(ctx context.Context, name string) error
}
