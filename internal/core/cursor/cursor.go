// Package cursor persists the position of a scan loop.
//
// # Purpose
//
// The cursor is one integer: the last fully processed block. It is independent
// of the dataset store, so a plain export loop can resume after a restart
// without reading its own output back.
//
// # Semantics
//
//   - SaveState overwrites the stored block; saving the same value twice is a no-op
//   - RestoreState returns (true, last+1) when a cursor exists, otherwise
//     (false, defaultBlock)
//
// # Quick Start
//
//	store := cursor.NewFileStore("state/ethereum.cursor")
//
//	restored, first, _ := store.RestoreState(ctx, 15_000_000)
//	for block := first; ; block++ {
//	    process(block)
//	    store.SaveState(ctx, block)
//	}
//
// # Backends
//
//   - FileStore       - one text file holding the decimal block number
//   - RepositoryStore - any storage.CursorRepository (memory, Redis, Postgres)
package cursor

import (
	"context"

	"github.com/vietddude/reorgscan/internal/infra/storage"
)

// ErrCorruptCursor is returned when a stored cursor cannot be parsed,
// whichever backend holds it.
var ErrCorruptCursor = storage.ErrCorruptCursor

// Store persists the last fully processed block.
type Store interface {
	// SaveState overwrites the last processed block.
	SaveState(ctx context.Context, lastBlock uint64) error

	// RestoreState returns whether a cursor was found and the first block to scan.
	RestoreState(ctx context.Context, defaultBlock uint64) (restored bool, firstBlock uint64, err error)

	// Reset forgets the cursor.
	Reset(ctx context.Context) error
}
