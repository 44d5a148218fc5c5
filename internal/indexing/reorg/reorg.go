// Package reorg detects and resolves shallow chain reorganisations.
//
// # Design: Re-read Window
//
// The Monitor keeps an in-memory buffer of recent block headers. Every update
// cycle re-reads the last CheckDepth blocks plus anything new:
//   - A buffered block whose hash changed is a reorg
//   - A block number not yet buffered is appended
//   - A null block at the tip just ends the batch early
//
// # Resolution Process
//
//  1. Detect the first block whose hash changed
//  2. Truncate the buffer below it
//  3. Wait ReorgWait so the node settles on one fork
//  4. Re-run detection, up to MaxCycleTries times
//  5. Report the last block whose data is still good
//
// # Usage
//
//	strategy := reorg.NewRPCStrategy(client)
//	monitor := reorg.NewMonitor(strategy, reorg.DefaultConfig())
//
//	if _, _, err := monitor.LoadInitialBlockHeaders(ctx, reorg.LoadOptions{BlockCount: 100}); err != nil {
//	    return err
//	}
//	res, err := monitor.UpdateChain(ctx)
//	// rescan (res.LatestBlockWithGoodData, monitor.LastBlockRead()]
package reorg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/reorgscan/internal/core/domain"
)

var (
	// ErrBlockSequence is returned when a block is appended out of order.
	ErrBlockSequence = errors.New("block out of sequence")

	// ErrBlockNotAvailable is returned for lookups of blocks that are not buffered.
	ErrBlockNotAvailable = errors.New("block not available in buffer")

	// ErrReorgUnresolved is returned when forks keep appearing for MaxCycleTries cycles.
	ErrReorgUnresolved = errors.New("chain reorganisation did not resolve")

	// ErrUnexpectedBlock is returned when a node answers a block lookup with
	// a different block than the one asked for.
	ErrUnexpectedBlock = errors.New("node returned a different block")
)

// Config holds configuration for reorg detection.
type Config struct {
	CheckDepth    uint64        // Blocks re-read behind the last validated block (default: 20)
	MaxCycleTries int           // Detection passes per UpdateChain (default: 10)
	ReorgWait     time.Duration // Flat wait after a detected reorg (default: 5s)
	Chain         string        // Label for logs and metrics
}

// DefaultConfig returns the default monitor configuration.
func DefaultConfig() Config {
	return Config{
		CheckDepth:    20,
		MaxCycleTries: 10,
		ReorgWait:     5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.CheckDepth == 0 {
		c.CheckDepth = d.CheckDepth
	}
	if c.MaxCycleTries <= 0 {
		c.MaxCycleTries = d.MaxCycleTries
	}
	if c.ReorgWait < 0 {
		c.ReorgWait = 0
	}
	if c.Chain == "" {
		c.Chain = "unknown"
	}
	return c
}

// ReorgInfo describes a buffered block whose hash changed.
type ReorgInfo struct {
	BlockNumber uint64
	OldHash     string
	NewHash     string
}

func (r ReorgInfo) String() string {
	return fmt.Sprintf("block %d changed %s -> %s", r.BlockNumber, r.OldHash, r.NewHash)
}

// ResolutionError is returned by UpdateChain when retries are exhausted.
type ResolutionError struct {
	Tries     int
	LastReorg ReorgInfo
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("%v after %d tries, last: %s", ErrReorgUnresolved, e.Tries, e.LastReorg)
}

func (e *ResolutionError) Unwrap() error {
	return ErrReorgUnresolved
}

// HeaderStore persists the header buffer across restarts.
type HeaderStore interface {
	Save(ctx context.Context, headers []domain.BlockHeader) error
	Load(ctx context.Context) ([]domain.BlockHeader, error)
}
