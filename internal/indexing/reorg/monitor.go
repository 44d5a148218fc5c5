package reorg

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/vietddude/reorgscan/internal/core/domain"
	"github.com/vietddude/reorgscan/internal/indexing/metrics"
	"github.com/vietddude/reorgscan/internal/infra/rpc/routing"
)

// OutcomeKind is the result of one detection pass.
type OutcomeKind int

const (
	OutcomeContinue OutcomeKind = iota // buffer is consistent with the node
	OutcomeReorg                       // a buffered block changed
)

// Outcome is returned by FigureReorganisationAndNewBlocks.
type Outcome struct {
	Kind      OutcomeKind
	Reorg     ReorgInfo // set when Kind == OutcomeReorg
	LastLive  uint64
	NewBlocks int
}

// Monitor keeps a window of recent headers and resolves forks in it.
// It is not safe for concurrent use; give each worker its own Monitor.
type Monitor struct {
	cfg      Config
	strategy Strategy

	blocks        map[uint64]domain.BlockHeader
	lastBlockRead uint64
	lastLive      uint64

	sleep routing.SleepFunc
	log   *slog.Logger
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithSleep replaces the reorg wait, mostly for tests.
func WithSleep(fn routing.SleepFunc) Option {
	return func(m *Monitor) {
		m.sleep = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) {
		m.log = l
	}
}

// NewMonitor creates a monitor with an empty buffer.
func NewMonitor(strategy Strategy, cfg Config, opts ...Option) *Monitor {
	m := &Monitor{
		cfg:      cfg.withDefaults(),
		strategy: strategy,
		blocks:   make(map[uint64]domain.BlockHeader),
		sleep:    routing.ContextSleep,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With("component", "reorg", "chain", m.cfg.Chain)
	return m
}

// AddBlock appends a header after the last validated block.
// The buffer is left untouched on error.
func (m *Monitor) AddBlock(rec domain.BlockHeader) error {
	if _, exists := m.blocks[rec.Number]; exists {
		return fmt.Errorf("%w: block %d already buffered", ErrBlockSequence, rec.Number)
	}
	if len(m.blocks) > 0 && rec.Number != m.lastBlockRead+1 {
		return fmt.Errorf("%w: got block %d, expected %d", ErrBlockSequence, rec.Number, m.lastBlockRead+1)
	}

	m.blocks[rec.Number] = rec
	m.lastBlockRead = rec.Number
	return nil
}

// CheckBlockReorg compares hash with the buffered header at number.
// An unbuffered number is never reported.
func (m *Monitor) CheckBlockReorg(number uint64, hash string) (ReorgInfo, bool) {
	old, ok := m.blocks[number]
	if !ok || old.Hash == hash {
		return ReorgInfo{}, false
	}
	return ReorgInfo{BlockNumber: number, OldHash: old.Hash, NewHash: hash}, true
}

// Truncate drops every header above latestGood.
func (m *Monitor) Truncate(latestGood uint64) {
	for n := range m.blocks {
		if n > latestGood {
			delete(m.blocks, n)
		}
	}
	if latestGood < m.lastBlockRead {
		m.lastBlockRead = latestGood
	}
}

// FigureReorganisationAndNewBlocks re-reads the check window up to the live tip.
// The first changed block is reported as OutcomeReorg and nothing after it is added.
func (m *Monitor) FigureReorganisationAndNewBlocks(ctx context.Context) (Outcome, error) {
	tip, err := m.strategy.LastLiveBlock(ctx)
	if err != nil {
		return Outcome{}, err
	}
	m.lastLive = tip
	metrics.ChainLatestBlock.WithLabelValues(m.cfg.Chain).Set(float64(tip))

	start := uint64(1)
	if m.lastBlockRead > m.cfg.CheckDepth {
		start = m.lastBlockRead - m.cfg.CheckDepth
	}
	out := Outcome{Kind: OutcomeContinue, LastLive: tip}
	if tip < start {
		return out, nil
	}

	headers, err := m.strategy.FetchBlockData(ctx, start, tip)
	if err != nil {
		return Outcome{}, err
	}

	for _, h := range headers {
		if info, reorg := m.CheckBlockReorg(h.Number, h.Hash); reorg {
			return Outcome{Kind: OutcomeReorg, Reorg: info, LastLive: tip, NewBlocks: out.NewBlocks}, nil
		}
		if h.Number <= m.lastBlockRead {
			continue
		}
		if err := m.AddBlock(h); err != nil {
			return Outcome{}, err
		}
		out.NewBlocks++
	}

	m.log.Debug("Detection pass done",
		"from", start,
		"tip", tip,
		"new_blocks", out.NewBlocks,
		"last_block_read", m.lastBlockRead,
	)
	return out, nil
}

// UpdateChain runs detection until the buffer is consistent with the node.
func (m *Monitor) UpdateChain(ctx context.Context) (domain.ReorgResolution, error) {
	good := m.lastBlockRead
	detected := false
	var last ReorgInfo

	for attempt := 1; attempt <= m.cfg.MaxCycleTries; attempt++ {
		out, err := m.FigureReorganisationAndNewBlocks(ctx)
		if err != nil {
			return domain.ReorgResolution{}, err
		}

		if out.Kind == OutcomeContinue {
			metrics.ReorgResolutionTries.WithLabelValues(m.cfg.Chain).Observe(float64(attempt))
			if detected {
				m.log.Info("Chain reorganisation resolved",
					"latest_good_block", good,
					"last_live_block", out.LastLive,
					"tries", attempt,
				)
			}
			return domain.ReorgResolution{
				LastLiveBlock:           out.LastLive,
				LatestBlockWithGoodData: good,
				ReorgDetected:           detected,
			}, nil
		}

		detected = true
		last = out.Reorg
		metrics.ReorgsDetected.WithLabelValues(m.cfg.Chain).Inc()
		m.log.Warn("Chain reorganisation detected",
			"block", last.BlockNumber,
			"old_hash", last.OldHash,
			"new_hash", last.NewHash,
			"attempt", attempt,
		)

		latestGood := last.BlockNumber - 1
		m.Truncate(latestGood)
		good = min(good, latestGood)

		if attempt < m.cfg.MaxCycleTries {
			if err := m.sleep(ctx, m.cfg.ReorgWait); err != nil {
				return domain.ReorgResolution{}, err
			}
		}
	}

	return domain.ReorgResolution{}, &ResolutionError{Tries: m.cfg.MaxCycleTries, LastReorg: last}
}

// BlockTimestamp returns the timestamp of a buffered block.
func (m *Monitor) BlockTimestamp(number uint64) (uint64, error) {
	if len(m.blocks) == 0 {
		return 0, fmt.Errorf("%w: buffer is empty", ErrBlockNotAvailable)
	}
	b, ok := m.blocks[number]
	if !ok {
		return 0, fmt.Errorf("%w: block %d", ErrBlockNotAvailable, number)
	}
	return b.Timestamp, nil
}

// LoadOptions controls LoadInitialBlockHeaders.
type LoadOptions struct {
	BlockCount uint64 // blocks behind the tip to load; defaults to CheckDepth
	StartBlock uint64 // explicit first block, overrides BlockCount
	ChunkSize  uint64 // blocks per FetchBlockData call (default: 100)
	Progress   func(loaded, end uint64)
}

// LoadInitialBlockHeaders fills the buffer on cold start and returns the
// loaded range. A non-empty buffer is resumed from its highest block.
func (m *Monitor) LoadInitialBlockHeaders(ctx context.Context, opts LoadOptions) (uint64, uint64, error) {
	tip, err := m.strategy.LastLiveBlock(ctx)
	if err != nil {
		return 0, 0, err
	}
	m.lastLive = tip

	var start uint64
	switch {
	case len(m.blocks) > 0:
		start = slices.Max(slices.Collect(maps.Keys(m.blocks))) + 1
	case opts.StartBlock > 0:
		start = opts.StartBlock
	default:
		count := opts.BlockCount
		if count == 0 {
			count = m.cfg.CheckDepth
		}
		start = 1
		if tip > count {
			start = tip - count + 1
		}
	}

	if start > tip {
		return start, m.lastBlockRead, nil
	}

	chunk := opts.ChunkSize
	if chunk == 0 {
		chunk = 100
	}

	m.log.Info("Loading initial block headers", "from", start, "to", tip)
	for from := start; from <= tip; from += chunk {
		to := min(from+chunk-1, tip)

		headers, err := m.strategy.FetchBlockData(ctx, from, to)
		if err != nil {
			return start, m.lastBlockRead, err
		}
		for _, h := range headers {
			if err := m.AddBlock(h); err != nil {
				return start, m.lastBlockRead, err
			}
		}
		if opts.Progress != nil {
			opts.Progress(m.lastBlockRead, tip)
		}
		if uint64(len(headers)) < to-from+1 {
			break
		}
	}

	return start, m.lastBlockRead, nil
}

// LastBlockRead returns the highest validated block.
func (m *Monitor) LastBlockRead() uint64 {
	return m.lastBlockRead
}

// LastLiveBlock returns the tip seen by the last detection pass.
func (m *Monitor) LastLiveBlock() uint64 {
	return m.lastLive
}

// Len returns the number of buffered headers.
func (m *Monitor) Len() int {
	return len(m.blocks)
}

// Block returns a buffered header.
func (m *Monitor) Block(number uint64) (domain.BlockHeader, bool) {
	b, ok := m.blocks[number]
	return b, ok
}

// Snapshot returns up to limit most recent headers in ascending order; zero means all.
func (m *Monitor) Snapshot(limit int) []domain.BlockHeader {
	keys := slices.Sorted(maps.Keys(m.blocks))
	if limit > 0 && len(keys) > limit {
		keys = keys[len(keys)-limit:]
	}
	out := make([]domain.BlockHeader, len(keys))
	for i, k := range keys {
		out[i] = m.blocks[k]
	}
	return out
}

// Restore replaces the buffer with headers, which must be contiguous.
func (m *Monitor) Restore(headers []domain.BlockHeader) error {
	sorted := slices.Clone(headers)
	slices.SortFunc(sorted, func(a, b domain.BlockHeader) int {
		return cmp.Compare(a.Number, b.Number)
	})

	prevBlocks, prevLast := m.blocks, m.lastBlockRead
	m.blocks = make(map[uint64]domain.BlockHeader, len(sorted))
	m.lastBlockRead = 0
	for _, h := range sorted {
		if err := m.AddBlock(h); err != nil {
			m.blocks, m.lastBlockRead = prevBlocks, prevLast
			return err
		}
	}
	return nil
}

// SaveSnapshot writes the most recent CheckDepth*4 headers to store.
func (m *Monitor) SaveSnapshot(ctx context.Context, store HeaderStore) error {
	return store.Save(ctx, m.Snapshot(int(m.cfg.CheckDepth*4)))
}

// LoadSnapshot restores the buffer from store. It reports false when the store is empty.
func (m *Monitor) LoadSnapshot(ctx context.Context, store HeaderStore) (bool, error) {
	headers, err := store.Load(ctx)
	if err != nil {
		return false, err
	}
	if len(headers) == 0 {
		return false, nil
	}
	if err := m.Restore(headers); err != nil {
		return false, err
	}
	m.log.Info("Restored header buffer", "blocks", len(headers), "last_block_read", m.lastBlockRead)
	return true, nil
}
