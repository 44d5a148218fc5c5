package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/vietddude/reorgscan/internal/core/cursor"
	"github.com/vietddude/reorgscan/internal/indexing/health"
	"github.com/vietddude/reorgscan/internal/indexing/metrics"
	"github.com/vietddude/reorgscan/internal/indexing/recovery"
	"github.com/vietddude/reorgscan/internal/indexing/reorg"
	"github.com/vietddude/reorgscan/internal/indexing/throttle"
	"github.com/vietddude/reorgscan/internal/infra/storage/dataset"
)

// RangeHandler turns a validated block range into rows.
type RangeHandler interface {
	Columns() []string
	HandleRange(ctx context.Context, from, to uint64) (*dataset.Dataset, error)
}

// HeaderExporter emits one row per block: hash and timestamp.
// Buffered headers come from the monitor, older ones from the strategy.
type HeaderExporter struct {
	monitor  *reorg.Monitor
	strategy reorg.Strategy
}

// NewHeaderExporter creates the default range handler.
func NewHeaderExporter(monitor *reorg.Monitor, strategy reorg.Strategy) *HeaderExporter {
	return &HeaderExporter{monitor: monitor, strategy: strategy}
}

// Columns returns the exported value columns.
func (e *HeaderExporter) Columns() []string {
	return []string{"block_hash", "timestamp"}
}

// HandleRange returns rows for [from, to].
func (e *HeaderExporter) HandleRange(ctx context.Context, from, to uint64) (*dataset.Dataset, error) {
	ds := dataset.New(e.Columns()...)

	n := from
	for n <= to {
		if h, ok := e.monitor.Block(n); ok {
			ds.Append(n, h.Hash, strconv.FormatUint(h.Timestamp, 10))
			n++
			continue
		}

		// fetch the unbuffered run in one call
		end := n
		for end < to {
			if _, ok := e.monitor.Block(end + 1); ok {
				break
			}
			end++
		}
		headers, err := e.strategy.FetchBlockData(ctx, n, end)
		if err != nil {
			return nil, fmt.Errorf("fetch headers %d-%d: %w", n, end, err)
		}
		if uint64(len(headers)) != end-n+1 {
			return nil, fmt.Errorf("fetch headers %d-%d: got %d of %d", n, end, len(headers), end-n+1)
		}
		for _, h := range headers {
			ds.Append(h.Number, h.Hash, strconv.FormatUint(h.Timestamp, 10))
		}
		n = end + 1
	}
	return ds, nil
}

// ScannerConfig configures a Scanner.
type ScannerConfig struct {
	Chain      string
	Interval   time.Duration
	StartBlock uint64 // zero means the first block of the initial header window
	MaxRange   uint64
	LoadCount  uint64
	ChunkSize  uint64

	// Pacing adapts interval and range to the lag; zero value keeps both fixed
	Pacing throttle.AdaptiveConfig

	// Retry spaces failed cycles; nil retries transient failures forever
	// and stops on corrupted state
	Retry *recovery.Policy
}

// Scanner runs the update cycle: resolve reorgs, handle the safe range, persist.
type Scanner struct {
	cfg     ScannerConfig
	monitor *reorg.Monitor
	handler RangeHandler
	store   dataset.Store
	cursor  cursor.Store
	headers reorg.HeaderStore // optional

	// flat stores are rewritten from memory
	data        *dataset.Dataset
	incremental bool

	next      uint64
	before    func(ctx context.Context) error // runs before each cycle
	pace      *throttle.AdaptiveController
	lastCycle time.Duration

	mu       sync.RWMutex
	progress health.Progress

	log *slog.Logger
}

// NewScanner wires a scanner. headers may be nil.
func NewScanner(
	cfg ScannerConfig,
	monitor *reorg.Monitor,
	handler RangeHandler,
	store dataset.Store,
	cur cursor.Store,
	headers reorg.HeaderStore,
) *Scanner {
	if cfg.MaxRange == 0 {
		cfg.MaxRange = 1000
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.Pacing.MaxRange == 0 {
		cfg.Pacing.MaxRange = cfg.MaxRange
	}
	if cfg.Retry == nil {
		cfg.Retry = recovery.ScanPolicy(cfg.Interval,
			dataset.ErrCorruptPartition,
			dataset.ErrSchemaMismatch,
			cursor.ErrCorruptCursor,
		)
	}
	return &Scanner{
		cfg:     cfg,
		monitor: monitor,
		handler: handler,
		store:   store,
		cursor:  cur,
		headers: headers,
		pace:    throttle.NewAdaptiveController(cfg.Chain, cfg.Interval, cfg.Pacing),
		log:     slog.Default().With("component", "scanner", "chain", cfg.Chain),
	}
}

// Init restores the header buffer, loads the initial window and finds the resume point.
func (s *Scanner) Init(ctx context.Context) error {
	if s.headers != nil {
		if _, err := s.monitor.LoadSnapshot(ctx, s.headers); err != nil {
			s.log.Warn("Ignoring header snapshot", "error", err)
		}
	}

	loadStart, _, err := s.monitor.LoadInitialBlockHeaders(ctx, reorg.LoadOptions{
		BlockCount: s.cfg.LoadCount,
		ChunkSize:  s.cfg.ChunkSize,
		Progress: func(loaded, end uint64) {
			s.log.Debug("Loading headers", "loaded", loaded, "tip", end)
		},
	})
	if err != nil {
		return fmt.Errorf("load initial headers: %w", err)
	}

	defaultStart := s.cfg.StartBlock
	if defaultStart == 0 {
		defaultStart = loadStart
	}
	restored, next, err := s.cursor.RestoreState(ctx, defaultStart)
	if err != nil {
		return fmt.Errorf("restore cursor: %w", err)
	}

	stored, err := s.storedLastBlock()
	if err != nil {
		return err
	}
	if stored.ok && stored.last+1 < next {
		next = stored.last + 1
	}

	s.next = max(next, 1)
	s.mu.Lock()
	s.progress.CursorBlock = s.next - 1
	s.progress.LiveBlock = s.monitor.LastLiveBlock()
	s.mu.Unlock()
	s.log.Info("Scanner initialised",
		"cursor_restored", restored,
		"next_block", s.next,
		"incremental", s.incremental,
		"buffered_headers", s.monitor.Len(),
	)
	return nil
}

type lastBlock struct {
	last uint64
	ok   bool
}

// storedLastBlock finds the resume point of the dataset store.
// Stores without one are loaded into memory and rewritten in full.
func (s *Scanner) storedLastBlock() (lastBlock, error) {
	last, ok, err := s.store.PeakLastBlock()
	if err == nil {
		s.incremental = true
		return lastBlock{last, ok}, nil
	}
	if !errors.Is(err, dataset.ErrNotSupported) {
		return lastBlock{}, fmt.Errorf("peak last block: %w", err)
	}

	s.data, err = s.store.Load(0)
	if err != nil {
		return lastBlock{}, fmt.Errorf("load dataset: %w", err)
	}
	if s.data.Len() == 0 {
		s.data = dataset.New(s.handler.Columns()...)
	}
	last, ok = s.data.LastBlock()
	return lastBlock{last, ok}, nil
}

// BeforeCycle registers fn to run at the start of every cycle.
func (s *Scanner) BeforeCycle(fn func(ctx context.Context) error) {
	s.before = fn
}

// NextBlock returns the first block the next cycle will handle.
func (s *Scanner) NextBlock() uint64 {
	return s.next
}

// Cycle runs one update cycle and reports the highest block persisted, if any.
func (s *Scanner) Cycle(ctx context.Context) (uint64, bool, error) {
	if s.before != nil {
		if err := s.before(ctx); err != nil {
			return 0, false, err
		}
	}

	res, err := s.monitor.UpdateChain(ctx)
	if err != nil {
		return 0, false, err
	}

	if res.ReorgDetected {
		s.mu.Lock()
		s.progress.ReorgsDetected++
		s.mu.Unlock()
	}
	if res.ReorgDetected && res.RescanFrom() < s.next {
		s.log.Info("Rescanning after reorganisation",
			"from", res.RescanFrom(),
			"previous_next", s.next,
		)
		s.next = max(res.RescanFrom(), 1)
		if s.data != nil {
			s.data.TruncateAfter(s.next - 1)
		}
	}

	safe := s.monitor.LastBlockRead()
	if s.next > safe {
		return 0, false, nil
	}
	size := s.pace.ComputeRange(s.lag(), s.lastCycle)
	to := min(safe, s.next+size-1)

	started := time.Now()
	batch, err := s.handler.HandleRange(ctx, s.next, to)
	if err != nil {
		return 0, false, err
	}
	if err := s.persist(batch); err != nil {
		return 0, false, err
	}
	if err := s.cursor.SaveState(ctx, to); err != nil {
		return 0, false, fmt.Errorf("save cursor: %w", err)
	}
	metrics.CursorBlock.WithLabelValues(s.cfg.Chain).Set(float64(to))

	if s.headers != nil {
		if err := s.monitor.SaveSnapshot(ctx, s.headers); err != nil {
			s.log.Warn("Failed to save header snapshot", "error", err)
		}
	}

	s.lastCycle = time.Since(started)
	s.log.Info("Range processed", "from", s.next, "to", to, "rows", batch.Len(), "took", s.lastCycle)
	s.next = to + 1
	return to, true, nil
}

func (s *Scanner) persist(batch *dataset.Dataset) error {
	if s.incremental {
		_, _, err := s.store.SaveIncremental(batch)
		return err
	}

	merged := dataset.New(s.data.Columns...)
	merged.Rows = append(merged.Rows, s.data.Rows...)
	if err := merged.Merge(batch); err != nil {
		return err
	}
	if err := s.store.Save(merged); err != nil {
		return err
	}
	s.data = merged
	return nil
}

// lag is the number of blocks between the cursor and the live tip.
func (s *Scanner) lag() uint64 {
	live, done := s.monitor.LastLiveBlock(), s.next-1
	if live <= done {
		return 0
	}
	return live - done
}

// Run cycles until ctx is done. Failed cycles are retried with backoff;
// a failure the retry policy refuses stops the loop.
func (s *Scanner) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	failures := 0
	for {
		last, ok, err := s.Cycle(ctx)
		if err != nil && ctx.Err() != nil {
			return nil
		}
		s.record(last, ok, err)

		var wait time.Duration
		switch {
		case err != nil:
			failures++
			var retry bool
			if wait, retry = s.cfg.Retry.Next(err, failures); !retry {
				return fmt.Errorf("scan stopped after %d failed cycles: %w", failures, err)
			}
		case ok && s.next <= s.monitor.LastBlockRead():
			// validated blocks are still waiting
			failures = 0
		default:
			failures = 0
			wait = s.pace.ComputeInterval(s.lag())
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
	}
}

func (s *Scanner) record(last uint64, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.progress.LiveBlock = s.monitor.LastLiveBlock()
	s.progress.LastCycleAt = time.Now()
	s.progress.LastError = err
	if ok {
		s.progress.CursorBlock = last
	}

	var resolution *reorg.ResolutionError
	switch {
	case errors.As(err, &resolution):
		s.log.Error("Reorganisation did not resolve", "tries", resolution.Tries, "last", resolution.LastReorg)
	case err != nil:
		s.log.Error("Scan cycle failed", "error", err)
	}
}

// Progress implements health.ProgressSource.
func (s *Scanner) Progress() health.Progress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progress
}
