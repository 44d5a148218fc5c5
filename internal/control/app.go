package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/reorgscan/internal/core/config"
	"github.com/vietddude/reorgscan/internal/indexing/health"
	"github.com/vietddude/reorgscan/internal/indexing/reorg"
	"github.com/vietddude/reorgscan/internal/indexing/throttle"
	"github.com/vietddude/reorgscan/internal/infra/storage/headerstore"
)

// App is the main application struct that manages the scan lifecycle.
type App struct {
	cfg          *config.AppConfig
	source       *chainSource
	monitor      *reorg.Monitor
	scanner      *Scanner
	healthServer *health.Server
	closers      []func() error
	log          *slog.Logger
}

// NewApp creates a new App with all dependencies initialized.
func NewApp(ctx context.Context, cfg *config.AppConfig) (*App, error) {
	logger := slog.Default().With("chain", cfg.Chain.Name)
	app := &App{cfg: cfg, log: logger}

	// 1. Chain source
	src, err := openChainSource(cfg, logger)
	if err != nil {
		return nil, err
	}
	app.source = src
	if src.client != nil {
		app.closers = append(app.closers, src.client.Close)
	}

	// 2. Storage
	store, err := OpenStore(cfg.Store)
	if err != nil {
		return nil, app.closeWith(err)
	}
	cur, closeCursor, err := OpenCursor(ctx, cfg.Cursor)
	if err != nil {
		return nil, app.closeWith(err)
	}
	app.closers = append(app.closers, closeCursor)

	var headers reorg.HeaderStore
	if cfg.Reorg.HeaderSnapshot != "" {
		bolt, err := headerstore.Open(cfg.Reorg.HeaderSnapshot)
		if err != nil {
			return nil, app.closeWith(err)
		}
		app.closers = append(app.closers, bolt.Close)
		headers = bolt
	}

	// 3. Monitor and scan loop
	app.monitor = reorg.NewMonitor(src.strategy, cfg.MonitorConfig(), reorg.WithLogger(logger))
	app.scanner = NewScanner(ScannerConfig{
		Chain:      cfg.Chain.Name,
		Interval:   cfg.Scan.Interval,
		StartBlock: cfg.Scan.StartBlock,
		MaxRange:   cfg.Scan.MaxRange,
		LoadCount:  cfg.Reorg.InitialBlockCount,
		ChunkSize:  uint64(cfg.Reorg.BatchSize),
		Pacing:     pacing(cfg.Scan),
	}, app.monitor, NewHeaderExporter(app.monitor, src.strategy), store, cur, headers)

	if src.synthetic != nil {
		app.scanner.BeforeCycle(func(context.Context) error {
			src.synthetic.ProduceBlocks(1)
			return nil
		})
	}

	// 4. Health
	if cfg.Server.Port >= 0 {
		var endpoints health.EndpointSource
		if src.client != nil {
			endpoints = src.client
		}
		monitor := health.NewMonitor(cfg.Chain.Name, app.scanner, endpoints, health.DefaultThresholds(cfg.Scan.Interval))
		app.healthServer = health.NewServer(monitor, cfg.Server.Port)
	}

	return app, nil
}

func pacing(cfg config.ScanConfig) throttle.AdaptiveConfig {
	p := throttle.DefaultConfig()
	p.Enabled = cfg.AdaptivePacing()
	p.MinScanInterval = min(p.MinScanInterval, cfg.Interval)
	p.MaxScanInterval = max(p.MaxScanInterval, cfg.Interval)
	p.MaxRange = cfg.MaxRange
	p.MinRange = min(p.MinRange, cfg.MaxRange)
	return p
}

func (a *App) closeWith(err error) error {
	return errors.Join(err, a.Close())
}

// Scanner returns the scan loop.
func (a *App) Scanner() *Scanner {
	return a.scanner
}

// Run initialises the scanner and serves until ctx is done.
func (a *App) Run(ctx context.Context) error {
	if err := a.scanner.Init(ctx); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.scanner.Run(ctx)
	})

	if a.healthServer != nil {
		g.Go(func() error {
			a.log.Info("Health server listening", "port", a.cfg.Server.Port)
			if err := a.healthServer.Start(); err != nil {
				return fmt.Errorf("health server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return a.healthServer.Stop(shutdownCtx)
		})
	}

	a.log.Info("Scanner started", "strategy", a.cfg.Reorg.Strategy, "store", a.cfg.Store.Kind, "cursor", a.cfg.Cursor.Kind)
	return g.Wait()
}

// Close releases every connection. Safe to call once after Run returns.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
