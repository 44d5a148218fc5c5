package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vietddude/reorgscan/internal/core/config"
	"github.com/vietddude/reorgscan/internal/core/cursor"
	"github.com/vietddude/reorgscan/internal/indexing/reorg"
	redisclient "github.com/vietddude/reorgscan/internal/infra/redis"
	"github.com/vietddude/reorgscan/internal/infra/rpc"
	"github.com/vietddude/reorgscan/internal/infra/storage/dataset"
	"github.com/vietddude/reorgscan/internal/infra/storage/memory"
	"github.com/vietddude/reorgscan/internal/infra/storage/postgres"
)

// OpenCursor builds the configured cursor store. The returned func releases its connections.
func OpenCursor(ctx context.Context, cfg config.CursorConfig) (cursor.Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Kind {
	case config.CursorFile:
		return cursor.NewFileStore(cfg.Path), noop, nil

	case config.CursorMemory:
		return cursor.NewRepositoryStore(memory.NewCursorRepo(), cfg.Key), noop, nil

	case config.CursorRedis:
		client, err := redisclient.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		slog.Info("Using Redis cursor", "key", cfg.Key)
		return cursor.NewRepositoryStore(redisclient.NewCursorRepo(client), cfg.Key), client.Close, nil

	case config.CursorPostgres:
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("failed to migrate db: %w", err)
		}
		slog.Info("Using PostgreSQL cursor", "key", cfg.Key)
		return cursor.NewRepositoryStore(postgres.NewCursorRepo(db), cfg.Key), db.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown cursor kind %q", cfg.Kind)
}

// OpenStore builds the configured dataset store.
func OpenStore(cfg config.StoreConfig) (dataset.Store, error) {
	switch cfg.Kind {
	case config.StoreFlat:
		return dataset.NewFlatStore(cfg.Path, cfg.GapsChecked()), nil
	case config.StorePartitioned:
		return dataset.NewPartitionedStore(cfg.Path, cfg.PartitionSize, cfg.GapsChecked()), nil
	}
	return nil, fmt.Errorf("unknown store kind %q", cfg.Kind)
}

// chainSource is the strategy plus whatever backs it.
type chainSource struct {
	strategy  reorg.Strategy
	client    *rpc.Client              // nil for synthetic
	synthetic *reorg.SyntheticStrategy // nil unless synthetic
}

func openChainSource(cfg *config.AppConfig, logger *slog.Logger) (*chainSource, error) {
	if cfg.Reorg.Strategy == config.StrategySynthetic {
		synthetic := reorg.NewSyntheticStrategy()
		synthetic.ProduceBlocks(int(cfg.Reorg.InitialBlockCount))
		return &chainSource{strategy: synthetic, synthetic: synthetic}, nil
	}

	client, err := rpc.NewClient(rpc.ClientConfig{
		Endpoints:              cfg.RPC.Endpoints,
		Retry:                  cfg.RPC.RetryConfig(),
		Timeout:                cfg.RPC.Timeout,
		RequestsPerSecond:      cfg.RPC.RequestsPerSecond,
		StateVisibilityMethods: cfg.RPC.StateVisibilityMethods,
		Logger:                 logger,
	})
	if err != nil {
		return nil, err
	}

	src := &chainSource{client: client}
	switch cfg.Reorg.Strategy {
	case config.StrategyRPC:
		src.strategy = reorg.NewRPCStrategy(client)
	default:
		src.strategy = reorg.NewBatchedStrategy(client, cfg.Reorg.BatchSize)
	}
	return src, nil
}
