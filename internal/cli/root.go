package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/reorgscan/internal/control"
	"github.com/vietddude/reorgscan/internal/core/config"
)

var (
	cfgPath string
	isDebug bool
)

var rootCmd = &cobra.Command{
	Use:   "reorgscan",
	Short: "Reorg-aware block scanner",
	Long: `reorgscan follows a chain through a pool of JSON-RPC endpoints, resolves
reorganisations before handing out a block range, and persists what it scanned
so a restart resumes where it stopped.`,
	Run: runScanner,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scan loop (default)",
	Run:   runScanner,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
	rootCmd.AddCommand(runCmd)
}

// loadConfig reads .env and the config file, then installs the logger.
func loadConfig() *config.AppConfig {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	slogLevel, _ := config.ParseLevel(cfg.Logging.Level)
	if isDebug {
		slogLevel = slog.LevelDebug
	}

	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})
	return cfg
}

func runScanner(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := control.NewApp(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize scanner", "error", err)
		os.Exit(1)
	}

	slog.Info("Scanner starting", "config", cfgPath, "chain", cfg.Chain.Name)
	runErr := app.Run(ctx)

	if err := app.Close(); err != nil {
		slog.Warn("Error during shutdown", "error", err)
	}
	if runErr != nil {
		slog.Error("Scanner stopped", "error", runErr)
		os.Exit(1)
	}
	slog.Info("Scanner stopped gracefully")
}
