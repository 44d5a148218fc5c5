package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/reorgscan/internal/control"
	"github.com/vietddude/reorgscan/internal/infra/storage/dataset"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the cursor and the last stored block",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	ctx := context.Background()

	cur, closeCursor, err := control.OpenCursor(ctx, cfg.Cursor)
	if err != nil {
		slog.Error("Failed to open cursor", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = closeCursor()
	}()

	restored, next, err := cur.RestoreState(ctx, 0)
	if err != nil {
		slog.Error("Failed to read cursor", "error", err)
		os.Exit(1)
	}

	store, err := control.OpenStore(cfg.Store)
	if err != nil {
		slog.Error("Failed to open store", "error", err)
		os.Exit(1)
	}

	cursorCol := "-"
	if restored {
		cursorCol = fmt.Sprintf("%d", next-1)
	}

	storedCol := "-"
	peak, ok, err := store.PeakLastBlock()
	switch {
	case errors.Is(err, dataset.ErrNotSupported):
		storedCol = "n/a"
	case err != nil:
		slog.Error("Failed to read store", "error", err)
		os.Exit(1)
	case ok:
		storedCol = fmt.Sprintf("%d", peak)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "CHAIN\tCURSOR\tSTORED\tSTORE")
	_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s %s\n", cfg.Chain.Name, cursorCol, storedCol, cfg.Store.Kind, cfg.Store.Path)
	_ = w.Flush()
}
