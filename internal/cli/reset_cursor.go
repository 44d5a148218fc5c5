package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vietddude/reorgscan/internal/control"
)

var resetCursorCmd = &cobra.Command{
	Use:   "reset-cursor [block_height]",
	Short: "Set the cursor to a block height, or forget it when no height is given",
	Args:  cobra.MaximumNArgs(1),
	Run:   runResetCursor,
}

func init() {
	rootCmd.AddCommand(resetCursorCmd)
}

func runResetCursor(cmd *cobra.Command, args []string) {
	var (
		height uint64
		err    error
	)
	if len(args) == 1 {
		height, err = strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			fmt.Printf("Invalid block height: %v\n", err)
			os.Exit(1)
		}
	}

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

	if len(args) == 0 {
		if err := cur.Reset(ctx); err != nil {
			slog.Error("Failed to reset cursor", "error", err)
			os.Exit(1)
		}
		fmt.Printf("Cursor for %s removed\n", cfg.Chain.Name)
		return
	}

	if err := cur.SaveState(ctx, height); err != nil {
		slog.Error("Failed to reset cursor", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Successfully reset cursor for %s to block %d\n", cfg.Chain.Name, height)
}
