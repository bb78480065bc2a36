package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/justin2061/drivefetch/internal/core/domain"
	"github.com/justin2061/drivefetch/internal/core/loader"
	"github.com/justin2061/drivefetch/internal/core/retry"
	"github.com/justin2061/drivefetch/internal/infra/drive"
)

var (
	listPageSize int
	listAll      bool
)

var listCmd = &cobra.Command{
	Use:   "list [folder_id]",
	Short: "List the contents of a Drive folder",
	Args:  cobra.ExactArgs(1),
	Run:   runList,
}

func init() {
	listCmd.Flags().IntVar(&listPageSize, "page-size", 100, "items per page (10-100)")
	listCmd.Flags().BoolVar(&listAll, "all", true, "load all pages; false loads only the first")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	client, err := drive.NewClient(cfg.Drive)
	if err != nil {
		slog.Error("Failed to init drive client", "error", err)
		os.Exit(1)
	}

	l, err := loader.New(client, args[0],
		loader.WithPageSize(listPageSize),
		loader.WithEngine(retry.New(cfg.Retry.Policy())))
	if err != nil {
		slog.Error("Invalid folder", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	var items []*domain.File
	if listAll {
		items = l.LoadAll(ctx, 0, nil)
	} else {
		result := l.LoadNextPage(ctx)
		if !result.OK() {
			slog.Error("Failed to load folder", "error", result.Err)
			os.Exit(1)
		}
		items = result.Items
	}
	if state := l.State(); state.Status == loader.StatusError {
		slog.Error("Failed to load folder", "error", state.ErrorMessage)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tTYPE\tSIZE\tID")
	for _, item := range items {
		kind := "file"
		size := "-"
		if item.IsFolder() {
			kind = "folder"
		} else if n, ok := item.SizeBytes(); ok {
			size = humanize.Bytes(uint64(n))
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", item.Name, kind, size, item.ID)
	}
	_ = w.Flush()

	stats := l.Statistics()
	fmt.Printf("\n%d items: %d folders, %d files, %s total\n",
		stats.TotalItems, stats.TotalFolders, stats.TotalFiles,
		humanize.Bytes(uint64(stats.TotalSizeBytes)))
}
