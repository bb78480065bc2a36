package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/justin2061/drivefetch/internal/control"
	"github.com/justin2061/drivefetch/internal/core/domain"
)

var (
	downloadOutput string
	downloadFormat string
)

var downloadCmd = &cobra.Command{
	Use:   "download [file_or_folder_id]",
	Short: "Download a file or a whole folder",
	Args:  cobra.ExactArgs(1),
	Run:   runDownload,
}

func init() {
	downloadCmd.Flags().StringVarP(&downloadOutput, "output", "o", "", "output directory relative to the configured root")
	downloadCmd.Flags().StringVar(&downloadFormat, "format", "", "preferred export format for Workspace files (pdf, docx, xlsx, ...)")
	rootCmd.AddCommand(downloadCmd)
}

func runDownload(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	app, err := control.New(cfg)
	if err != nil {
		slog.Error("Failed to initialize app", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = app.Stop(shutdownCtx)
	}()

	ctx := context.Background()
	manager := app.Manager()

	task, err := manager.CreateTask(ctx, "", args[0], downloadOutput, downloadFormat)
	if err != nil {
		slog.Error("Failed to create task", "error", err)
		os.Exit(1)
	}
	if err := manager.StartTask(ctx, task.ID); err != nil {
		slog.Error("Failed to start task", "error", err)
		os.Exit(1)
	}

	// Poll until terminal, printing progress once a second.
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		current, err := manager.GetTask(task.ID)
		if err != nil {
			slog.Error("Task lost", "error", err)
			os.Exit(1)
		}

		switch current.Status {
		case domain.TaskCompleted:
			fmt.Printf("done: %d files downloaded, %d failed\n",
				current.DownloadedCount, current.FailedCount)
			if current.FailedCount > 0 {
				os.Exit(1)
			}
			return
		case domain.TaskFailed:
			slog.Error("Download failed", "error", current.ErrorMessage)
			os.Exit(1)
		case domain.TaskCancelled:
			slog.Error("Download cancelled")
			os.Exit(1)
		default:
			if snap, err := manager.Progress(task.ID); err == nil && snap.TotalFiles > 0 {
				fmt.Println(snap.String())
			}
		}
	}
}
