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
	"github.com/justin2061/drivefetch/internal/infra/storage/postgres"
)

var (
	tasksStatus string
	tasksLimit  int
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Show recent download tasks from the database",
	Run:   runTasks,
}

func init() {
	tasksCmd.Flags().StringVar(&tasksStatus, "status", "", "filter by status (pending, downloading, completed, failed, ...)")
	tasksCmd.Flags().IntVar(&tasksLimit, "limit", 20, "maximum number of tasks to show")
	rootCmd.AddCommand(tasksCmd)
}

func runTasks(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	if cfg.Database.URL == "" {
		slog.Error("No database configured; task history requires postgres")
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	repo := postgres.NewTaskRepo(db)
	tasks, err := repo.List(ctx, domain.TaskStatus(tasksStatus), tasksLimit)
	if err != nil {
		slog.Error("Failed to list tasks", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tSTATUS\tFILES\tBYTES\tCREATED")

	for _, t := range tasks {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			t.ID, t.Name, t.Status,
			t.DownloadedCount, t.FileCount,
			humanize.Bytes(uint64(t.DownloadedBytes)),
			t.CreatedAt.Format("2006-01-02 15:04"))
	}
	_ = w.Flush()
}
