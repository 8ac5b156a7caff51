package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/quorum/internal/config"
	"github.com/ShayCichocki/quorum/internal/state"
	"github.com/ShayCichocki/quorum/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show tasks and worker pools",
	Long: `Display the persisted orchestration state.

Shows:
  - Tasks by status with their routes
  - Worker pool sizes and bounds

Reads the sqlite database directly, so it works whether or not the
daemon is running.`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	dbPath := cfg.State.DBPath
	if dbPath == "" {
		dbPath = state.DefaultDBPath()
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("No state yet. Run 'quorum serve' to start the daemon.")
		return nil
	}

	db, err := state.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	tasks, err := db.ListTasks("")
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	displayTasks(tasks)

	pools, err := db.ListPools()
	if err != nil {
		return fmt.Errorf("list pools: %w", err)
	}
	displayPools(pools)
	return nil
}

func displayTasks(tasks []*models.Task) {
	if len(tasks) == 0 {
		fmt.Println("Tasks: none")
		return
	}

	counts := map[models.TaskStatus]int{}
	for _, t := range tasks {
		counts[t.Status]++
	}
	fmt.Printf("Tasks: %d total", len(tasks))
	for _, status := range []models.TaskStatus{
		models.TaskStatusQueued, models.TaskStatusInProgress, models.TaskStatusWaitingApproval,
		models.TaskStatusWaitingInfo, models.TaskStatusBlocked, models.TaskStatusError,
		models.TaskStatusCompleted, models.TaskStatusRejected,
	} {
		if counts[status] > 0 {
			fmt.Printf(", %d %s", counts[status], status)
		}
	}
	fmt.Println()
	fmt.Println()

	for _, t := range tasks {
		age := formatDuration(time.Since(t.CreatedAt))
		fmt.Printf("  %s  %s  %s -> %s  %s  (%s ago)\n",
			t.ID[:8], statusColor(t.Status).Sprintf("%-16s", t.Status),
			t.SenderRole, t.RecipientRole, t.Type, age)
	}
	fmt.Println()
}

func displayPools(pools []*models.WorkerPool) {
	if len(pools) == 0 {
		fmt.Println("Pools: none")
		return
	}
	fmt.Println("Worker Pools:")
	for _, p := range pools {
		line := fmt.Sprintf("  %-16s %d workers [%d..%d]", p.Role, p.CurrentSize, p.MinSize, p.MaxSize)
		if !p.LastScaleActionAt.IsZero() {
			line += fmt.Sprintf("  last scaled %s ago", formatDuration(time.Since(p.LastScaleActionAt)))
		}
		fmt.Println(line)
	}
}

func statusColor(status models.TaskStatus) *color.Color {
	switch status {
	case models.TaskStatusCompleted:
		return color.New(color.FgGreen)
	case models.TaskStatusError, models.TaskStatusRejected:
		return color.New(color.FgRed)
	case models.TaskStatusBlocked, models.TaskStatusWaitingApproval, models.TaskStatusWaitingInfo:
		return color.New(color.FgYellow)
	case models.TaskStatusInProgress:
		return color.New(color.FgCyan)
	default:
		return color.New(color.Reset)
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m > 0 {
			return fmt.Sprintf("%dh%dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dd", int(d.Hours())/24)
}
