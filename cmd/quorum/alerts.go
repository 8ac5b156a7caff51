package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/quorum/internal/config"
	"github.com/ShayCichocki/quorum/internal/state"
)

var alertsShowResolved bool

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Show alert instances",
	Long: `Display alert instances recorded by the daemon.

By default only unresolved alerts are shown; --all includes resolved
history.`,
	RunE: runAlerts,
}

func init() {
	alertsCmd.Flags().BoolVar(&alertsShowResolved, "all", false, "Include resolved alerts")
}

func runAlerts(cmd *cobra.Command, args []string) error {
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

	instances, err := db.ListAlertInstances("")
	if err != nil {
		return fmt.Errorf("list alerts: %w", err)
	}

	shown := 0
	for _, inst := range instances {
		if inst.ResolvedAt != nil && !alertsShowResolved {
			continue
		}
		shown++

		label := color.RedString("FIRING")
		if inst.ResolvedAt != nil {
			label = color.GreenString("RESOLVED")
		} else if inst.AcknowledgedAt != nil {
			label = color.YellowString("ACKED")
		}
		line := fmt.Sprintf("  %-9s %s  triggered %s ago", label, inst.RuleID, formatDuration(time.Since(inst.TriggeredAt)))
		if inst.SilencedUntil != nil && time.Now().Before(*inst.SilencedUntil) {
			line += fmt.Sprintf("  silenced until %s", inst.SilencedUntil.Format(time.Kitchen))
		}
		fmt.Println(line)
	}
	if shown == 0 {
		fmt.Println("No alerts.")
	}
	return nil
}
