package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/quorum/internal/alerting"
	"github.com/ShayCichocki/quorum/internal/bridge"
	"github.com/ShayCichocki/quorum/internal/config"
	"github.com/ShayCichocki/quorum/internal/metrics"
	"github.com/ShayCichocki/quorum/internal/reasoning"
	"github.com/ShayCichocki/quorum/internal/router"
	"github.com/ShayCichocki/quorum/internal/scaling"
	"github.com/ShayCichocki/quorum/internal/server"
	"github.com/ShayCichocki/quorum/internal/state"
	"github.com/ShayCichocki/quorum/pkg/models"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the orchestration daemon",
	Long: `Start the Quorum daemon: the task router, the scaling controller, the
protocol bridge janitor, the alert engine, and the HTTP API.

Shuts down cleanly on SIGINT/SIGTERM.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	dbPath := cfg.State.DBPath
	if dbPath == "" {
		dbPath = state.DefaultDBPath()
	}
	db, err := state.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	client, err := reasoning.NewClient(cfg.Anthropic)
	if err != nil {
		return fmt.Errorf("reasoning client: %w", err)
	}
	reasoner := reasoning.NewReasoner(client)

	reg := metrics.NewRegistry()
	roles := router.NewRegistry()
	for _, role := range models.CoreRoles {
		roles.Register(role, 0) // the scaling controller sets real capacity
	}

	// The controller is created after the router but observes its latencies;
	// the indirection breaks the construction cycle.
	var scaler *scaling.Controller
	rt := router.New(cfg.Router, roles, reasoner,
		router.WithStore(db),
		router.WithMetrics(reg),
		router.WithLatencyObserver(func(role models.Role, latency time.Duration) {
			if scaler != nil {
				scaler.Observe(role, latency)
			}
		}),
	)

	platform := scaling.PlatformFunc(func(ctx context.Context, cmd models.ScaleCommand) error {
		log.Printf("[serve] scale %s: %s %d -> %d (%s)", cmd.Role, cmd.Direction, cmd.FromSize, cmd.ToSize, cmd.Reason)
		return nil
	})
	scaler = scaling.New(cfg.Scaling, platform, rt, roles, scaling.WithMetrics(reg))
	for _, role := range models.CoreRoles {
		pool := scaler.AddPool(role)
		if err := db.SavePool(pool); err != nil {
			log.Printf("[serve] persisting pool %s: %v", role, err)
		}
	}

	// Fired and resolved alerts are logged and written through to sqlite.
	logNotifier := alerting.LogNotifier{}
	notifier := alerting.NotifierFunc(func(ctx context.Context, n alerting.Notification) error {
		if err := db.SaveAlertInstance(&n.Instance); err != nil {
			log.Printf("[serve] persisting alert instance for rule %s: %v", n.Rule.ID, err)
		}
		return logNotifier.Notify(ctx, n)
	})
	alerts := alerting.NewEngine(reg, notifier, cfg.Alerting.EvalInterval)

	// Closed conversations are archived to sqlite.
	br := bridge.New(cfg.Bridge, bridge.WithArchiver(func(conv models.BridgeConversation) {
		if err := db.SaveConversation(&conv); err != nil {
			log.Printf("[serve] persisting conversation %s: %v", conv.ID, err)
		}
	}))
	log.Printf("[serve] protocol bridge speaking version %s", cfg.Bridge.ProtocolVersion)

	handler := server.New(server.Config{
		Router:  rt,
		Scaler:  scaler,
		Alerts:  alerts,
		Metrics: reg,
		Auth:    server.AuthConfig{JWTSecret: cfg.Server.JWTSecret},
	})
	httpServer := &http.Server{Addr: cfg.Server.Addr, Handler: handler}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := rt.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[serve] router stopped: %v", err)
		}
	}()
	go func() {
		if err := scaler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[serve] scaling controller stopped: %v", err)
		}
	}()
	go func() {
		if err := alerts.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[serve] alert engine stopped: %v", err)
		}
	}()
	go func() {
		if err := br.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[serve] bridge janitor stopped: %v", err)
		}
	}()
	if cfg.Alerting.RulesFile != "" {
		go func() {
			if err := alerting.WatchRules(ctx, cfg.Alerting.RulesFile, alerts); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("[serve] alert rules watcher stopped: %v", err)
			}
		}()
	} else {
		log.Printf("[serve] no alert rules file configured; alerting idle")
	}
	go persistPools(ctx, db, scaler)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("[serve] http shutdown: %v", err)
		}
	}()

	log.Printf("[serve] listening on %s (db %s)", cfg.Server.Addr, dbPath)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Printf("[serve] shut down")
	return nil
}

// persistPools writes pool sizes through to sqlite so cooldown state and
// sizes survive restarts.
func persistPools(ctx context.Context, db *state.DB, scaler *scaling.Controller) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, pool := range scaler.Pools() {
				if err := db.SavePool(&pool); err != nil {
					log.Printf("[serve] persisting pool %s: %v", pool.Role, err)
				}
			}
		}
	}
}
