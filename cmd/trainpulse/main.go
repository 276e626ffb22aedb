package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/stridelabs/trainpulse/internal/cache"
	"github.com/stridelabs/trainpulse/internal/clock"
	"github.com/stridelabs/trainpulse/internal/config"
	"github.com/stridelabs/trainpulse/internal/engine/decision"
	"github.com/stridelabs/trainpulse/internal/engine/guardrails"
	"github.com/stridelabs/trainpulse/internal/engine/rules"
	"github.com/stridelabs/trainpulse/internal/engine/snapshot"
	"github.com/stridelabs/trainpulse/internal/engine/stats"
	"github.com/stridelabs/trainpulse/internal/engine/syncer"
	"github.com/stridelabs/trainpulse/internal/engine/views"
	"github.com/stridelabs/trainpulse/internal/events"
	httpiface "github.com/stridelabs/trainpulse/internal/interfaces/http"
	"github.com/stridelabs/trainpulse/internal/interfaces/http/handlers"
	"github.com/stridelabs/trainpulse/internal/persistence"
	"github.com/stridelabs/trainpulse/internal/persistence/memstore"
	"github.com/stridelabs/trainpulse/internal/persistence/postgres"
)

const (
	appName = "trainpulse"
	version = "v1.4.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	var configPath string

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Athlete risk & intervention decision engine",
		Version: version,
		Long: `trainpulse turns athlete telemetry (daily check-ins, training logs) into a
prioritized, auditable queue of coaching actions and manages those actions
through a bounded decision lifecycle with cooldowns and SLAs.`,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config (defaults apply when empty)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Long:  "Serve the decision endpoints, read models, metrics and the live event feed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one roster sync pass and print its summary",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := buildApp(configPath)
			if err != nil {
				return err
			}
			defer app.close()
			result, err := app.syncer.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(result.Summary())
			return nil
		},
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Print the current intervention queue stats",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := buildApp(configPath)
			if err != nil {
				return err
			}
			defer app.close()
			snapshot, err := app.stats.Current(cmd.Context(), "")
			if err != nil {
				return err
			}
			fmt.Printf("open=%d high_priority=%d actionable=%d snoozed=%d due_24h=%d due_72h=%d median_age=%.1fh oldest=%.1fh\n",
				snapshot.OpenCount, snapshot.HighPriority, snapshot.ActionableNow, snapshot.Snoozed,
				snapshot.SLADue24h, snapshot.SLADue72h, snapshot.MedianAgeHours, snapshot.OldestAgeHours)
			return nil
		},
	}

	rootCmd.AddCommand(serveCmd, syncCmd, statsCmd)
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

// app holds the wired engine for one process.
type app struct {
	cfg     config.Config
	store   *memstore.Store
	repo    persistence.InterventionRepo
	syncer  *syncer.Syncer
	decider *decision.Engine
	stats   *stats.Aggregator
	views   *views.Service
	hub     *events.Hub
	db      *sqlx.DB
	rdb     *redis.Client
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
	}
	if a.rdb != nil {
		a.rdb.Close()
	}
}

// buildApp wires stores, engine and read models from config. The in-memory
// store always backs the collaborator reads (check-ins, logs, roster, plan
// phases — raw capture lives upstream of this engine); postgres, when
// configured, holds interventions and the derived series.
func buildApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, store: memstore.New(), hub: events.NewHub()}
	clk := clock.Real{}

	var (
		repo     persistence.InterventionRepo = a.store
		fitRepo  persistence.FitnessRepo      = a.store
		perfRepo persistence.PerformanceRepo  = a.store
	)
	if cfg.Database.DSN != "" {
		db, err := sqlx.Connect("postgres", cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := postgres.EnsureSchema(context.Background(), db); err != nil {
			db.Close()
			return nil, err
		}
		a.db = db
		repo = postgres.NewInterventionsRepo(db, cfg.Database.QueryTimeout)
		fitRepo = postgres.NewFitnessRepo(db, cfg.Database.QueryTimeout)
		perfRepo = postgres.NewPerformanceRepo(db, cfg.Database.QueryTimeout)
		log.Info().Msg("using postgres intervention store")
	}
	a.repo = repo

	var readCache *cache.Cache
	if cfg.Redis.Addr != "" {
		a.rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		readCache = cache.New(a.rdb, cfg.Redis.TTL)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("read-model cache enabled")
	}

	emitters := events.Multi{events.LogEmitter{}, a.hub}
	if cfg.Webhook.URL != "" {
		emitters = append(emitters, events.NewWebhookEmitter(cfg.Webhook))
		log.Info().Str("url", cfg.Webhook.URL).Msg("webhook emitter enabled")
	}

	builder := snapshot.NewBuilder(a.store, a.store, a.store, cfg.Snapshot, clk)
	a.syncer = syncer.New(a.store, builder, rules.NewGenerator(nil), guardrails.NewEvaluator(cfg.Guardrails),
		repo, fitRepo, a.store, emitters, clk)
	a.decider = decision.NewEngine(repo, clk, emitters)
	a.stats = stats.NewAggregator(repo, cfg.Stats, clk)
	a.views = views.NewService(a.store, perfRepo, readCache, clk, cfg.TrendWindow)
	return a, nil
}

func runServe(ctx context.Context, configPath string) error {
	a, err := buildApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	h := handlers.New(a.repo, a.decider, a.syncer, a.stats, a.views, a.hub)
	server := httpiface.NewServer(a.cfg.Server, h)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	// Refresh the open-queue gauge on the same cadence dashboards poll.
	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := a.stats.Current(ctx, ""); err != nil {
					log.Warn().Err(err).Msg("stats poll failed")
				}
			}
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
