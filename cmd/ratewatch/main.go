// Command ratewatch runs the hotel rate intelligence backend: an API
// server, a scheduled scan worker and a migration tool.
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

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hoteliq/ratewatch/internal/alerting"
	"github.com/hoteliq/ratewatch/internal/api"
	"github.com/hoteliq/ratewatch/internal/auth"
	"github.com/hoteliq/ratewatch/internal/config"
	"github.com/hoteliq/ratewatch/internal/cron"
	"github.com/hoteliq/ratewatch/internal/keypool"
	"github.com/hoteliq/ratewatch/internal/metrics"
	"github.com/hoteliq/ratewatch/internal/migrate"
	"github.com/hoteliq/ratewatch/internal/notification"
	"github.com/hoteliq/ratewatch/internal/router"
	"github.com/hoteliq/ratewatch/internal/scan"
	"github.com/hoteliq/ratewatch/internal/storage"
	"github.com/hoteliq/ratewatch/pkg/providers"
	"github.com/hoteliq/ratewatch/pkg/providers/priceproviders"
	_ "github.com/hoteliq/ratewatch/pkg/providers/priceproviders/makcorps"
	_ "github.com/hoteliq/ratewatch/pkg/providers/priceproviders/serpapi"
)

func main() {
	// .env is optional; real deployments set env vars directly.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "ratewatch",
		Short:         "Hotel rate intelligence backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), workerCmd(), migrateCmd())

	if err := root.Execute(); err != nil {
		log.Fatalf("ratewatch: %v", err)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg := config.Load()
			app, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.store.Close()

			srv := &http.Server{
				Addr:              cfg.ListenAddr,
				Handler:           app.api.Routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Printf("api: listening on %s", cfg.ListenAddr)
				errCh <- srv.ListenAndServe()
			}()

			go app.reportDBPoolStats(ctx)

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			case <-ctx.Done():
				log.Printf("api: shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("shutdown: %w", err)
				}
			}
			return nil
		},
	}
}

func workerCmd() *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the scheduled scan worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg := config.Load()
			app, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.store.Close()

			worker := cron.NewWorker(app.store, app.orchestrator, app.alerter, cfg.ScanInterval)
			if once {
				worker.RunOnce(ctx)
				return nil
			}
			if err := worker.Run(ctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single scan cycle and exit")
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	run := func(fn func(context.Context, string, string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			return fn(cmd.Context(), cfg.DBDriver, cfg.DBDSN)
		}
	}
	cmd.AddCommand(
		&cobra.Command{Use: "up", Short: "Apply pending migrations", RunE: run(migrate.Up)},
		&cobra.Command{Use: "down", Short: "Roll back the last migration", RunE: run(migrate.Down)},
		&cobra.Command{Use: "status", Short: "Show migration status", RunE: run(migrate.Status)},
	)
	return cmd
}

type app struct {
	store        storage.Storage
	pools        *keypool.Manager
	router       *router.Router
	orchestrator *scan.Orchestrator
	alerter      *alerting.Alerter
	api          *api.Server
}

// buildApp wires storage, credential pools, the provider chain and the
// orchestrator from configuration.
func buildApp(ctx context.Context, cfg config.Config) (*app, error) {
	defaults := defaultProviderConfigs(cfg)
	store, err := storage.Open(ctx, storage.Config{
		Driver:    cfg.DBDriver,
		DSN:       cfg.DBDSN,
		Providers: defaults,
	})
	if err != nil {
		return nil, err
	}

	configs, err := effectiveProviderConfigs(ctx, store, defaults)
	if err != nil {
		store.Close()
		return nil, err
	}

	alerter := alerting.New(cfg.AlertWebhookURL, cfg.AlertWebhookKind)
	notifier := notification.NewService(store)

	pools := keypool.NewManager()
	var chain []priceproviders.PriceProvider
	for _, pc := range configs {
		if _, known := priceproviders.Get(pc.Name); !known {
			log.Printf("provider %s configured but not compiled in, skipping", pc.Name)
			continue
		}

		pool := keypool.New(pc.Name, pc.QuotaPerKey, keypool.EnvSource{Provider: pc.Name}, store)
		stored, err := store.ListCredentials(ctx, pc.Name)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("load credentials for %s: %w", pc.Name, err)
		}
		if err := pool.Load(ctx, stored); err != nil {
			store.Close()
			return nil, fmt.Errorf("load key pool %s: %w", pc.Name, err)
		}
		pool.SetExhaustedHook(alerter.PoolExhausted)
		pools.Register(pool)

		p, err := priceproviders.Build(pc.Name, priceproviders.Config{
			Name:     pc.Name,
			Priority: pc.Priority,
			Enabled:  pc.Enabled,
		}, pool)
		if err != nil {
			store.Close()
			return nil, err
		}
		chain = append(chain, p)
	}

	r := router.New(chain)
	orchestrator := scan.New(store, r, cfg.ScanWorkers, notifier)

	authService, err := auth.NewService(store, cfg.AuthEnabled)
	if err != nil {
		store.Close()
		return nil, err
	}
	if err := authService.Bootstrap(ctx, cfg.AdminUser, cfg.AdminPassword); err != nil {
		store.Close()
		return nil, fmt.Errorf("bootstrap admin: %w", err)
	}

	return &app{
		store:        store,
		pools:        pools,
		router:       r,
		orchestrator: orchestrator,
		alerter:      alerter,
		api:          api.NewServer(store, pools, r, orchestrator, authService),
	}, nil
}

func defaultProviderConfigs(cfg config.Config) []storage.ProviderConfig {
	return []storage.ProviderConfig{
		{Name: "serpapi", Type: string(providers.TypeSearchAPI), Priority: 1, Enabled: true, QuotaPerKey: cfg.SerpApiQuota},
		{Name: "makcorps", Type: string(providers.TypeAggregatorAPI), Priority: 2, Enabled: true, QuotaPerKey: cfg.MakcorpsQuota},
	}
}

// effectiveProviderConfigs returns stored configs, seeding defaults for
// providers that have no row yet.
func effectiveProviderConfigs(ctx context.Context, store storage.Storage, defaults []storage.ProviderConfig) ([]storage.ProviderConfig, error) {
	stored, err := store.ListProviderConfigs(ctx)
	if err != nil {
		return nil, err
	}
	have := make(map[string]bool, len(stored))
	for _, pc := range stored {
		have[pc.Name] = true
	}
	out := stored
	for _, def := range defaults {
		if have[def.Name] {
			continue
		}
		if err := store.UpsertProviderConfig(ctx, def); err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	return out, nil
}

// reportDBPoolStats exports pgx pool gauges while the server runs. Other
// backends have nothing to report.
func (a *app) reportDBPoolStats(ctx context.Context) {
	ps, ok := a.store.(*storage.PostgresPoolStorage)
	if !ok {
		return
	}
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stat := ps.Stat()
			metrics.UpdateDBPoolMetrics("postgrespool",
				float64(stat.TotalConns()), float64(stat.IdleConns()), float64(stat.AcquiredConns()))
		}
	}
}
