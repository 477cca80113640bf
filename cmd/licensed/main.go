// Command licensed runs the node licensing daemon: it loads configuration,
// opens the persistence backend, and keeps the registration sweep running.
// Service operations are invoked in-process; the only network surface is
// the observability endpoint (/metrics, /healthz).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongooptions "go.mongodb.org/mongo-driver/v2/mongo/options"
	"golang.org/x/sync/errgroup"

	"nodelicense/internal/config"
	"nodelicense/internal/infrastructure"
	"nodelicense/internal/license"
	"nodelicense/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "licensed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", os.Getenv("LICENSED_CONFIG_FILE"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger, err := infrastructure.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, cleanup, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer cleanup()

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = st.Ping(pingCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("store ping failed: %w", err)
	}

	var (
		metrics   *license.Metrics
		telemetry *infrastructure.Telemetry
	)
	if cfg.Metrics.Enabled {
		telemetry, err = infrastructure.NewTelemetry()
		if err != nil {
			return err
		}
		metrics, err = license.NewMetrics(telemetry.Meter("nodelicense"))
		if err != nil {
			return fmt.Errorf("create metrics: %w", err)
		}
	}

	clock := clockwork.NewRealClock()
	svc := license.NewService(st, clock, cfg, logger, license.WithMetrics(metrics))
	registrar := license.NewRegistrar(svc, clock, cfg.Registration, logger)
	registrar.Start()
	defer registrar.Stop()

	logger.InfoContext(ctx, "licensing service started",
		slog.String("store_driver", cfg.Store.Driver),
		slog.Duration("registration_delay", cfg.Registration.Delay),
		slog.Int("max_devices", cfg.Quota.MaxDevices),
	)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			if err := st.Ping(r.Context()); err != nil {
				http.Error(w, "store unavailable", http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})

		srv := &http.Server{
			Addr:              cfg.Metrics.ListenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		g.Go(func() error {
			logger.InfoContext(gctx, "observability endpoint listening",
				slog.String("addr", cfg.Metrics.ListenAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("observability server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	if telemetry != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Warn("meter provider shutdown", slog.String("error", err.Error()))
		}
	}

	logger.Info("licensing service stopped")
	return nil
}

// openStore opens the configured persistence backend and returns it with a
// cleanup releasing any backing client.
func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, func(), error) {
	switch cfg.Driver {
	case "file":
		st, err := store.OpenFileStore(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open file store: %w", err)
		}
		return st, func() { _ = st.Close(context.Background()) }, nil

	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		st, err := store.NewPostgresStore(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("init postgres store: %w", err)
		}
		return st, pool.Close, nil

	case "mongo":
		client, err := mongo.Connect(mongooptions.Client().ApplyURI(cfg.DSN))
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		st, err := store.NewMongoStore(ctx, client.Database(cfg.Database))
		if err != nil {
			_ = client.Disconnect(ctx)
			return nil, nil, fmt.Errorf("init mongo store: %w", err)
		}
		return st, func() { _ = client.Disconnect(context.Background()) }, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
