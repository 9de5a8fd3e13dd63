package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/luizidebook/morro-digital-sub002/internal/api"
	"github.com/luizidebook/morro-digital-sub002/pkg/config"
	"github.com/luizidebook/morro-digital-sub002/pkg/db"
	"github.com/luizidebook/morro-digital-sub002/pkg/directions"
	"github.com/luizidebook/morro-digital-sub002/pkg/location"
	"github.com/luizidebook/morro-digital-sub002/pkg/location/mockgeo"
	"github.com/luizidebook/morro-digital-sub002/pkg/location/netgeo"
	"github.com/luizidebook/morro-digital-sub002/pkg/logging"
	"github.com/luizidebook/morro-digital-sub002/pkg/probe"
	"github.com/luizidebook/morro-digital-sub002/pkg/request"
	"github.com/luizidebook/morro-digital-sub002/pkg/session"
	"github.com/luizidebook/morro-digital-sub002/pkg/store"
	"github.com/luizidebook/morro-digital-sub002/pkg/tracker"
	"github.com/luizidebook/morro-digital-sub002/pkg/version"
)

var (
	configPath = flag.String("config", "configs/navigator.yaml", "Path to config file")
	initConfig = flag.Bool("init-config", false, "Generate default config file and exit")
)

func main() {
	flag.Parse()

	if *initConfig {
		if err := config.Save(*configPath, config.DefaultConfig()); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Config file generated:", *configPath)
		return
	}

	if err := run(context.Background(), *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	slog.Info("Navigator started", "version", version.Version)

	dbConn, err := db.Init(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbConn.Close()
	st := store.NewSQLiteStore(dbConn)

	provider, closeProvider, err := initProvider(cfg)
	if err != nil {
		return err
	}
	defer closeProvider()

	trk := tracker.New()
	reqClient := request.New(st, trk, request.ClientConfig{
		Retries:   cfg.Request.Retries,
		Timeout:   time.Duration(cfg.Request.Timeout),
		BaseDelay: time.Duration(cfg.Request.Backoff.BaseDelay),
		MaxDelay:  time.Duration(cfg.Request.Backoff.MaxDelay),
	})
	dirClient := directions.NewClient(reqClient, &cfg.Directions)

	// The UI reports foreground/background over the API; visible until
	// told otherwise.
	var visible atomic.Bool
	visible.Store(true)

	sess := session.New(session.Options{
		Config:     cfg,
		Store:      st,
		Tracker:    trk,
		Provider:   provider,
		Directions: dirClient,
		Visible:    visible.Load,
	})
	sess.Start(ctx)
	defer sess.Shutdown()

	// Startup Probes
	results := probe.Run(ctx, []probe.Probe{
		probe.StoreProbe(st),
		probe.ProviderProbe(provider, &cfg.Location),
		probe.DirectionsProbe(dirClient.Ping),
	})
	if err := probe.AnalyzeResults(results); err != nil {
		return fmt.Errorf("startup checks failed: %w", err)
	}

	return runServer(ctx, cfg, sess, trk, &visible)
}

// initProvider selects the geolocation source. The closer is a no-op for
// providers without resources to release.
func initProvider(cfg *config.Config) (location.Provider, func(), error) {
	switch cfg.Location.Provider {
	case "net":
		p, err := netgeo.Listen(cfg.Location.Net)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to start net provider: %w", err)
		}
		return p, func() { _ = p.Close() }, nil
	case "mock":
		slog.Warn("Using mock location provider, fixes are simulated")
		return mockgeo.New(cfg.Location.Mock), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown location provider %q", cfg.Location.Provider)
	}
}

func runServer(ctx context.Context, cfg *config.Config, sess *session.Session, trk *tracker.Tracker, visible *atomic.Bool) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	shutdownFunc := func() { quit <- syscall.SIGTERM }

	srv := api.NewServer(cfg.Server.Address,
		api.NewNavigationHandler(sess),
		api.NewPositionHandler(sess),
		api.NewStatsHandler(trk),
		api.NewVisibilityHandler(visible),
		api.NewEventsHandler(sess.Machine),
		shutdownFunc,
	)
	srv.Handler = loggingMiddleware(srv.Handler)

	slog.Info("Starting server", "addr", srv.Addr)
	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	select {
	case <-quit:
		slog.Info("Shutting down server...")
	case <-ctx.Done():
		slog.Info("Context cancelled, shutting down...")
	case err := <-serverErrors:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("Request processed", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
