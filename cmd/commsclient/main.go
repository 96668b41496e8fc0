package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/AhmedTheGeek/umsg.ws-Communication-Manager/internal/archive"
	"github.com/AhmedTheGeek/umsg.ws-Communication-Manager/internal/auth"
	"github.com/AhmedTheGeek/umsg.ws-Communication-Manager/internal/config"
	"github.com/AhmedTheGeek/umsg.ws-Communication-Manager/internal/connection"
	"github.com/AhmedTheGeek/umsg.ws-Communication-Manager/internal/database"
	"github.com/AhmedTheGeek/umsg.ws-Communication-Manager/internal/events"
	"github.com/AhmedTheGeek/umsg.ws-Communication-Manager/internal/hook"
	"github.com/AhmedTheGeek/umsg.ws-Communication-Manager/internal/metrics"
	"github.com/AhmedTheGeek/umsg.ws-Communication-Manager/internal/router"
	"github.com/AhmedTheGeek/umsg.ws-Communication-Manager/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/commsclient.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "config", *configPath)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging, os.Stderr)
	slog.SetDefault(logger)

	logger.Info("starting commsclient",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"server", cfg.Client.ServerURL,
		"driver", cfg.Client.Driver,
	)

	if err := run(cfg, os.Stdin, os.Stdout, logger); err != nil {
		logger.Error("commsclient failed", "error", err)
		os.Exit(1)
	}

	logger.Info("commsclient stopped")
}

func run(cfg *config.Config, in io.Reader, out io.Writer, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	m := metrics.New()
	bus := events.NewBus(0, logger)
	defer bus.Close()

	factory, err := newTransportFactory(cfg, m, logger)
	if err != nil {
		return err
	}

	drainInterval := cfg.Client.DrainInterval
	if cfg.Client.EagerDrain {
		drainInterval = 0
	}
	controller := connection.NewController(connection.ControllerConfig{
		ServerURL:        cfg.Client.ServerURL,
		LivenessInterval: cfg.Client.LivenessInterval,
		DrainInterval:    drainInterval,
	}, factory, bus,
		connection.WithLogger(logger),
		connection.WithMetrics(m),
	)

	hooks := hook.NewRegistry()
	registerHooks(hooks, out, logger)

	rt := router.NewRouter(bus.Subscribe(events.TopicMessage), hooks, m, logger)
	if err := rt.Start(ctx); err != nil {
		return fmt.Errorf("start router: %w", err)
	}

	var (
		pool   *pgxpool.Pool
		writer *archive.Writer
	)
	if cfg.Archive.Enabled {
		pool, writer, err = startArchive(ctx, cfg.Archive, bus, m, logger)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	g, gctx := errgroup.WithContext(ctx)

	status := subscribeStatus(bus, connection.TransportName)
	g.Go(func() error {
		status.print(gctx, out, logger)
		return nil
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler:           newHealthHandler(controller, rt, writer, m, cfg.Metrics.Path, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		logger.Info("starting health server", "port", cfg.Metrics.Port, "metrics_path", cfg.Metrics.Path)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	if _, err := controller.Connect(gctx); err != nil {
		cancel()
		g.Wait()
		return fmt.Errorf("connect: %w", err)
	}

	// Scanning stdin cannot be interrupted, so it stays outside the group.
	go readInput(gctx, in, controller, logger)

	logger.Info("commsclient running",
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	groupErr := g.Wait()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := controller.Close(shutdownCtx); err != nil {
		logger.Warn("controller close failed", "error", err)
	}
	if err := rt.Stop(shutdownCtx); err != nil {
		logger.Warn("router stop failed", "error", err)
	}
	if writer != nil {
		if err := writer.Stop(shutdownCtx); err != nil {
			logger.Warn("archive stop failed", "error", err)
		}
	}

	return groupErr
}

func newLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func newTransportFactory(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (connection.TransportFactory, error) {
	dialer, err := connection.NewDialer(cfg.Client.Driver, cfg.Transport.HandshakeTimeout, cfg.Transport.WriteTimeout)
	if err != nil {
		return nil, err
	}

	opts := []connection.TransportOption{
		connection.WithTransportLogger(logger),
		connection.WithReconnectHook(m.ReconnectAttempt),
	}

	if cfg.Auth.Enabled() {
		creds, err := auth.LoadCredentials(cfg.Auth.KeyID, cfg.Auth.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("load credentials: %w", err)
		}
		opts = append(opts, connection.WithHeader(creds.HeaderFunc(cfg.Client.ServerURL)))
		logger.Info("signed handshake enabled", "key_id", creds.KeyID)
	}

	return connection.NewWSTransportFactory(connection.TransportConfig{
		ReconnectBaseDelay: cfg.Transport.ReconnectBaseDelay,
		ReconnectMaxDelay:  cfg.Transport.ReconnectMaxDelay,
		PingInterval:       cfg.Transport.PingInterval,
	}, dialer, opts...), nil
}

func startArchive(ctx context.Context, cfg config.ArchiveConfig, bus *events.Bus, m *metrics.Metrics, logger *slog.Logger) (*pgxpool.Pool, *archive.Writer, error) {
	pool, err := database.Connect(ctx, cfg.Database, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connect archive database: %w", err)
	}

	w := archive.NewWriter(archive.Config{
		Table:         cfg.Table,
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
		BufferSize:    cfg.BufferSize,
	}, pool, m, logger)

	if err := w.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := w.Start(ctx, bus.Subscribe(events.TopicMessage)); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("start archive: %w", err)
	}
	return pool, w, nil
}
