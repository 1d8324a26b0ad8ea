package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/guillermoBallester/hrquery/internal/adapter/httpserver"
	"github.com/guillermoBallester/hrquery/internal/adapter/mcp"
	"github.com/guillermoBallester/hrquery/internal/app"
	"github.com/guillermoBallester/hrquery/internal/config"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.LoadDotEnv(); err != nil {
		return fmt.Errorf("loading .env: %w", err)
	}
	cfg, err := config.LoadServer()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	logger.Info("starting hrquery-server",
		slog.String("version", version),
		slog.String("log_level", cfg.LogLevel.String()),
		slog.String("listen_addr", cfg.ListenAddr),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	engine, err := app.New(ctx, cfg.Config, logger, app.Options{})
	if err != nil {
		return fmt.Errorf("building engine: %w", err)
	}
	defer engine.Close()

	mcpSrv := mcp.NewServer(version, mcp.Deps{
		Query:             engine.Query,
		Discovery:         engine.Discovery,
		DefaultConnString: cfg.DatabaseURL,
	}, logger.With(slog.String("component", "mcp")))

	srv := httpserver.New(httpserver.Config{
		ListenAddr:        cfg.ListenAddr,
		CORSOrigins:       cfg.CORSOrigins,
		RateLimitRPS:      cfg.RateLimitRPS,
		RateLimitBurst:    cfg.RateLimitBurst,
		MaxUploadBytes:    cfg.MaxUploadBytes(),
		DefaultConnString: cfg.DatabaseURL,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}, httpserver.Services{
		Query:     engine.Query,
		Discovery: engine.Discovery,
		Ingestion: engine.Ingestion,
		History:   engine.History,
		MCP:       mcpSrv,
	}, logger)

	// Warm the schema of the default database; a failure is retried on first use.
	if cfg.DatabaseURL != "" {
		if _, err := engine.Discovery.Discover(ctx, cfg.DatabaseURL); err != nil {
			logger.Warn("initial schema discovery failed", slog.String("error", err.Error()))
		}
	}

	// Second signal during shutdown = hard exit.
	go func() {
		<-ctx.Done()
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh
		logger.Warn("forced shutdown", slog.String("signal", sig.String()))
		os.Exit(1)
	}()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.ListenAndServe()
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("shutdown complete")
	return nil
}
