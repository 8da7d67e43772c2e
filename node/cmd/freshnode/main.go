package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/freshwatch/freshwatch/node/internal/api"
	"github.com/freshwatch/freshwatch/node/internal/config"
	"github.com/freshwatch/freshwatch/node/internal/executor"
	"github.com/freshwatch/freshwatch/node/internal/fetch"
	"github.com/freshwatch/freshwatch/node/internal/health"
	"github.com/freshwatch/freshwatch/node/internal/hub"
	"github.com/freshwatch/freshwatch/node/internal/metrics"
	"github.com/freshwatch/freshwatch/node/internal/registry"
	"github.com/freshwatch/freshwatch/node/internal/retriever"
)

func main() {
	configPath := pflag.String("config", "freshwatch.yaml", "path to config file")
	logLevel := pflag.String("log-level", "", "override node.log_level (debug, info, warn, error)")
	pflag.Parse()

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("freshnode starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Node.LogLevel = *logLevel
	}
	level.Set(cfg.Node.SlogLevel())

	slog.Info("config loaded",
		"http_port", cfg.Node.HTTPPort,
		"grpc_port", cfg.Node.GRPCPort,
		"gateway", cfg.Gateway.Endpoint,
		"max_temporary_fetchers", cfg.Tracker.MaxTemporaryFetchers,
		"subscriptions", len(cfg.Tracker.Subscriptions),
	)

	if err := run(*configPath, cfg, level, *logLevel != ""); err != nil {
		slog.Error("freshnode stopped", "err", err)
		os.Exit(1)
	}
}

func run(configPath string, cfg *config.Config, level *slog.LevelVar, pinnedLevel bool) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	gw, err := fetch.NewGateway(cfg.Gateway)
	if err != nil {
		return fmt.Errorf("gateway: %w", err)
	}

	reg := registry.New(cfg.Tracker, gw, executor.NewGo())
	defer reg.Close()

	// Static subscriptions log each retrieved edition.
	for _, sub := range cfg.Tracker.Subscriptions {
		key := sub.ParsedKey()
		r, err := retriever.Subscribe(reg, gw, key, logResult, sub.Background)
		if err != nil {
			return err
		}
		defer r.Unsubscribe()
		slog.Info("subscribed", "key", key.ClearKey.String(), "edition", int64(key.Edition),
			"background", sub.Background)
	}

	grpcSrv, err := health.NewWithAddr(fmt.Sprintf(":%d", cfg.Node.GRPCPort), cfg.Node.APIKey())
	if err != nil {
		return err
	}

	h := hub.New(reg)

	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", api.New(reg))
	httpMux.Handle("/ws/stream", h)
	httpMux.Handle("/metrics", metrics.Handler(reg))

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Node.HTTPPort),
		Handler:           httpMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		h.Run(ctx)
		return nil
	})

	g.Go(func() error {
		return grpcSrv.Serve(ctx)
	})

	g.Go(func() error {
		slog.Info("HTTP server listening", "port", cfg.Node.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		slog.Info("freshnode shutting down")
		grpcSrv.SetTrackerServing(false)
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		return httpSrv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return config.Watch(ctx, configPath, func(next *config.Config) {
			reg.SetPoolCapacity(next.Tracker.MaxTemporaryFetchers)
			if !pinnedLevel {
				level.Set(next.Node.SlogLevel())
			}
		})
	})

	return g.Wait()
}

func logResult(res retriever.Result) {
	slog.Info("edition retrieved",
		"key", res.Update.Key.ClearKey.String(),
		"edition", int64(res.Update.Edition),
		"known_good", res.Update.KnownGood,
		"content_type", res.Content.ContentType,
		"size", res.Content.Size,
	)
}
