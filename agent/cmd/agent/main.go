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

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/alerts"
	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/api"
	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/config"
	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/history"
	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/orchestrator"
	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/remediation"
	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/sink"
	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	setupLogging(cfg.Agent.Log)

	a := cfg.Agent
	slog.Info("backendmon-agent starting",
		"config", *configPath,
		"backends", len(a.Backends),
		"check_interval", a.CheckInterval,
		"http_port", a.HTTPPort,
		"alert_rules", len(a.Alerts.Rules),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	hist := history.New(a.HistoryCapacity)
	opts := []orchestrator.Option{
		orchestrator.WithHistory(hist),
		orchestrator.WithController(remediation.New(a.DefaultCooldown)),
		orchestrator.WithMaxConcurrency(a.MaxConcurrency),
	}

	if a.Sink.RedisURL != "" {
		rs, err := sink.NewRedis(sink.Config{
			URL:       a.Sink.RedisURL,
			Password:  a.Sink.Password(),
			KeyPrefix: a.Sink.KeyPrefix,
			Capacity:  a.HistoryCapacity,
		})
		if err != nil {
			// History stays in memory; the agent is still useful without it.
			slog.Error("redis sink disabled", "err", err)
		} else {
			defer rs.Close()
			if err := rs.Restore(ctx, hist, names(a.Backends)); err != nil {
				slog.Warn("history restore failed", "err", err)
			}
			opts = append(opts, orchestrator.WithSink(rs))
			slog.Info("redis sink enabled", "key_prefix", a.Sink.KeyPrefix)
		}
	}

	alertEngine, err := alerts.New(a.Alerts)
	if err != nil {
		slog.Error("failed to build alert rules", "err", err)
		os.Exit(1)
	}
	defer alertEngine.Wait()

	var (
		orch *orchestrator.Orchestrator
		hub  *ws.Hub
	)
	opts = append(opts, orchestrator.WithCycleHook(func(states map[string]orchestrator.BackendState) {
		alertEngine.Evaluate(states, func(name string) float64 {
			return orch.Uptime(name, api.UptimeWindow)
		})
		hub.Notify()
	}))
	orch = orchestrator.New(opts...)
	defer func() {
		if err := orch.Close(); err != nil {
			slog.Warn("closing probes", "err", err)
		}
	}()
	hub = ws.New(orch, a.StreamInterval)

	backends := newBackendSet(orch)
	backends.onRemove = alertEngine.Forget
	reloads := make(chan *config.Config, 1)
	backends.apply(a.Backends)
	if orch.Registry().Len() == 0 {
		slog.Warn("no backends registered, agent will idle")
	}

	go func() {
		if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
			select {
			case reloads <- updated:
			case <-ctx.Done():
			}
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case updated := <-reloads:
				// Only the backend list is applied live; agent-level
				// settings take effect on restart.
				backends.apply(updated.Agent.Backends)
				slog.Info("backends reconciled", "registered", orch.Registry().Len())
				hub.Notify()
			}
		}
	}()

	go hub.Run(ctx)
	go orch.Run(ctx, a.CheckInterval)

	mux := http.NewServeMux()
	mux.Handle("/api/", api.New(orch, api.WithAlerts(alertEngine)))
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/ws/stream", hub)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("backendmon-agent shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx) //nolint:errcheck
}

// setupLogging installs the process-wide slog handler: JSON on stdout for
// collectors, or colored text via tint for terminals.
func setupLogging(lc config.LogConfig) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(lc.Level)); err != nil {
		level = slog.LevelInfo
	}

	var h slog.Handler
	if lc.Format == "text" {
		h = tint.NewHandler(os.Stderr, &tint.Options{Level: level, TimeFormat: time.RFC3339})
	} else {
		h = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(h))
}
