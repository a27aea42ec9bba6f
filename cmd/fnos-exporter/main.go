package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/timandes/fnos-exporter/internal/collector"
	"github.com/timandes/fnos-exporter/internal/config"
	"github.com/timandes/fnos-exporter/internal/fnos"
	"github.com/timandes/fnos-exporter/internal/web"
)

func main() {
	configPath := flag.String("config", "", "path to config file (omit to configure via environment)")
	host := flag.String("host", "", "fnOS appliance address, overrides config")
	user := flag.String("user", "", "fnOS user, overrides config")
	listen := flag.String("listen", "", "listen address for the metrics endpoint, overrides config")
	interval := flag.Duration("interval", 0, "poll interval, overrides config")
	logLevel := flag.String("log-level", "", "log level: debug|info|warn|error, overrides config")
	flag.Parse()

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("fnos-exporter starting", "config", *configPath)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	applyOverrides(cfg, *host, *user, *listen, *interval, *logLevel)
	setLevel(level, cfg.Exporter.LogLevel)

	if cfg.Fnos.User == "" {
		slog.Error("no fnOS user configured — set fnos.user, FNOS_USER or -user")
		os.Exit(1)
	}
	password := cfg.Fnos.Password()
	if password == "" {
		slog.Error("no fnOS password found in environment", "password_env", cfg.Fnos.PasswordEnv)
		os.Exit(1)
	}

	slog.Info("config loaded",
		"host", cfg.Fnos.Host,
		"user", cfg.Fnos.User,
		"listen", cfg.Exporter.Listen,
		"poll_interval", cfg.Exporter.PollInterval,
		"collect_smart", cfg.Exporter.CollectSmart,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := fnos.NewClient(fnos.Options{
		Host:               cfg.Fnos.Host,
		User:               cfg.Fnos.User,
		Password:           password,
		Timeout:            cfg.Fnos.Timeout,
		InsecureSkipVerify: cfg.Fnos.TLS.InsecureSkipVerify,
	})

	pub := collector.NewPublished()
	poller := collector.NewPoller(client, pub, cfg.Exporter.PollInterval, cfg.Exporter.CollectSmart)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collector.NewExporter(pub),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Watch the config file for hot-reload: poll interval and log level
	// apply live, everything else needs a restart.
	if *configPath != "" {
		go func() {
			err := config.Watch(ctx, *configPath, func(updated *config.Config) {
				setLevel(level, updated.Exporter.LogLevel)
				poller.SetInterval(updated.Exporter.PollInterval)
			})
			if err != nil {
				slog.Error("config watcher stopped", "err", err)
			}
		}()
	}

	go poller.Run(ctx)

	srv := &http.Server{
		Addr:    cfg.Exporter.Listen,
		Handler: web.New(reg, cfg.Exporter.Auth),
	}
	go func() {
		slog.Info("metrics endpoint listening", "addr", cfg.Exporter.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("fnos-exporter shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}

// loadConfig picks the file or environment path depending on whether a
// config file was given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.FromEnv()
}

// applyOverrides copies non-empty CLI flags over the loaded config.
func applyOverrides(cfg *config.Config, host, user, listen string, interval time.Duration, logLevel string) {
	if host != "" {
		cfg.Fnos.Host = host
	}
	if user != "" {
		cfg.Fnos.User = user
	}
	if listen != "" {
		cfg.Exporter.Listen = listen
	}
	if interval > 0 {
		cfg.Exporter.PollInterval = interval
	}
	if logLevel != "" {
		cfg.Exporter.LogLevel = logLevel
	}
}

func setLevel(v *slog.LevelVar, name string) {
	switch name {
	case "debug":
		v.Set(slog.LevelDebug)
	case "warn":
		v.Set(slog.LevelWarn)
	case "error":
		v.Set(slog.LevelError)
	default:
		v.Set(slog.LevelInfo)
	}
}
