package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/loykin/glassd"
	"github.com/loykin/glassd/internal/logger"
)

// resourceSampleEvery is how often overlay resource gauges are refreshed
// while metrics are exported.
const resourceSampleEvery = 15 * time.Second

// Serve runs the daemon until ctx is canceled: it loads the config, opens
// the store and history sinks, refreshes profile tags, starts the optional
// profile watcher and serves the HTTP API. All overlays are stopped before
// it returns.
func (c *command) Serve(ctx context.Context, flags ServeFlags, args []string) error {
	configPath := flags.ConfigPath
	if len(args) > 0 {
		configPath = args[0]
	}
	if configPath == "" {
		return fmt.Errorf("config file required for serve command. Use --config=config.toml or provide as argument")
	}
	c.global.ConfigPath = configPath
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}

	pidFile := flags.PidFile
	if pidFile == "" {
		pidFile = cfg.Server.PIDFile
	}
	if flags.Daemonize {
		logFile := flags.LogFile
		if logFile == "" {
			logFile = cfg.Server.LogFile
		}
		return daemonize(pidFile, logFile)
	}

	l, closer := logger.New(cfg.Log, c.errOut)
	defer func() { _ = closer.Close() }()

	if err := cfg.Verify(); err != nil {
		l.Warn("settings are incomplete, overlays will not launch until fixed", "error", err)
	}

	d, err := glassd.Open(ctx, cfg, l)
	if err != nil {
		return err
	}
	defer func() {
		if err := d.Close(); err != nil {
			l.Error("shutdown", "error", err)
		}
	}()

	if cfg.Metrics.Listen != "" {
		if err := glassd.RegisterMetricsDefault(); err != nil {
			l.Warn("failed to register metrics", "error", err)
		}
		go func() {
			if err := glassd.ServeMetrics(cfg.Metrics.Listen); err != nil {
				l.Error("metrics server error", "listen", cfg.Metrics.Listen, "error", err)
			}
		}()
		d.SampleResources(ctx, resourceSampleEvery)
	}

	if cfg.ReconcileOnStart && d.Tags() != nil {
		// failures are already logged by the reconciler
		_, _ = d.Hooks().OnReconcileRequested(ctx)
	}
	if cfg.WatchProfiles {
		if err := d.WatchProfiles(ctx); err != nil {
			l.Warn("profile watcher not started", "dir", cfg.ProfilesDir, "error", err)
		}
	}

	srv, err := d.Serve()
	if err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	if pidFile != "" {
		if err := writePidFile(pidFile, os.Getpid()); err != nil {
			l.Warn("failed to write PID file", "path", pidFile, "error", err)
		}
		defer func() { _ = removePidFile(pidFile) }()
	}
	l.Info("glassd serving", "addr", srv.Addr, "base_path", cfg.Server.BasePath)
	if c.onServing != nil {
		c.onServing(srv.Addr)
	}

	<-ctx.Done()
	l.Info("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}
