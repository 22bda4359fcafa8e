package glassd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/glassd/internal/config"
	"github.com/loykin/glassd/internal/history"
	hfactory "github.com/loykin/glassd/internal/history/factory"
	"github.com/loykin/glassd/internal/metrics"
	"github.com/loykin/glassd/internal/overlay"
	"github.com/loykin/glassd/internal/profile"
	"github.com/loykin/glassd/internal/server"
	"github.com/loykin/glassd/internal/store"
	sfactory "github.com/loykin/glassd/internal/store/factory"
)

// Re-export core types for external consumers.

type Config = config.Config

type Status = overlay.Status

type Summary = profile.Summary

type Hooks = overlay.Hooks

type ProgressFunc = profile.ProgressFunc

func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// Daemon wires the overlay manager to its tag store and history sinks.
type Daemon struct {
	cfg     *Config
	logger  *slog.Logger
	mgr     *overlay.Manager
	tags    store.Store
	history *history.Recorder

	mu      sync.Mutex
	watcher *profile.Watcher
	closed  bool
}

// Open builds a Daemon from c. The tag store is opened (and its schema
// created) when c.Store is set; history sinks are opened for every DSN in
// c.History.
func Open(ctx context.Context, c *Config, l *slog.Logger) (*Daemon, error) {
	if l == nil {
		l = slog.Default()
	}
	opts, err := c.OverlayOptions(l)
	if err != nil {
		return nil, fmt.Errorf("overlay environment: %w", err)
	}
	d := &Daemon{cfg: c, logger: l, mgr: overlay.NewManager(opts)}
	if dsn := c.StoreDSN(); dsn != "" {
		s, err := sfactory.Open(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("open tag store: %w", err)
		}
		d.tags = s
		d.mgr.SetReconciler(c.Reconciler(l), s)
	}
	rec, err := hfactory.NewRecorderFromDSNs(l, c.HistoryDSNs())
	if err != nil {
		if d.tags != nil {
			_ = d.tags.Close()
		}
		return nil, fmt.Errorf("open history sinks: %w", err)
	}
	d.history = rec
	d.mgr.SetHistory(rec)
	return d, nil
}

func (d *Daemon) Manager() *overlay.Manager { return d.mgr }

// Hooks returns the host lifecycle callbacks.
func (d *Daemon) Hooks() Hooks { return d.mgr }

// Tags returns the tag store, nil when none is configured.
func (d *Daemon) Tags() store.Store { return d.tags }

// Router returns the HTTP surface mounted at the configured base path.
func (d *Daemon) Router() *server.Router {
	r := server.NewRouter(d.mgr, d.tags, d.cfg.Server.BasePath)
	r.SetLogger(d.logger)
	return r
}

// Serve starts the HTTP server on the configured listen address.
func (d *Daemon) Serve() (*http.Server, error) {
	return server.NewServer(d.cfg.Server.Listen, d.Router())
}

// Reconcile refreshes profile tags, reporting progress when progress is set.
func (d *Daemon) Reconcile(ctx context.Context, progress ProgressFunc) (Summary, error) {
	if d.tags == nil {
		return Summary{}, overlay.ErrNoTagStore
	}
	if progress == nil {
		return d.mgr.OnReconcileRequested(ctx)
	}
	r := d.cfg.Reconciler(d.logger)
	r.Progress = progress
	d.mgr.SetReconciler(r, d.tags)
	defer d.mgr.SetReconciler(d.cfg.Reconciler(d.logger), d.tags)
	return d.mgr.OnReconcileRequested(ctx)
}

// WatchProfiles reconciles whenever profile files are added or removed.
func (d *Daemon) WatchProfiles(ctx context.Context) error {
	w, err := profile.NewWatcher(d.cfg.ProfilesDir, profile.DefaultDebounce, func() {
		_, _ = d.mgr.OnReconcileRequested(ctx)
	}, d.logger)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.watcher = w
	d.mu.Unlock()
	w.Start(ctx)
	return nil
}

// SampleResources refreshes per-overlay resource gauges every interval
// until ctx is done.
func (d *Daemon) SampleResources(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				_ = d.mgr.List()
			}
		}
	}()
}

// Close stops the watcher and every overlay, then closes sinks and the
// store. It is safe to call more than once.
func (d *Daemon) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	w := d.watcher
	d.mu.Unlock()

	if w != nil {
		w.Stop()
	}
	errs := []error{d.mgr.StopAll(), d.history.Close()}
	if d.tags != nil {
		errs = append(errs, d.tags.Close())
	}
	return errors.Join(errs...)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the default registry.
// It returns any immediate listen error; otherwise it runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
