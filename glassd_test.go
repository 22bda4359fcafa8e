package glassd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/glassd/internal/overlay"
)

func writeConfig(t *testing.T, body string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	profiles := filepath.Join(dir, "profiles")
	if err := os.MkdirAll(profiles, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{"crt.sgp", "retro.sgp"} {
		if err := os.WriteFile(filepath.Join(profiles, p), []byte("#profile"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	cfg := "profiles_dir = " + quote(profiles) + "\ntag_prefix = \"[SG]\"\nstore = \"tags.db\"\n" + body
	path := filepath.Join(dir, "glassd.toml")
	if err := os.WriteFile(path, []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}
	return path, profiles
}

// quote renders a TOML literal string so Windows paths survive.
func quote(s string) string { return "'" + s + "'" }

func openDaemon(t *testing.T, body string) (*Daemon, string) {
	t.Helper()
	path, profiles := writeConfig(t, body)
	c, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	d, err := Open(context.Background(), c, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d, profiles
}

func TestOpenReconcileClose(t *testing.T) {
	d, _ := openDaemon(t, "history = ['sqlite://history.db']\n")
	if d.Tags() == nil {
		t.Fatal("expected a tag store")
	}
	var calls atomic.Int32
	sum, err := d.Reconcile(context.Background(), func(cur, total int, _ string) {
		calls.Add(1)
		if cur > total {
			t.Errorf("progress %d/%d", cur, total)
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if sum.Total != 2 || sum.TagsAdded != 2 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if calls.Load() == 0 {
		t.Fatal("progress was not reported")
	}
	// second pass through the hooks without progress is a no-op
	sum, err = d.Hooks().OnReconcileRequested(context.Background())
	if err != nil || sum.TagsAdded != 0 {
		t.Fatalf("second pass: %+v %v", sum, err)
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOpenWithoutStore(t *testing.T) {
	path, _ := writeConfig(t, "")
	c, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	c.Store = ""
	d, err := Open(context.Background(), c, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = d.Close() }()
	if _, err := d.Reconcile(context.Background(), nil); !errors.Is(err, overlay.ErrNoTagStore) {
		t.Fatalf("expected ErrNoTagStore, got %v", err)
	}
}

func TestOpenBadHistory(t *testing.T) {
	path, _ := writeConfig(t, "history = ['mqtt://broker']\n")
	c, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Open(context.Background(), c, nil); err == nil {
		t.Fatal("expected error for unsupported history DSN")
	}
}

func TestWatchProfilesReconciles(t *testing.T) {
	d, profiles := openDaemon(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.WatchProfiles(ctx); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(profiles, "scanlines.sgp"), []byte("#profile"), 0o644); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		tags, err := d.Tags().ListTags(ctx, "[SG]")
		if err != nil {
			t.Fatal(err)
		}
		if len(tags) == 3 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("watcher did not reconcile the new profile")
}

func TestServeHealth(t *testing.T) {
	d, _ := openDaemon(t, "[server]\nlisten = '127.0.0.1:0'\n")
	srv, err := d.Serve()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = srv.Close() }()
	resp, err := http.Get("http://" + srv.Addr + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestRegisterMetrics(t *testing.T) {
	if err := RegisterMetrics(prometheus.NewRegistry()); err != nil {
		t.Fatal(err)
	}
}
