package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestServeRequiresConfig(t *testing.T) {
	c, _ := newTestCommand("")
	err := c.Serve(context.Background(), ServeFlags{}, nil)
	if err == nil || !strings.Contains(err.Error(), "config file required") {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestServeUntilCanceled(t *testing.T) {
	env := newTestEnv(t, "[server]\nlisten = \"127.0.0.1:0\"\n", "crt.sgp")
	pidFile := filepath.Join(env.dir, "glassd.pid")

	c, _ := newTestCommand("")
	c.errOut = io.Discard
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var served bool
	c.onServing = func(addr string) {
		defer cancel()
		resp, err := http.Get("http://" + addr + "/api/health")
		if err != nil {
			t.Errorf("health: %v", err)
			return
		}
		_ = resp.Body.Close()
		served = resp.StatusCode == http.StatusOK

		b, err := os.ReadFile(pidFile)
		if err != nil || string(b) != strconv.Itoa(os.Getpid()) {
			t.Errorf("pid file %q: %v", b, err)
		}
	}

	if err := c.Serve(ctx, ServeFlags{PidFile: pidFile}, []string{env.config}); err != nil {
		t.Fatalf("serve: %v", err)
	}
	if !served {
		t.Fatal("health endpoint was not served")
	}
	if _, err := os.Stat(pidFile); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("pid file should be removed, stat err=%v", err)
	}
	if c.global.ConfigPath != env.config {
		t.Fatalf("config path not recorded: %q", c.global.ConfigPath)
	}
}

func TestServeBadListen(t *testing.T) {
	env := newTestEnv(t, "[server]\nlisten = \"256.0.0.1:bad\"\n")
	c, _ := newTestCommand(env.config)
	c.errOut = io.Discard
	err := c.Serve(context.Background(), ServeFlags{ConfigPath: env.config}, nil)
	if err == nil || !strings.Contains(err.Error(), "failed to start HTTP server") {
		t.Fatalf("expected listen error, got %v", err)
	}
}
