//go:build !windows

package process

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/loykin/glassd/internal/logger"
)

// writeScript creates an executable shell script in a fresh temp dir.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "overlay.sh")
	if err := os.WriteFile(p, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return p
}

func waitDone(t *testing.T, p *Process, d time.Duration) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(d):
		t.Fatalf("process did not exit within %v", d)
	}
}

func TestStartPassesArgsAndWorkDir(t *testing.T) {
	script := writeScript(t, `echo "$@" > args.txt; pwd > pwd.txt`)
	p := New(Spec{Name: "args", Path: script, Args: []string{"-f", "/profiles/retro.sgp", "-p"}})
	if err := p.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, p, 3*time.Second)
	p.Release()

	dir := filepath.Dir(script)
	b, err := os.ReadFile(filepath.Join(dir, "args.txt"))
	if err != nil {
		t.Fatalf("read args: %v", err)
	}
	if got := strings.TrimSpace(string(b)); got != "-f /profiles/retro.sgp -p" {
		t.Fatalf("args = %q", got)
	}
	b, err = os.ReadFile(filepath.Join(dir, "pwd.txt"))
	if err != nil {
		t.Fatalf("read pwd: %v", err)
	}
	gotDir, _ := filepath.EvalSymlinks(strings.TrimSpace(string(b)))
	wantDir, _ := filepath.EvalSymlinks(dir)
	if gotDir != wantDir {
		t.Fatalf("work dir = %q, want %q", gotDir, wantDir)
	}
}

func TestArgsAreNotShellExpanded(t *testing.T) {
	script := writeScript(t, `printf '%s\n' "$1" > arg1.txt`)
	p := New(Spec{Name: "quote", Path: script, Args: []string{"/dir with space/$HOME;x.sgp"}})
	if err := p.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, p, 3*time.Second)
	b, _ := os.ReadFile(filepath.Join(filepath.Dir(script), "arg1.txt"))
	if got := strings.TrimSpace(string(b)); got != "/dir with space/$HOME;x.sgp" {
		t.Fatalf("arg mangled: %q", got)
	}
}

func TestTerminateRunning(t *testing.T) {
	p := New(Spec{Name: "sleeper", Path: writeScript(t, "sleep 30")})
	if err := p.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if p.PID() <= 0 || p.Exited() {
		t.Fatalf("expected running process, pid=%d", p.PID())
	}
	st := p.Snapshot()
	if !st.Running || st.PID != p.PID() {
		t.Fatalf("snapshot = %+v", st)
	}
	start := time.Now()
	if err := p.Terminate(5 * time.Second); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	if time.Since(start) > 4*time.Second {
		t.Fatalf("terminate took too long: %v", time.Since(start))
	}
	if !p.Exited() {
		t.Fatal("expected exited after terminate")
	}
	if p.Snapshot().Running {
		t.Fatal("snapshot still running")
	}
}

func TestTerminateEscalatesToKill(t *testing.T) {
	p := New(Spec{Name: "stubborn", Path: writeScript(t, "trap '' TERM\nsleep 30")})
	if err := p.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	// give the shell time to install the trap
	time.Sleep(100 * time.Millisecond)
	if err := p.Terminate(150 * time.Millisecond); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	if !p.Exited() {
		t.Fatal("expected exited after kill")
	}
}

func TestTerminateReportsSignalFailure(t *testing.T) {
	p := New(Spec{Name: "sleeper", Path: writeScript(t, "sleep 30")})
	if err := p.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	boom := errors.New("boom")
	p.signalFn = func(int, bool) error { return boom }
	err := p.Terminate(50 * time.Millisecond)
	if !errors.Is(err, ErrStopTimeout) || !errors.Is(err, boom) {
		t.Fatalf("expected timeout+boom, got %v", err)
	}
	p.signalFn = signal
	if err := p.Terminate(2 * time.Second); err != nil {
		t.Fatalf("cleanup terminate: %v", err)
	}
}

func TestTerminateNoopAfterSelfExit(t *testing.T) {
	p := New(Spec{Name: "quick", Path: writeScript(t, "exit 3")})
	if err := p.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, p, 3*time.Second)
	if err := p.Terminate(time.Second); err != nil {
		t.Fatalf("terminate after exit: %v", err)
	}
	if st := p.Snapshot(); st.ExitErr == "" {
		t.Fatalf("expected exit error recorded, got %+v", st)
	}
}

func TestTerminateBeforeStart(t *testing.T) {
	p := New(Spec{Name: "never", Path: "/nonexistent"})
	if err := p.Terminate(time.Second); err != nil {
		t.Fatalf("terminate unstarted: %v", err)
	}
	p.Release()
}

func TestStartErrors(t *testing.T) {
	if err := New(Spec{Name: "empty"}).Start(); err == nil {
		t.Fatal("expected error for empty path")
	}
	missing := filepath.Join(t.TempDir(), "missing.exe")
	if err := New(Spec{Name: "missing", Path: missing}).Start(); err == nil {
		t.Fatal("expected error for missing executable")
	}
	p := New(Spec{Name: "twice", Path: writeScript(t, "exit 0")})
	if err := p.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := p.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second start err = %v", err)
	}
	waitDone(t, p, 3*time.Second)
}

func TestOutputCapture(t *testing.T) {
	logDir := filepath.Join(t.TempDir(), "logs")
	p := New(Spec{
		Name: "capture",
		Path: writeScript(t, "echo hello-out; echo hello-err 1>&2"),
		Log:  logger.Config{File: logger.FileConfig{Dir: logDir}},
	})
	if err := p.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, p, 3*time.Second)
	p.Release()
	p.Release()
	b, err := os.ReadFile(filepath.Join(logDir, "capture.stdout.log"))
	if err != nil || !strings.Contains(string(b), "hello-out") {
		t.Fatalf("stdout log: %q err=%v", b, err)
	}
	b, err = os.ReadFile(filepath.Join(logDir, "capture.stderr.log"))
	if err != nil || !strings.Contains(string(b), "hello-err") {
		t.Fatalf("stderr log: %q err=%v", b, err)
	}
}
