//go:build !windows

package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestRunWithoutOverlay(t *testing.T) {
	env := newTestEnv(t, "", "crt.sgp")
	c, out := newTestCommand(env.config)
	err := c.Run(context.Background(), RunFlags{Tags: []string{"RPG"}}, []string{"sh", "-c", "echo played"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "played") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestRunReportsGameFailure(t *testing.T) {
	env := newTestEnv(t, "")
	c, _ := newTestCommand(env.config)
	if err := c.Run(context.Background(), RunFlags{}, []string{"sh", "-c", "exit 3"}); err == nil {
		t.Fatal("expected the game's exit status")
	}
	if err := c.Run(context.Background(), RunFlags{}, nil); err == nil {
		t.Fatal("expected error without a command")
	}
}

func TestRunLaunchFailureStillRunsGame(t *testing.T) {
	// the profile exists but the overlay executable does not
	env := newTestEnv(t, "executable = '/nonexistent/ShaderGlass'\n", "crt.sgp")
	c, out := newTestCommand(env.config)
	errOut := &bytes.Buffer{}
	c.errOut = errOut
	err := c.Run(context.Background(), RunFlags{EntityID: "g1", Tags: []string{"[SG] crt"}}, []string{"sh", "-c", "echo played"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "played") {
		t.Fatalf("game did not run: %q", out.String())
	}
	if !strings.Contains(errOut.String(), "overlay not started") {
		t.Fatal("launch failure was not reported")
	}
}
