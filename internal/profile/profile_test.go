package profile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("#profile"), 0o644); err != nil {
			t.Fatalf("write %s: %v", n, err)
		}
	}
}

func TestStemAndFileName(t *testing.T) {
	cases := map[string][2]string{
		"retro":     {"retro", "retro.sgp"},
		"retro.sgp": {"retro", "retro.sgp"},
		"Retro.SGP": {"Retro", "Retro.SGP"},
		"a.b":       {"a.b", "a.b.sgp"},
	}
	for in, want := range cases {
		if got := Stem(in); got != want[0] {
			t.Fatalf("Stem(%q) = %q", in, got)
		}
		if got := FileName(in); got != want[1] {
			t.Fatalf("FileName(%q) = %q", in, got)
		}
	}
}

func TestIsIgnored(t *testing.T) {
	ignored := []string{"B.sgp", "crt"}
	if !IsIgnored("b.sgp", ignored) || !IsIgnored("crt.sgp", ignored) {
		t.Fatal("expected case-insensitive ignore match")
	}
	if IsIgnored("a.sgp", ignored) || IsIgnored("a.sgp", nil) {
		t.Fatal("unexpected ignore match")
	}
}

func TestListTopLevelProfilesOnly(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "b.sgp", "a.SGP", "notes.txt")
	if err := os.Mkdir(filepath.Join(dir, "nested.sgp"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	touch(t, filepath.Join(dir, "sub"), "deep.sgp")

	entries, err := List(dir, []string{"b.sgp"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %+v", entries)
	}
	if entries[0].FileName != "a.SGP" || entries[0].Name != "a" || entries[0].Ignored {
		t.Fatalf("entry 0 = %+v", entries[0])
	}
	if entries[1].FileName != "b.sgp" || !entries[1].Ignored {
		t.Fatalf("entry 1 = %+v", entries[1])
	}
}

func TestListMissingDir(t *testing.T) {
	if _, err := List("", nil); !errors.Is(err, ErrDirMissing) {
		t.Fatalf("empty dir err = %v", err)
	}
	if _, err := List(filepath.Join(t.TempDir(), "nope"), nil); !errors.Is(err, ErrDirMissing) {
		t.Fatalf("missing dir err = %v", err)
	}
}

func TestResolve(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "retro.sgp", "CRT-Royale.sgp")

	p, err := Resolve(dir, "retro")
	if err != nil || p != filepath.Join(dir, "retro.sgp") {
		t.Fatalf("Resolve(retro) = %q, %v", p, err)
	}
	p, err = Resolve(dir, "retro.sgp")
	if err != nil || p != filepath.Join(dir, "retro.sgp") {
		t.Fatalf("Resolve(retro.sgp) = %q, %v", p, err)
	}
	p, err = Resolve(dir, "crt-royale")
	if err != nil || filepath.Base(p) != "CRT-Royale.sgp" {
		t.Fatalf("case-insensitive resolve = %q, %v", p, err)
	}
	if _, err := Resolve(dir, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing err = %v", err)
	}
	for _, bad := range []string{"", "../etc/passwd", "sub/x", `..\x`} {
		if _, err := Resolve(dir, bad); !errors.Is(err, ErrInvalidName) {
			t.Fatalf("Resolve(%q) err = %v", bad, err)
		}
	}
	if _, err := Resolve(filepath.Join(dir, "nope"), "retro"); !errors.Is(err, ErrDirMissing) {
		t.Fatalf("missing dir err = %v", err)
	}
}
