package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/loykin/glassd/internal/overlay"
	"github.com/loykin/glassd/internal/profile"
	"github.com/loykin/glassd/internal/store"
	"github.com/loykin/glassd/internal/store/sqlite"
)

const prefix = "[SG]"

type fixture struct {
	mgr      *overlay.Manager
	tags     store.Store
	profiles string
	h        http.Handler
}

func newFixture(t *testing.T, base, exe string, profiles ...string) fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := filepath.Join(t.TempDir(), "profiles")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, p := range profiles {
		if err := os.WriteFile(filepath.Join(dir, p), []byte("#profile"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	db, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	if err := db.EnsureSchema(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mgr := overlay.NewManager(overlay.Options{Executable: exe, ProfilesDir: dir, TagPrefix: prefix})
	mgr.SetReconciler(profile.Reconciler{Ignored: []string{"skip.sgp"}}, db)
	t.Cleanup(func() { _ = mgr.StopAll() })
	return fixture{mgr: mgr, tags: db, profiles: dir, h: NewRouter(mgr, db, base).Handler()}
}

func doReq(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t, "/api", "")
	rec := doReq(t, f.h, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestStartingWithoutProfileDirective(t *testing.T) {
	f := newFixture(t, "/api", "")
	rec := doReq(t, f.h, http.MethodPost, "/api/entities/g1/starting", startingReq{Tags: []string{"RPG", prefix + " NoFullscreen"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp startingResp
	decode(t, rec, &resp)
	if resp.Launched || resp.Reason == "" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestStartingConfigError(t *testing.T) {
	f := newFixture(t, "", filepath.Join(t.TempDir(), "missing.exe"), "retro.sgp")
	rec := doReq(t, f.h, http.MethodPost, "/entities/g1/starting", startingReq{Tags: []string{prefix + " retro"}})
	if rec.Code != http.StatusPreconditionFailed {
		t.Fatalf("expected 412, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestStartingProfileNotFound(t *testing.T) {
	exe := filepath.Join(t.TempDir(), "ShaderGlass.exe")
	if err := os.WriteFile(exe, []byte("stub"), 0o755); err != nil {
		t.Fatal(err)
	}
	f := newFixture(t, "", exe, "retro.sgp")
	rec := doReq(t, f.h, http.MethodPost, "/entities/g1/starting", startingReq{Tags: []string{prefix + " missing"}})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestStartingReadsTagsFromStore(t *testing.T) {
	f := newFixture(t, "", filepath.Join(t.TempDir(), "missing.exe"), "retro.sgp")
	ctx := context.Background()
	tag, err := f.tags.CreateTag(ctx, prefix+" retro")
	if err != nil {
		t.Fatal(err)
	}
	if err := f.tags.AssignTag(ctx, "g1", tag.ID); err != nil {
		t.Fatal(err)
	}
	// no body: the stored tag selects a profile, so the missing executable surfaces
	rec := doReq(t, f.h, http.MethodPost, "/entities/g1/starting", nil)
	if rec.Code != http.StatusPreconditionFailed {
		t.Fatalf("expected 412, got %d: %s", rec.Code, rec.Body.String())
	}
	// an entity without tags is simply not launched
	rec = doReq(t, f.h, http.MethodPost, "/entities/g2/starting", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestStartingBadRequest(t *testing.T) {
	f := newFixture(t, "", "")
	req := httptest.NewRequest(http.MethodPost, "/entities/g1/starting", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	rec = doReq(t, f.h, http.MethodPost, "/entities/a..b/starting", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unsafe id, got %d", rec.Code)
	}
}

func TestStoppedUnknownEntity(t *testing.T) {
	f := newFixture(t, "", "")
	rec := doReq(t, f.h, http.MethodPost, "/entities/nobody/stopped", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRefreshAndTags(t *testing.T) {
	f := newFixture(t, "/api", "", "retro.sgp", "crt.sgp", "skip.sgp")
	rec := doReq(t, f.h, http.MethodPost, "/api/profiles/refresh", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp refreshResp
	decode(t, rec, &resp)
	want := profile.Summary{Total: 3, TagsAdded: 2, Ignored: 1}
	if resp.Summary != want {
		t.Fatalf("summary=%+v want %+v", resp.Summary, want)
	}

	rec = doReq(t, f.h, http.MethodGet, "/api/tags?prefix="+url.QueryEscape(prefix), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var tags []store.Tag
	decode(t, rec, &tags)
	if len(tags) != 2 {
		t.Fatalf("expected 2 tags, got %+v", tags)
	}

	rec = doReq(t, f.h, http.MethodGet, "/api/tags?prefix=zzz", nil)
	if got := bytes.TrimSpace(rec.Body.Bytes()); string(got) != "[]" {
		t.Fatalf("expected empty list, got %s", got)
	}
}

func TestRefreshConfigError(t *testing.T) {
	f := newFixture(t, "", "")
	if err := os.RemoveAll(f.profiles); err != nil {
		t.Fatal(err)
	}
	rec := doReq(t, f.h, http.MethodPost, "/profiles/refresh", nil)
	if rec.Code != http.StatusPreconditionFailed {
		t.Fatalf("expected 412, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = doReq(t, f.h, http.MethodGet, "/profiles", nil)
	if rec.Code != http.StatusPreconditionFailed {
		t.Fatalf("expected 412, got %d", rec.Code)
	}
}

func TestWithoutStore(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mgr := overlay.NewManager(overlay.Options{TagPrefix: prefix})
	h := NewRouter(mgr, nil, "").Handler()
	if rec := doReq(t, h, http.MethodGet, "/tags", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if rec := doReq(t, h, http.MethodPost, "/profiles/refresh", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	// tags must come with the request when there is no store
	if rec := doReq(t, h, http.MethodPost, "/entities/g/starting", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestProfilesListing(t *testing.T) {
	f := newFixture(t, "", "", "retro.sgp", "skip.sgp")
	rec := doReq(t, f.h, http.MethodGet, "/profiles", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var es []profile.Entry
	decode(t, rec, &es)
	if len(es) != 2 || es[0].Name != "retro" || es[0].Ignored || !es[1].Ignored {
		t.Fatalf("unexpected listing %+v", es)
	}
}

func TestOverlaysEmpty(t *testing.T) {
	f := newFixture(t, "", "")
	rec := doReq(t, f.h, http.MethodGet, "/overlays", nil)
	if got := bytes.TrimSpace(rec.Body.Bytes()); rec.Code != http.StatusOK || string(got) != "[]" {
		t.Fatalf("unexpected %d %s", rec.Code, got)
	}
	rec = doReq(t, f.h, http.MethodGet, "/overlays/g1", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestNewServer(t *testing.T) {
	mgr := overlay.NewManager(overlay.Options{})
	srv, err := NewServer("127.0.0.1:0", NewRouter(mgr, nil, "/api"))
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
	if _, err := NewServer(srv.Addr, NewRouter(mgr, nil, "")); err == nil {
		t.Fatal("expected bind error on a used address")
	}
}
