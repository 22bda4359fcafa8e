package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/glassd/internal/overlay"
	"github.com/loykin/glassd/internal/profile"
	"github.com/loykin/glassd/internal/store"
)

// Router provides embeddable HTTP handlers for the host integration.
// Endpoints:
//
//	GET  {basePath}/health
//	POST {basePath}/entities/:id/starting   body: {"tags": [...]} (optional)
//	POST {basePath}/entities/:id/stopped
//	POST {basePath}/profiles/refresh
//	GET  {basePath}/profiles
//	GET  {basePath}/overlays
//	GET  {basePath}/overlays/:id
//	GET  {basePath}/tags                    query: prefix=...
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	mgr      *overlay.Manager
	tags     store.Store
	basePath string
	logger   *slog.Logger
}

// NewRouter constructs a Router. tags may be nil; entity tags must then be
// sent with each starting callback and tag endpoints answer 503.
func NewRouter(mgr *overlay.Manager, tags store.Store, basePath string) *Router {
	return &Router{
		mgr:      mgr,
		tags:     tags,
		basePath: sanitizeBase(basePath),
		logger:   slog.Default().With("component", "server"),
	}
}

// SetLogger replaces the router logger.
func (r *Router) SetLogger(l *slog.Logger) {
	if l != nil {
		r.logger = l.With("component", "server")
	}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/health", r.handleHealth)
	group.POST("/entities/:id/starting", r.handleStarting)
	group.POST("/entities/:id/stopped", r.handleStopped)
	group.POST("/profiles/refresh", r.handleRefresh)
	group.GET("/profiles", r.handleProfiles)
	group.GET("/overlays", r.handleOverlays)
	group.GET("/overlays/:id", r.handleOverlay)
	group.GET("/tags", r.handleTags)
	return g
}

// NewServer binds addr and serves the router in the background. Bind
// errors are returned; serve errors after that are logged.
func NewServer(addr string, r *Router) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("http server stopped", "addr", srv.Addr, "error", err)
		}
	}()
	return srv, nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type startingReq struct {
	Tags []string `json:"tags"`
}

type startingResp struct {
	Launched bool            `json:"launched"`
	Overlay  *overlay.Status `json:"overlay,omitempty"`
	Reason   string          `json:"reason,omitempty"`
}

type refreshResp struct {
	Summary profile.Summary `json:"summary"`
	Message string          `json:"message"`
	Error   string          `json:"error,omitempty"`
}

func (r *Router) handleHealth(c *gin.Context) {
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) entityID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if !isSafeID(id) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid entity id: allowed [A-Za-z0-9._-] and no '..'"})
		return "", false
	}
	return id, true
}

func (r *Router) handleStarting(c *gin.Context) {
	id, ok := r.entityID(c)
	if !ok {
		return
	}
	var req startingReq
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	ctx := c.Request.Context()
	tags := req.Tags
	if len(tags) == 0 && r.tags != nil {
		ts, err := r.tags.EntityTags(ctx, id)
		if err != nil {
			r.logger.Error("read entity tags", "entity", id, "error", err)
			writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
			return
		}
		tags = store.Names(ts)
	}
	// the overlay outlives the request
	st, err := r.mgr.StartEntity(context.WithoutCancel(ctx), id, tags)
	switch {
	case err == nil:
		writeJSON(c, http.StatusOK, startingResp{Launched: true, Overlay: &st})
	case errors.Is(err, overlay.ErrNoProfile):
		writeJSON(c, http.StatusOK, startingResp{Reason: err.Error()})
	case errors.Is(err, overlay.ErrProfileNotFound):
		writeJSON(c, http.StatusNotFound, errorResp{Error: err.Error()})
	case overlay.IsConfigError(err):
		writeJSON(c, http.StatusPreconditionFailed, errorResp{Error: err.Error()})
	default:
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
	}
}

func (r *Router) handleStopped(c *gin.Context) {
	id, ok := r.entityID(c)
	if !ok {
		return
	}
	if err := r.mgr.Stop(id); err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleRefresh(c *gin.Context) {
	sum, err := r.mgr.OnReconcileRequested(c.Request.Context())
	resp := refreshResp{Summary: sum, Message: sum.String()}
	switch {
	case err == nil:
		writeJSON(c, http.StatusOK, resp)
		return
	case errors.Is(err, overlay.ErrNoTagStore):
		resp.Error = err.Error()
		writeJSON(c, http.StatusServiceUnavailable, resp)
	case overlay.IsConfigError(err):
		resp.Error = err.Error()
		writeJSON(c, http.StatusPreconditionFailed, resp)
	default:
		resp.Error = err.Error()
		writeJSON(c, http.StatusInternalServerError, resp)
	}
}

func (r *Router) handleProfiles(c *gin.Context) {
	es, err := r.mgr.Profiles()
	if err != nil {
		code := http.StatusInternalServerError
		if overlay.IsConfigError(err) {
			code = http.StatusPreconditionFailed
		}
		writeJSON(c, code, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, es)
}

func (r *Router) handleOverlays(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.mgr.List())
}

func (r *Router) handleOverlay(c *gin.Context) {
	id, ok := r.entityID(c)
	if !ok {
		return
	}
	st, found := r.mgr.Status(id)
	if !found {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "no overlay for entity " + id})
		return
	}
	writeJSON(c, http.StatusOK, st)
}

func (r *Router) handleTags(c *gin.Context) {
	if r.tags == nil {
		writeJSON(c, http.StatusServiceUnavailable, errorResp{Error: overlay.ErrNoTagStore.Error()})
		return
	}
	ts, err := r.tags.ListTags(c.Request.Context(), c.Query("prefix"))
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	if ts == nil {
		ts = []store.Tag{}
	}
	writeJSON(c, http.StatusOK, ts)
}
