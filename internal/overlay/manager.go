package overlay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/loykin/glassd/internal/directive"
	"github.com/loykin/glassd/internal/history"
	"github.com/loykin/glassd/internal/logger"
	"github.com/loykin/glassd/internal/metrics"
	"github.com/loykin/glassd/internal/process"
	"github.com/loykin/glassd/internal/profile"
)

// DefaultStopTimeout bounds the wait for an overlay to exit after a stop request.
const DefaultStopTimeout = 5 * time.Second

// Options configures a Manager.
type Options struct {
	Executable  string
	ProfilesDir string
	TagPrefix   string        // defaults to directive.DefaultPrefix
	StopTimeout time.Duration // defaults to DefaultStopTimeout
	Env         []string      // extra "K=V" entries for the overlay environment
	Log         logger.Config // overlay stdout/stderr capture
	Logger      *slog.Logger
}

// Status describes the overlay mapped to an entity.
type Status struct {
	EntityID string `json:"entity_id"`
	Profile  string `json:"profile"`
	process.Status
}

// handle is the part of *process.Process the manager drives.
type handle interface {
	Start() error
	PID() int
	Done() <-chan struct{}
	Terminate(wait time.Duration) error
	Release()
	Snapshot() process.Status
}

type entry struct {
	id       string
	profile  string
	proc     handle
	stopping bool          // set once Stop owns the entry
	quit     chan struct{} // closed by Stop to retire the exit watcher
}

// Manager maps entities to their running overlay process. Launch and Stop
// are serialized; the table itself may be read concurrently.
type Manager struct {
	opts   Options
	logger *slog.Logger

	opMu   sync.Mutex // serializes Launch/Stop
	closed bool       // set by StopAll, guarded by opMu

	mu         sync.Mutex
	entries    map[string]*entry
	history    *history.Recorder
	reconciler profile.Reconciler
	tags       profile.TagStore

	spawn    func(process.Spec) handle
	watchers sync.WaitGroup
}

func NewManager(opts Options) *Manager {
	if strings.TrimSpace(opts.TagPrefix) == "" {
		opts.TagPrefix = directive.DefaultPrefix
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	l := opts.Logger
	if l == nil {
		l = slog.Default()
	}
	return &Manager{
		opts:    opts,
		logger:  l.With("component", "overlay"),
		entries: make(map[string]*entry),
		spawn:   func(s process.Spec) handle { return process.New(s) },
	}
}

// Options returns the effective options.
func (m *Manager) Options() Options { return m.opts }

// SetHistory configures where lifecycle events are exported. nil disables export.
func (m *Manager) SetHistory(r *history.Recorder) {
	m.mu.Lock()
	m.history = r
	m.mu.Unlock()
}

// SetReconciler configures profile reconciliation against a tag store.
func (m *Manager) SetReconciler(r profile.Reconciler, ts profile.TagStore) {
	m.mu.Lock()
	m.reconciler, m.tags = r, ts
	m.mu.Unlock()
}

// StartEntity parses the entity's tags and launches an overlay when they
// select a profile. Without a profile directive it returns ErrNoProfile
// without checking configuration.
func (m *Manager) StartEntity(ctx context.Context, entityID string, tags []string) (Status, error) {
	sel := directive.Parse(m.opts.TagPrefix, tags)
	if !sel.HasProfile() {
		m.logger.Debug("no profile directive, overlay not launched", "entity", entityID)
		return Status{}, ErrNoProfile
	}
	return m.Launch(ctx, entityID, sel)
}

// Launch starts the overlay for entityID with the selected profile. A
// process already mapped to the entity is stopped first.
func (m *Manager) Launch(ctx context.Context, entityID string, sel directive.Selection) (Status, error) {
	if err := ctx.Err(); err != nil {
		return Status{}, err
	}
	path, err := m.checkLaunch(sel)
	if err != nil {
		m.launchFailed(ctx, entityID, profile.Stem(sel.Profile), err)
		return Status{}, err
	}
	if len(sel.Dropped) > 0 {
		m.logger.Warn("multiple profile directives, using the first",
			"entity", entityID, "profile", sel.Profile, "ignored", sel.Dropped)
	}
	args := BuildArgs(path, sel.NoFullscreen, sel.PausedMode)
	name := profile.Stem(filepath.Base(path))

	st, events, err := m.launchLocked(entityID, name, args)
	for _, evt := range events {
		m.record(ctx, evt)
	}
	if err != nil {
		m.launchFailed(ctx, entityID, name, err)
		return Status{}, err
	}
	return st, nil
}

// launchLocked replaces any overlay mapped to entityID with a new process.
// History events are returned for recording once opMu is released.
func (m *Manager) launchLocked(entityID, name string, args []string) (Status, []history.Event, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	if m.closed {
		return Status{}, nil, ErrManagerClosed
	}

	var events []history.Event
	if m.mapped(entityID) {
		m.logger.Warn("overlay already running for entity, stopping it before relaunch", "entity", entityID)
		evt, _ := m.stopLocked(entityID)
		if evt != nil {
			events = append(events, *evt)
		}
	}

	p := m.spawn(process.Spec{
		Name: logName(entityID),
		Path: m.opts.Executable,
		Args: args,
		Env:  m.opts.Env,
		Log:  m.opts.Log,
	})
	if err := p.Start(); err != nil {
		p.Release()
		return Status{}, events, fmt.Errorf("%w: %w", ErrStartFailed, err)
	}

	e := &entry{id: entityID, profile: name, proc: p, quit: make(chan struct{})}
	m.mu.Lock()
	m.entries[entityID] = e
	n := len(m.entries)
	m.mu.Unlock()
	m.watchers.Add(1)
	go m.watch(e)

	metrics.IncLaunch(name)
	metrics.SetRunning(n)
	evt := history.NewEvent(history.EventLaunch, entityID)
	evt.Profile, evt.PID, evt.Args = name, p.PID(), args
	m.logger.Info("overlay launched", "entity", entityID, "profile", name, "pid", p.PID(), "args", args)
	return e.status(), append(events, evt), nil
}

// checkLaunch validates configuration and resolves the profile file.
func (m *Manager) checkLaunch(sel directive.Selection) (string, error) {
	exe := strings.TrimSpace(m.opts.Executable)
	if exe == "" {
		return "", ErrExecutableMissing
	}
	if fi, err := os.Stat(exe); err != nil || fi.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrExecutableMissing, exe)
	}
	if err := profile.CheckDir(m.opts.ProfilesDir); err != nil {
		return "", fmt.Errorf("%w: %s", ErrProfilesDirMissing, m.opts.ProfilesDir)
	}
	if !sel.HasProfile() {
		return "", ErrNoProfile
	}
	return ResolveProfile(m.opts.ProfilesDir, sel.Profile)
}

func (m *Manager) launchFailed(ctx context.Context, entityID, profileName string, err error) {
	reason := metrics.ReasonStartFailed
	switch {
	case IsConfigError(err):
		reason = metrics.ReasonConfig
		m.logger.Warn("overlay not launched: configuration", "entity", entityID, "error", err)
	case errors.Is(err, ErrNoProfile):
		reason = metrics.ReasonNoProfile
		m.logger.Warn("overlay not launched: no profile", "entity", entityID)
	case errors.Is(err, ErrProfileNotFound):
		reason = metrics.ReasonNotFound
		m.logger.Warn("overlay not launched: profile not found", "entity", entityID, "profile", profileName, "error", err)
	default:
		m.logger.Error("overlay failed to start", "entity", entityID, "profile", profileName, "error", err)
	}
	metrics.IncLaunchFailure(reason)
	evt := history.NewEvent(history.EventLaunchFailed, entityID).WithError(err)
	evt.Profile = profileName
	m.record(ctx, evt)
}

// Stop terminates the overlay of entityID. Unknown entities are a no-op.
// The process is released and unmapped even when termination fails; the
// termination error is returned afterwards.
func (m *Manager) Stop(entityID string) error {
	m.opMu.Lock()
	evt, err := m.stopLocked(entityID)
	m.opMu.Unlock()
	if evt != nil {
		m.record(context.Background(), *evt)
	}
	return err
}

// stopLocked terminates and unmaps the overlay of entityID. The returned
// stop event is nil when nothing was mapped.
func (m *Manager) stopLocked(entityID string) (evt *history.Event, err error) {
	m.mu.Lock()
	e, ok := m.entries[entityID]
	if ok && !e.stopping {
		e.stopping = true
		close(e.quit)
	}
	m.mu.Unlock()
	if !ok {
		return nil, nil
	}

	start := time.Now()
	pid := e.proc.PID()
	defer func() {
		e.proc.Release()
		m.mu.Lock()
		if m.entries[entityID] == e {
			delete(m.entries, entityID)
		}
		n := len(m.entries)
		m.mu.Unlock()

		metrics.IncStop()
		metrics.ObserveStopDuration(time.Since(start).Seconds())
		metrics.SetRunning(n)
		metrics.ForgetEntity(entityID)
		ev := history.NewEvent(history.EventStop, entityID).WithError(err)
		ev.Profile, ev.PID = e.profile, pid
		evt = &ev
	}()

	if terr := e.proc.Terminate(m.opts.StopTimeout); terr != nil {
		err = fmt.Errorf("stop overlay for %s: %w", entityID, terr)
		m.logger.Error("overlay did not stop cleanly", "entity", entityID, "pid", pid, "error", terr)
		return nil, err
	}
	m.logger.Info("overlay stopped", "entity", entityID, "pid", pid, "took", time.Since(start).Round(time.Millisecond))
	return nil, nil
}

// StopAll stops every mapped overlay and waits for the exit watchers. Later
// launches fail with ErrManagerClosed.
func (m *Manager) StopAll() error {
	m.opMu.Lock()
	m.closed = true
	var (
		errs   []error
		events []history.Event
	)
	for _, id := range m.ids() {
		evt, err := m.stopLocked(id)
		if evt != nil {
			events = append(events, *evt)
		}
		errs = append(errs, err)
	}
	m.opMu.Unlock()
	for _, evt := range events {
		m.record(context.Background(), evt)
	}
	m.watchers.Wait()
	return errors.Join(errs...)
}

// watch unmaps an overlay that exits on its own.
func (m *Manager) watch(e *entry) {
	defer m.watchers.Done()
	select {
	case <-e.quit:
		return
	case <-e.proc.Done():
	}
	m.mu.Lock()
	mine := m.entries[e.id] == e && !e.stopping
	if mine {
		e.proc.Release()
		delete(m.entries, e.id)
	}
	n := len(m.entries)
	m.mu.Unlock()
	if !mine {
		return
	}
	st := e.proc.Snapshot()
	metrics.IncExit()
	metrics.SetRunning(n)
	metrics.ForgetEntity(e.id)
	evt := history.NewEvent(history.EventExit, e.id)
	evt.Profile, evt.PID, evt.Error = e.profile, st.PID, st.ExitErr
	m.record(context.Background(), evt)
	m.logger.Info("overlay exited", "entity", e.id, "pid", st.PID, "exit_error", st.ExitErr)
}

// Status returns the overlay mapped to entityID.
func (m *Manager) Status(entityID string) (Status, bool) {
	m.mu.Lock()
	e, ok := m.entries[entityID]
	m.mu.Unlock()
	if !ok {
		return Status{}, false
	}
	st := e.status()
	metrics.SetResources(entityID, st.MemoryRSS, st.CPUPercent)
	return st, true
}

// List returns every mapped overlay ordered by entity id.
func (m *Manager) List() []Status {
	m.mu.Lock()
	es := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		es = append(es, e)
	}
	m.mu.Unlock()
	sort.Slice(es, func(i, j int) bool { return es[i].id < es[j].id })
	out := make([]Status, 0, len(es))
	for _, e := range es {
		st := e.status()
		metrics.SetResources(e.id, st.MemoryRSS, st.CPUPercent)
		out = append(out, st)
	}
	return out
}

// Profiles lists the profiles directory, flagging ignored entries.
func (m *Manager) Profiles() ([]profile.Entry, error) {
	m.mu.Lock()
	ignored := m.reconciler.Ignored
	m.mu.Unlock()
	es, err := profile.List(m.opts.ProfilesDir, ignored)
	if errors.Is(err, profile.ErrDirMissing) {
		return nil, fmt.Errorf("%w: %w", ErrProfilesDirMissing, err)
	}
	return es, err
}

// Running returns the number of mapped overlays.
func (m *Manager) Running() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Manager) mapped(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[id]
	return ok
}

func (m *Manager) ids() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *Manager) record(ctx context.Context, e history.Event) {
	m.mu.Lock()
	r := m.history
	m.mu.Unlock()
	r.Record(ctx, e)
}

func (e *entry) status() Status {
	return Status{EntityID: e.id, Profile: e.profile, Status: e.proc.Snapshot()}
}

func recordTagChanges(s profile.Summary) {
	metrics.AddTagChanges(s.TagsAdded, s.TagsRemoved)
}

// logName turns an entity id into a safe file name stem for output logs.
func logName(id string) string {
	b := []byte("overlay-" + id)
	for i, c := range b {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_', c == '.':
		default:
			b[i] = '_'
		}
	}
	return string(b)
}
