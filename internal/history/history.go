package history

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// EventType defines the kind of overlay lifecycle event.
type EventType string

const (
	EventLaunch       EventType = "launch"
	EventLaunchFailed EventType = "launch_failed"
	EventStop         EventType = "stop"
	EventExit         EventType = "exit"
)

// Event is one overlay lifecycle transition exported to external systems.
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	EntityID   string    `json:"entity_id"`
	Profile    string    `json:"profile,omitempty"`
	PID        int       `json:"pid,omitempty"`
	Args       []string  `json:"args,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// NewEvent stamps an event with a fresh id and the current UTC time.
func NewEvent(t EventType, entityID string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		OccurredAt: time.Now().UTC(),
		EntityID:   entityID,
	}
}

// WithError records err on the event when non-nil.
func (e Event) WithError(err error) Event {
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Recorder fans events out to every configured sink. Sink failures are
// logged and never returned to the caller.
type Recorder struct {
	sinks   []Sink
	timeout time.Duration
	logger  *slog.Logger
}

// NewRecorder returns a Recorder; a nil logger means slog.Default.
func NewRecorder(l *slog.Logger, sinks ...Sink) *Recorder {
	if l == nil {
		l = slog.Default()
	}
	return &Recorder{sinks: sinks, timeout: 5 * time.Second, logger: l}
}

// Empty reports whether there is nowhere to send events.
func (r *Recorder) Empty() bool { return r == nil || len(r.sinks) == 0 }

// Record delivers e to all sinks. Safe on a nil Recorder.
func (r *Recorder) Record(ctx context.Context, e Event) {
	if r.Empty() {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	for _, s := range r.sinks {
		if err := s.Send(ctx, e); err != nil {
			r.logger.Warn("history sink send failed", "event", e.Type, "entity", e.EntityID, "error", err)
		}
	}
}

// Close closes every sink that has a Close method.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	for _, s := range r.sinks {
		if c, ok := s.(interface{ Close() error }); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
