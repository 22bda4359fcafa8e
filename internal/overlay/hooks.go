package overlay

import (
	"context"
	"errors"
	"fmt"

	"github.com/loykin/glassd/internal/profile"
)

// Hooks are the host lifecycle callbacks. Implementations handle their own
// failures: starting and stopping never report errors to the host.
type Hooks interface {
	OnEntityStarting(ctx context.Context, entityID string, tags []string)
	OnEntityStopped(ctx context.Context, entityID string)
	OnReconcileRequested(ctx context.Context) (profile.Summary, error)
}

var _ Hooks = (*Manager)(nil)

func (m *Manager) OnEntityStarting(ctx context.Context, entityID string, tags []string) {
	_, _ = m.StartEntity(ctx, entityID, tags)
}

func (m *Manager) OnEntityStopped(_ context.Context, entityID string) {
	_ = m.Stop(entityID)
}

// OnReconcileRequested syncs profile tags with the profiles directory.
func (m *Manager) OnReconcileRequested(ctx context.Context) (profile.Summary, error) {
	m.mu.Lock()
	r, ts := m.reconciler, m.tags
	m.mu.Unlock()
	if ts == nil {
		return profile.Summary{}, ErrNoTagStore
	}
	if r.Prefix == "" {
		r.Prefix = m.opts.TagPrefix
	}
	if r.Logger == nil {
		r.Logger = m.logger
	}
	sum, err := r.Reconcile(ctx, m.opts.ProfilesDir, ts)
	recordTagChanges(sum)
	switch {
	case errors.Is(err, profile.ErrDirMissing):
		m.logger.Warn("profile reconciliation skipped", "dir", m.opts.ProfilesDir, "error", err)
		return sum, fmt.Errorf("%w: %w", ErrProfilesDirMissing, err)
	case err != nil:
		m.logger.Error("profile reconciliation finished with errors", "summary", sum.String(), "error", err)
		return sum, err
	}
	m.logger.Info("profiles refreshed", "summary", sum.String())
	return sum, nil
}
