package session

import (
	"context"
	"time"

	"github.com/ksred/claude-session-manager/internal/domain"
	"github.com/ksred/claude-session-manager/internal/store"
)

// IdleSweep transitions working sessions whose last update predates the
// cutoff to idle. Returns the number of sessions transitioned.
func (m *Manager) IdleSweep(ctx context.Context, idleAfter time.Duration) (int, error) {
	if idleAfter <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-idleAfter)

	sessions, err := m.store.ListSessions(ctx, store.Filter{
		OrderBy: "updated_at",
	}.WithWhere("status", string(domain.StatusWorking)))
	if err != nil {
		return 0, err
	}

	idle := domain.StatusIdle
	swept := 0
	for _, sess := range sessions {
		if sess.UpdatedAt.After(cutoff) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return swept, err
		}
		if _, err := m.Update(ctx, sess.ID, domain.SessionUpdate{Status: &idle}); err != nil {
			// Raced with a real update or restart; the session is live
			// again, leave it alone.
			m.log.Warn("idle_sweep_skip", map[string]interface{}{"session": sess.ID}, err)
			continue
		}
		swept++
	}
	return swept, nil
}

// RunIdleSweeper sweeps on an interval until the context ends.
func (m *Manager) RunIdleSweeper(ctx context.Context, idleAfter, interval time.Duration) {
	if idleAfter <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.IdleSweep(ctx, idleAfter)
			if err != nil {
				if ctx.Err() == nil {
					m.log.Error("idle_sweep", nil, err)
				}
				continue
			}
			if n > 0 {
				m.log.Info("idle_sweep", map[string]interface{}{"transitioned": n})
			}
		}
	}
}
