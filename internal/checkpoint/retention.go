package checkpoint

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/penguin-run/penguin/internal/event"
	"github.com/penguin-run/penguin/internal/storage"
	"github.com/penguin-run/penguin/pkg/types"
)

// sweepAllSessions runs retention GC across every known session. Used by
// the periodic cron schedule.
func (m *Manager) sweepAllSessions(ctx context.Context) error {
	sessions, err := m.sessions.List(ctx)
	if err != nil {
		return fmt.Errorf("retention: list sessions: %w", err)
	}
	for _, sess := range sessions {
		if err := m.sweepSession(ctx, sess.ID); err != nil {
			return err
		}
	}
	return nil
}

// sweepSession applies the retention policy to one session's checkpoints:
// manual, branch, and currently-referenced checkpoints are never removed;
// everything else is subject to keep_all_hours/keep_every_nth thinning,
// max_age_days expiry, and the max_auto cap.
func (m *Manager) sweepSession(ctx context.Context, sessionID string) error {
	checkpoints, err := m.List(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("retention: list checkpoints for %s: %w", sessionID, err)
	}
	if len(checkpoints) == 0 {
		return nil
	}

	referenced, err := m.referencedCheckpointIDs(ctx)
	if err != nil {
		return fmt.Errorf("retention: referenced checkpoints: %w", err)
	}

	sort.Slice(checkpoints, func(i, j int) bool { return checkpoints[i].Created < checkpoints[j].Created })

	policy := m.config.Retention
	now := time.Now()
	keepAllCutoff := now.Add(-time.Duration(policy.KeepAllHours) * time.Hour).UnixMilli()
	maxAgeCutoff := now.Add(-time.Duration(policy.MaxAgeDays) * 24 * time.Hour).UnixMilli()

	var survivors []*types.Checkpoint
	thinIdx := 0
	for _, cp := range checkpoints {
		if isProtected(cp, referenced) {
			survivors = append(survivors, cp)
			continue
		}

		if policy.MaxAgeDays > 0 && cp.Created < maxAgeCutoff {
			if err := m.expire(ctx, cp, "max_age"); err != nil {
				return err
			}
			continue
		}

		if policy.KeepAllHours > 0 && policy.KeepEveryNth > 1 && cp.Created < keepAllCutoff {
			thinIdx++
			if thinIdx%policy.KeepEveryNth != 0 {
				if err := m.expire(ctx, cp, "thinning"); err != nil {
					return err
				}
				continue
			}
		}

		survivors = append(survivors, cp)
	}

	if m.config.MaxAuto > 0 {
		if err := m.enforceMaxAuto(ctx, survivors, referenced); err != nil {
			return err
		}
	}

	return nil
}

// enforceMaxAuto caps the number of retained automatic checkpoints,
// expiring the oldest first once the cap is exceeded.
func (m *Manager) enforceMaxAuto(ctx context.Context, checkpoints []*types.Checkpoint, referenced map[string]bool) error {
	var auto []*types.Checkpoint
	for _, cp := range checkpoints {
		if isAutoReason(cp.Reason) && !isProtected(cp, referenced) {
			auto = append(auto, cp)
		}
	}
	if len(auto) <= m.config.MaxAuto {
		return nil
	}
	excess := len(auto) - m.config.MaxAuto
	for _, cp := range auto[:excess] {
		if err := m.expire(ctx, cp, "max_auto"); err != nil {
			return err
		}
	}
	return nil
}

func isProtected(cp *types.Checkpoint, referenced map[string]bool) bool {
	if cp.Reason == types.CheckpointManual || cp.Reason == types.CheckpointBranch {
		return true
	}
	return referenced[cp.ID]
}

// referencedCheckpointIDs collects every checkpoint id a live session still
// points to via SourceCheckpoint or an in-progress Revert, across all
// sessions.
func (m *Manager) referencedCheckpointIDs(ctx context.Context) (map[string]bool, error) {
	sessions, err := m.sessions.List(ctx)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool)
	for _, sess := range sessions {
		if sess.SourceCheckpoint != nil {
			ids[*sess.SourceCheckpoint] = true
		}
		if sess.Revert != nil && sess.Revert.CheckpointID != nil {
			ids[*sess.Revert.CheckpointID] = true
		}
	}
	return ids, nil
}

func (m *Manager) expire(ctx context.Context, cp *types.Checkpoint, reason string) error {
	if err := m.storage.Delete(ctx, payloadKey(cp.SessionID, cp.ID)); err != nil && err != storage.ErrNotFound {
		return fmt.Errorf("retention: delete payload %s: %w", cp.ID, err)
	}
	if err := m.storage.Delete(ctx, metaKey(cp.SessionID, cp.ID)); err != nil && err != storage.ErrNotFound {
		return fmt.Errorf("retention: delete metadata %s: %w", cp.ID, err)
	}
	event.Publish(event.Event{
		Type: event.CheckpointExpired,
		Data: event.CheckpointExpiredData{CheckpointID: cp.ID, Reason: reason},
	})
	return nil
}
