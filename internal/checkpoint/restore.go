package checkpoint

import (
	"context"
	"fmt"

	"github.com/penguin-run/penguin/internal/event"
	"github.com/penguin-run/penguin/internal/logging"
	"github.com/penguin-run/penguin/pkg/types"
)

// Restore rolls sessionID back to checkpointID. It never mutates the
// session in place: it marks the session as mid-rollback, takes a best
// effort rollback checkpoint of the state about to be replaced (so the
// rollback itself can be undone), materializes a brand new Session from the
// checkpoint's payload, and clears the rollback marker. The caller is
// responsible for treating the returned Session as the new active one.
func (m *Manager) Restore(ctx context.Context, sessionID, checkpointID string) (*types.Session, error) {
	cp, err := m.Get(ctx, sessionID, checkpointID)
	if err != nil {
		return nil, err
	}
	snap, err := m.loadPayload(ctx, cp)
	if err != nil {
		return nil, wrapErr(KindRestoreFailed, "restore", fmt.Errorf("%w: %w", ErrRestoreFailed, err))
	}

	if err := m.sessions.Revert(ctx, sessionID, cp.MessageID, &checkpointID); err != nil {
		return nil, wrapErr(KindRestoreFailed, "restore", fmt.Errorf("%w: revert session: %w", ErrRestoreFailed, err))
	}
	restoredOK := false
	defer func() {
		if !restoredOK {
			if err := m.sessions.Unrevert(ctx, sessionID); err != nil {
				logging.Warn().Err(err).Str("sessionID", sessionID).Msg("checkpoint: clearing revert marker after failed restore")
			}
		}
	}()

	if err := m.captureRollbackPoint(ctx, sessionID); err != nil {
		logging.Warn().Err(err).Str("sessionID", sessionID).Msg("checkpoint: pre-restore rollback snapshot failed, continuing")
	}

	source, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, wrapErr(KindRestoreFailed, "restore", fmt.Errorf("%w: load source session: %w", ErrRestoreFailed, err))
	}

	restored, err := m.sessions.Create(ctx, source.Directory, source.ParentID)
	if err != nil {
		return nil, wrapErr(KindRestoreFailed, "restore", fmt.Errorf("%w: create restored session: %w", ErrRestoreFailed, err))
	}
	restored.Title = source.Title
	restored.Budget = snap.Budget
	restored.BranchPoint = &cp.MessageID
	restored.SourceCheckpoint = &checkpointID
	if err := m.sessions.Update(ctx, restored); err != nil {
		return nil, wrapErr(KindRestoreFailed, "restore", fmt.Errorf("%w: update restored session: %w", ErrRestoreFailed, err))
	}

	if err := materialize(ctx, m.sessions, snap, restored); err != nil {
		return nil, wrapErr(KindRestoreFailed, "restore", fmt.Errorf("%w: materialize snapshot: %w", ErrRestoreFailed, err))
	}

	if err := m.sessions.Unrevert(ctx, sessionID); err != nil {
		return nil, wrapErr(KindRestoreFailed, "restore", fmt.Errorf("%w: clear revert marker: %w", ErrRestoreFailed, err))
	}
	restoredOK = true

	event.Publish(event.Event{
		Type: event.CheckpointRestored,
		Data: event.CheckpointRestoredData{CheckpointID: checkpointID, SessionID: restored.ID},
	})
	return restored, nil
}

// captureRollbackPoint takes a best-effort CheckpointRollback snapshot of
// sessionID's current head, so a restore can itself be rolled back. Errors
// are not fatal to the restore it's protecting.
func (m *Manager) captureRollbackPoint(ctx context.Context, sessionID string) error {
	messages, err := m.sessions.GetMessages(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}
	if len(messages) == 0 {
		return nil
	}
	head := messages[len(messages)-1].ID
	_, err = m.Capture(ctx, sessionID, head, types.CheckpointRollback, "pre-restore snapshot")
	return err
}
