package checkpoint

import (
	"context"

	"github.com/penguin-run/penguin/internal/event"
	"github.com/penguin-run/penguin/pkg/types"
)

// Branch materializes a new, independent session from checkpointID without
// disturbing sessionID. The new session's ParentID points at the
// checkpoint's source session (recording lineage), its BranchPoint records
// the id of the message the branch point snapshot was taken at, and its
// SourceCheckpoint records the checkpoint id itself for retention's
// GC-protection bookkeeping.
func (m *Manager) Branch(ctx context.Context, sessionID, checkpointID, title string) (*types.Session, error) {
	cp, err := m.Get(ctx, sessionID, checkpointID)
	if err != nil {
		return nil, err
	}
	snap, err := m.loadPayload(ctx, cp)
	if err != nil {
		return nil, err
	}

	source, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, wrapErr(KindRestoreFailed, "branch", err)
	}

	branched, err := m.sessions.Create(ctx, source.Directory, &sessionID)
	if err != nil {
		return nil, wrapErr(KindRestoreFailed, "branch", err)
	}
	if title == "" {
		title = source.Title + " (branch)"
	}
	branched.Title = title
	branched.Budget = snap.Budget
	branched.BranchPoint = &cp.MessageID
	branched.SourceCheckpoint = &checkpointID
	if err := m.sessions.Update(ctx, branched); err != nil {
		return nil, wrapErr(KindRestoreFailed, "branch", err)
	}

	if err := materialize(ctx, m.sessions, snap, branched); err != nil {
		return nil, wrapErr(KindRestoreFailed, "branch", err)
	}

	event.Publish(event.Event{
		Type: event.CheckpointBranched,
		Data: event.CheckpointBranchedData{CheckpointID: checkpointID, NewSessionID: branched.ID},
	})
	return branched, nil
}
