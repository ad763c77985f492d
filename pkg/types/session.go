// Package types provides the core data model for the Penguin agent core.
package types

// Session is a conversation's durable state: its messages (stored
// separately, keyed by session id), its token budget, and its place in the
// rollover/branch lineage.
type Session struct {
	ID        string      `json:"id"`
	ProjectID string      `json:"projectID"`
	Directory string      `json:"directory"`
	ParentID  *string     `json:"parentID,omitempty"`
	Title     string      `json:"title"`
	Version   string      `json:"version"`
	Time      SessionTime `json:"time"`

	// ContinuedFrom/ContinuedTo link a rolled-over session chain: when a
	// session's message count crosses its rollover boundary and a fresh
	// session is opened to continue it, ContinuedFrom on the new session
	// records the link back to the old one, and the old one's ContinuedTo
	// gains the new session's id. ContinuedTo is a list because a session
	// may split into more than one continuation over its lifetime.
	ContinuedFrom *string  `json:"continuedFrom,omitempty"`
	ContinuedTo   []string `json:"continuedTo,omitempty"`

	// BranchPoint is the id of the message this session branched or
	// restored at, if any. A session with a non-nil BranchPoint was created
	// by a checkpoint Branch or Restore operation rather than ordinary
	// session creation.
	BranchPoint *string `json:"branchPoint,omitempty"`

	// SourceCheckpoint is the checkpoint id this session was materialized
	// from, if any. Distinct from BranchPoint (a message id): retention
	// uses this to keep the source checkpoint alive while a session still
	// points back to it.
	SourceCheckpoint *string `json:"sourceCheckpoint,omitempty"`

	// Budget is this session's resolved per-category token budget.
	Budget TokenBudget `json:"budget"`

	// Revert records an in-progress rollback target; non-nil while the
	// session is paused mid-rollback.
	Revert *SessionRevert `json:"revert,omitempty"`
}

// SessionTime contains timestamps for a session.
type SessionTime struct {
	Created    int64  `json:"created"`
	Updated    int64  `json:"updated"`
	Compacting *int64 `json:"compacting,omitempty"`
}

// SessionRevert records the message/checkpoint a session is being rolled
// back to.
type SessionRevert struct {
	MessageID    string  `json:"messageID"`
	CheckpointID *string `json:"checkpointID,omitempty"`
}

// TokenBudget is the resolved per-category allocation for a session's
// context window, plus the window size it was derived from.
type TokenBudget struct {
	Window   int                     `json:"window"`
	Reserved int                     `json:"reserved"` // held back for the next completion's output
	Category map[MessageCategory]int `json:"category"`
}

// Remaining returns how many tokens of headroom category c still has given
// its current usage. Negative means the category is over budget.
func (b TokenBudget) Remaining(c MessageCategory, used int) int {
	max, ok := b.Category[c]
	if !ok {
		return 0
	}
	return max - used
}
