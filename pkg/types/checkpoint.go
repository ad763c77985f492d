package types

import "encoding/json"

// CheckpointReason tags why a checkpoint was taken.
type CheckpointReason string

const (
	CheckpointManual    CheckpointReason = "manual"
	CheckpointPreTool    CheckpointReason = "pre_tool"
	CheckpointPostTurn   CheckpointReason = "post_turn"
	CheckpointPreCompact CheckpointReason = "pre_compact"

	// CheckpointBranch tags a checkpoint's payload as the source of a
	// Branch operation's new session (not the checkpoint created BY a
	// branch — branches read an existing committed checkpoint, they don't
	// need one of their own).
	CheckpointBranch CheckpointReason = "branch"

	// CheckpointRollback tags a checkpoint auto-created by Restore to
	// capture the state just replaced, so a rollback can itself be undone.
	CheckpointRollback CheckpointReason = "rollback"
)

// Checkpoint is an immutable, restorable snapshot of a session's full
// lineage at one point in time. The payload (the compressed flat snapshot)
// is stored separately from this metadata record.
type Checkpoint struct {
	ID          string           `json:"id"`
	SessionID   string           `json:"sessionID"`
	ProjectID   string           `json:"projectID"`
	MessageID   string           `json:"messageID"` // last message included in the snapshot
	Reason      CheckpointReason `json:"reason"`
	Label       string           `json:"label,omitempty"`
	Created     int64            `json:"created"`
	PayloadSize int64            `json:"payloadSize"`
	PayloadHash string           `json:"payloadHash"`

	// State is the checkpoint's lifecycle position: "pending" while queued
	// on the worker, "committed" once its payload is durable, "failed" if
	// capture could not complete.
	State string `json:"state"`
}

// FlatSnapshot is the deserialized form of a checkpoint payload: the full
// set of messages and parts needed to restore or branch from this point,
// flattened across any rollover chain the session belongs to. Parts are
// stored pre-encoded (via json.RawMessage) since Part is an interface; use
// UnmarshalPart to decode an entry.
type FlatSnapshot struct {
	SessionID string                     `json:"sessionID"`
	Messages  []Message                  `json:"messages"`
	Parts     map[string][]EncodedPart   `json:"parts"`
	Budget    TokenBudget                `json:"budget"`
}

// EncodedPart is a part stored in its wire (JSON) form alongside its type,
// so a FlatSnapshot can round-trip through JSON without Part needing to be
// a concrete type.
type EncodedPart struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// EncodePart wraps a concrete Part for storage in a FlatSnapshot.
func EncodePart(p Part) (EncodedPart, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return EncodedPart{}, err
	}
	return EncodedPart{Type: p.PartType(), Data: data}, nil
}

// Decode reconstructs the concrete Part from its encoded form.
func (e EncodedPart) Decode() (Part, error) {
	return UnmarshalPart(e.Data)
}
