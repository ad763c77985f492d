package event

import "github.com/penguin-run/penguin/pkg/types"

// SessionCreatedData is the payload for session.created events.
type SessionCreatedData struct {
	Info *types.Session `json:"info"`
}

// SessionUpdatedData is the payload for session.updated events.
type SessionUpdatedData struct {
	Info *types.Session `json:"info"`
}

// SessionDeletedData is the payload for session.deleted events.
type SessionDeletedData struct {
	Info *types.Session `json:"info"`
}

// SessionCompactedData is the payload for session.compacted events, fired
// when the context-window manager trims or summarizes a session.
type SessionCompactedData struct {
	SessionID      string `json:"sessionID"`
	SummaryMessage string `json:"summaryMessageID,omitempty"`
	DroppedCount   int    `json:"droppedCount"`
}

// SessionRolledOverData is the payload for session.rolled_over events,
// fired when a session's DIALOG budget is exhausted and a fresh session is
// opened to continue it.
type SessionRolledOverData struct {
	FromSessionID string `json:"fromSessionID"`
	ToSessionID   string `json:"toSessionID"`
}

// MessageCreatedData is the payload for message.created events.
type MessageCreatedData struct {
	Info *types.Message `json:"info"`
}

// MessageUpdatedData is the payload for message.updated events.
type MessageUpdatedData struct {
	Info *types.Message `json:"info"`
}

// MessageRemovedData is the payload for message.removed events.
type MessageRemovedData struct {
	SessionID string `json:"sessionID"`
	MessageID string `json:"messageID"`
}

// MessagePartUpdatedData is the payload for part.updated events.
type MessagePartUpdatedData struct {
	Part  types.Part `json:"part"`
	Delta string     `json:"delta,omitempty"`
}

// ContextWindowClampedData is the payload for context_window.clamped
// events, fired when a sub-agent's resolved window is reduced below its
// parent's via the sub-agent clamp rule.
type ContextWindowClampedData struct {
	SessionID    string `json:"sessionID"`
	RequestedMax int    `json:"requestedMax"`
	ClampedTo    int    `json:"clampedTo"`
}

// ContextWindowTrimmedData is the payload for context_window.trimmed
// events, fired whenever the trim algorithm removes or truncates content.
type ContextWindowTrimmedData struct {
	SessionID      string                     `json:"sessionID"`
	DroppedByCat   map[types.MessageCategory]int `json:"droppedByCategory"`
	TruncatedParts int                        `json:"truncatedParts"`
}

// CheckpointCapturedData is the payload for checkpoint.captured events.
type CheckpointCapturedData struct {
	Checkpoint *types.Checkpoint `json:"checkpoint"`
}

// CheckpointRestoredData is the payload for checkpoint.restored events.
type CheckpointRestoredData struct {
	CheckpointID string `json:"checkpointID"`
	SessionID    string `json:"sessionID"`
}

// CheckpointBranchedData is the payload for checkpoint.branched events.
type CheckpointBranchedData struct {
	CheckpointID string `json:"checkpointID"`
	NewSessionID string `json:"newSessionID"`
}

// CheckpointFailedData is the payload for checkpoint.failed events.
type CheckpointFailedData struct {
	CheckpointID string `json:"checkpointID,omitempty"`
	SessionID    string `json:"sessionID"`
	Reason       string `json:"reason"`
}

// CheckpointExpiredData is the payload for checkpoint.expired events, fired
// once per checkpoint removed by retention GC.
type CheckpointExpiredData struct {
	CheckpointID string `json:"checkpointID"`
	Reason       string `json:"reason"` // "max_age" | "thinning" | "max_auto"
}

// StopConditionFiredData is the payload for engine.stop_condition events.
type StopConditionFiredData struct {
	SessionID string `json:"sessionID"`
	Reason    string `json:"reason"`
	Detail    string `json:"detail,omitempty"`
}

// ToolInvokedData is the payload for engine.tool_invoked events.
type ToolInvokedData struct {
	SessionID string `json:"sessionID"`
	MessageID string `json:"messageID"`
	ToolName  string `json:"toolName"`
	State     string `json:"state"` // "running" | "completed" | "error"
}

// FileEditedData is the payload for file.edited events, fired by the
// example write/edit tools.
type FileEditedData struct {
	File string `json:"file"`
}

// PermissionRequiredData is the payload for permission.required events.
type PermissionRequiredData struct {
	ID             string   `json:"id"`
	SessionID      string   `json:"sessionID"`
	PermissionType string   `json:"permissionType"`
	Pattern        []string `json:"pattern"`
	Title          string   `json:"title"`
}

// PermissionResolvedData is the payload for permission.resolved events.
type PermissionResolvedData struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionID"`
	Granted   bool   `json:"granted"`
}
