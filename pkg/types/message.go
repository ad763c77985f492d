package types

// MessageCategory tags a message with the budget class it counts against.
// SYSTEM holds the system prompt and is never trimmed. CONTEXT holds
// retrieved/background material the engine may drop first. DIALOG holds the
// user/assistant back-and-forth. SYSTEM_OUTPUT holds tool results, which are
// truncated (not dropped) when over budget. ERROR holds engine-authored
// diagnostic messages (stop-condition notices, clamp notices) and is never
// trimmed.
type MessageCategory string

const (
	CategorySystem       MessageCategory = "system"
	CategoryContext      MessageCategory = "context"
	CategoryDialog       MessageCategory = "dialog"
	CategorySystemOutput MessageCategory = "system_output"
	CategoryError        MessageCategory = "error"
)

// Message is a single turn in a conversation. Messages are immutable once
// Finalize has been called on their streaming handle; only Tokens, Finish,
// and Error are ever written after creation, and only while the message is
// still the active streaming target.
type Message struct {
	ID        string          `json:"id"`
	SessionID string          `json:"sessionID"`
	Role      string          `json:"role"` // "user" | "assistant" | "tool"
	Category  MessageCategory `json:"category"`
	Time      MessageTime     `json:"time"`

	Agent  string          `json:"agent,omitempty"`
	Model  *ModelRef       `json:"model,omitempty"`
	System *string         `json:"system,omitempty"`
	Tools  map[string]bool `json:"tools,omitempty"`

	ModelID    string        `json:"modelID,omitempty"`
	ProviderID string        `json:"providerID,omitempty"`
	Mode       string        `json:"mode,omitempty"`
	Finish     *string       `json:"finish,omitempty"`
	Cost       float64       `json:"cost,omitempty"`
	Tokens     *TokenUsage   `json:"tokens,omitempty"`
	Error      *MessageError `json:"error,omitempty"`

	// IsSummary marks a message synthesized by the context-window manager
	// (a compacted summary of earlier CONTEXT/DIALOG messages) rather than
	// produced by the gateway or the user.
	IsSummary bool `json:"isSummary,omitempty"`
}

// MessageTime contains timestamps for a message.
type MessageTime struct {
	Created int64  `json:"created"`
	Updated *int64 `json:"updated,omitempty"`
}

// ModelRef references a specific model from a provider.
type ModelRef struct {
	ProviderID string `json:"providerID"`
	ModelID    string `json:"modelID"`
}

// TokenUsage contains token usage statistics for a message.
type TokenUsage struct {
	Input     int        `json:"input"`
	Output    int        `json:"output"`
	Reasoning int        `json:"reasoning,omitempty"`
	Cache     CacheUsage `json:"cache,omitempty"`
}

// Total returns the message's contribution to its category's token budget.
func (u TokenUsage) Total() int {
	if u.Input == 0 && u.Output == 0 {
		return 0
	}
	return u.Input + u.Output + u.Reasoning
}

// CacheUsage contains cache hit/write statistics.
type CacheUsage struct {
	Read  int `json:"read"`
	Write int `json:"write"`
}

// MessageError represents an error that occurred during message processing.
type MessageError struct {
	Type    string `json:"type"` // "gateway" | "auth" | "output_length" | "stop_condition"
	Message string `json:"message"`
}
