package types

import "encoding/json"

// Part is a component of a message's content. All parts carry sessionID and
// messageID so they can be located and persisted independently of their
// parent message.
type Part interface {
	PartType() string
	PartID() string
	PartSessionID() string
	PartMessageID() string
}

// PartTime contains timing information for a message part.
type PartTime struct {
	Start *int64 `json:"start,omitempty"`
	End   *int64 `json:"end,omitempty"`
}

// TextPart is plain text content, streamed incrementally while OPEN/
// APPENDING and immutable once FINALIZED.
type TextPart struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionID"`
	MessageID string         `json:"messageID"`
	Type      string         `json:"type"` // always "text"
	Text      string         `json:"text"`
	Time      PartTime       `json:"time,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (p *TextPart) PartType() string      { return "text" }
func (p *TextPart) PartID() string        { return p.ID }
func (p *TextPart) PartSessionID() string { return p.SessionID }
func (p *TextPart) PartMessageID() string { return p.MessageID }

// ImagePart is an image attachment supplied as context. The trim algorithm
// may replace the inline payload with a text placeholder when a session
// falls under budget pressure; Placeholder records that this happened.
type ImagePart struct {
	ID          string `json:"id"`
	SessionID   string `json:"sessionID"`
	MessageID   string `json:"messageID"`
	Type        string `json:"type"` // always "image"
	MediaType   string `json:"mediaType"`
	URL         string `json:"url,omitempty"`
	Data        string `json:"data,omitempty"` // base64, mutually exclusive with URL
	Placeholder bool   `json:"placeholder,omitempty"`
}

func (p *ImagePart) PartType() string      { return "image" }
func (p *ImagePart) PartID() string        { return p.ID }
func (p *ImagePart) PartSessionID() string { return p.SessionID }
func (p *ImagePart) PartMessageID() string { return p.MessageID }

// FilePart is a non-image file attachment.
type FilePart struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionID"`
	MessageID string `json:"messageID"`
	Type      string `json:"type"` // always "file"
	Filename  string `json:"filename"`
	MediaType string `json:"mediaType"`
	URL       string `json:"url"`
}

func (p *FilePart) PartType() string      { return "file" }
func (p *FilePart) PartID() string        { return p.ID }
func (p *FilePart) PartSessionID() string { return p.SessionID }
func (p *FilePart) PartMessageID() string { return p.MessageID }

// ReasoningPart is extended-thinking content, kept distinct from TextPart so
// the trim algorithm can drop it independently (it is never replayed to the
// gateway on the next turn).
type ReasoningPart struct {
	ID        string   `json:"id"`
	SessionID string   `json:"sessionID"`
	MessageID string   `json:"messageID"`
	Type      string   `json:"type"` // always "reasoning"
	Text      string   `json:"text"`
	Time      PartTime `json:"time,omitempty"`
}

func (p *ReasoningPart) PartType() string      { return "reasoning" }
func (p *ReasoningPart) PartID() string        { return p.ID }
func (p *ReasoningPart) PartSessionID() string { return p.SessionID }
func (p *ReasoningPart) PartMessageID() string { return p.MessageID }

// ToolPart is an action (tool call) and its eventual outcome.
type ToolPart struct {
	ID         string         `json:"id"`
	SessionID  string         `json:"sessionID"`
	MessageID  string         `json:"messageID"`
	Type       string         `json:"type"` // always "tool"
	ToolCallID string         `json:"toolCallID"`
	ToolName   string         `json:"toolName"`
	Input      map[string]any `json:"input"`
	State      string         `json:"state"` // "pending" | "running" | "completed" | "error"
	Output     *string        `json:"output,omitempty"`
	Error      *string        `json:"error,omitempty"`
	Title      *string        `json:"title,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Time       PartTime       `json:"time,omitempty"`

	// FromText marks an action recovered by parsing tagged text rather than
	// a native gateway tool-call object; used to resolve identity conflicts
	// when both a native call and a tagged invocation appear in one chunk.
	FromText bool `json:"fromText,omitempty"`
}

func (p *ToolPart) PartType() string      { return "tool" }
func (p *ToolPart) PartID() string        { return p.ID }
func (p *ToolPart) PartSessionID() string { return p.SessionID }
func (p *ToolPart) PartMessageID() string { return p.MessageID }

// RawPart is the wire envelope used to sniff a part's type before decoding.
type RawPart struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"-"`
}

// UnmarshalPart decodes a JSON part into its concrete type.
func UnmarshalPart(data []byte) (Part, error) {
	var raw RawPart
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	switch raw.Type {
	case "text":
		var p TextPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	case "image":
		var p ImagePart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	case "reasoning":
		var p ReasoningPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	case "tool":
		var p ToolPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	case "file":
		var p FilePart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	default:
		var p TextPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	}
}
