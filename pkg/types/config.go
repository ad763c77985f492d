package types

// Config is Penguin's configuration, loaded in layers (global → project →
// environment) by internal/config.
type Config struct {
	Schema string `json:"$schema,omitempty"`

	ContextWindow ContextWindowConfig `json:"context_window,omitempty"`
	Session       SessionConfig       `json:"session,omitempty"`
	Checkpoint    CheckpointConfig    `json:"checkpoint,omitempty"`
	Engine        EngineConfig        `json:"engine,omitempty"`

	// Provider/Agent configs are consumed by the example plugin
	// implementations (internal/provider, internal/agent), not by the
	// five core components.
	Provider map[string]ProviderConfig `json:"provider,omitempty"`
	Agent    map[string]AgentConfig    `json:"agent,omitempty"`
	Permission *PermissionConfig       `json:"permission,omitempty"`
}

// ContextWindowConfig configures the token counter and context-window
// manager (C1).
type ContextWindowConfig struct {
	// TotalTokens is the global fallback W used when no per-agent clamp and
	// no model capability is available.
	TotalTokens int `json:"total_tokens,omitempty"`

	// CategoryRatios gives each category's default share of W. Keys match
	// MessageCategory values; ratios need not sum to 1 (SYSTEM/ERROR are
	// carved out before ratios are applied to the remainder).
	CategoryRatios map[string]float64 `json:"category_ratios,omitempty"`

	// TokenCounterPreference is the ordered list of counter strategies:
	// "native" (provider-supplied), "tiktoken", "charrate".
	TokenCounterPreference []string `json:"token_counter_preference,omitempty"`
}

// SessionConfig configures the session store/manager (C2).
type SessionConfig struct {
	MaxMessagesPerSession int `json:"max_messages_per_session,omitempty"`
	AutoSaveIntervalSec   int `json:"auto_save_interval,omitempty"`
}

// CheckpointConfig configures the checkpoint/snapshot manager (C4).
type CheckpointConfig struct {
	Enabled   bool              `json:"enabled"`
	Frequency int               `json:"frequency,omitempty"` // capture every N messages
	MaxAuto   int               `json:"max_auto,omitempty"`
	Retention RetentionConfig   `json:"retention,omitempty"`
}

// RetentionConfig configures checkpoint garbage collection.
type RetentionConfig struct {
	KeepAllHours int `json:"keep_all_hours,omitempty"`
	KeepEveryNth int `json:"keep_every_nth,omitempty"`
	MaxAgeDays   int `json:"max_age_days,omitempty"`
}

// EngineConfig configures the reasoning engine (C5).
type EngineConfig struct {
	MaxIterations int          `json:"max_iterations,omitempty"`
	StopPhrases   []string     `json:"stop_phrases,omitempty"`
	Streaming     bool         `json:"streaming"`
	Retry         RetryConfig  `json:"retry,omitempty"`
}

// RetryConfig configures the engine's gateway retry/backoff policy.
type RetryConfig struct {
	MaxAttempts     int    `json:"max_attempts,omitempty"`
	BackoffInitial  string `json:"backoff_initial,omitempty"` // duration string, e.g. "1s"
	BackoffMax      string `json:"backoff_max,omitempty"`
	BackoffMaxElapsed string `json:"backoff_max_elapsed,omitempty"`
}

// ProviderConfig holds configuration for an example LLMGateway plugin.
type ProviderConfig struct {
	APIKey  string `json:"apiKey,omitempty"`
	BaseURL string `json:"baseURL,omitempty"`
	Model   string `json:"model,omitempty"`
	Disable bool   `json:"disable,omitempty"`
}

// AgentConfig holds configuration for a sub-agent profile.
type AgentConfig struct {
	Model       string            `json:"model,omitempty"`
	Temperature *float64          `json:"temperature,omitempty"`
	TopP        *float64          `json:"top_p,omitempty"`
	Prompt      string            `json:"prompt,omitempty"`
	Tools       map[string]bool   `json:"tools,omitempty"`
	Permission  *PermissionConfig `json:"permission,omitempty"`
	Description string            `json:"description,omitempty"`
	Mode        string            `json:"mode,omitempty"` // "subagent"|"primary"|"all"

	// MaxContextTokens is the per-agent clamp from spec.md §4.1's context
	// window priority order; 0 means "no clamp, defer to model/global".
	MaxContextTokens int `json:"max_context_tokens,omitempty"`

	Disable bool `json:"disable,omitempty"`
}

// PermissionConfig holds permission settings consumed by internal/permission.
type PermissionConfig struct {
	Edit        string      `json:"edit,omitempty"`
	Bash        interface{} `json:"bash,omitempty"`
	WebFetch    string      `json:"webfetch,omitempty"`
	ExternalDir string      `json:"external_directory,omitempty"`
	DoomLoop    string      `json:"doom_loop,omitempty"`
}

// Model represents an LLM model available from a provider.
type Model struct {
	ID                string       `json:"id"`
	Name              string       `json:"name"`
	ProviderID        string       `json:"providerID"`
	ContextLength     int          `json:"contextLength"`
	MaxOutputTokens   int          `json:"maxOutputTokens,omitempty"`
	SupportsTools     bool         `json:"supportsTools"`
	SupportsVision    bool         `json:"supportsVision"`
	SupportsReasoning bool         `json:"supportsReasoning,omitempty"`
	InputPrice        float64      `json:"inputPrice,omitempty"`  // USD per million input tokens
	OutputPrice       float64      `json:"outputPrice,omitempty"` // USD per million output tokens
	Options           ModelOptions `json:"options,omitempty"`
}

// ModelOptions contains model-specific options.
type ModelOptions struct {
	Temperature    *float64 `json:"temperature,omitempty"`
	TopP           *float64 `json:"topP,omitempty"`
	PromptCaching  bool     `json:"promptCaching,omitempty"`
	ExtendedOutput bool     `json:"extendedOutput,omitempty"`
}
