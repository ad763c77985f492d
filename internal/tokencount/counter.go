package tokencount

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/penguin-run/penguin/pkg/types"
)

// Counter estimates the token count of a string for budget bookkeeping.
type Counter interface {
	Count(text string) int
	Name() string
}

// charRateCounter is the char-rate fallback, grounded on the teacher's
// estimateTokens (~4 characters per token). Always available.
type charRateCounter struct{}

func (charRateCounter) Count(text string) int {
	if len(text) == 0 {
		return 0
	}
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}

func (charRateCounter) Name() string { return "charrate" }

// tiktokenCounter wraps pkoukk/tiktoken-go's BPE encoder. Construction can
// fail (missing encoding data, unknown model), so NewTiktokenCounter
// returns an error the caller falls back on.
type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter builds a counter for the given model's encoding. Model
// names unknown to tiktoken-go fall back to the cl100k_base encoding,
// matching how the library itself handles unseen OpenAI-style model ids;
// it is still a reasonable token-count approximation for non-OpenAI models.
func NewTiktokenCounter(modelID string) (Counter, error) {
	enc, err := tiktoken.EncodingForModel(modelID)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}
	return &tiktokenCounter{enc: enc}, nil
}

func (c *tiktokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.enc.Encode(text, nil, nil))
}

func (c *tiktokenCounter) Name() string { return "tiktoken" }

// nativeCounter reports the token count a provider already returned in a
// message's Tokens field. It has no text-counting capability of its own —
// callers that have provider usage should prefer it over estimating.
type nativeCounter struct {
	usage *types.TokenUsage
}

// NewNativeCounter wraps a provider-reported usage, or nil if none is
// available yet (e.g. before the first turn completes).
func NewNativeCounter(usage *types.TokenUsage) Counter {
	return &nativeCounter{usage: usage}
}

func (c *nativeCounter) Count(text string) int {
	if c.usage == nil {
		return 0
	}
	return c.usage.Total()
}

func (c *nativeCounter) Name() string { return "native" }

// tiktokenCache memoizes tiktoken encoders per model, since construction
// loads a BPE merge table that is expensive to rebuild per call.
var tiktokenCache sync.Map // map[string]Counter

// NewCounter resolves the preferred counter for a model given a tier
// preference order (e.g. config's ContextWindow.TokenCounterPreference:
// ["native", "tiktoken", "charrate"]). usage is the provider-reported
// token usage for the "native" tier, or nil if not yet available.
func NewCounter(preference []string, modelID string, usage *types.TokenUsage) Counter {
	if len(preference) == 0 {
		preference = []string{"native", "tiktoken", "charrate"}
	}

	for _, tier := range preference {
		switch tier {
		case "native":
			if usage != nil && usage.Total() > 0 {
				return NewNativeCounter(usage)
			}
		case "tiktoken":
			if c, ok := tiktokenCache.Load(modelID); ok {
				return c.(Counter)
			}
			if c, err := NewTiktokenCounter(modelID); err == nil {
				tiktokenCache.Store(modelID, c)
				return c
			}
		case "charrate":
			return charRateCounter{}
		}
	}

	return charRateCounter{}
}
