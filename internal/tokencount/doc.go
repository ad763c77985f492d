// Package tokencount implements Penguin's context-window manager: counting
// tokens across a three-tier strategy (native usage, tiktoken estimate,
// character-rate fallback), resolving the effective token budget for a
// session or sub-agent, and trimming conversation history to fit it.
package tokencount
