// Package provider provides LLM provider abstraction for Penguin's reasoning
// engine.
//
// This package implements a unified interface for Large Language Model
// gateways using the Eino framework, currently wired to Anthropic Claude.
//
// # Core Components
//
//   - Provider: Core interface that all LLM providers must implement
//   - Registry: Manages and coordinates configured providers
//   - CompletionRequest/CompletionStream: Handles streaming chat completions
//   - Tool conversion utilities for function calling
//
// # Anthropic (Claude)
//
// Supports Claude models including Claude 4 Sonnet, Claude 4 Opus, and
// Claude 3.5/4.5 Haiku. Features include:
//
//   - Direct API access or AWS Bedrock integration
//   - Extended thinking support for reasoning tasks
//   - Prompt caching
//   - Vision and tool calling capabilities
//
//	provider, err := NewAnthropicProvider(ctx, &AnthropicConfig{
//	    ID:        "anthropic",
//	    APIKey:    "sk-...",
//	    Model:     "claude-sonnet-4-20250514",
//	    MaxTokens: 8192,
//	})
//
// # Registry Usage
//
//	registry := NewRegistry(config)
//
//	provider, err := registry.Get("anthropic")
//	model, err := registry.GetModel("anthropic", "claude-sonnet-4-20250514")
//	model, err := registry.DefaultModel()
//	models := registry.AllModels()
//
// # Configuration
//
// Providers are configured through the config file's provider section or
// through the ANTHROPIC_API_KEY environment variable as a fallback.
//
// # Streaming Completions
//
//	stream, err := provider.CreateCompletion(ctx, &CompletionRequest{
//	    Model:     "claude-sonnet-4-20250514",
//	    Messages:  messages,
//	    Tools:     tools,
//	    MaxTokens: 4096,
//	})
//
//	for {
//	    msg, err := stream.Recv()
//	    if err != nil {
//	        break
//	    }
//	    // Process message chunk
//	}
//	stream.Close()
//
// # Tool Calling
//
//	einoTools := ConvertToEinoTools(tools)
//	einoMessages := ConvertToEinoMessages(messages, parts)
package provider
