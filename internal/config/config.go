package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"

	"github.com/tidwall/jsonc"

	"github.com/penguin-run/penguin/pkg/types"
)

// defaults are applied after all layers have merged, for any key a config
// file or environment variable left at its zero value.
var defaults = types.Config{
	ContextWindow: types.ContextWindowConfig{
		TotalTokens: 150000,
		CategoryRatios: map[string]float64{
			string(types.CategorySystem):       0.10,
			string(types.CategoryContext):      0.35,
			string(types.CategoryDialog):       0.50,
			string(types.CategorySystemOutput): 0.05,
			string(types.CategoryError):        0.05,
		},
		TokenCounterPreference: []string{"native", "tiktoken", "charrate"},
	},
	Session: types.SessionConfig{
		MaxMessagesPerSession: 5000,
		AutoSaveIntervalSec:   0,
	},
	Checkpoint: types.CheckpointConfig{
		Enabled:   true,
		Frequency: 10,
		MaxAuto:   200,
		Retention: types.RetentionConfig{
			KeepAllHours: 24,
			KeepEveryNth: 5,
			MaxAgeDays:   30,
		},
	},
	Engine: types.EngineConfig{
		MaxIterations: 50,
		Streaming:     true,
		Retry: types.RetryConfig{
			MaxAttempts:       3,
			BackoffInitial:    "1s",
			BackoffMax:        "30s",
			BackoffMaxElapsed: "2m",
		},
	},
}

// Load loads configuration from, in priority order:
//  1. Global config (~/.config/penguin/penguin.json[c])
//  2. Project config (<directory>/.penguin/penguin.json[c])
//  3. Environment variables
//
// Any key left unset after all layers is filled from the built-in defaults.
func Load(directory string) (*types.Config, error) {
	config := &types.Config{
		Provider: make(map[string]types.ProviderConfig),
		Agent:    make(map[string]types.AgentConfig),
	}

	globalPath := GetPaths().Config
	loadConfigFile(filepath.Join(globalPath, "penguin.json"), config)
	loadConfigFile(filepath.Join(globalPath, "penguin.jsonc"), config)

	if directory != "" {
		loadConfigFile(filepath.Join(directory, ".penguin", "penguin.json"), config)
		loadConfigFile(filepath.Join(directory, ".penguin", "penguin.jsonc"), config)
	}

	applyEnvOverrides(config)
	applyDefaults(config)

	return config, nil
}

func loadConfigFile(path string, config *types.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err // file doesn't exist, skip
	}

	data = jsonc.ToJSON(data)

	var fileConfig types.Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return err
	}

	mergeConfig(config, &fileConfig)
	return nil
}

func mergeConfig(target, source *types.Config) {
	if source.ContextWindow.TotalTokens != 0 {
		target.ContextWindow.TotalTokens = source.ContextWindow.TotalTokens
	}
	if source.ContextWindow.CategoryRatios != nil {
		target.ContextWindow.CategoryRatios = source.ContextWindow.CategoryRatios
	}
	if source.ContextWindow.TokenCounterPreference != nil {
		target.ContextWindow.TokenCounterPreference = source.ContextWindow.TokenCounterPreference
	}

	if source.Session.MaxMessagesPerSession != 0 {
		target.Session.MaxMessagesPerSession = source.Session.MaxMessagesPerSession
	}
	if source.Session.AutoSaveIntervalSec != 0 {
		target.Session.AutoSaveIntervalSec = source.Session.AutoSaveIntervalSec
	}

	target.Checkpoint = mergeCheckpointConfig(target.Checkpoint, source.Checkpoint)

	if source.Engine.MaxIterations != 0 {
		target.Engine.MaxIterations = source.Engine.MaxIterations
	}
	if source.Engine.StopPhrases != nil {
		target.Engine.StopPhrases = source.Engine.StopPhrases
	}
	target.Engine.Streaming = target.Engine.Streaming || source.Engine.Streaming
	if source.Engine.Retry.MaxAttempts != 0 {
		target.Engine.Retry = source.Engine.Retry
	}

	if source.Provider != nil {
		if target.Provider == nil {
			target.Provider = make(map[string]types.ProviderConfig)
		}
		for k, v := range source.Provider {
			target.Provider[k] = v
		}
	}

	if source.Agent != nil {
		if target.Agent == nil {
			target.Agent = make(map[string]types.AgentConfig)
		}
		for k, v := range source.Agent {
			target.Agent[k] = v
		}
	}

	if source.Permission != nil {
		target.Permission = source.Permission
	}
}

func mergeCheckpointConfig(target, source types.CheckpointConfig) types.CheckpointConfig {
	if source.Frequency != 0 {
		target.Frequency = source.Frequency
	}
	if source.MaxAuto != 0 {
		target.MaxAuto = source.MaxAuto
	}
	if source.Retention.KeepAllHours != 0 {
		target.Retention.KeepAllHours = source.Retention.KeepAllHours
	}
	if source.Retention.KeepEveryNth != 0 {
		target.Retention.KeepEveryNth = source.Retention.KeepEveryNth
	}
	if source.Retention.MaxAgeDays != 0 {
		target.Retention.MaxAgeDays = source.Retention.MaxAgeDays
	}
	target.Enabled = source.Enabled || target.Enabled
	return target
}

// applyEnvOverrides applies environment variable overrides, matching the
// names the example LLMGateway/ToolRegistry plugins expect.
func applyEnvOverrides(config *types.Config) {
	providerEnvMap := map[string]string{
		"anthropic": "ANTHROPIC_API_KEY",
		"openai":    "OPENAI_API_KEY",
	}

	for provider, envVar := range providerEnvMap {
		if apiKey := os.Getenv(envVar); apiKey != "" {
			if config.Provider == nil {
				config.Provider = make(map[string]types.ProviderConfig)
			}
			p := config.Provider[provider]
			if p.APIKey == "" {
				p.APIKey = apiKey
				config.Provider[provider] = p
			}
		}
	}

	if w := os.Getenv("PENGUIN_CONTEXT_WINDOW"); w != "" {
		if n, err := strconv.Atoi(w); err == nil && n > 0 {
			config.ContextWindow.TotalTokens = n
		}
	}
}

// applyDefaults fills any zero-valued config field from the package
// defaults, so callers never see an unusable zero window/budget.
func applyDefaults(config *types.Config) {
	if config.ContextWindow.TotalTokens == 0 {
		config.ContextWindow.TotalTokens = defaults.ContextWindow.TotalTokens
	}
	if config.ContextWindow.CategoryRatios == nil {
		config.ContextWindow.CategoryRatios = defaults.ContextWindow.CategoryRatios
	}
	if config.ContextWindow.TokenCounterPreference == nil {
		config.ContextWindow.TokenCounterPreference = defaults.ContextWindow.TokenCounterPreference
	}
	if config.Session.MaxMessagesPerSession == 0 {
		config.Session.MaxMessagesPerSession = defaults.Session.MaxMessagesPerSession
	}
	if !config.Checkpoint.Enabled {
		config.Checkpoint.Enabled = defaults.Checkpoint.Enabled
	}
	if config.Checkpoint.Frequency == 0 {
		config.Checkpoint.Frequency = defaults.Checkpoint.Frequency
	}
	if config.Checkpoint.MaxAuto == 0 {
		config.Checkpoint.MaxAuto = defaults.Checkpoint.MaxAuto
	}
	if config.Checkpoint.Retention.KeepAllHours == 0 {
		config.Checkpoint.Retention = defaults.Checkpoint.Retention
	}
	if config.Engine.MaxIterations == 0 {
		config.Engine.MaxIterations = defaults.Engine.MaxIterations
	}
	if !config.Engine.Streaming {
		config.Engine.Streaming = defaults.Engine.Streaming
	}
	if config.Engine.Retry.MaxAttempts == 0 {
		config.Engine.Retry = defaults.Engine.Retry
	}
}

// Save writes the configuration to path as indented JSON.
func Save(config *types.Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
