package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadDir reads every *.yaml/*.yml file directly under dir as a named
// agent definition (filename without extension becomes the agent name)
// and merges them into the registry via LoadFromConfig. A missing dir is
// not an error: projects without custom agents simply have none.
func (r *Registry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("agent: read dir %s: %w", dir, err)
	}

	config := make(map[string]AgentConfig)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ext)

		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("agent: read %s: %w", entry.Name(), err)
		}
		var cfg AgentConfig
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return fmt.Errorf("agent: parse %s: %w", entry.Name(), err)
		}
		config[name] = cfg
	}

	if len(config) > 0 {
		r.LoadFromConfig(config)
	}
	return nil
}
