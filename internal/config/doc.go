// Package config provides layered configuration loading and XDG path
// management for Penguin.
//
// Load merges, in priority order, a global config
// (~/.config/penguin/penguin.json[c]), a project config
// (<directory>/.penguin/penguin.json[c]), and environment variable
// overrides, then fills any key left at its zero value from built-in
// defaults. JSONC files (with // and /* */ comments) are supported via
// tidwall/jsonc.
package config
