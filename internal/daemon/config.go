// Copyright 2025 The mqfs Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package daemon

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// getConfigDir returns the config directory path.
// Uses MQFS_CONFIG_DIR env var if set, otherwise defaults to ~/.mqfs.
// This is computed dynamically to support test isolation.
func getConfigDir() string {
	if dir := os.Getenv("MQFS_CONFIG_DIR"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".mqfs")
}

// ConfigDir returns the configuration directory path
func ConfigDir() string {
	return getConfigDir()
}

// SettingsPath returns the settings file path
func SettingsPath() string {
	return filepath.Join(getConfigDir(), "settings.yaml")
}

// LogPath returns the log file path.
// Uses MQFS_LOG env var if set, otherwise defaults to config_dir/mqfs.log.
func LogPath() string {
	if envPath := os.Getenv("MQFS_LOG"); envPath != "" {
		return envPath
	}
	return filepath.Join(getConfigDir(), "mqfs.log")
}

// EnsureConfigDir creates the config directory if it doesn't exist
func EnsureConfigDir() error {
	return os.MkdirAll(getConfigDir(), 0700)
}

const defaultSettings = `# mqfs settings
#
# logging: none, error, warn, info, debug, trace
logging: info

# hide: gitignore-style patterns removed from the mount's root listing
hide:
  - ".*"

# port: local NFS port the daemon serves on (0 picks a free port)
port: 0
`

// Settings is the global configuration from ~/.mqfs/settings.yaml.
type Settings struct {
	Logging        string   `yaml:"logging"`
	Hide           []string `yaml:"hide"`
	Port           int      `yaml:"port"`
	MuttWorkaround *bool    `yaml:"mutt-workaround"`
	HeaderBudget   int      `yaml:"header-budget"`
}

// ApplyDefaults fills zero-value fields with their defaults.
func (s *Settings) ApplyDefaults() {
	if s.Logging == "" {
		s.Logging = "info"
	}
	if s.Hide == nil {
		s.Hide = []string{".*"}
	}
}

// MuttWorkaroundEnabled returns whether the rename compatibility mode is on
// (defaults to false).
func (s *Settings) MuttWorkaroundEnabled() bool {
	if s.MuttWorkaround == nil {
		return false
	}
	return *s.MuttWorkaround
}

// InitConfigDir initializes the config directory with a default settings file
func InitConfigDir() error {
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	path := SettingsPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, []byte(defaultSettings), 0600); err != nil {
			return fmt.Errorf("failed to create default settings: %w", err)
		}
	}
	return nil
}

// LoadSettings reads the global settings file. A missing file yields the
// defaults, a malformed one is an error.
func LoadSettings() (*Settings, error) {
	s := &Settings{}
	raw, err := os.ReadFile(SettingsPath())
	if err != nil {
		if os.IsNotExist(err) {
			s.ApplyDefaults()
			return s, nil
		}
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	if err := yaml.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	s.ApplyDefaults()
	return s, nil
}
