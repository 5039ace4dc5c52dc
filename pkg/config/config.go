/*
Copyright 2025 Ghast Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package config loads the optional YAML configuration file that tunes
// per-audit behavior.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/ghast-sh/ghast/pkg/finding"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable holding an explicit
// config file path
const EnvConfigPath = "GHAST_CONFIG"

var configFileNames = []string{".ghast.yml", ".ghast.yaml", "ghast.yml", "ghast.yaml"}

// Config is the root of the configuration file
type Config struct {
	Rules map[string]RuleConfig `yaml:"rules"`
}

// RuleConfig tunes one audit
type RuleConfig struct {
	Enabled          *bool        `yaml:"enabled"`
	SeverityOverride string       `yaml:"severity-override"`
	Ignore           []IgnoreRule `yaml:"ignore"`
}

// IgnoreRule suppresses findings by input path glob, optionally limited
// to specific audit IDs
type IgnoreRule struct {
	PathGlob string   `yaml:"path-glob"`
	AuditIDs []string `yaml:"audit-ids"`
}

// Default returns the empty configuration: everything enabled, no
// overrides
func Default() *Config {
	return &Config{Rules: map[string]RuleConfig{}}
}

// Load reads configuration from an explicit path, the environment, or
// well-known file names in the working directory and then in the home
// directory, in that order. A missing file is not an error; a malformed
// one is.
func Load(explicitPath string) (*Config, error) {
	path := explicitPath
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		path = findConfigFile()
	}
	if path == "" {
		return Default(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && explicitPath == "" {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.validate(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findConfigFile() string {
	for _, candidate := range configFileNames {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		for _, candidate := range configFileNames {
			full := filepath.Join(home, candidate)
			if _, err := os.Stat(full); err == nil {
				return full
			}
		}
	}
	return ""
}

func (c *Config) validate(path string) error {
	for id, rule := range c.Rules {
		if rule.SeverityOverride != "" {
			if _, ok := finding.ParseSeverity(rule.SeverityOverride); !ok {
				return fmt.Errorf("%s: rule %s: invalid severity-override %q", path, id, rule.SeverityOverride)
			}
		}
		for _, ignore := range rule.Ignore {
			if ignore.PathGlob == "" {
				return fmt.Errorf("%s: rule %s: ignore entry requires path-glob", path, id)
			}
			if !doublestar.ValidatePattern(ignore.PathGlob) {
				return fmt.Errorf("%s: rule %s: invalid path-glob %q", path, id, ignore.PathGlob)
			}
		}
	}
	return nil
}

// RuleEnabled reports whether an audit is enabled by configuration
func (c *Config) RuleEnabled(auditID string) bool {
	rule, ok := c.Rules[auditID]
	if !ok || rule.Enabled == nil {
		return true
	}
	return *rule.Enabled
}

// Apply filters and rewrites findings per the configuration: disabled
// audits and glob-ignored paths are dropped, severity overrides are
// applied. Rule metadata stays data; audits never consult this.
func (c *Config) Apply(findings []finding.Finding) []finding.Finding {
	if len(c.Rules) == 0 {
		return findings
	}

	var out []finding.Finding
	for _, f := range findings {
		rule, configured := c.Rules[f.AuditID]
		if configured && rule.Enabled != nil && !*rule.Enabled {
			continue
		}
		if configured && c.ignored(&rule, &f) {
			continue
		}
		if configured && rule.SeverityOverride != "" {
			if sev, ok := finding.ParseSeverity(rule.SeverityOverride); ok {
				f.Severity = sev
			}
		}
		out = append(out, f)
	}
	return out
}

func (c *Config) ignored(rule *RuleConfig, f *finding.Finding) bool {
	primary := f.Primary()
	if primary == nil {
		return false
	}
	path := filepath.ToSlash(primary.Location.Path)

	for _, ignore := range rule.Ignore {
		matched, err := doublestar.Match(ignore.PathGlob, path)
		if err != nil || !matched {
			continue
		}
		if len(ignore.AuditIDs) == 0 {
			return true
		}
		for _, id := range ignore.AuditIDs {
			if id == f.AuditID {
				return true
			}
		}
	}
	return false
}
