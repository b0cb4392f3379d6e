// Package config handles loading, validating, and writing the toolgate
// configuration from ~/.toolgate/config.yaml.
//
// The config defines:
//   - The data root (the containment boundary for read_file)
//   - The audit directory (hash-chained JSONL log + SQLite index)
//   - The egress log path (simulated send_to effects)
//   - The dashboard bind address and toggle
//
// The data root and allowed egress host are policy inputs fixed at
// startup: the guard treats them as immutable external configuration,
// never something it computes or reloads mid-run.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the top-level toolgate configuration. Loaded from
// config.yaml with defaults for fields that are not explicitly set.
type Config struct {
	DataRoot  string          `yaml:"data_root"`
	AuditDir  string          `yaml:"audit_dir"`
	EgressLog string          `yaml:"egress_log"`
	Dashboard DashboardConfig `yaml:"dashboard"`
}

// DashboardConfig controls the live monitor served by `toolgate watch`.
// Default bind is loopback only — never 0.0.0.0.
type DashboardConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// Default returns a Config with every field set to its default value,
// with paths rooted under the given base directory.
func Default(baseDir string) *Config {
	return &Config{
		DataRoot:  filepath.Join(baseDir, "data"),
		AuditDir:  filepath.Join(baseDir, "audit"),
		EgressLog: filepath.Join(baseDir, "egress.log"),
		Dashboard: DashboardConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    3700,
		},
	}
}

// Load reads and parses config.yaml from the given path. If the file
// doesn't exist, returns defaults rooted next to the path (not an
// error). Invalid YAML or validation failures return an error.
func Load(path string) (*Config, error) {
	cfg := Default(filepath.Dir(path))

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// No config file — use defaults. Normal before `toolgate
			// config init` creates the file.
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// WriteDefault writes a default config.yaml with a comment header.
// Used by `toolgate config init`.
func WriteDefault(path string) error {
	cfg := Default(filepath.Dir(path))
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling default config: %w", err)
	}

	header := `# toolgate configuration
#
# data_root:  Containment boundary for read_file. The policy engine
#             blocks any path that resolves outside this directory.
# audit_dir:  Hash-chained audit log (audit.jsonl) and query index.
# egress_log: Simulated send_to effects (separate from the audit chain).
#
# dashboard:
#   enabled: Serve the live monitor with 'toolgate watch'
#   host:    Bind address (default: 127.0.0.1, loopback only)
#   port:    Listen port (default: 3700)

`
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return os.WriteFile(path, []byte(header+string(data)), 0o644)
}

// validate checks the config for logical errors after parsing.
func validate(cfg *Config) error {
	if cfg.DataRoot == "" {
		return fmt.Errorf("data_root must not be empty")
	}
	if cfg.AuditDir == "" {
		return fmt.Errorf("audit_dir must not be empty")
	}
	if cfg.EgressLog == "" {
		return fmt.Errorf("egress_log must not be empty")
	}
	if cfg.Dashboard.Host == "" {
		return fmt.Errorf("dashboard.host must not be empty")
	}
	if cfg.Dashboard.Port < 1 || cfg.Dashboard.Port > 65535 {
		return fmt.Errorf("dashboard.port %d out of range (1-65535)", cfg.Dashboard.Port)
	}
	return nil
}
