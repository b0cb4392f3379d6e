package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatalf("missing config file should not error: %v", err)
	}
	if cfg.DataRoot != filepath.Join(dir, "data") {
		t.Errorf("data root should default next to the config, got %q", cfg.DataRoot)
	}
	if cfg.Dashboard.Host != "127.0.0.1" {
		t.Errorf("dashboard must default to loopback, got %q", cfg.Dashboard.Host)
	}
	if cfg.Dashboard.Port != 3700 {
		t.Errorf("unexpected default port %d", cfg.Dashboard.Port)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `data_root: /srv/agent/data
dashboard:
  port: 9999
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DataRoot != "/srv/agent/data" {
		t.Errorf("explicit value not applied, got %q", cfg.DataRoot)
	}
	if cfg.Dashboard.Port != 9999 {
		t.Errorf("explicit port not applied, got %d", cfg.Dashboard.Port)
	}
	// Unset fields fall back to defaults.
	if cfg.AuditDir != filepath.Join(dir, "audit") {
		t.Errorf("audit dir should keep its default, got %q", cfg.AuditDir)
	}
	if cfg.Dashboard.Host != "127.0.0.1" {
		t.Errorf("host should keep its default, got %q", cfg.Dashboard.Host)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("data_root: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("malformed YAML should error")
	}
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty_data_root", `data_root: ""`},
		{"empty_host", "dashboard:\n  host: \"\""},
		{"port_zero", "dashboard:\n  port: 0"},
		{"port_too_big", "dashboard:\n  port: 70000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestWriteDefault_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "# toolgate configuration") {
		t.Error("written config should start with the comment header")
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("written default config should load cleanly: %v", err)
	}
	if *cfg != *Default(filepath.Dir(path)) {
		t.Errorf("round-tripped config differs from defaults: %+v", cfg)
	}
}
