package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Sandbox.PythonBin != "python3" {
		t.Errorf("Sandbox.PythonBin = %q, want python3", cfg.Sandbox.PythonBin)
	}
	if cfg.Sandbox.Timeout != 10*time.Second {
		t.Errorf("Sandbox.Timeout = %s, want 10s", cfg.Sandbox.Timeout)
	}
	if cfg.Sandbox.MaxOutputLen != 10000 {
		t.Errorf("Sandbox.MaxOutputLen = %d, want 10000", cfg.Sandbox.MaxOutputLen)
	}
	if !cfg.Cache.Enabled {
		t.Error("Cache.Enabled = false, want true")
	}
	if cfg.Cache.MaxSizeMB != 100 {
		t.Errorf("Cache.MaxSizeMB = %d, want 100", cfg.Cache.MaxSizeMB)
	}
	if cfg.Cache.TTL != 24*time.Hour {
		t.Errorf("Cache.TTL = %s, want 24h", cfg.Cache.TTL)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"server port 0", func(c *Config) { c.Server.Port = 0 }, true},
		{"server port 99999", func(c *Config) { c.Server.Port = 99999 }, true},
		{"timeout below 1s", func(c *Config) { c.Sandbox.Timeout = 500 * time.Millisecond }, true},
		{"timeout > max_timeout", func(c *Config) {
			c.Sandbox.Timeout = 2 * time.Minute
			c.Sandbox.MaxTimeout = 1 * time.Minute
		}, true},
		{"max_timeout > 60s", func(c *Config) { c.Sandbox.MaxTimeout = 2 * time.Minute }, true},
		{"max_output_len 0", func(c *Config) { c.Sandbox.MaxOutputLen = 0 }, true},
		{"max_concurrent 0", func(c *Config) { c.Sandbox.MaxConcurrent = 0 }, true},
		{"cache dir empty", func(c *Config) { c.Cache.Directory = "" }, true},
		{"cache dir empty but cache disabled", func(c *Config) {
			c.Cache.Enabled = false
			c.Cache.Directory = ""
		}, false},
		{"cache size 0", func(c *Config) { c.Cache.MaxSizeMB = 0 }, true},
		{"cache ttl 10s", func(c *Config) { c.Cache.TTL = 10 * time.Second }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	yamlContent := `
server:
  host: "127.0.0.1"
  port: 9090
sandbox:
  python_bin: python3.12
  timeout: 5s
  max_output_len: 2048
cache:
  directory: /var/cache/codecell
  max_size_mb: 50
  ttl: 1h
`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(yamlContent), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want 127.0.0.1", cfg.Server.Host)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Sandbox.PythonBin != "python3.12" {
		t.Errorf("Sandbox.PythonBin = %q, want python3.12", cfg.Sandbox.PythonBin)
	}
	if cfg.Sandbox.Timeout != 5*time.Second {
		t.Errorf("Sandbox.Timeout = %s, want 5s", cfg.Sandbox.Timeout)
	}
	// Unset fields keep defaults.
	if cfg.Sandbox.MaxCodeLen != 50000 {
		t.Errorf("Sandbox.MaxCodeLen = %d, want default 50000", cfg.Sandbox.MaxCodeLen)
	}
	if cfg.Cache.Directory != "/var/cache/codecell" {
		t.Errorf("Cache.Directory = %q, want /var/cache/codecell", cfg.Cache.Directory)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("Load() on missing file: expected error")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("sandbox:\n  timeout: 500ms\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() with sub-second timeout: expected validation error")
	}
}

func TestAddress(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Host = "10.0.0.1"
	cfg.Server.Port = 9000
	if got := cfg.Address(); got != "10.0.0.1:9000" {
		t.Errorf("Address() = %q, want 10.0.0.1:9000", got)
	}
}
