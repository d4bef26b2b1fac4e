package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Server.Addr != ":8787" {
		t.Errorf("unexpected default addr: %s", cfg.Server.Addr)
	}
	if cfg.Analysis.Workers < 1 {
		t.Errorf("default workers must be positive, got %d", cfg.Analysis.Workers)
	}
	if cfg.Storage.MaxFileBytes != 100<<20 {
		t.Errorf("max_file_bytes = %d, want 100MB", cfg.Storage.MaxFileBytes)
	}
	if !cfg.Storage.Allowed(".pcapng") || cfg.Storage.Allowed(".txt") {
		t.Errorf("unexpected default extensions: %v", cfg.Storage.AllowedExtensions)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pawketeer.yaml")
	content := `
server:
  addr: ":9999"
database:
  path: /tmp/test.db
analysis:
  workers: 4
retention:
  max_age: 48h
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9999" {
		t.Errorf("addr = %s, want :9999", cfg.Server.Addr)
	}
	if cfg.Analysis.Workers != 4 {
		t.Errorf("workers = %d, want 4", cfg.Analysis.Workers)
	}
	if cfg.Retention.MaxAge != 48*time.Hour {
		t.Errorf("max_age = %v, want 48h", cfg.Retention.MaxAge)
	}
	// Unset fields keep defaults.
	if cfg.Storage.Dir != "captures" {
		t.Errorf("storage.dir = %s, want default", cfg.Storage.Dir)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/pawketeer.yaml"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PAWKETEER_ADDR", ":7070")
	t.Setenv("PAWKETEER_WORKERS", "8")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":7070" {
		t.Errorf("addr = %s, want :7070", cfg.Server.Addr)
	}
	if cfg.Analysis.Workers != 8 {
		t.Errorf("workers = %d, want 8", cfg.Analysis.Workers)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty addr", func(c *Config) { c.Server.Addr = "" }},
		{"empty db path", func(c *Config) { c.Database.Path = "" }},
		{"zero workers", func(c *Config) { c.Analysis.Workers = 0 }},
		{"zero queue", func(c *Config) { c.Analysis.QueueSize = 0 }},
		{"no extensions", func(c *Config) { c.Storage.AllowedExtensions = nil }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			if err := cfg.validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
