package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend != BackendLocal {
		t.Fatalf("backend = %q", cfg.Backend)
	}
	if cfg.ListenAddr != ":8080" || cfg.SQLitePath != "personallm.db" {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.RabbitQueue != "title_jobs" {
		t.Fatalf("rabbit queue = %q", cfg.RabbitQueue)
	}
}

func TestLoadFileThenEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "backend: remote\nlisten_addr: \":9000\"\nredis_db: 3\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("LISTEN_ADDR", ":7777")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend != BackendRemote {
		t.Fatalf("backend = %q, want value from file", cfg.Backend)
	}
	if cfg.ListenAddr != ":7777" {
		t.Fatalf("listen = %q, want env override", cfg.ListenAddr)
	}
	if cfg.RedisDB != 3 {
		t.Fatalf("redis db = %d", cfg.RedisDB)
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("BACKEND", "cloud")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestLoadMissingFileIsFine(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
		t.Fatalf("load: %v", err)
	}
}
