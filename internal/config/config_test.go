package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Server.Addr != ":8000" || cfg.Server.BasePath != "/api/v1" {
		t.Fatalf("unexpected server defaults %+v", cfg.Server)
	}
	if cfg.Sources.Mode != SourcesMock || cfg.Lock.Backend != LockLocal {
		t.Fatalf("unexpected adapter defaults")
	}
	if cfg.Reflection.Hour != 9 {
		t.Fatalf("expected reflection hour 9, got %d", cfg.Reflection.Hour)
	}
}

func TestFromYAMLOverlaysDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("lock:\n  backend: redis\n  redis_addr: localhost:6379\n"))
	if err != nil {
		t.Fatalf("from yaml: %v", err)
	}
	if cfg.Lock.RedisAddr != "localhost:6379" {
		t.Fatalf("override not applied")
	}
	if cfg.Server.Addr != ":8000" || cfg.Scheduler.ResetIntervalSeconds != 60 {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"sources:\n  mode: remote\n":                            "sources.mode",
		"sources:\n  mode: live\n  healthkit:\n    base_url: \"\"\n": "base_url",
		"lock:\n  backend: redis\n":                             "redis_addr",
		"lock:\n  backend: etcd\n":                              "lock.backend",
		"reflection:\n  hour: 24\n":                             "reflection.hour",
		"server:\n  base_path: api\n":                           "base_path",
		"logging:\n  mode: verbose\n":                           "logging.mode",
	}
	for raw, want := range cases {
		_, err := FromYAML([]byte(raw))
		if err == nil {
			t.Fatalf("expected error for %q", raw)
		}
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil {
		t.Fatalf("load optional: %v", err)
	}
	if cfg.Server.Addr != ":8000" {
		t.Fatalf("expected defaults for missing file")
	}
	if _, err := Load(dir); err == nil {
		t.Fatalf("expected Load to fail without a config file")
	}

	if err := os.WriteFile(filepath.Join(dir, "omtobe.yml"), []byte("server:\n  addr: \":9000\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err = Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":9000" {
		t.Fatalf("expected file override, got %s", cfg.Server.Addr)
	}
}

func TestGenerateDefaultParses(t *testing.T) {
	if _, err := FromYAML([]byte(GenerateDefault())); err != nil {
		t.Fatalf("generated default does not parse: %v", err)
	}
}
