package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadLayers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lecture.yaml")
	data := []byte("width: 1921\nfps: 25\ntransition: Dissolve\ncall_timeout: 3s\nredis_addr: file:6379\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvPrefix+"REDIS_ADDR", "env:6379")
	t.Setenv(EnvPrefix+"REDIS_TTL", "1h")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if cfg.Width != 1920 || cfg.Height != 720 || cfg.FPS != 25 {
		t.Errorf("video settings: %dx%d@%d", cfg.Width, cfg.Height, cfg.FPS)
	}
	if cfg.TransitionType != "noise" {
		t.Errorf("TransitionType = %q, want normalized noise", cfg.TransitionType)
	}
	if cfg.CallTimeout != 3*time.Second {
		t.Errorf("CallTimeout = %v", cfg.CallTimeout)
	}
	if cfg.RedisAddr != "env:6379" || cfg.RedisTTL != time.Hour {
		t.Errorf("environment must override the file: %q %v", cfg.RedisAddr, cfg.RedisTTL)
	}
	if cfg.TransitionDuration != 800*time.Millisecond {
		t.Errorf("default transition duration lost: %v", cfg.TransitionDuration)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file accepted")
	}

	t.Setenv(EnvPrefix+"REDIS_DB", "first")
	if _, err := Load(""); err == nil {
		t.Error("bad env number accepted")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"zero fps", func(c *Config) { c.FPS = 0 }, false},
		{"bad size", func(c *Config) { c.Width = -2 }, false},
		{"unknown transition", func(c *Config) { c.TransitionType = "wipe" }, false},
		{"remote without url", func(c *Config) { c.Classifier = "remote" }, false},
		{"remote with url", func(c *Config) { c.Classifier = "remote"; c.ServiceURL = "http://svc" }, true},
		{"zero timeout gets default", func(c *Config) { c.CallTimeout = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err == nil) != tt.ok {
				t.Errorf("Validate() = %v, want ok=%v", err, tt.ok)
			}
			if tt.ok && cfg.CallTimeout != 15*time.Second {
				t.Errorf("CallTimeout = %v", cfg.CallTimeout)
			}
		})
	}
}
