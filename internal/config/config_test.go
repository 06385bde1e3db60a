package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 10000 {
		t.Fatalf("expected default port 10000, got %d", cfg.Port)
	}
	if len(cfg.TimeControls) != 3 || cfg.TimeControls[0] != 5 || cfg.TimeControls[2] != 15 {
		t.Fatalf("unexpected default time controls: %v", cfg.TimeControls)
	}
	if cfg.StallThreshold != 2*time.Minute {
		t.Fatalf("expected 2m stall threshold, got %s", cfg.StallThreshold)
	}
	if cfg.NameMax != 20 {
		t.Fatalf("expected name bound 20, got %d", cfg.NameMax)
	}
	if cfg.SessionRetention != 0 {
		t.Fatalf("retention should be disabled by default, got %s", cfg.SessionRetention)
	}
	if cfg.Addr() != "0.0.0.0:10000" {
		t.Fatalf("unexpected addr %q", cfg.Addr())
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "3000")
	t.Setenv("RELAY_TIME_CONTROLS", "1,3,10")
	t.Setenv("RELAY_STALL_THRESHOLD", "90s")
	t.Setenv("RELAY_ALLOWED_ORIGINS", "example.com, ,*.example.org")
	t.Setenv("REDIS_URL", "  redis://localhost:6379/0 ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 3000 {
		t.Fatalf("expected port 3000, got %d", cfg.Port)
	}
	if len(cfg.TimeControls) != 3 || cfg.TimeControls[1] != 3 {
		t.Fatalf("unexpected time controls: %v", cfg.TimeControls)
	}
	if cfg.StallThreshold != 90*time.Second {
		t.Fatalf("unexpected threshold: %s", cfg.StallThreshold)
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Fatalf("blank origins should be dropped: %v", cfg.AllowedOrigins)
	}
	if cfg.RedisURL != "redis://localhost:6379/0" {
		t.Fatalf("redis url not trimmed: %q", cfg.RedisURL)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"RELAY_TIME_CONTROLS":   "5,5",
		"RELAY_STALL_THRESHOLD": "0s",
		"RELAY_NAME_MAX":        "0",
		"PORT":                  "70000",
	}
	for k, v := range cases {
		t.Run(k, func(t *testing.T) {
			t.Setenv(k, v)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", k, v)
			}
		})
	}
}
