package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("VISION_TOKEN", "")
	t.Setenv("VISION_BASE_URL", "")
	t.Setenv("SQLITE_PATH", "")
	t.Setenv("REDIS_URL", "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  addr: \":9000\"\nprofile:\n  deleteOnSyncFailure: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9000" {
		t.Fatalf("addr = %q", cfg.Server.Addr)
	}
	if !cfg.Profile.DeleteOnSyncFailure {
		t.Fatalf("deleteOnSyncFailure not read")
	}
	if cfg.Vision.BaseURL != "https://v1.empr.cloud/api/v1" {
		t.Fatalf("baseURL default = %q", cfg.Vision.BaseURL)
	}
	if cfg.Activity.IdleThreshold() != 24*time.Hour {
		t.Fatalf("idle threshold = %v", cfg.Activity.IdleThreshold())
	}
	if cfg.Vision.Timeout() != 30*time.Second {
		t.Fatalf("timeout = %v", cfg.Vision.Timeout())
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	t.Setenv("VISION_TOKEN", "env-token")
	t.Setenv("VISION_BASE_URL", "http://127.0.0.1:8080/mock")
	t.Setenv("SQLITE_PATH", "")
	t.Setenv("REDIS_URL", "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("vision:\n  token: file-token\n  baseURL: http://example.invalid\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Vision.Token != "env-token" {
		t.Fatalf("token = %q", cfg.Vision.Token)
	}
	if cfg.Vision.BaseURL != "http://127.0.0.1:8080/mock" {
		t.Fatalf("baseURL = %q", cfg.Vision.BaseURL)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("VISION_TOKEN", "")
	t.Setenv("VISION_BASE_URL", "")
	t.Setenv("SQLITE_PATH", "")
	t.Setenv("REDIS_URL", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8090" {
		t.Fatalf("addr = %q", cfg.Server.Addr)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected yaml error")
	}
}

func TestNotifySummaryWindow(t *testing.T) {
	cases := []struct {
		in   int
		want time.Duration
	}{
		{0, 20 * time.Second},
		{-1, 0},
		{45, 45 * time.Second},
		{3600, 600 * time.Second},
	}
	for _, tc := range cases {
		if got := (NotifyConfig{SummarySeconds: tc.in}).SummaryWindow(); got != tc.want {
			t.Errorf("SummarySeconds=%d: got %v want %v", tc.in, got, tc.want)
		}
	}
}
