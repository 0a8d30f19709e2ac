package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearZoomEnv blanks the environment overrides so file contents decide the outcome
func clearZoomEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ZOOM_ACCOUNT_ID", "ZOOM_CLIENT_ID", "ZOOM_CLIENT_SECRET", "ZOOM_BASE_URL",
		"AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY", "S3_BUCKET",
		"DRIVE_CLIENT_EMAIL", "DRIVE_PRIVATE_KEY", "DOWNLOAD_DIR",
	} {
		t.Setenv(key, "")
	}
}

// writeConfig writes a temporary config file and returns its path
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

const minimalConfig = `
zoom:
  account_id: "acc"
  client_id: "cid"
  client_secret: "secret"
`

func TestLoadConfigDefaults(t *testing.T) {
	clearZoomEnv(t)

	cfg, err := LoadConfig(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Zoom.BaseURL != "https://api.zoom.us/v2" {
		t.Errorf("Expected default base URL, got %q", cfg.Zoom.BaseURL)
	}
	if cfg.Storage.Backend != "local" {
		t.Errorf("Expected default backend local, got %q", cfg.Storage.Backend)
	}
	if cfg.Storage.CompletedLog != "completed-downloads.log" {
		t.Errorf("Expected default completed log, got %q", cfg.Storage.CompletedLog)
	}
	if !cfg.Storage.CompletedLogEnabled() {
		t.Error("Expected completion ledger enabled by default")
	}
	if !cfg.Verification.VerifyDownloads() {
		t.Error("Expected download verification enabled by default")
	}
	if !cfg.Verification.VerifyUploads() {
		t.Error("Expected upload verification enabled by default")
	}
	if cfg.Recordings.PageSize != 300 {
		t.Errorf("Expected default page size 300, got %d", cfg.Recordings.PageSize)
	}
	if cfg.Processing.MaxWorkers != 3 {
		t.Errorf("Expected default max workers 3, got %d", cfg.Processing.MaxWorkers)
	}
	if cfg.Processing.RetryDelay() != 5*time.Second {
		t.Errorf("Expected default retry delay 5s, got %v", cfg.Processing.RetryDelay())
	}
	if cfg.Processing.Timeout() != 300*time.Second {
		t.Errorf("Expected default timeout 300s, got %v", cfg.Processing.Timeout())
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Expected default log level info, got %q", cfg.Logging.Level)
	}
	if !strings.Contains(cfg.Recordings.FilenameTmpl, "{recording_id}") {
		t.Errorf("Expected default filename template, got %q", cfg.Recordings.FilenameTmpl)
	}
}

func TestLoadConfigExplicitDisableSurvivesDefaults(t *testing.T) {
	clearZoomEnv(t)

	cfg, err := LoadConfig(writeConfig(t, minimalConfig+`
storage:
  use_completed_log: false
verification:
  verify_on_download: false
  verify_on_upload: false
`))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Storage.CompletedLogEnabled() {
		t.Error("Expected explicit use_completed_log: false to stick")
	}
	if cfg.Verification.VerifyDownloads() {
		t.Error("Expected explicit verify_on_download: false to stick")
	}
	if cfg.Verification.VerifyUploads() {
		t.Error("Expected explicit verify_on_upload: false to stick")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	clearZoomEnv(t)

	_, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err == nil {
		t.Fatal("Expected error for missing config file")
	}
	if !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("Expected read failure message, got %v", err)
	}
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	clearZoomEnv(t)

	_, err := LoadConfig(writeConfig(t, "zoom: [not a map"))
	if err == nil {
		t.Fatal("Expected error for invalid YAML")
	}
}

func TestLoadConfigEnvironmentOverrides(t *testing.T) {
	clearZoomEnv(t)
	t.Setenv("ZOOM_ACCOUNT_ID", "env-account")
	t.Setenv("ZOOM_CLIENT_ID", "env-client")
	t.Setenv("ZOOM_CLIENT_SECRET", "env-secret")
	t.Setenv("DOWNLOAD_DIR", "/tmp/env-downloads")

	cfg, err := LoadConfig(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Zoom.AccountID != "env-account" {
		t.Errorf("Expected env override for account_id, got %q", cfg.Zoom.AccountID)
	}
	if cfg.Storage.DownloadDir != "/tmp/env-downloads" {
		t.Errorf("Expected env override for download dir, got %q", cfg.Storage.DownloadDir)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		expectError string
	}{
		{
			name:        "missing account id",
			mutate:      func(c *Config) { c.Zoom.AccountID = "" },
			expectError: "zoom.account_id is required",
		},
		{
			name:        "missing client secret",
			mutate:      func(c *Config) { c.Zoom.ClientSecret = "" },
			expectError: "zoom.client_secret is required",
		},
		{
			name:        "unknown backend",
			mutate:      func(c *Config) { c.Storage.Backend = "ftp" },
			expectError: "storage.backend must be one of",
		},
		{
			name:        "s3 backend requires bucket",
			mutate:      func(c *Config) { c.Storage.Backend = "s3"; c.S3.Bucket = "" },
			expectError: "s3.bucket is required",
		},
		{
			name:        "drive backend requires client email",
			mutate:      func(c *Config) { c.Storage.Backend = "drive" },
			expectError: "drive.client_email is required",
		},
		{
			name:        "zero workers rejected",
			mutate:      func(c *Config) { c.Processing.MaxWorkers = 0 },
			expectError: "processing.max_workers",
		},
		{
			name:        "bad start date rejected",
			mutate:      func(c *Config) { c.Recordings.StartDate = "01/02/2024" },
			expectError: "recordings.start_date",
		},
		{
			name:        "bad log level rejected",
			mutate:      func(c *Config) { c.Logging.Level = "trace" },
			expectError: "logging.level",
		},
		{
			name:   "valid config passes",
			mutate: func(c *Config) {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.Zoom = ZoomConfig{AccountID: "a", ClientID: "b", ClientSecret: "c"}
			cfg.setDefaults()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.expectError == "" {
				if err != nil {
					t.Errorf("Expected valid config, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Expected error containing %q, got none", tt.expectError)
			}
			if !strings.Contains(err.Error(), tt.expectError) {
				t.Errorf("Expected error containing %q, got %v", tt.expectError, err)
			}
		})
	}
}

func TestDateRange(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

	t.Run("explicit dates", func(t *testing.T) {
		cfg := &Config{}
		cfg.Recordings.StartDate = "2024-01-01"
		cfg.Recordings.EndDate = "2024-02-01"

		start, end, err := cfg.DateRange(now)
		if err != nil {
			t.Fatalf("DateRange failed: %v", err)
		}
		if got := start.Format("2006-01-02"); got != "2024-01-01" {
			t.Errorf("Expected start 2024-01-01, got %s", got)
		}
		if got := end.Format("2006-01-02"); got != "2024-02-01" {
			t.Errorf("Expected end 2024-02-01, got %s", got)
		}
	})

	t.Run("defaults to trailing 30 days", func(t *testing.T) {
		cfg := &Config{}

		start, end, err := cfg.DateRange(now)
		if err != nil {
			t.Fatalf("DateRange failed: %v", err)
		}
		if got := start.Format("2006-01-02"); got != "2024-02-14" {
			t.Errorf("Expected start 2024-02-14, got %s", got)
		}
		if got := end.Format("2006-01-02"); got != "2024-03-15" {
			t.Errorf("Expected end 2024-03-15, got %s", got)
		}
	})

	t.Run("invalid start date", func(t *testing.T) {
		cfg := &Config{}
		cfg.Recordings.StartDate = "yesterday"

		if _, _, err := cfg.DateRange(now); err == nil {
			t.Fatal("Expected error for invalid start date")
		}
	})
}
