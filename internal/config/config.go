// Package config provides configuration management for the zoom-sync application
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ZoomConfig holds Zoom API authentication and connection settings
type ZoomConfig struct {
	AccountID    string `yaml:"account_id" json:"account_id"`
	ClientID     string `yaml:"client_id" json:"client_id"`
	ClientSecret string `yaml:"client_secret" json:"client_secret"`
	BaseURL      string `yaml:"base_url" json:"base_url"`
	OAuthURL     string `yaml:"oauth_url" json:"oauth_url"`
}

// RecordingsConfig holds date range and naming settings for recording queries
type RecordingsConfig struct {
	StartDate     string `yaml:"start_date" json:"start_date"`
	EndDate       string `yaml:"end_date" json:"end_date"`
	AutoDateRange bool   `yaml:"auto_date_range" json:"auto_date_range"`
	Timezone      string `yaml:"timezone" json:"timezone"`
	TimeFormat    string `yaml:"strftime" json:"strftime"`
	FilenameTmpl  string `yaml:"filename" json:"filename"`
	FolderTmpl    string `yaml:"folder" json:"folder"`
	PageSize      int    `yaml:"page_size" json:"page_size"`
}

// StorageConfig selects the destination backend and local bookkeeping files
type StorageConfig struct {
	Backend         string `yaml:"backend" json:"backend"` // "local", "s3" or "drive"
	DownloadDir     string `yaml:"download_dir" json:"download_dir"`
	CompletedLog    string `yaml:"completed_log" json:"completed_log"`
	UseCompletedLog *bool  `yaml:"use_completed_log" json:"use_completed_log"`
	LastRunLog      string `yaml:"last_run_log" json:"last_run_log"`
}

// CompletedLogEnabled reports whether the completion ledger is active.
// The ledger is on unless the config explicitly turns it off.
func (s StorageConfig) CompletedLogEnabled() bool {
	return s.UseCompletedLog == nil || *s.UseCompletedLog
}

// S3Config holds S3/Spaces object store settings
type S3Config struct {
	Bucket          string `yaml:"bucket" json:"bucket"`
	Region          string `yaml:"region" json:"region"`
	EndpointURL     string `yaml:"endpoint_url" json:"endpoint_url"`
	AccessKeyID     string `yaml:"access_key_id" json:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" json:"secret_access_key"`
	StorageClass    string `yaml:"storage_class" json:"storage_class"`
	RootFolderName  string `yaml:"root_folder_name" json:"root_folder_name"`
	UseTimestamp    bool   `yaml:"use_timestamp" json:"use_timestamp"`
}

// DriveConfig holds Google Drive document store settings
type DriveConfig struct {
	ClientEmail    string `yaml:"client_email" json:"client_email"`
	PrivateKey     string `yaml:"private_key" json:"private_key"`
	PrivateKeyFile string `yaml:"private_key_file" json:"private_key_file"`
	TokenURL       string `yaml:"token_url" json:"token_url"`
	BaseURL        string `yaml:"base_url" json:"base_url"`
	UploadURL      string `yaml:"upload_url" json:"upload_url"`
	RootFolderName string `yaml:"root_folder_name" json:"root_folder_name"`
	UseTimestamp   bool   `yaml:"use_timestamp" json:"use_timestamp"`
}

// ProcessingConfig holds worker pool and retry settings
type ProcessingConfig struct {
	MaxWorkers        int  `yaml:"max_workers" json:"max_workers"`
	MaxRetries        int  `yaml:"max_retries" json:"max_retries"`
	RetryDelaySeconds int  `yaml:"retry_delay_seconds" json:"retry_delay_seconds"`
	TimeoutSeconds    int  `yaml:"timeout_seconds" json:"timeout_seconds"`
	DeleteAfterSync   bool `yaml:"delete_after_sync" json:"delete_after_sync"`
}

// RetryDelay returns the retry delay as a time.Duration
func (p ProcessingConfig) RetryDelay() time.Duration {
	return time.Duration(p.RetryDelaySeconds) * time.Second
}

// Timeout returns the HTTP timeout as a time.Duration
func (p ProcessingConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// VerificationConfig holds size verification settings
type VerificationConfig struct {
	VerificationLog  string `yaml:"verification_log" json:"verification_log"`
	VerifyOnDownload *bool  `yaml:"verify_on_download" json:"verify_on_download"`
	VerifyOnUpload   *bool  `yaml:"verify_on_upload" json:"verify_on_upload"`
	FailedLog        string `yaml:"failed_log" json:"failed_log"`
	ReportFile       string `yaml:"report_file" json:"report_file"`
}

// VerifyDownloads reports whether downloaded files are size-checked before
// upload. On unless explicitly disabled.
func (v VerificationConfig) VerifyDownloads() bool {
	return v.VerifyOnDownload == nil || *v.VerifyOnDownload
}

// VerifyUploads reports whether stored files are size-checked after upload.
// On unless explicitly disabled.
func (v VerificationConfig) VerifyUploads() bool {
	return v.VerifyOnUpload == nil || *v.VerifyOnUpload
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	File       string `yaml:"file" json:"file"`
	Console    bool   `yaml:"console" json:"console"`
	JSONFormat bool   `yaml:"json_format" json:"json_format"`
}

// UsersConfig holds user selection settings
type UsersConfig struct {
	IncludeInactive bool   `yaml:"include_inactive" json:"include_inactive"`
	AllowlistFile   string `yaml:"allowlist_file" json:"allowlist_file"`
	WatchAllowlist  bool   `yaml:"watch_allowlist" json:"watch_allowlist"`
}

// Config represents the complete application configuration.
// It is constructed once at startup and passed by value into every
// component that needs it; nothing mutates it after Load.
type Config struct {
	Zoom         ZoomConfig         `yaml:"zoom" json:"zoom"`
	Recordings   RecordingsConfig   `yaml:"recordings" json:"recordings"`
	Storage      StorageConfig      `yaml:"storage" json:"storage"`
	S3           S3Config           `yaml:"s3" json:"s3"`
	Drive        DriveConfig        `yaml:"drive" json:"drive"`
	Processing   ProcessingConfig   `yaml:"processing" json:"processing"`
	Verification VerificationConfig `yaml:"verification" json:"verification"`
	Logging      LoggingConfig      `yaml:"logging" json:"logging"`
	Users        UsersConfig        `yaml:"users" json:"users"`
}

// LoadConfig loads configuration from a YAML file with defaults and environment variable overrides
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}

	if err := config.loadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config from file: %w", err)
	}

	config.setDefaults()
	config.loadFromEnvironment()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// loadFromFile loads configuration from a YAML file
func (c *Config) loadFromFile(configPath string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}

	return nil
}

// setDefaults applies default values for missing configuration
func (c *Config) setDefaults() {
	// Zoom defaults
	if c.Zoom.BaseURL == "" {
		c.Zoom.BaseURL = "https://api.zoom.us/v2"
	}
	if c.Zoom.OAuthURL == "" {
		c.Zoom.OAuthURL = "https://zoom.us/oauth/token"
	}

	// Recordings defaults
	if c.Recordings.Timezone == "" {
		c.Recordings.Timezone = "UTC"
	}
	if c.Recordings.TimeFormat == "" {
		c.Recordings.TimeFormat = "2006.01.02 - 03.04 PM UTC"
	}
	if c.Recordings.FilenameTmpl == "" {
		c.Recordings.FilenameTmpl = "{meeting_time} - {topic} - {rec_type} - {recording_id}.{file_extension}"
	}
	if c.Recordings.FolderTmpl == "" {
		c.Recordings.FolderTmpl = "{topic} - {meeting_time}"
	}
	if c.Recordings.PageSize == 0 {
		c.Recordings.PageSize = 300
	}

	// Storage defaults
	if c.Storage.Backend == "" {
		c.Storage.Backend = "local"
	}
	if c.Storage.DownloadDir == "" {
		c.Storage.DownloadDir = "downloads"
	}
	if c.Storage.CompletedLog == "" {
		c.Storage.CompletedLog = "completed-downloads.log"
	}
	if c.Storage.LastRunLog == "" {
		c.Storage.LastRunLog = "last-run.log"
	}
	if c.Storage.UseCompletedLog == nil {
		c.Storage.UseCompletedLog = boolPtr(true)
	}

	// S3 defaults
	if c.S3.Region == "" {
		c.S3.Region = "us-east-1"
	}
	if c.S3.StorageClass == "" {
		c.S3.StorageClass = "STANDARD"
	}
	if c.S3.RootFolderName == "" {
		c.S3.RootFolderName = "zoom-sync"
	}

	// Drive defaults
	if c.Drive.TokenURL == "" {
		c.Drive.TokenURL = "https://oauth2.googleapis.com/token"
	}
	if c.Drive.BaseURL == "" {
		c.Drive.BaseURL = "https://www.googleapis.com/drive/v3"
	}
	if c.Drive.UploadURL == "" {
		c.Drive.UploadURL = "https://www.googleapis.com/upload/drive/v3"
	}
	if c.Drive.RootFolderName == "" {
		c.Drive.RootFolderName = "zoom-sync"
	}

	// Processing defaults
	if c.Processing.MaxWorkers == 0 {
		c.Processing.MaxWorkers = 3
	}
	if c.Processing.MaxRetries == 0 {
		c.Processing.MaxRetries = 3
	}
	if c.Processing.RetryDelaySeconds == 0 {
		c.Processing.RetryDelaySeconds = 5
	}
	if c.Processing.TimeoutSeconds == 0 {
		c.Processing.TimeoutSeconds = 300
	}

	// Verification defaults
	if c.Verification.VerificationLog == "" {
		c.Verification.VerificationLog = "verification-log.json"
	}
	if c.Verification.VerifyOnDownload == nil {
		c.Verification.VerifyOnDownload = boolPtr(true)
	}
	if c.Verification.VerifyOnUpload == nil {
		c.Verification.VerifyOnUpload = boolPtr(true)
	}
	if c.Verification.FailedLog == "" {
		c.Verification.FailedLog = "failed-uploads.log"
	}
	if c.Verification.ReportFile == "" {
		c.Verification.ReportFile = "verification-report.log"
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.File == "" {
		c.Logging.File = "./zoom-sync.log"
	}
	c.Logging.Console = true
}

func boolPtr(v bool) *bool { return &v }

// loadFromEnvironment overrides configuration with environment variables
func (c *Config) loadFromEnvironment() {
	if val := os.Getenv("ZOOM_ACCOUNT_ID"); val != "" {
		c.Zoom.AccountID = val
	}
	if val := os.Getenv("ZOOM_CLIENT_ID"); val != "" {
		c.Zoom.ClientID = val
	}
	if val := os.Getenv("ZOOM_CLIENT_SECRET"); val != "" {
		c.Zoom.ClientSecret = val
	}
	if val := os.Getenv("ZOOM_BASE_URL"); val != "" {
		c.Zoom.BaseURL = val
	}

	if val := os.Getenv("AWS_ACCESS_KEY_ID"); val != "" && c.S3.AccessKeyID == "" {
		c.S3.AccessKeyID = val
	}
	if val := os.Getenv("AWS_SECRET_ACCESS_KEY"); val != "" && c.S3.SecretAccessKey == "" {
		c.S3.SecretAccessKey = val
	}
	if val := os.Getenv("S3_BUCKET"); val != "" {
		c.S3.Bucket = val
	}

	if val := os.Getenv("DRIVE_CLIENT_EMAIL"); val != "" {
		c.Drive.ClientEmail = val
	}
	if val := os.Getenv("DRIVE_PRIVATE_KEY"); val != "" {
		c.Drive.PrivateKey = val
	}

	if val := os.Getenv("DOWNLOAD_DIR"); val != "" {
		c.Storage.DownloadDir = val
	}
}

// Validate performs validation on the loaded configuration
func (c *Config) Validate() error {
	// Required Zoom credentials
	if c.Zoom.AccountID == "" {
		return fmt.Errorf("zoom.account_id is required")
	}
	if c.Zoom.ClientID == "" {
		return fmt.Errorf("zoom.client_id is required")
	}
	if c.Zoom.ClientSecret == "" {
		return fmt.Errorf("zoom.client_secret is required")
	}

	switch c.Storage.Backend {
	case "local", "s3", "drive":
	default:
		return fmt.Errorf("storage.backend must be one of: local, s3, drive")
	}

	if c.Storage.Backend == "s3" && c.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when storage.backend is s3")
	}
	if c.Storage.Backend == "drive" && c.Drive.ClientEmail == "" {
		return fmt.Errorf("drive.client_email is required when storage.backend is drive")
	}

	if c.Processing.MaxWorkers < 1 {
		return fmt.Errorf("processing.max_workers must be >= 1")
	}
	if c.Processing.MaxRetries < 0 {
		return fmt.Errorf("processing.max_retries must be >= 0")
	}
	if c.Processing.TimeoutSeconds <= 0 {
		return fmt.Errorf("processing.timeout_seconds must be greater than 0")
	}

	if c.Recordings.StartDate != "" {
		if _, err := time.Parse("2006-01-02", c.Recordings.StartDate); err != nil {
			return fmt.Errorf("recordings.start_date must be YYYY-MM-DD: %w", err)
		}
	}
	if c.Recordings.EndDate != "" {
		if _, err := time.Parse("2006-01-02", c.Recordings.EndDate); err != nil {
			return fmt.Errorf("recordings.end_date must be YYYY-MM-DD: %w", err)
		}
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	return nil
}

// DateRange resolves the configured recording date range. Missing start
// defaults to 30 days ago, missing end defaults to today.
func (c *Config) DateRange(now time.Time) (time.Time, time.Time, error) {
	start := now.AddDate(0, 0, -30)
	end := now

	if c.Recordings.StartDate != "" {
		t, err := time.Parse("2006-01-02", c.Recordings.StartDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid start_date: %w", err)
		}
		start = t
	}
	if c.Recordings.EndDate != "" {
		t, err := time.Parse("2006-01-02", c.Recordings.EndDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end_date: %w", err)
		}
		end = t
	}

	return start.UTC().Truncate(24 * time.Hour), end.UTC().Truncate(24 * time.Hour), nil
}
