package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/curtbushko/zoom-sync/internal/config"
	"github.com/curtbushko/zoom-sync/internal/filename"
	"github.com/curtbushko/zoom-sync/internal/ledger"
	"github.com/curtbushko/zoom-sync/internal/logging"
	"github.com/curtbushko/zoom-sync/internal/progress"
	"github.com/curtbushko/zoom-sync/internal/restore"
	"github.com/curtbushko/zoom-sync/internal/storage"
	"github.com/curtbushko/zoom-sync/internal/sync"
	"github.com/curtbushko/zoom-sync/internal/transfer"
	"github.com/curtbushko/zoom-sync/internal/users"
	"github.com/curtbushko/zoom-sync/internal/verification"
	"github.com/curtbushko/zoom-sync/internal/zoom"
)

var (
	// Version information - will be set during build
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile     string
	downloadDir    string
	verbose        bool
	verify         bool
	deleteVerified bool
	restoreDeleted bool
	fromDate       string
	toDate         string
	useConfigDates bool
	autoConfirm    bool
	workers        int
)

// buildRootCommand creates and configures the root command
func buildRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "zoom-sync",
		Short: "Synchronize Zoom cloud recordings into durable storage",
		Long: `zoom-sync downloads Zoom cloud recordings and stores them locally,
in S3 or in Google Drive, keeping a completion ledger so reruns only
process new recordings.

This tool helps you:
- Sync every account user's cloud recordings for a date range
- Verify stored files against the sizes Zoom reports
- Repair the completion ledger when storage and ledger disagree
- Restore recordings from the Zoom trash for re-syncing
- Optionally free Zoom cloud storage after a verified sync`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := "config.yaml"
			if configFile != "" {
				configPath = configFile
			}

			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				cmd.Printf("Configuration problem\n\n")
				if strings.Contains(err.Error(), "failed to read config file") {
					cmd.Printf("Configuration file '%s' not found.\n\n", configPath)
					cmd.Printf("To get started:\n")
					cmd.Printf("1. Run 'zoom-sync config' to see the configuration structure\n")
					cmd.Printf("2. Create config.yaml with your Zoom credentials\n")
					cmd.Printf("3. Run 'zoom-sync' to start syncing\n\n")
					cmd.Printf("Alternatively set ZOOM_ACCOUNT_ID, ZOOM_CLIENT_ID and\n")
					cmd.Printf("ZOOM_CLIENT_SECRET in the environment.\n")
					return nil
				}
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, cmd, cfg)
		},
	}

	rootCmd.AddCommand(createVersionCommand())
	rootCmd.AddCommand(createConfigCommand())

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "configuration file path (default: config.yaml)")
	rootCmd.PersistentFlags().StringVar(&downloadDir, "download-dir", "", "download directory (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "verbose logging")
	rootCmd.PersistentFlags().BoolVar(&verify, "verify", false, "verify completed recordings against storage instead of syncing")
	rootCmd.PersistentFlags().BoolVar(&deleteVerified, "delete-verified", false, "after verification, delete fully verified recordings from Zoom")
	rootCmd.PersistentFlags().BoolVar(&restoreDeleted, "restore-deleted", false, "restore recordings from the Zoom trash instead of syncing")
	rootCmd.PersistentFlags().StringVar(&fromDate, "from", "", "start date YYYY-MM-DD (overrides config)")
	rootCmd.PersistentFlags().StringVar(&toDate, "to", "", "end date YYYY-MM-DD (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&useConfigDates, "use-config-dates", false, "use the configured date range even when auto_date_range is on")
	rootCmd.PersistentFlags().BoolVarP(&autoConfirm, "yes", "y", false, "answer yes to every confirmation prompt")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", 0, "number of concurrent workers (overrides config)")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if workers < 0 {
			return fmt.Errorf("workers must be positive or 0, got: %d", workers)
		}
		if (fromDate == "") != (toDate == "") {
			return fmt.Errorf("--from and --to must be provided together")
		}
		if deleteVerified && restoreDeleted {
			return fmt.Errorf("--delete-verified and --restore-deleted are mutually exclusive")
		}
		return nil
	}

	return rootCmd
}

// createVersionCommand creates the version subcommand
func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("zoom-sync version %s\n", version)
			cmd.Printf("Commit: %s\n", commit)
			cmd.Printf("Build date: %s\n", buildDate)
		},
	}
}

// createConfigCommand creates the config help subcommand
func createConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show configuration file structure and examples",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Print(`Configuration File Structure (config.yaml):

ZOOM API CONFIGURATION (Required):
=================================
zoom:
  account_id: "your_zoom_account_id"       # From the Server-to-Server OAuth app
  client_id: "your_zoom_client_id"
  client_secret: "your_zoom_client_secret"
  base_url: "https://api.zoom.us/v2"       # default

# REQUIRED SCOPES: recording:read, recording:write, user:read

RECORDINGS:
===========
recordings:
  start_date: "2024-01-01"     # Sync window start
  end_date: "2024-03-31"       # Sync window end (default: today)
  auto_date_range: false       # Resume from the last successful run
  timezone: "UTC"              # Timezone for folder and file names
  filename: "{meeting_time} - {topic} - {rec_type} - {recording_id}.{file_extension}"
  folder: "{topic} - {meeting_time}"
  page_size: 300

STORAGE:
========
storage:
  backend: "local"                       # local, s3 or drive
  download_dir: "./downloads"
  completed_log: "completed-downloads.log"
  use_completed_log: true                # Skip recordings already synced
  last_run_log: "last-run.log"

s3:
  bucket: "my-recordings"
  region: "us-east-1"
  storage_class: "STANDARD_IA"           # Optional
  endpoint_url: ""                       # Optional, for S3-compatible stores
  root_folder_name: "zoom-recordings"
  use_timestamp: false                   # Timestamped root folder per run

drive:
  client_email: "sync@project.iam.gserviceaccount.com"
  private_key_file: "./service-account.pem"
  root_folder_name: "zoom-recordings"

PROCESSING:
===========
processing:
  max_workers: 3               # Concurrent recordings
  max_retries: 3               # Attempts per file
  retry_delay_seconds: 5
  timeout_seconds: 300
  delete_after_sync: false     # Delete from Zoom once fully synced

VERIFICATION:
=============
verification:
  verification_log: "verification-log.json"
  verify_on_download: true
  verify_on_upload: true
  failed_log: "failed-uploads.log"
  report_file: "verification-report.log"

USERS:
======
users:
  include_inactive: false      # Also sync recordings of deactivated users
  allowlist_file: ""           # One email per line; empty syncs everyone
  watch_allowlist: false       # Hot-reload the allowlist during long runs

LOGGING:
========
logging:
  level: "info"                # debug, info, warn, error
  file: ""                     # Optional log file
  console: true
  json_format: false

ENVIRONMENT VARIABLES (override the config file):
  ZOOM_ACCOUNT_ID, ZOOM_CLIENT_ID, ZOOM_CLIENT_SECRET, ZOOM_BASE_URL
  AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY, AWS_REGION, S3_BUCKET
  DRIVE_CLIENT_EMAIL, DRIVE_PRIVATE_KEY_FILE
  DOWNLOAD_DIR
`)
		},
	}
}

// run dispatches to sync, verify or restore mode
func run(ctx context.Context, cmd *cobra.Command, cfg *config.Config) error {
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if downloadDir != "" {
		cfg.Storage.DownloadDir = downloadDir
	}
	if workers > 0 {
		cfg.Processing.MaxWorkers = workers
	}

	if err := logging.InitializeLogging(cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer func() {
		if logger := logging.GetDefaultLogger(); logger != nil {
			logger.Close()
		}
	}()

	auth := zoom.NewServerToServerAuth(cfg.Zoom)
	retryClient := zoom.NewRetryHTTPClient(zoom.DefaultHTTPClientConfig(cfg.Processing.Timeout(), cfg.Processing.MaxRetries))
	authClient := zoom.NewAuthenticatedRetryClient(retryClient, auth)
	client := zoom.NewClient(authClient, auth, cfg.Zoom.BaseURL, cfg.Recordings.PageSize)

	completionLedger, err := ledger.NewCompletionLedger(cfg.Storage.CompletedLog, cfg.Storage.CompletedLogEnabled())
	if err != nil {
		return err
	}

	marker := ledger.NewLastRunMarker(cfg.Storage.LastRunLog)
	start, end, err := resolveDateRange(cfg, marker)
	if err != nil {
		return err
	}

	if restoreDeleted {
		return runRestore(ctx, cmd, client, completionLedger, cfg, start, end)
	}

	backend, err := storage.NewBackend(ctx, cfg)
	if err != nil {
		return err
	}

	namer, err := buildNamer(cfg)
	if err != nil {
		return err
	}

	if verify || deleteVerified {
		return runVerify(ctx, cmd, client, backend, completionLedger, namer, cfg)
	}

	return runSync(ctx, cmd, client, backend, completionLedger, namer, marker, cfg, start, end)
}

// buildNamer creates the file/folder namer from recording configuration
func buildNamer(cfg *config.Config) (filename.Namer, error) {
	location := time.UTC
	if cfg.Recordings.Timezone != "" {
		loc, err := time.LoadLocation(cfg.Recordings.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Recordings.Timezone, err)
		}
		location = loc
	}

	return filename.NewNamer(filename.NamerOptions{
		FilenameTemplate: cfg.Recordings.FilenameTmpl,
		FolderTemplate:   cfg.Recordings.FolderTmpl,
		TimeFormat:       cfg.Recordings.TimeFormat,
		Location:         location,
	}), nil
}

// resolveDateRange picks the sync window: explicit flags beat the last-run
// marker, which beats the configured dates
func resolveDateRange(cfg *config.Config, marker *ledger.LastRunMarker) (time.Time, time.Time, error) {
	if fromDate != "" {
		start, err := time.Parse("2006-01-02", fromDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --from date %q: %w", fromDate, err)
		}
		end, err := time.Parse("2006-01-02", toDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --to date %q: %w", toDate, err)
		}
		if start.After(end) {
			return time.Time{}, time.Time{}, fmt.Errorf("--from %s is after --to %s", fromDate, toDate)
		}
		return start, end, nil
	}

	if cfg.Recordings.AutoDateRange && !useConfigDates {
		lastRun, err := marker.Read()
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		if !lastRun.IsZero() {
			// Back up one day so recordings made while the previous run
			// was in flight are not missed
			return lastRun.AddDate(0, 0, -1), time.Now(), nil
		}
	}

	return cfg.DateRange(time.Now())
}

// runSync executes the default sync pipeline
func runSync(ctx context.Context, cmd *cobra.Command, client *zoom.Client, backend storage.Backend, completionLedger ledger.CompletionLedger, namer filename.Namer, marker *ledger.LastRunMarker, cfg *config.Config, start, end time.Time) error {
	allowlist, err := users.NewAllowlist(users.Config{
		FilePath:  cfg.Users.AllowlistFile,
		WatchFile: cfg.Users.WatchAllowlist,
	})
	if err != nil {
		return err
	}
	defer allowlist.Close()

	engine := transfer.NewEngine(client, backend, namer,
		transfer.NewFailureLog(cfg.Verification.FailedLog),
		verification.NewStore(cfg.Verification.VerificationLog),
		transfer.Options{
			DownloadDir:      cfg.Storage.DownloadDir,
			MaxAttempts:      cfg.Processing.MaxRetries,
			RetryDelay:       cfg.Processing.RetryDelay(),
			VerifyOnDownload: cfg.Verification.VerifyDownloads(),
			VerifyOnUpload:   cfg.Verification.VerifyUploads(),
		})

	processor := sync.NewProcessor(engine, client, completionLedger, namer, cfg.Processing.DeleteAfterSync)
	reporter := progress.NewReporter(cmd.OutOrStdout())
	scheduler := sync.NewScheduler(client, processor, reporter, allowlist,
		cfg.Processing.MaxWorkers, cfg.Users.IncludeInactive)

	cmd.Printf("Syncing recordings from %s to %s into %s storage\n",
		start.Format("2006-01-02"), end.Format("2006-01-02"), backend.Name())

	summary, err := scheduler.Run(ctx, start, end)
	if err != nil {
		return err
	}

	if summary.Failed == 0 {
		if err := marker.Write(time.Now()); err != nil {
			logging.Warn("Could not update last-run marker: %v", err)
		}
	} else {
		cmd.Printf("\n%d recordings failed; see %s\n", summary.Failed, cfg.Verification.FailedLog)
		return fmt.Errorf("%d of %d recordings failed to sync", summary.Failed, summary.Total)
	}

	return nil
}

// runVerify checks every ledger entry against storage and optionally
// repairs the ledger and deletes verified recordings from Zoom
func runVerify(ctx context.Context, cmd *cobra.Command, client *zoom.Client, backend storage.Backend, completionLedger ledger.CompletionLedger, namer filename.Namer, cfg *config.Config) error {
	store := verification.NewStore(cfg.Verification.VerificationLog)
	workflow := verification.NewWorkflow(client, backend, completionLedger, store, namer, cfg.Users.IncludeInactive)

	cmd.Printf("Verifying %d completed recordings against %s storage\n", completionLedger.Len(), backend.Name())

	summary, err := workflow.Run(ctx)
	if err != nil {
		return err
	}

	if err := verification.WriteReport(cmd.OutOrStdout(), summary); err != nil {
		return err
	}
	if err := verification.SaveReport(cfg.Verification.ReportFile, summary); err != nil {
		logging.Warn("Could not save verification report: %v", err)
	}

	if broken := summary.BrokenUUIDs(); len(broken) > 0 {
		question := fmt.Sprintf("Purge %d broken entries from the completion ledger so the next sync repairs them?", len(broken))
		if confirm(cmd, question) {
			if _, err := workflow.FixLedger(summary); err != nil {
				return err
			}
			cmd.Printf("Purged %d ledger entries.\n", len(broken))
		}
	}

	if deleteVerified {
		count := summary.Count(verification.StateVerified)
		if count == 0 {
			cmd.Println("No fully verified recordings to delete.")
			return nil
		}
		if confirm(cmd, fmt.Sprintf("Delete %d verified recordings from Zoom cloud storage?", count)) {
			deleted, err := workflow.DeleteVerified(ctx, summary)
			if err != nil {
				return err
			}
			cmd.Printf("Deleted %d recordings from Zoom.\n", deleted)
		}
	}

	return nil
}

// runRestore recovers trashed recordings in the date range
func runRestore(ctx context.Context, cmd *cobra.Command, client *zoom.Client, completionLedger ledger.CompletionLedger, cfg *config.Config, start, end time.Time) error {
	workflow := restore.NewWorkflow(client, completionLedger, restore.Options{
		AutoConfirm:     autoConfirm,
		IncludeInactive: cfg.Users.IncludeInactive,
		Input:           cmd.InOrStdin(),
		Output:          cmd.OutOrStdout(),
	})

	_, err := workflow.Run(ctx, start, end)
	return err
}

// confirm asks a yes/no question on the command's streams, honoring --yes
func confirm(cmd *cobra.Command, question string) bool {
	if autoConfirm {
		return true
	}

	cmd.Printf("%s [y/N]: ", question)
	reader := bufio.NewReader(cmd.InOrStdin())
	answer, err := reader.ReadString('\n')
	if err != nil && answer == "" {
		return false
	}

	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func main() {
	if err := buildRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
