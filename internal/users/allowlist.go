// Package users manages the optional allowlist that limits which account
// users get their recordings synced
package users

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/curtbushko/zoom-sync/internal/logging"
)

// Allowlist decides which users are in scope for a sync run
type Allowlist interface {
	// Allowed reports whether a user's recordings should be synced.
	// With no allowlist file configured, everyone is allowed.
	Allowed(email string) bool

	// Emails returns the allowlisted addresses
	Emails() []string

	// Reload rereads the allowlist file
	Reload() error

	// Close stops file watching
	Close() error
}

// Config holds allowlist configuration
type Config struct {
	// FilePath names the allowlist file; empty disables filtering
	FilePath string

	// WatchFile reloads the allowlist when the file changes, so a long
	// sync run picks up edits without a restart
	WatchFile bool
}

type allowlistImpl struct {
	config    Config
	mu        sync.RWMutex
	emails    map[string]bool
	ordered   []string
	watcher   *fsnotify.Watcher
	stopWatch chan struct{}
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9._-]+\.[a-zA-Z]{2,}$`)

// NewAllowlist creates an allowlist from configuration
func NewAllowlist(config Config) (Allowlist, error) {
	a := &allowlistImpl{
		config:    config,
		emails:    make(map[string]bool),
		stopWatch: make(chan struct{}),
	}

	if config.FilePath == "" {
		return a, nil
	}

	if err := a.load(); err != nil {
		return nil, fmt.Errorf("failed to load allowlist: %w", err)
	}

	if config.WatchFile {
		if err := a.watch(); err != nil {
			return nil, fmt.Errorf("failed to watch allowlist: %w", err)
		}
	}

	return a, nil
}

func (a *allowlistImpl) Allowed(email string) bool {
	if a.config.FilePath == "" {
		return true
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.emails[strings.ToLower(email)]
}

func (a *allowlistImpl) Emails() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]string, len(a.ordered))
	copy(out, a.ordered)
	return out
}

func (a *allowlistImpl) Reload() error {
	if a.config.FilePath == "" {
		return nil
	}
	return a.load()
}

func (a *allowlistImpl) Close() error {
	if a.watcher != nil {
		close(a.stopWatch)
		return a.watcher.Close()
	}
	return nil
}

// load reads the allowlist file: one email per line, # comments allowed,
// invalid lines skipped with a warning
func (a *allowlistImpl) load() error {
	file, err := os.Open(a.config.FilePath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", a.config.FilePath, err)
	}
	defer file.Close()

	emails := make(map[string]bool)
	var ordered []string

	scanner := bufio.NewScanner(file)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !emailRegex.MatchString(line) {
			logging.Warn("Skipping invalid allowlist entry at %s:%d: %q", a.config.FilePath, lineNumber, line)
			continue
		}

		email := strings.ToLower(line)
		if !emails[email] {
			emails[email] = true
			ordered = append(ordered, email)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read %s: %w", a.config.FilePath, err)
	}

	a.mu.Lock()
	a.emails = emails
	a.ordered = ordered
	a.mu.Unlock()

	logging.Debug("Loaded %d allowlisted users from %s", len(ordered), a.config.FilePath)
	return nil
}

func (a *allowlistImpl) watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(a.config.FilePath); err != nil {
		watcher.Close()
		return err
	}
	a.watcher = watcher

	go a.watchLoop()
	return nil
}

func (a *allowlistImpl) watchLoop() {
	for {
		select {
		case event, ok := <-a.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				// Editors often truncate-then-write; give them a moment
				time.Sleep(10 * time.Millisecond)
				if err := a.load(); err != nil {
					logging.Warn("Allowlist reload failed: %v", err)
				}
			}

		case err, ok := <-a.watcher.Errors:
			if !ok {
				return
			}
			logging.Warn("Allowlist watcher error: %v", err)

		case <-a.stopWatch:
			return
		}
	}
}
