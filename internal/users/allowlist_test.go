package users

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeAllowlist(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "allowed-users.txt")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write allowlist: %v", err)
	}
	return path
}

func TestAllowlistEmptyPathAllowsEveryone(t *testing.T) {
	allowlist, err := NewAllowlist(Config{})
	if err != nil {
		t.Fatalf("NewAllowlist failed: %v", err)
	}
	defer allowlist.Close()

	if !allowlist.Allowed("anyone@example.com") {
		t.Error("Expected everyone allowed with no allowlist file")
	}
}

func TestAllowlistFiltersUsers(t *testing.T) {
	path := writeAllowlist(t, "alice@example.com\nbob@example.com\n")

	allowlist, err := NewAllowlist(Config{FilePath: path})
	if err != nil {
		t.Fatalf("NewAllowlist failed: %v", err)
	}
	defer allowlist.Close()

	if !allowlist.Allowed("alice@example.com") {
		t.Error("Expected alice allowed")
	}
	if allowlist.Allowed("mallory@example.com") {
		t.Error("Expected mallory rejected")
	}
}

func TestAllowlistCaseInsensitive(t *testing.T) {
	path := writeAllowlist(t, "Alice@Example.COM\n")

	allowlist, err := NewAllowlist(Config{FilePath: path})
	if err != nil {
		t.Fatalf("NewAllowlist failed: %v", err)
	}
	defer allowlist.Close()

	if !allowlist.Allowed("alice@example.com") {
		t.Error("Expected case-insensitive match")
	}
}

func TestAllowlistSkipsCommentsAndGarbage(t *testing.T) {
	path := writeAllowlist(t, "# team leads\nalice@example.com\n\nnot-an-email\n")

	allowlist, err := NewAllowlist(Config{FilePath: path})
	if err != nil {
		t.Fatalf("NewAllowlist failed: %v", err)
	}
	defer allowlist.Close()

	emails := allowlist.Emails()
	if len(emails) != 1 || emails[0] != "alice@example.com" {
		t.Errorf("Expected only alice, got %v", emails)
	}
}

func TestAllowlistReload(t *testing.T) {
	path := writeAllowlist(t, "alice@example.com\n")

	allowlist, err := NewAllowlist(Config{FilePath: path})
	if err != nil {
		t.Fatalf("NewAllowlist failed: %v", err)
	}
	defer allowlist.Close()

	if err := os.WriteFile(path, []byte("bob@example.com\n"), 0644); err != nil {
		t.Fatalf("Failed to rewrite allowlist: %v", err)
	}
	if err := allowlist.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	if allowlist.Allowed("alice@example.com") {
		t.Error("Expected alice dropped after reload")
	}
	if !allowlist.Allowed("bob@example.com") {
		t.Error("Expected bob allowed after reload")
	}
}

func TestAllowlistWatchReloads(t *testing.T) {
	path := writeAllowlist(t, "alice@example.com\n")

	allowlist, err := NewAllowlist(Config{FilePath: path, WatchFile: true})
	if err != nil {
		t.Fatalf("NewAllowlist failed: %v", err)
	}
	defer allowlist.Close()

	if err := os.WriteFile(path, []byte("carol@example.com\n"), 0644); err != nil {
		t.Fatalf("Failed to rewrite allowlist: %v", err)
	}

	// The watcher reloads asynchronously
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if allowlist.Allowed("carol@example.com") {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Error("Expected watcher to pick up the rewritten allowlist")
}
