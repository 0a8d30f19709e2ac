package storage

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/curtbushko/zoom-sync/internal/config"
)

func testPrivateKeyPEM(t *testing.T) string {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate RSA key: %v", err)
	}

	block := &pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}
	return string(pem.EncodeToMemory(block))
}

// fakeDrive emulates the token endpoint, file search, folder creation and
// multipart upload enough to drive the backend end to end
type fakeDrive struct {
	t *testing.T

	// folder ID -> name -> file
	folders map[string]map[string]driveFile
	nextID  int
}

func newFakeDrive(t *testing.T) *fakeDrive {
	return &fakeDrive{
		t:       t,
		folders: map[string]map[string]driveFile{"root": {}},
		nextID:  1,
	}
}

func (f *fakeDrive) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			f.t.Errorf("Bad token form: %v", err)
		}
		if grant := r.FormValue("grant_type"); grant != "urn:ietf:params:oauth:grant-type:jwt-bearer" {
			f.t.Errorf("Unexpected grant type %q", grant)
		}
		if r.FormValue("assertion") == "" {
			f.t.Error("Expected signed assertion in token request")
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "drive-token",
			"expires_in":   3600,
		})
	})

	mux.HandleFunc("/drive/files", func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer drive-token" {
			f.t.Errorf("Missing bearer token, got %q", auth)
		}

		switch r.Method {
		case "GET":
			f.handleSearch(w, r)
		case "POST":
			f.handleCreateFolder(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/upload/files", func(w http.ResponseWriter, r *http.Request) {
		contentType := r.Header.Get("Content-Type")
		if !strings.HasPrefix(contentType, "multipart/related") {
			f.t.Errorf("Expected multipart/related upload, got %q", contentType)
		}
		// Register the upload under whichever folder the metadata names
		body, _ := readMultipartUpload(r)
		parent := body.parents[0]
		id := f.newID()
		f.folders[parent][body.name] = driveFile{ID: id, Name: body.name, Size: fmt.Sprintf("%d", body.contentLength)}
		json.NewEncoder(w).Encode(map[string]string{"id": id})
	})

	return mux
}

type uploadedFile struct {
	name          string
	parents       []string
	contentLength int
}

func readMultipartUpload(r *http.Request) (*uploadedFile, error) {
	// r.MultipartReader only accepts multipart/form-data or multipart/mixed,
	// so parse the multipart/related body directly from its boundary.
	_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return nil, err
	}
	mr := multipart.NewReader(r.Body, params["boundary"])

	result := &uploadedFile{}
	part, err := mr.NextPart()
	if err != nil {
		return nil, err
	}
	var meta struct {
		Name    string   `json:"name"`
		Parents []string `json:"parents"`
	}
	if err := json.NewDecoder(part).Decode(&meta); err != nil {
		return nil, err
	}
	result.name = meta.Name
	result.parents = meta.Parents

	part, err = mr.NextPart()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 1024*1024)
	total := 0
	for {
		n, err := part.Read(buf)
		total += n
		if err != nil {
			break
		}
	}
	result.contentLength = total

	return result, nil
}

func (f *fakeDrive) newID() string {
	f.nextID++
	return fmt.Sprintf("id-%d", f.nextID)
}

func (f *fakeDrive) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")

	// Pull name = '...' and '...' in parents out of the query
	name := extractQuoted(query, "name = '")
	parent := extractQuoted(query, "and '")

	files := []driveFile{}
	if children, ok := f.folders[parent]; ok {
		if file, ok := children[name]; ok {
			files = append(files, file)
		}
	}
	json.NewEncoder(w).Encode(driveFileList{Files: files})
}

func extractQuoted(query, marker string) string {
	idx := strings.Index(query, marker)
	if idx < 0 {
		return ""
	}
	rest := query[idx+len(marker):]
	end := strings.Index(rest, "'")
	if end < 0 {
		return ""
	}
	return rest[:end]
}

func (f *fakeDrive) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name     string   `json:"name"`
		MimeType string   `json:"mimeType"`
		Parents  []string `json:"parents"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		f.t.Errorf("Bad folder payload: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if payload.MimeType != driveFolderMimeType {
		f.t.Errorf("Expected folder mime type, got %q", payload.MimeType)
	}

	id := f.newID()
	f.folders[payload.Parents[0]][payload.Name] = driveFile{ID: id, Name: payload.Name}
	f.folders[id] = map[string]driveFile{}
	json.NewEncoder(w).Encode(map[string]string{"id": id})
}

func newTestDriveBackend(t *testing.T) (Backend, *fakeDrive) {
	t.Helper()

	fake := newFakeDrive(t)
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)

	backend, err := NewDriveBackend(config.DriveConfig{
		ClientEmail: "sync@project.iam.gserviceaccount.com",
		PrivateKey:  testPrivateKeyPEM(t),
		TokenURL:    server.URL + "/token",
		BaseURL:     server.URL + "/drive",
		UploadURL:   server.URL + "/upload",
	})
	if err != nil {
		t.Fatalf("NewDriveBackend failed: %v", err)
	}

	return backend, fake
}

func TestDriveBackendUploadAndVerify(t *testing.T) {
	backend, _ := newTestDriveBackend(t)

	local := filepath.Join(t.TempDir(), "recording.mp4")
	content := []byte("recorded meeting content")
	if err := os.WriteFile(local, content, 0644); err != nil {
		t.Fatalf("Failed to create local file: %v", err)
	}

	ctx := context.Background()
	folder := "alice@example.com/Weekly Sync"

	if err := backend.Upload(ctx, local, folder, "recording.mp4"); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	result := backend.VerifySize(ctx, folder, "recording.mp4", int64(len(content)))
	if result.Status != StatusVerified {
		t.Errorf("Expected verified, got %s (%v)", result.Status, result.Err)
	}

	result = backend.VerifySize(ctx, folder, "recording.mp4", int64(len(content))+1)
	if result.Status != StatusMismatch {
		t.Errorf("Expected mismatch for wrong size, got %s", result.Status)
	}

	result = backend.VerifySize(ctx, folder, "never-uploaded.mp4", 10)
	if result.Status != StatusMissing {
		t.Errorf("Expected missing, got %s", result.Status)
	}
}

func TestDriveBackendRequiresCredentials(t *testing.T) {
	if _, err := NewDriveBackend(config.DriveConfig{}); err == nil {
		t.Error("Expected error without client email")
	}

	if _, err := NewDriveBackend(config.DriveConfig{
		ClientEmail: "sync@project.iam.gserviceaccount.com",
		PrivateKey:  "not a pem key",
	}); err == nil {
		t.Error("Expected error for invalid private key")
	}
}

func TestDriveBackendIsRemote(t *testing.T) {
	backend, _ := newTestDriveBackend(t)
	if !backend.Remote() {
		t.Error("Drive backend must report itself as remote")
	}
	if backend.Name() != "drive" {
		t.Errorf("Expected name drive, got %s", backend.Name())
	}
}
