package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/curtbushko/zoom-sync/internal/config"
	"github.com/curtbushko/zoom-sync/internal/logging"
)

const (
	driveFolderMimeType = "application/vnd.google-apps.folder"
	driveScope          = "https://www.googleapis.com/auth/drive"
)

// driveBackend stores recordings in Google Drive using a service account
type driveBackend struct {
	httpClient *http.Client
	auth       *driveAuth
	baseURL    string
	uploadURL  string
	prefix     string

	// folder path -> Drive folder ID, so each folder is created once
	folderMu sync.Mutex
	folders  map[string]string
}

// driveAuth exchanges a signed service-account JWT for short-lived access
// tokens and caches them until close to expiry
type driveAuth struct {
	clientEmail string
	privateKey  []byte
	tokenURL    string
	httpClient  *http.Client

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

// NewDriveBackend creates a Google Drive backend from configuration
func NewDriveBackend(cfg config.DriveConfig) (Backend, error) {
	if cfg.ClientEmail == "" {
		return nil, fmt.Errorf("drive backend requires a service account client email")
	}

	keyPEM := []byte(cfg.PrivateKey)
	if len(keyPEM) == 0 && cfg.PrivateKeyFile != "" {
		data, err := os.ReadFile(cfg.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read drive private key file: %w", err)
		}
		keyPEM = data
	}
	if len(keyPEM) == 0 {
		return nil, fmt.Errorf("drive backend requires a service account private key")
	}

	// Fail fast on an unparseable key instead of at first upload
	if _, err := jwt.ParseRSAPrivateKeyFromPEM(keyPEM); err != nil {
		return nil, fmt.Errorf("invalid drive private key: %w", err)
	}

	httpClient := &http.Client{Timeout: 5 * time.Minute}

	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = "https://oauth2.googleapis.com/token"
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://www.googleapis.com/drive/v3"
	}
	uploadURL := cfg.UploadURL
	if uploadURL == "" {
		uploadURL = "https://www.googleapis.com/upload/drive/v3"
	}

	return &driveBackend{
		httpClient: httpClient,
		auth: &driveAuth{
			clientEmail: cfg.ClientEmail,
			privateKey:  keyPEM,
			tokenURL:    tokenURL,
			httpClient:  httpClient,
		},
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		uploadURL: strings.TrimSuffix(uploadURL, "/"),
		prefix:    rootPrefix(cfg.RootFolderName, cfg.UseTimestamp, time.Now()),
		folders:   make(map[string]string),
	}, nil
}

func (b *driveBackend) Name() string { return "drive" }

func (b *driveBackend) Remote() bool { return true }

// token returns a valid access token, refreshing via the JWT bearer grant
// when the cached one is within a minute of expiry
func (a *driveAuth) token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.accessToken != "" && time.Now().Before(a.expiresAt.Add(-time.Minute)) {
		return a.accessToken, nil
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM(a.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to parse drive private key: %w", err)
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iss":   a.clientEmail,
		"scope": driveScope,
		"aud":   a.tokenURL,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}

	assertion, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign drive JWT: %w", err)
	}

	form := url.Values{}
	form.Set("grant_type", "urn:ietf:params:oauth:grant-type:jwt-bearer")
	form.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, "POST", a.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("drive token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("drive token request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}

	a.accessToken = tokenResp.AccessToken
	a.expiresAt = now.Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	logging.Debug("Obtained Drive access token, expires in %ds", tokenResp.ExpiresIn)

	return a.accessToken, nil
}

// doJSON performs an authenticated request and decodes the JSON response
func (b *driveBackend) doJSON(ctx context.Context, method, endpoint string, payload, result interface{}) error {
	token, err := b.auth.token(ctx)
	if err != nil {
		return err
	}

	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request payload: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("drive request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read drive response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("drive request to %s failed with status %d: %s", endpoint, resp.StatusCode, string(body))
	}

	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("failed to decode drive response: %w", err)
		}
	}

	return nil
}

type driveFile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Size string `json:"size,omitempty"`
}

type driveFileList struct {
	Files []driveFile `json:"files"`
}

// findChild looks up a child by name under a parent folder
func (b *driveBackend) findChild(ctx context.Context, parentID, name string, folderOnly bool) (*driveFile, error) {
	query := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false",
		strings.ReplaceAll(name, "'", `\'`), parentID)
	if folderOnly {
		query += fmt.Sprintf(" and mimeType = '%s'", driveFolderMimeType)
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("fields", "files(id,name,size)")
	params.Set("pageSize", "1")

	var list driveFileList
	endpoint := b.baseURL + "/files?" + params.Encode()
	if err := b.doJSON(ctx, "GET", endpoint, nil, &list); err != nil {
		return nil, err
	}
	if len(list.Files) == 0 {
		return nil, nil
	}

	return &list.Files[0], nil
}

// ensureFolder walks the folder path from the Drive root, creating any
// missing segments, and returns the final folder ID
func (b *driveBackend) ensureFolder(ctx context.Context, folder string) (string, error) {
	fullPath := objectKey(b.prefix, folder, "")
	fullPath = strings.Trim(fullPath, "/")

	b.folderMu.Lock()
	defer b.folderMu.Unlock()

	if id, ok := b.folders[fullPath]; ok {
		return id, nil
	}

	parentID := "root"
	walked := ""
	for _, segment := range strings.Split(fullPath, "/") {
		if segment == "" {
			continue
		}
		if walked == "" {
			walked = segment
		} else {
			walked = walked + "/" + segment
		}

		if id, ok := b.folders[walked]; ok {
			parentID = id
			continue
		}

		existing, err := b.findChild(ctx, parentID, segment, true)
		if err != nil {
			return "", fmt.Errorf("failed to look up folder %s: %w", walked, err)
		}

		if existing != nil {
			parentID = existing.ID
		} else {
			var created driveFile
			payload := map[string]interface{}{
				"name":     segment,
				"mimeType": driveFolderMimeType,
				"parents":  []string{parentID},
			}
			if err := b.doJSON(ctx, "POST", b.baseURL+"/files?fields=id", payload, &created); err != nil {
				return "", fmt.Errorf("failed to create folder %s: %w", walked, err)
			}
			logging.Debug("Created Drive folder %s (%s)", walked, created.ID)
			parentID = created.ID
		}

		b.folders[walked] = parentID
	}

	return parentID, nil
}

// Upload sends the file with a multipart/related request: JSON metadata part
// followed by the raw content part
func (b *driveBackend) Upload(ctx context.Context, localPath, folder, filename string) error {
	folderID, err := b.ensureFolder(ctx, folder)
	if err != nil {
		return err
	}

	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s for upload: %w", localPath, err)
	}
	defer file.Close()

	// Stream the multipart body through a pipe so large recordings are
	// never buffered in memory
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	go func() {
		metaHeader := textproto.MIMEHeader{}
		metaHeader.Set("Content-Type", "application/json; charset=UTF-8")
		metaPart, err := writer.CreatePart(metaHeader)
		if err != nil {
			pw.CloseWithError(fmt.Errorf("failed to create metadata part: %w", err))
			return
		}
		metadata := map[string]interface{}{
			"name":    filename,
			"parents": []string{folderID},
		}
		if err := json.NewEncoder(metaPart).Encode(metadata); err != nil {
			pw.CloseWithError(fmt.Errorf("failed to encode upload metadata: %w", err))
			return
		}

		contentHeader := textproto.MIMEHeader{}
		contentHeader.Set("Content-Type", contentTypeForFilename(filename))
		contentPart, err := writer.CreatePart(contentHeader)
		if err != nil {
			pw.CloseWithError(fmt.Errorf("failed to create content part: %w", err))
			return
		}
		if _, err := io.Copy(contentPart, file); err != nil {
			pw.CloseWithError(fmt.Errorf("failed to write upload content: %w", err))
			return
		}
		pw.CloseWithError(writer.Close())
	}()

	token, err := b.auth.token(ctx)
	if err != nil {
		pr.Close()
		return err
	}

	endpoint := b.uploadURL + "/files?uploadType=multipart&fields=id"
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, pr)
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "multipart/related; boundary="+writer.Boundary())

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("drive upload failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("drive upload of %s failed with status %d: %s", filename, resp.StatusCode, string(body))
	}

	return nil
}

// VerifySize looks the file up by name in its folder and compares the size
// Drive reports (a decimal string) with the expected byte count
func (b *driveBackend) VerifySize(ctx context.Context, folder, filename string, expectedSize int64) VerifyResult {
	folderID, err := b.ensureFolder(ctx, folder)
	if err != nil {
		return VerifyResult{Status: StatusError, Err: err}
	}

	found, err := b.findChild(ctx, folderID, filename, false)
	if err != nil {
		return VerifyResult{Status: StatusError, Err: err}
	}
	if found == nil {
		return VerifyResult{Status: StatusMissing}
	}

	actual, err := strconv.ParseInt(found.Size, 10, 64)
	if err != nil {
		return VerifyResult{Status: StatusError, Err: fmt.Errorf("unparseable size %q for %s: %w", found.Size, filename, err)}
	}

	return classifySize(actual, expectedSize)
}
