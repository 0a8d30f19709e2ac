// Package zoom provides API client for Zoom Cloud Recording endpoints
package zoom

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/curtbushko/zoom-sync/internal/daterange"
	"github.com/curtbushko/zoom-sync/internal/logging"
)

// CatalogClient defines the interface for Zoom Cloud Recording API operations
type CatalogClient interface {
	// ListUsers returns all account users, optionally including inactive ones
	ListUsers(ctx context.Context, includeInactive bool) ([]User, error)

	// ListRecordings returns recordings for a user in [start, end], deduplicated
	// by UUID. The range is split into API-sized windows internally.
	ListRecordings(ctx context.Context, userID string, start, end time.Time) ([]Recording, error)

	// ListTrashRecordings returns all trashed recordings for a user. The trash
	// endpoint has no date filter; callers filter client-side.
	ListTrashRecordings(ctx context.Context, userID string) ([]Recording, error)

	// GetRecordingByUUID fetches one recording; a 404 returns (nil, nil)
	GetRecordingByUUID(ctx context.Context, uuid string) (*Recording, error)

	// DeleteRecording removes a recording from Zoom cloud storage.
	// A 404 counts as success: the recording is already gone.
	DeleteRecording(ctx context.Context, uuid string) error

	// RestoreRecording recovers a recording from the trash.
	// A 404 is a genuine failure: the trashed copy expired.
	RestoreRecording(ctx context.Context, uuid string) error

	// DownloadFile streams a recording file to the writer, appending the
	// access token the download host requires.
	DownloadFile(ctx context.Context, downloadURL string, w io.Writer) (int64, error)
}

// Client implements the CatalogClient interface
type Client struct {
	httpClient *AuthenticatedRetryClient
	auth       Authenticator
	baseURL    string
	pageSize   int
}

// NewClient creates a new Zoom API client
func NewClient(httpClient *AuthenticatedRetryClient, auth Authenticator, baseURL string, pageSize int) *Client {
	baseURL = strings.TrimSuffix(baseURL, "/")
	if pageSize <= 0 {
		pageSize = 300
	}

	return &Client{
		httpClient: httpClient,
		auth:       auth,
		baseURL:    baseURL,
		pageSize:   pageSize,
	}
}

// ListUsers returns all account users across pages, optionally including inactive ones
func (c *Client) ListUsers(ctx context.Context, includeInactive bool) ([]User, error) {
	statuses := []string{"active"}
	if includeInactive {
		statuses = append(statuses, "inactive")
	}

	var allUsers []User
	for _, status := range statuses {
		users, err := c.listUsersByStatus(ctx, status)
		if err != nil {
			if IsAuthFailure(err) {
				return nil, err
			}
			logging.Warn("Could not retrieve %s users: %v", status, err)
			continue
		}
		allUsers = append(allUsers, users...)
	}

	return allUsers, nil
}

// listUsersByStatus pages through the user listing for one status
func (c *Client) listUsersByStatus(ctx context.Context, status string) ([]User, error) {
	var users []User

	page := 1
	for {
		endpoint := fmt.Sprintf("%s/users?status=%s&page_number=%d", c.baseURL, status, page)
		req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}

		var result ListUsersResponse
		err = json.NewDecoder(resp.Body).Decode(&result)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to decode users response: %w", err)
		}

		for i := range result.Users {
			if result.Users[i].Status == "" {
				result.Users[i].Status = status
			}
		}
		users = append(users, result.Users...)

		if page >= result.PageCount {
			break
		}
		page++
	}

	return users, nil
}

// ListRecordings returns recordings for a user in [start, end], one query per
// date window, merged and deduplicated by UUID
func (c *Client) ListRecordings(ctx context.Context, userID string, start, end time.Time) ([]Recording, error) {
	var recordings []Recording
	seen := make(map[string]bool)

	for _, window := range daterange.SplitDefault(start, end) {
		page, err := c.listRecordingsWindow(ctx, userID, window.Start, window.End)
		if err != nil {
			if IsAuthFailure(err) {
				return nil, err
			}
			// One window's failure never aborts the batch
			logging.Warn("Recording query failed for %s (%s to %s): %v",
				userID, window.Start.Format("2006-01-02"), window.End.Format("2006-01-02"), err)
			continue
		}

		for _, rec := range page {
			if seen[rec.UUID] {
				continue
			}
			seen[rec.UUID] = true
			recordings = append(recordings, rec)
		}
	}

	return recordings, nil
}

// listRecordingsWindow issues one recordings query bounded by a single window
func (c *Client) listRecordingsWindow(ctx context.Context, userID string, from, to time.Time) ([]Recording, error) {
	queryParams := url.Values{}
	queryParams.Set("from", from.Format("2006-01-02"))
	queryParams.Set("to", to.Format("2006-01-02"))
	queryParams.Set("page_size", strconv.Itoa(c.pageSize))

	endpoint := fmt.Sprintf("%s/users/%s/recordings?%s", c.baseURL, url.PathEscape(userID), queryParams.Encode())

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result ListRecordingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if result.Meetings == nil {
		// Absent meetings key means zero recordings for the window
		logging.Debug("No meetings in response for %s from %s to %s",
			userID, from.Format("2006-01-02"), to.Format("2006-01-02"))
		return nil, nil
	}

	return result.Meetings, nil
}

// ListTrashRecordings pages through a user's trash via next_page_token
func (c *Client) ListTrashRecordings(ctx context.Context, userID string) ([]Recording, error) {
	var recordings []Recording

	nextPageToken := ""
	for {
		queryParams := url.Values{}
		queryParams.Set("trash", "true")
		queryParams.Set("page_size", strconv.Itoa(c.pageSize))
		if nextPageToken != "" {
			queryParams.Set("next_page_token", nextPageToken)
		}

		endpoint := fmt.Sprintf("%s/users/%s/recordings?%s", c.baseURL, url.PathEscape(userID), queryParams.Encode())

		req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if IsAuthFailure(err) {
				return nil, err
			}
			logging.Warn("Could not fetch trash recordings for %s: %v", userID, err)
			return recordings, nil
		}

		var result ListRecordingsResponse
		err = json.NewDecoder(resp.Body).Decode(&result)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to decode trash response: %w", err)
		}

		recordings = append(recordings, result.Meetings...)

		if result.NextPageToken == "" {
			break
		}
		nextPageToken = result.NextPageToken
	}

	return recordings, nil
}

// GetRecordingByUUID fetches a specific recording; (nil, nil) means not found
func (c *Client) GetRecordingByUUID(ctx context.Context, uuid string) (*Recording, error) {
	endpoint := fmt.Sprintf("%s/meetings/%s/recordings", c.baseURL, url.QueryEscape(uuid))

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	defer resp.Body.Close()

	var result Recording
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &result, nil
}

// DeleteRecording removes a recording from Zoom cloud storage.
// Absence is the desired end state, so a 404 counts as success.
func (c *Client) DeleteRecording(ctx context.Context, uuid string) error {
	endpoint := fmt.Sprintf("%s/meetings/%s/recordings", c.baseURL, url.QueryEscape(uuid))

	req, err := http.NewRequestWithContext(ctx, "DELETE", endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if IsNotFound(err) {
			logging.Debug("Recording %s not found in Zoom, treating delete as success", uuid)
			return nil
		}
		return err
	}
	resp.Body.Close()

	return nil
}

// RestoreRecording recovers a recording from the trash. A 404 means the
// trashed copy expired or never existed and is a genuine failure.
func (c *Client) RestoreRecording(ctx context.Context, uuid string) error {
	endpoint := fmt.Sprintf("%s/meetings/%s/recordings/status", c.baseURL, url.QueryEscape(uuid))

	payload, err := json.Marshal(map[string]string{"action": "recover"})
	if err != nil {
		return fmt.Errorf("failed to encode restore payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "PUT", endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	return nil
}

// DownloadFile streams a recording file to the writer. The download host
// requires the access token as a query parameter rather than a header.
func (c *Client) DownloadFile(ctx context.Context, downloadURL string, w io.Writer) (int64, error) {
	token, err := c.auth.GetAccessToken(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get access token for download: %w", err)
	}

	u, err := url.Parse(downloadURL)
	if err != nil {
		return 0, fmt.Errorf("invalid download URL: %w", err)
	}
	query := u.Query()
	query.Set("access_token", token.AccessToken)
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("download failed with status %d: %s", resp.StatusCode, resp.Status)
	}

	// 32 KiB chunks keep memory use independent of file size
	buffer := make([]byte, 32*1024)
	written, err := io.CopyBuffer(w, resp.Body, buffer)
	if err != nil {
		return written, fmt.Errorf("failed to copy file content: %w", err)
	}

	return written, nil
}
