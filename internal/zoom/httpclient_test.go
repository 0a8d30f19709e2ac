package zoom

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type serverResponse struct {
	statusCode int
	body       string
	headers    map[string]string
}

// TestRetryHTTPClient tests the retry logic and configuration
func TestRetryHTTPClient(t *testing.T) {
	tests := []struct {
		name            string
		maxRetries      int
		serverResponses []serverResponse
		expectedError   bool
		expectedCalls   int
	}{
		{
			name:       "successful request on first try",
			maxRetries: 3,
			serverResponses: []serverResponse{
				{statusCode: 200, body: `{"success": true}`},
			},
			expectedError: false,
			expectedCalls: 1,
		},
		{
			name:       "success after transient failures",
			maxRetries: 3,
			serverResponses: []serverResponse{
				{statusCode: 500, body: `{"error": "server_error"}`},
				{statusCode: 502, body: `{"error": "bad_gateway"}`},
				{statusCode: 200, body: `{"success": true}`},
			},
			expectedError: false,
			expectedCalls: 3,
		},
		{
			name:       "max retries exceeded",
			maxRetries: 2,
			serverResponses: []serverResponse{
				{statusCode: 500, body: `{"error": "server_error"}`},
				{statusCode: 500, body: `{"error": "server_error"}`},
				{statusCode: 500, body: `{"error": "server_error"}`},
			},
			expectedError: true,
			expectedCalls: 3, // initial + 2 retries
		},
		{
			name:       "no retry for client errors",
			maxRetries: 3,
			serverResponses: []serverResponse{
				{statusCode: 400, body: `{"error": "bad_request"}`},
			},
			expectedError: true,
			expectedCalls: 1,
		},
		{
			name:       "retry for rate limits",
			maxRetries: 2,
			serverResponses: []serverResponse{
				{statusCode: 429, body: `{"error": "rate_limit_exceeded"}`, headers: map[string]string{"Retry-After": "1"}},
				{statusCode: 200, body: `{"success": true}`},
			},
			expectedError: false,
			expectedCalls: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			callCount := 0
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if callCount >= len(tt.serverResponses) {
					callCount++
					w.WriteHeader(500)
					w.Write([]byte(`{"error": "unexpected_call"}`))
					return
				}

				response := tt.serverResponses[callCount]
				callCount++

				for key, value := range response.headers {
					w.Header().Set(key, value)
				}

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(response.statusCode)
				w.Write([]byte(response.body))
			}))
			defer server.Close()

			clientConfig := HTTPClientConfig{
				Timeout:         30 * time.Second,
				MaxRetries:      tt.maxRetries,
				RetryWaitMin:    10 * time.Millisecond,
				RetryWaitMax:    100 * time.Millisecond,
				RetryableStatus: []int{429, 500, 502, 503, 504},
			}

			client := NewRetryHTTPClient(clientConfig)

			req, err := http.NewRequestWithContext(context.Background(), "GET", server.URL+"/api/test", nil)
			if err != nil {
				t.Fatalf("Failed to create request: %v", err)
			}

			resp, err := client.Do(req)

			if tt.expectedError {
				if err == nil {
					t.Errorf("Expected error, but got none")
				}
			} else {
				if err != nil {
					t.Errorf("Unexpected error: %v", err)
				}
				if resp != nil {
					resp.Body.Close()
				}
			}

			if callCount != tt.expectedCalls {
				t.Errorf("Expected %d calls, got %d", tt.expectedCalls, callCount)
			}
		})
	}
}

// TestAPIErrorParsing tests that Zoom API error bodies become typed errors
func TestAPIErrorParsing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"code": 3301, "message": "This recording does not exist."}`))
	}))
	defer server.Close()

	client := NewRetryHTTPClient(DefaultHTTPClientConfig(10*time.Second, 0))

	req, _ := http.NewRequestWithContext(context.Background(), "GET", server.URL, nil)
	_, err := client.Do(req)
	if err == nil {
		t.Fatal("Expected error for 404 response")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected *APIError, got %T: %v", err, err)
	}
	if apiErr.Code != 3301 {
		t.Errorf("Expected code 3301, got %d", apiErr.Code)
	}
	if apiErr.Status != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", apiErr.Status)
	}
	if !IsNotFound(err) {
		t.Error("Expected IsNotFound to be true")
	}
}

// TestHTTPErrorForNonJSONBody tests fallback when the error body is not JSON
func TestHTTPErrorForNonJSONBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("forbidden"))
	}))
	defer server.Close()

	client := NewRetryHTTPClient(DefaultHTTPClientConfig(10*time.Second, 0))

	req, _ := http.NewRequestWithContext(context.Background(), "GET", server.URL, nil)
	_, err := client.Do(req)
	if err == nil {
		t.Fatal("Expected error for 403 response")
	}

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("Expected *HTTPError, got %T: %v", err, err)
	}
	if httpErr.StatusCode != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", httpErr.StatusCode)
	}
	if httpErr.Body != "forbidden" {
		t.Errorf("Expected body to be preserved, got %q", httpErr.Body)
	}
}

// TestIsAuthFailure tests classification of fatal authentication errors
func TestIsAuthFailure(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "auth error is fatal",
			err:      &AuthError{Type: "invalid_client", Reason: "Invalid client_id or client_secret"},
			expected: true,
		},
		{
			name:     "wrapped auth error is fatal",
			err:      errors.Join(errors.New("context"), &AuthError{Type: "invalid_client"}),
			expected: true,
		},
		{
			name:     "401 http error is fatal",
			err:      &HTTPError{StatusCode: http.StatusUnauthorized, Status: "401 Unauthorized"},
			expected: true,
		},
		{
			name:     "401 api error is fatal",
			err:      &APIError{Code: 124, Message: "Invalid access token", Status: http.StatusUnauthorized},
			expected: true,
		},
		{
			name:     "404 is not an auth failure",
			err:      &HTTPError{StatusCode: http.StatusNotFound, Status: "404 Not Found"},
			expected: false,
		},
		{
			name:     "plain error is not an auth failure",
			err:      errors.New("connection refused"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsAuthFailure(tt.err); got != tt.expected {
				t.Errorf("IsAuthFailure(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

// TestAuthenticatedRetryClient tests the Authorization header injection
func TestAuthenticatedRetryClient(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(200)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	retryClient := NewRetryHTTPClient(DefaultHTTPClientConfig(10*time.Second, 0))
	client := NewAuthenticatedRetryClient(retryClient, &stubAuth{token: "token-abc"})

	req, _ := http.NewRequestWithContext(context.Background(), "GET", server.URL, nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	resp.Body.Close()

	if gotAuth != "Bearer token-abc" {
		t.Errorf("Expected 'Bearer token-abc' Authorization header, got %q", gotAuth)
	}
}

// TestAuthenticatedRetryClientAuthFailure tests that token errors abort the request
func TestAuthenticatedRetryClientAuthFailure(t *testing.T) {
	retryClient := NewRetryHTTPClient(DefaultHTTPClientConfig(10*time.Second, 0))
	client := NewAuthenticatedRetryClient(retryClient, &stubAuth{err: &AuthError{Type: "invalid_client"}})

	req, _ := http.NewRequestWithContext(context.Background(), "GET", "http://example.invalid", nil)
	if _, err := client.Do(req); !IsAuthFailure(err) {
		t.Errorf("Expected auth failure, got %v", err)
	}
}
