// Package remote is the HTTP client for the two-endpoint cloud store
// contract: POST {endpoint}/save and GET {endpoint}/load. Retry policy
// belongs to the caller; both operations are safe to retry.
package remote

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/marcus/ck/internal/models"
)

// Sentinel errors for auth-related HTTP error classes. Callers must
// react to these by prompting re-authentication, not by retrying.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// IsAuthExpired reports whether err is a 401/403 class failure that is
// recoverable only by signing in again.
func IsAuthExpired(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden)
}

// Client talks to one cloud store endpoint on behalf of one token.
type Client struct {
	Endpoint string
	Token    string
	HTTP     *http.Client
}

// New creates a client. Token must be non-empty: unauthenticated calls
// are a precondition violation of the remote contract.
func New(endpoint, token string) *Client {
	return &Client{
		Endpoint: strings.TrimRight(endpoint, "/"),
		Token:    token,
		HTTP:     &http.Client{Timeout: 30 * time.Second},
	}
}

// SaveRequest is the body for POST {endpoint}/save.
type SaveRequest struct {
	UserID    string          `json:"userId"`
	UserEmail string          `json:"userEmail"`
	Data      models.Snapshot `json:"data"`
	Timestamp string          `json:"timestamp"`
}

// SaveResponse is the 200 body for a save.
type SaveResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	UserID    string `json:"userId"`
}

// LoadResponse is the 200 body for a load. Data is nil when the remote
// holds no record for the user; that is not an error.
type LoadResponse struct {
	Success   bool            `json:"success"`
	Data      models.Snapshot `json:"data"`
	Timestamp string          `json:"timestamp"`
	UserID    string          `json:"userId"`
}

// Save issues an authenticated write. Succeeds only on a 2xx response.
func (c *Client) Save(req SaveRequest) (*SaveResponse, error) {
	var resp SaveResponse
	if err := c.do("POST", "/save", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Load issues an authenticated read for the given user.
func (c *Client) Load(userID string) (*LoadResponse, error) {
	params := url.Values{}
	params.Set("userId", userID)

	var resp LoadResponse
	if err := c.do("GET", "/load?"+params.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// apiError is the standard error body from the remote.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code
}

func (c *Client) do(method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.Endpoint+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		msg := strings.TrimSpace(string(respBody))
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Code != "" {
			msg = apiErr.Message
		}
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
		case http.StatusForbidden:
			return fmt.Errorf("%w: %s", ErrForbidden, msg)
		default:
			return fmt.Errorf("HTTP %d: %s", resp.StatusCode, msg)
		}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
