// Package sdk is a small HTTP client for the tomatodoc API.
package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// Client talks to a running tomatodoc server.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New creates a Client for the given base URL (scheme and host, no
// trailing slash).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tomatodoc: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// AskRequest is one chat question.
type AskRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"topK,omitempty"`
	Strict   *bool  `json:"strict,omitempty"`
}

// AskResponse is the server's answer.
type AskResponse struct {
	Answer        string   `json:"answer"`
	Sources       []string `json:"sources"`
	DetectionUsed bool     `json:"detectionUsed"`
}

// Turn is one conversation message.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Detection is the outcome of a leaf image upload.
type Detection struct {
	ClassName  string  `json:"className"`
	KBSlug     string  `json:"kbSlug"`
	HumanName  string  `json:"humanName"`
	Confidence float64 `json:"confidence"`
	Message    string  `json:"message"`
	Staged     bool    `json:"staged"`
}

// Health is the server readiness report.
type Health struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	IndexSize int               `json:"indexSize"`
}

// CreateSession opens a new conversation session.
func (c *Client) CreateSession(ctx context.Context) (string, error) {
	var out struct {
		SessionID string `json:"sessionId"`
	}
	err := c.do(ctx, http.MethodPost, "/api/v1/sessions", nil, "", &out)
	if err != nil {
		return "", err
	}
	return out.SessionID, nil
}

// Ask sends one question on a session.
func (c *Client) Ask(ctx context.Context, sessionID string, req AskRequest) (AskResponse, error) {
	var out AskResponse
	body, err := json.Marshal(req)
	if err != nil {
		return out, fmt.Errorf("tomatodoc: marshal request: %w", err)
	}
	err = c.do(ctx, http.MethodPost, "/api/v1/sessions/"+sessionID+"/chat",
		bytes.NewReader(body), "application/json", &out)
	return out, err
}

// History returns the session conversation so far.
func (c *Client) History(ctx context.Context, sessionID string) ([]Turn, error) {
	var out struct {
		Turns []Turn `json:"turns"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/sessions/"+sessionID+"/history", nil, "", &out)
	return out.Turns, err
}

// Reset clears the session history and any pending detection.
func (c *Client) Reset(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/sessions/"+sessionID+"/reset", nil, "", nil)
}

// Detect uploads a leaf image for classification. A recognized
// disease is staged for the session's next question.
func (c *Client) Detect(ctx context.Context, sessionID, filename string, image []byte) (Detection, error) {
	var out Detection

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return out, fmt.Errorf("tomatodoc: build upload: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return out, fmt.Errorf("tomatodoc: build upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return out, fmt.Errorf("tomatodoc: build upload: %w", err)
	}

	err = c.do(ctx, http.MethodPost, "/api/v1/sessions/"+sessionID+"/detect",
		&body, mw.FormDataContentType(), &out)
	return out, err
}

// Healthz returns the server health report.
func (c *Client) Healthz(ctx context.Context) (Health, error) {
	var out Health
	err := c.do(ctx, http.MethodGet, "/healthz", nil, "", &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("tomatodoc: build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("tomatodoc: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if decodeErr := json.NewDecoder(resp.Body).Decode(apiErr); decodeErr != nil {
			apiErr.Code = "unknown"
			apiErr.Message = resp.Status
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("tomatodoc: decode response: %w", err)
	}
	return nil
}
