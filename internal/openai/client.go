// Package openai is a minimal OpenAI Responses API client. It issues a
// single call per request; retry policy belongs to the caller, which
// classifies failures via the Kind on *Error.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	defaultBaseURL  = "https://api.openai.com/v1"
	defaultTimeout  = 90 * time.Second
	maxIdleConns    = 100
	maxConnsPerHost = 100
	idleConnTimeout = 90 * time.Second
)

// ErrorKind classifies a failed call once, at the adapter boundary.
type ErrorKind int

const (
	KindOther ErrorKind = iota
	KindRateLimited
	KindTimedOut
)

// Error is a classified resolver failure.
type Error struct {
	Kind    ErrorKind
	Status  int
	Message string
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindRateLimited:
		return fmt.Sprintf("openai: rate limited (status %d): %s", e.Status, e.Message)
	case KindTimedOut:
		return fmt.Sprintf("openai: timed out: %s", e.Message)
	default:
		return fmt.Sprintf("openai: request failed (status %d): %s", e.Status, e.Message)
	}
}

// IsTransient reports whether err is a rate-limit or timeout failure.
func IsTransient(err error) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind == KindRateLimited || apiErr.Kind == KindTimedOut
	}
	return false
}

// Client is an OpenAI Responses API client with connection pooling.
type Client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string

	// Usage tracking
	usageMu           sync.Mutex
	totalInputTokens  int64
	totalOutputTokens int64
	calls             int64
}

// NewClient creates a client. timeout <= 0 falls back to the default.
func NewClient(apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	transport := &http.Transport{
		MaxIdleConns:        maxIdleConns,
		MaxIdleConnsPerHost: maxConnsPerHost,
		MaxConnsPerHost:     maxConnsPerHost,
		IdleConnTimeout:     idleConnTimeout,
		ForceAttemptHTTP2:   true,
	}
	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
	}
}

// SetBaseURL overrides the API base URL (used by tests).
func (c *Client) SetBaseURL(u string) {
	c.baseURL = strings.TrimRight(u, "/")
}

type responsesRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type responsesResponse struct {
	Output []outputItem `json:"output"`
	Usage  *usage       `json:"usage,omitempty"`
	Error  *apiError    `json:"error,omitempty"`
}

type outputItem struct {
	Type    string        `json:"type"`
	Content []contentPart `json:"content,omitempty"`
}

type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// GenerateText issues one model call and returns the concatenated output
// text. Exactly one HTTP request is made; any failure comes back as a
// classified *Error.
func (c *Client) GenerateText(ctx context.Context, model, prompt string) (string, error) {
	body, err := json.Marshal(responsesRequest{Model: model, Input: prompt})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/responses", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", classifyTransportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classifyTransportError(err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus(resp.StatusCode, respBody)
	}

	var result responsesResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", &Error{Kind: KindOther, Status: resp.StatusCode, Message: fmt.Sprintf("unmarshal response: %v", err)}
	}
	if result.Error != nil {
		return "", &Error{Kind: KindOther, Status: resp.StatusCode, Message: result.Error.Message}
	}

	c.recordUsage(result.Usage)
	return outputText(&result), nil
}

func outputText(r *responsesResponse) string {
	var sb strings.Builder
	for _, item := range r.Output {
		if item.Type != "" && item.Type != "message" {
			continue
		}
		for _, part := range item.Content {
			if part.Type == "output_text" || part.Type == "text" {
				sb.WriteString(part.Text)
			}
		}
	}
	return sb.String()
}

func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimedOut, Message: err.Error()}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimedOut, Message: err.Error()}
	}
	return &Error{Kind: KindOther, Message: err.Error()}
}

func classifyStatus(status int, body []byte) error {
	msg := apiErrorMessage(body)
	if status == http.StatusTooManyRequests {
		return &Error{Kind: KindRateLimited, Status: status, Message: msg}
	}
	if status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout {
		return &Error{Kind: KindTimedOut, Status: status, Message: msg}
	}
	return &Error{Kind: KindOther, Status: status, Message: msg}
}

func apiErrorMessage(body []byte) string {
	var wrapper struct {
		Error *apiError `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapper); err == nil && wrapper.Error != nil {
		return wrapper.Error.Message
	}
	trimmed := strings.TrimSpace(string(body))
	if len(trimmed) > 200 {
		trimmed = trimmed[:200]
	}
	return trimmed
}

// UsageStats contains accumulated usage counters.
type UsageStats struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	Calls        int64 `json:"calls"`
}

// GetUsageStats returns accumulated usage counters.
func (c *Client) GetUsageStats() UsageStats {
	c.usageMu.Lock()
	defer c.usageMu.Unlock()
	return UsageStats{
		InputTokens:  c.totalInputTokens,
		OutputTokens: c.totalOutputTokens,
		Calls:        c.calls,
	}
}

func (c *Client) recordUsage(u *usage) {
	c.usageMu.Lock()
	defer c.usageMu.Unlock()
	c.calls++
	if u == nil {
		return
	}
	c.totalInputTokens += int64(u.InputTokens)
	c.totalOutputTokens += int64(u.OutputTokens)
}
