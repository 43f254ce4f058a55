package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	DeveloperTokenHeader = "X-DOMO-Developer-Token"

	systemPromptTemplate = "You are a chatbot that answers questions based on the following PDF text: %s. " +
		"Provide concise answers, limited to 3-4 lines, ensuring clarity and relevance."

	maxErrorBodyBytes = 2048
)

var (
	ErrUpstreamCall       = errors.New("upstream call failed")
	ErrUnexpectedResponse = errors.New("unexpected upstream response")
)

// UpstreamError carries the failure kind (ErrUpstreamCall or
// ErrUnexpectedResponse) and the underlying cause.
type UpstreamError struct {
	Kind  error
	Cause error
}

func (e *UpstreamError) Error() string {
	if e.Cause == nil {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Cause.Error()
}

func (e *UpstreamError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("completion status: %s", e.Status)
	}
	return fmt.Sprintf("completion status: %s: %s", e.Status, e.Body)
}

type CompletionConfig struct {
	URL            string
	Model          string
	DeveloperToken string
	// Timeout of 0 leaves the HTTP client without a deadline.
	Timeout time.Duration
}

type CompletionRequest struct {
	Input  string `json:"input"`
	Model  string `json:"model"`
	System string `json:"system"`
}

type CompletionClient struct {
	cfg        CompletionConfig
	httpClient *http.Client
	breaker    *Breaker
}

type Option func(*CompletionClient)

func WithHTTPClient(client *http.Client) Option {
	return func(c *CompletionClient) {
		c.httpClient = client
	}
}

func WithBreaker(breaker *Breaker) Option {
	return func(c *CompletionClient) {
		c.breaker = breaker
	}
}

func NewCompletionClient(cfg CompletionConfig, opts ...Option) *CompletionClient {
	c := &CompletionClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CompletionClient) Model() string {
	return c.cfg.Model
}

// BuildRequest returns the provider payload for a question about documentText.
func (c *CompletionClient) BuildRequest(question, documentText string) CompletionRequest {
	return CompletionRequest{
		Input:  question,
		Model:  c.cfg.Model,
		System: fmt.Sprintf(systemPromptTemplate, documentText),
	}
}

// Ask sends one completion request and returns the provider's output text.
func (c *CompletionClient) Ask(ctx context.Context, question, documentText string) (string, error) {
	if c.breaker == nil {
		return c.ask(ctx, question, documentText)
	}
	return c.breaker.Execute(func() (string, error) {
		return c.ask(ctx, question, documentText)
	})
}

func (c *CompletionClient) ask(ctx context.Context, question, documentText string) (string, error) {
	bodyBytes, err := json.Marshal(c.BuildRequest(question, documentText))
	if err != nil {
		return "", &UpstreamError{Kind: ErrUpstreamCall, Cause: fmt.Errorf("marshal completion request failed: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", &UpstreamError{Kind: ErrUpstreamCall, Cause: fmt.Errorf("build completion request failed: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(DeveloperTokenHeader, c.cfg.DeveloperToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &UpstreamError{Kind: ErrUpstreamCall, Cause: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &UpstreamError{Kind: ErrUpstreamCall, Cause: fmt.Errorf("read completion response failed: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &UpstreamError{Kind: ErrUpstreamCall, Cause: &StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       truncate(strings.TrimSpace(string(raw)), maxErrorBodyBytes),
		}}
	}

	var parsed map[string]json.RawMessage
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", &UpstreamError{Kind: ErrUnexpectedResponse, Cause: fmt.Errorf("parse completion json failed: %w", err)}
	}
	rawOutput, ok := parsed["output"]
	if !ok || string(rawOutput) == "null" {
		return "", &UpstreamError{Kind: ErrUnexpectedResponse, Cause: errors.New("response has no output field")}
	}
	var output string
	if err := json.Unmarshal(rawOutput, &output); err != nil {
		return "", &UpstreamError{Kind: ErrUnexpectedResponse, Cause: fmt.Errorf("output is not a string: %w", err)}
	}
	return output, nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
