package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL     = "https://openrouter.ai/api/v1/chat/completions"
	defaultHTTPTimeout = 60 * time.Second
	maxSnippetRunes    = 160
)

// ErrEmptyCompletion is returned when the provider answers without any text.
var ErrEmptyCompletion = errors.New("empty completion")

// Config holds the connection settings for an OpenAI-compatible chat endpoint.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	Temperature    float64
	MaxTokens      int
	TimeoutSeconds int
}

// StatusError carries a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("chat completion: http %d: %s", e.StatusCode, snippet(e.Body))
}

func (e *StatusError) retryable() bool {
	return e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}

// backoff doubles from base up to max between attempts.
type backoff struct {
	attempts int
	base     time.Duration
	max      time.Duration
}

func (b backoff) delay(attempt int, hint time.Duration) time.Duration {
	if hint > 0 {
		return min(hint, b.max)
	}
	if b.base <= 0 {
		return 0
	}
	d := b.base
	for i := 1; i < attempt && d < b.max; i++ {
		d *= 2
	}
	return min(d, b.max)
}

// Client sends single-turn chat completions with retry on transient failures.
type Client struct {
	cfg        Config
	httpClient *http.Client
	retry      backoff
	sleep      func(context.Context, time.Duration) error
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithAttempts caps the number of requests per call (default 4).
func WithAttempts(n int) Option {
	return func(c *Client) {
		c.retry.attempts = max(n, 1)
	}
}

// WithBackoff sets the first retry delay and the ceiling.
func WithBackoff(base, ceiling time.Duration) Option {
	return func(c *Client) {
		c.retry.base = base
		c.retry.max = ceiling
	}
}

// WithSleeper replaces the context-aware wait between attempts.
func WithSleeper(sleep func(context.Context, time.Duration) error) Option {
	return func(c *Client) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// NewClient builds a client. An empty BaseURL selects OpenRouter.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.Model = strings.TrimSpace(cfg.Model)
	cfg.Referer = strings.TrimSpace(cfg.Referer)
	cfg.Title = strings.TrimSpace(cfg.Title)

	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		retry:      backoff{attempts: 4, base: time.Second, max: 10 * time.Second},
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete sends the prompts and returns the trimmed text of the first choice.
// The system prompt is optional.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	userPrompt = strings.TrimSpace(userPrompt)
	if userPrompt == "" {
		return "", errors.New("chat completion: user prompt required")
	}
	if c.cfg.APIKey == "" {
		return "", errors.New("chat completion: api key required")
	}
	req := chatRequest{
		Model:       c.cfg.Model,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	}
	if systemPrompt = strings.TrimSpace(systemPrompt); systemPrompt != "" {
		req.Messages = append(req.Messages, chatMessage{Role: "system", Content: systemPrompt})
	}
	req.Messages = append(req.Messages, chatMessage{Role: "user", Content: userPrompt})
	return c.completeWithRetry(ctx, req)
}

// HealthCheck sends a one-token ping. Any text in reply means the key and
// model are usable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.cfg.APIKey == "" {
		return errors.New("chat completion: api key required")
	}
	_, err := c.completeWithRetry(ctx, chatRequest{
		Model:     c.cfg.Model,
		Messages:  []chatMessage{{Role: "user", Content: "Reply with the word ok."}},
		MaxTokens: 5,
	})
	return err
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		// Some gateways answer with the streaming shape even when stream=false.
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (r chatResponse) text() (content, finishReason, refusal string) {
	for _, choice := range r.Choices {
		if finishReason == "" {
			finishReason = choice.FinishReason
		}
		if refusal == "" {
			refusal = strings.TrimSpace(choice.Message.Refusal)
		}
		for _, candidate := range []string{choice.Message.Content, choice.Delta.Content} {
			if trimmed := strings.TrimSpace(candidate); trimmed != "" {
				return trimmed, finishReason, refusal
			}
		}
	}
	return "", finishReason, refusal
}

func (c *Client) completeWithRetry(ctx context.Context, req chatRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("chat completion: encode request: %w", err)
	}

	var lastErr error
	made := 0
	for attempt := 1; attempt <= c.retry.attempts; attempt++ {
		made = attempt
		content, err := c.send(ctx, body)
		if err == nil {
			return content, nil
		}
		lastErr = err

		hint, ok := c.retryable(ctx, err)
		if !ok || attempt == c.retry.attempts {
			break
		}
		if err := c.sleep(ctx, c.retry.delay(attempt, hint)); err != nil {
			return "", err
		}
	}
	if made > 1 {
		return "", fmt.Errorf("chat completion failed after %d attempts: %w", made, lastErr)
	}
	return "", lastErr
}

// retryable reports whether err is transient, with any server-supplied delay.
func (c *Client) retryable(ctx context.Context, err error) (time.Duration, bool) {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}
	if errors.Is(err, ErrEmptyCompletion) {
		return 0, true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.RetryAfter, statusErr.retryable()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return 0, true
	}
	return 0, false
}

func (c *Client) send(ctx context.Context, body []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("chat completion: new request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.Referer != "" {
		httpReq.Header.Set("HTTP-Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		httpReq.Header.Set("X-Title", c.cfg.Title)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("chat completion: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return "", &StatusError{
			StatusCode: resp.StatusCode,
			Body:       string(raw),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var decoded chatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("chat completion: decode response: %w", err)
	}
	if decoded.Error != nil {
		return "", fmt.Errorf("chat completion: provider error: %s", strings.TrimSpace(decoded.Error.Message))
	}
	content, finish, refusal := decoded.text()
	if content == "" {
		return "", fmt.Errorf("%w (finish_reason=%q refusal=%q body=%s)", ErrEmptyCompletion, finish, refusal, snippet(string(raw)))
	}
	return content, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if when, err := http.ParseTime(value); err == nil {
		return max(time.Until(when), 0)
	}
	return 0
}

func snippet(body string) string {
	clean := strings.Join(strings.Fields(body), " ")
	if clean == "" {
		return "<empty>"
	}
	if runes := []rune(clean); len(runes) > maxSnippetRunes {
		return string(runes[:maxSnippetRunes]) + "..."
	}
	return clean
}
