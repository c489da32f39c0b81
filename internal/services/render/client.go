package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"keepsake/internal/services"
)

const (
	defaultHTTPTimeout  = 30 * time.Second
	defaultPollInitial  = time.Second
	defaultPollMax      = 15 * time.Second
	defaultMaxWait      = 10 * time.Minute
	defaultDurationSecs = 30
	defaultWidth        = 1920
	defaultHeight       = 1080
	maxErrorBody        = 2048
)

// Job statuses reported by the render service.
const (
	StatusQueued  = "queued"
	StatusRunning = "running"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// Config captures the render service connection and output settings.
type Config struct {
	BaseURL         string
	APIKey          string
	PollInitial     time.Duration
	PollMax         time.Duration
	MaxWait         time.Duration
	DurationSeconds int
	Width           int
	Height          int
}

// Job is the render service's view of a submitted job.
type Job struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	VideoURL string `json:"video_url,omitempty"`
	Error    string `json:"error,omitempty"`
}

type submitRequest struct {
	Script          string `json:"script"`
	DurationSeconds int    `json:"duration_seconds"`
	Width           int    `json:"width"`
	Height          int    `json:"height"`
}

// Client submits and polls render jobs.
type Client struct {
	cfg        Config
	httpClient *http.Client
	sleeper    func(context.Context, time.Duration) error
	now        func() time.Time
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

// WithSleeper overrides how poll waits are performed (useful for tests).
func WithSleeper(sleeper func(context.Context, time.Duration) error) Option {
	return func(c *Client) {
		if sleeper != nil {
			c.sleeper = sleeper
		}
	}
}

// WithClock overrides the time source used to measure the wait window.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient constructs a render client, filling unset values with defaults.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.PollInitial <= 0 {
		cfg.PollInitial = defaultPollInitial
	}
	if cfg.PollMax <= 0 {
		cfg.PollMax = defaultPollMax
	}
	if cfg.PollMax < cfg.PollInitial {
		cfg.PollMax = cfg.PollInitial
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = defaultMaxWait
	}
	if cfg.DurationSeconds <= 0 {
		cfg.DurationSeconds = defaultDurationSecs
	}
	if cfg.Width <= 0 {
		cfg.Width = defaultWidth
	}
	if cfg.Height <= 0 {
		cfg.Height = defaultHeight
	}
	client := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		sleeper:    sleepContext,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Render submits script and waits for the finished video, returning its URL.
func (c *Client) Render(ctx context.Context, script string) (string, error) {
	job, err := c.Submit(ctx, script)
	if err != nil {
		return "", err
	}
	job, err = c.Wait(ctx, job.ID)
	if err != nil {
		return "", err
	}
	return job.VideoURL, nil
}

// Submit creates a render job.
func (c *Client) Submit(ctx context.Context, script string) (Job, error) {
	script = strings.TrimSpace(script)
	if script == "" {
		return Job{}, errors.New("render submit: script required")
	}
	body, err := json.Marshal(submitRequest{
		Script:          script,
		DurationSeconds: c.cfg.DurationSeconds,
		Width:           c.cfg.Width,
		Height:          c.cfg.Height,
	})
	if err != nil {
		return Job{}, fmt.Errorf("render submit: encode body: %w", err)
	}
	var job Job
	if err := c.do(ctx, http.MethodPost, "jobs", body, &job); err != nil {
		return Job{}, fmt.Errorf("render submit: %w", err)
	}
	if strings.TrimSpace(job.ID) == "" {
		return Job{}, errors.New("render submit: response missing job id")
	}
	return job, nil
}

// Status fetches the current state of a job.
func (c *Client) Status(ctx context.Context, id string) (Job, error) {
	var job Job
	if err := c.do(ctx, http.MethodGet, "jobs/"+url.PathEscape(id), nil, &job); err != nil {
		return Job{}, fmt.Errorf("render status: %w", err)
	}
	return job, nil
}

// Wait polls a job until it finishes. The delay between polls doubles from
// PollInitial up to PollMax; the whole wait is bounded by MaxWait.
func (c *Client) Wait(ctx context.Context, id string) (Job, error) {
	deadline := c.now().Add(c.cfg.MaxWait)
	delay := c.cfg.PollInitial
	for {
		job, err := c.Status(ctx, id)
		if err != nil {
			return Job{}, err
		}
		switch strings.ToLower(job.Status) {
		case StatusDone:
			if strings.TrimSpace(job.VideoURL) == "" {
				return Job{}, fmt.Errorf("render job %s: done without video url", id)
			}
			return job, nil
		case StatusFailed:
			reason := strings.TrimSpace(job.Error)
			if reason == "" {
				reason = "no reason given"
			}
			return Job{}, fmt.Errorf("render job %s failed: %s", id, reason)
		}

		remaining := deadline.Sub(c.now())
		if remaining <= 0 {
			return Job{}, services.Wrap(services.ErrTimeout, "render", "wait", fmt.Sprintf("job %s still %s after %s", id, job.Status, c.cfg.MaxWait), nil)
		}
		if delay > remaining {
			delay = remaining
		}
		if err := c.sleeper(ctx, delay); err != nil {
			return Job{}, err
		}
		if next := delay * 2; next <= c.cfg.PollMax {
			delay = next
		} else {
			delay = c.cfg.PollMax
		}
	}
}

// HealthCheck verifies the render service answers on its base URL.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.cfg.BaseURL == "" {
		return errors.New("render health: base url not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("render health: new request: %w", err)
	}
	c.authorize(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("render health: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("render health: http %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, target any) error {
	if c.cfg.BaseURL == "" {
		return errors.New("base url not configured")
	}
	endpoint, err := url.JoinPath(c.cfg.BaseURL, path)
	if err != nil {
		return fmt.Errorf("build url: %w", err)
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http error: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
