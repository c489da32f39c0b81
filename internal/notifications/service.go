package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"keepsake/internal/config"
)

const userAgent = "Keepsake/0.1.0"

// Service defines the push surface used once a capsule changes state.
type Service interface {
	NotifyCapsuleReady(ctx context.Context, title string) error
	NotifyUnlockFailed(ctx context.Context, title, stage string, err error) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

var titleCaser = cases.Title(language.English)

func displayTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return "Untitled capsule"
	}
	return titleCaser.String(title)
}

func (n *ntfyService) NotifyCapsuleReady(ctx context.Context, title string) error {
	data := payload{
		title:    "Keepsake - Capsule Ready",
		message:  fmt.Sprintf("🔓 %s is ready for viewing", displayTitle(title)),
		tags:     []string{"keepsake", "capsule", "unlocked"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyUnlockFailed(ctx context.Context, title, stage string, err error) error {
	var builder strings.Builder
	builder.WriteString("❌ Unlock failed for ")
	builder.WriteString(displayTitle(title))
	if stage = strings.TrimSpace(stage); stage != "" {
		builder.WriteString(" during ")
		builder.WriteString(stage)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Keepsake - Unlock Failed",
		message:  builder.String(),
		tags:     []string{"keepsake", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Keepsake - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"keepsake", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyCapsuleReady(context.Context, string) error                { return nil }
func (noopService) NotifyUnlockFailed(context.Context, string, string, error) error { return nil }
func (noopService) TestNotification(context.Context) error                          { return nil }
