package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"keepsake/internal/config"
	"keepsake/internal/notifications"
)

type captured struct {
	title    string
	tags     string
	priority string
	agent    string
	body     string
}

func newNtfyServer(t *testing.T, status int) (*httptest.Server, <-chan captured) {
	t.Helper()
	ch := make(chan captured, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		ch <- captured{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			agent:    r.Header.Get("User-Agent"),
			body:     string(body),
		}
		w.WriteHeader(status)
		if status >= 300 {
			_, _ = w.Write([]byte("topic rejected"))
		}
	}))
	t.Cleanup(srv.Close)
	return srv, ch
}

func serviceFor(url string) notifications.Service {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = url
	return notifications.NewService(&cfg)
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyCapsuleReady(context.Background(), "summer 2020"); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
	if err := notifications.NewService(nil).TestNotification(context.Background()); err != nil {
		t.Fatalf("expected noop for nil config, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		send           func(notifications.Service) error
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:           "capsule ready",
			send:           func(s notifications.Service) error { return s.NotifyCapsuleReady(context.Background(), "summer at the lake") },
			expectTitle:    "Keepsake - Capsule Ready",
			expectMessage:  "🔓 Summer At The Lake is ready for viewing",
			expectTags:     "keepsake,capsule,unlocked",
			expectPriority: "high",
		},
		{
			name: "unlock failed",
			send: func(s notifications.Service) error {
				return s.NotifyUnlockFailed(context.Background(), "graduation", "render", errors.New("job failed"))
			},
			expectTitle:    "Keepsake - Unlock Failed",
			expectMessage:  "❌ Unlock failed for Graduation during render: job failed",
			expectTags:     "keepsake,error,alert",
			expectPriority: "high",
		},
		{
			name:           "empty title",
			send:           func(s notifications.Service) error { return s.NotifyCapsuleReady(context.Background(), "  ") },
			expectTitle:    "Keepsake - Capsule Ready",
			expectMessage:  "🔓 Untitled capsule is ready for viewing",
			expectTags:     "keepsake,capsule,unlocked",
			expectPriority: "high",
		},
		{
			name:           "test",
			send:           func(s notifications.Service) error { return s.TestNotification(context.Background()) },
			expectTitle:    "Keepsake - Test",
			expectMessage:  "🧪 Notification system test",
			expectTags:     "keepsake,test",
			expectPriority: "low",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv, ch := newNtfyServer(t, http.StatusOK)
			if err := tc.send(serviceFor(srv.URL)); err != nil {
				t.Fatalf("send: %v", err)
			}
			got := <-ch
			if got.title != tc.expectTitle {
				t.Fatalf("title = %q, want %q", got.title, tc.expectTitle)
			}
			if got.body != tc.expectMessage {
				t.Fatalf("message = %q, want %q", got.body, tc.expectMessage)
			}
			if got.tags != tc.expectTags {
				t.Fatalf("tags = %q, want %q", got.tags, tc.expectTags)
			}
			if got.priority != tc.expectPriority {
				t.Fatalf("priority = %q, want %q", got.priority, tc.expectPriority)
			}
			if !strings.HasPrefix(got.agent, "Keepsake/") {
				t.Fatalf("unexpected user agent %q", got.agent)
			}
		})
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	srv, _ := newNtfyServer(t, http.StatusForbidden)
	err := serviceFor(srv.URL).TestNotification(context.Background())
	if err == nil {
		t.Fatal("expected error for 403 response")
	}
	if !strings.Contains(err.Error(), "403") || !strings.Contains(err.Error(), "topic rejected") {
		t.Fatalf("expected status and body in error, got %v", err)
	}
}
