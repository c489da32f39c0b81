package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"keepsake/internal/api"
	"keepsake/internal/config"
	"keepsake/internal/daemonrun"
	"keepsake/internal/services"
	"keepsake/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	clock      *testsupport.Clock
	providers  *testsupport.StaticProviders
	push       *testsupport.RecordingService
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "keepsake.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{
		cfg:        cfg,
		configPath: configPath,
		clock:      testsupport.NewClock(time.Now().UTC()),
		providers:  testsupport.NewStaticProviders(),
		push:       testsupport.NewRecordingService(),
	}
}

func (e *cliTestEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand(
		daemonrun.WithProviders(e.providers.Providers()),
		daemonrun.WithPushService(e.push),
		daemonrun.WithClock(e.clock.Now),
	)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), err
}

func (e *cliTestEnv) runJSON(t *testing.T, target any, args ...string) {
	t.Helper()
	out, err := e.run(t, append([]string{"--json"}, args...)...)
	if err != nil {
		t.Fatalf("%s: %v", strings.Join(args, " "), err)
	}
	if err := json.Unmarshal([]byte(out), target); err != nil {
		t.Fatalf("%s: decode %q: %v", strings.Join(args, " "), out, err)
	}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestCLICapsuleLifecycle(t *testing.T) {
	env := setupCLITestEnv(t)

	var owner api.User
	env.runJSON(t, &owner, "user", "add", "Ada", "Lovelace")
	if owner.Name != "Ada Lovelace" || owner.ID == "" {
		t.Fatalf("unexpected user: %+v", owner)
	}

	var capsule api.Capsule
	unlockAt := env.clock.Now().Add(time.Hour).Format(time.RFC3339)
	env.runJSON(t, &capsule, "capsule", "create", "--owner", owner.ID, "--title", "Reunion", "--unlock-at", unlockAt)
	if capsule.State != "draft" {
		t.Fatalf("expected draft capsule, got %s", capsule.State)
	}

	photo := filepath.Join(t.TempDir(), "group.jpg")
	if err := os.WriteFile(photo, testsupport.Payload(256), 0o644); err != nil {
		t.Fatalf("write photo: %v", err)
	}
	env.runJSON(t, &capsule, "capsule", "attach", capsule.ID, photo)
	if capsule.State != "locked" || len(capsule.Media) != 1 {
		t.Fatalf("expected locked capsule with one item, got %s/%d", capsule.State, len(capsule.Media))
	}
	if capsule.Media[0].Category != "image" {
		t.Fatalf("expected image category from .jpg extension, got %q", capsule.Media[0].Category)
	}

	if _, err := env.run(t, "capsule", "content", capsule.ID); !errors.Is(err, services.ErrStillLocked) {
		t.Fatalf("expected still locked error, got %v", err)
	}

	env.clock.Advance(2 * time.Hour)
	var report api.SweepReport
	env.runJSON(t, &report, "sweep")
	if report.Due != 1 || report.Unlocked != 1 {
		t.Fatalf("unexpected sweep report: %+v", report)
	}

	out, err := env.run(t, "capsule", "content", capsule.ID)
	if err != nil {
		t.Fatalf("capsule content: %v", err)
	}
	if !strings.Contains(out, "# Reunion") || !strings.Contains(out, "Video: V") {
		t.Fatalf("unexpected content output: %q", out)
	}
	if got := env.providers.Calls("analyze"); got != 1 {
		t.Fatalf("expected one analyze call after unlock, got %d", got)
	}

	out, err = env.run(t, "capsule", "list", "--state", "unlocked")
	if err != nil {
		t.Fatalf("capsule list: %v", err)
	}
	if !strings.Contains(out, "Reunion") {
		t.Fatalf("expected capsule in list output: %q", out)
	}

	var listed api.NotificationListResponse
	env.runJSON(t, &listed, "notifications", "list", owner.ID, "--unread")
	if len(listed.Notifications) != 1 {
		t.Fatalf("expected one unlock notification, got %d", len(listed.Notifications))
	}
	if _, err := env.run(t, "notifications", "read", listed.Notifications[0].ID); err != nil {
		t.Fatalf("notifications read: %v", err)
	}
	env.runJSON(t, &listed, "notifications", "list", owner.ID, "--unread")
	if len(listed.Notifications) != 0 {
		t.Fatalf("expected no unread notifications, got %d", len(listed.Notifications))
	}
	if env.push.Count("ready") != 1 {
		t.Fatalf("expected one ready push, got %d", env.push.Count("ready"))
	}
}

func TestCLIStatusWithoutDaemon(t *testing.T) {
	env := setupCLITestEnv(t)

	var report statusReport
	env.runJSON(t, &report, "status")
	if report.DaemonRunning {
		t.Fatal("expected daemon to be reported as not running")
	}
	if _, ok := report.Scheduler.CapsuleStats["locked"]; !ok {
		t.Fatalf("expected every state in stats: %+v", report.Scheduler.CapsuleStats)
	}

	out, err := env.run(t, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "not running") || !strings.Contains(out, "== Capsules ==") {
		t.Fatalf("unexpected status output: %q", out)
	}
}

func TestCLIValidationErrors(t *testing.T) {
	env := setupCLITestEnv(t)

	var owner api.User
	env.runJSON(t, &owner, "user", "add", "Grace")

	_, err := env.run(t, "capsule", "create", "--owner", owner.ID, "--title", "x", "--unlock-at", "tomorrow")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if msg := describeError(err); !strings.Contains(msg, "[validation]") {
		t.Fatalf("expected kind in message, got %q", msg)
	}

	if _, err := env.run(t, "capsule", "show", "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := env.run(t, "capsule", "attach", "missing", filepath.Join(t.TempDir(), "nope.jpg")); err == nil {
		t.Fatal("expected error for unreadable file")
	}
}

func TestTestNotifyWithoutTopic(t *testing.T) {
	env := setupCLITestEnv(t)
	out, err := env.run(t, "test-notify")
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	if !strings.Contains(out, "ntfy topic not configured") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestAPIBaseURL(t *testing.T) {
	cases := map[string]string{
		"127.0.0.1:7488": "http://127.0.0.1:7488",
		"0.0.0.0:9000":   "http://127.0.0.1:9000",
		":8080":          "http://127.0.0.1:8080",
	}
	for bind, want := range cases {
		got, ok := apiBaseURL(bind)
		if !ok || got != want {
			t.Fatalf("apiBaseURL(%q) = %q, %v; want %q", bind, got, ok, want)
		}
	}
	for _, bind := range []string{"", "127.0.0.1:0", "garbage"} {
		if _, ok := apiBaseURL(bind); ok {
			t.Fatalf("apiBaseURL(%q) should not be dialable", bind)
		}
	}
}

func TestCLILogsFiltersCapsule(t *testing.T) {
	env := setupCLITestEnv(t)
	if err := os.MkdirAll(env.cfg.Paths.LogDir, 0o755); err != nil {
		t.Fatalf("mkdir logs: %v", err)
	}
	content := `{"ts":"2030-06-01T12:00:00Z","level":"info","msg":"capsule unlocked","component":"retrieval","capsule_id":"c1"}
{"ts":"2030-06-01T12:00:01Z","level":"info","msg":"capsule sealed","component":"lifecycle","capsule_id":"c2"}
`
	if err := os.WriteFile(filepath.Join(env.cfg.Paths.LogDir, "keepsake.log"), []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	out, err := env.run(t, "logs", "--capsule", "c1")
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if !strings.Contains(out, "capsule unlocked") || strings.Contains(out, "capsule sealed") {
		t.Fatalf("unexpected logs output: %q", out)
	}
}
