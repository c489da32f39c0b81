package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"keepsake/internal/logs"
)

const sampleLog = `{"ts":"2030-06-01T12:00:00Z","level":"info","msg":"sweep completed","component":"scheduler","due":1}
{"ts":"2030-06-01T12:00:01Z","level":"debug","msg":"stage started","component":"retrieval","capsule_id":"c1","stage":"analyze"}
{"ts":"2030-06-01T12:00:02Z","level":"warn","msg":"capsule unlock failed","component":"scheduler","capsule_id":"c2","stage":"render"}
{"ts":"2030-06-01T12:00:03Z","level":"info","msg":"capsule unlocked","component":"retrieval","capsule_id":"c1"}
`

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keepsake.log")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func TestTailLastEntries(t *testing.T) {
	path := writeLog(t, sampleLog)

	result, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: -1, Limit: 2})
	if err != nil {
		t.Fatalf("tail returned error: %v", err)
	}
	if len(result.Entries) != 2 || result.Entries[0].Message != "capsule unlock failed" || result.Entries[1].Message != "capsule unlocked" {
		t.Fatalf("unexpected entries: %#v", result.Entries)
	}
	if result.Offset != int64(len(sampleLog)) {
		t.Fatalf("expected offset at end of file, got %d", result.Offset)
	}
}

func TestTailFiltersByCapsuleAndLevel(t *testing.T) {
	path := writeLog(t, sampleLog)
	ctx := context.Background()

	result, err := logs.Tail(ctx, path, logs.TailOptions{Offset: -1, Limit: 10, Filter: logs.Filter{CapsuleID: "c1"}})
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(result.Entries) != 2 {
		t.Fatalf("expected two c1 entries, got %d", len(result.Entries))
	}

	result, err = logs.Tail(ctx, path, logs.TailOptions{Offset: 0, Filter: logs.Filter{MinLevel: "info"}})
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(result.Entries) != 3 {
		t.Fatalf("expected debug entry dropped, got %d entries", len(result.Entries))
	}

	result, err = logs.Tail(ctx, path, logs.TailOptions{Offset: 0, Filter: logs.Filter{Component: "Scheduler", MinLevel: "warn"}})
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(result.Entries) != 1 || result.Entries[0].CapsuleID != "c2" {
		t.Fatalf("unexpected scheduler warnings: %#v", result.Entries)
	}
}

func TestTailMissingFile(t *testing.T) {
	result, err := logs.Tail(context.Background(), filepath.Join(t.TempDir(), "absent.log"), logs.TailOptions{Offset: -1, Limit: 5})
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if len(result.Entries) != 0 || result.Offset != 0 {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestTailLeavesPartialLine(t *testing.T) {
	path := writeLog(t, "{\"level\":\"info\",\"msg\":\"done\"}\n{\"level\":\"info\"")

	result, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: 0})
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(result.Entries) != 1 {
		t.Fatalf("expected only the complete line, got %d", len(result.Entries))
	}
	if result.Offset != int64(len("{\"level\":\"info\",\"msg\":\"done\"}\n")) {
		t.Fatalf("offset should stop before partial line, got %d", result.Offset)
	}
}

func TestTailFollowWaits(t *testing.T) {
	path := writeLog(t, "{\"level\":\"info\",\"msg\":\"start\"}\n")
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	result, err := logs.Tail(ctx, path, logs.TailOptions{Offset: -1, Limit: 1})
	if err != nil {
		t.Fatalf("initial tail: %v", err)
	}
	if len(result.Entries) != 1 {
		t.Fatalf("expected initial entry, got %#v", result.Entries)
	}

	done := make(chan struct{})
	go func(offset int64) {
		defer close(done)
		res, err := logs.Tail(ctx, path, logs.TailOptions{Offset: offset, Follow: true, Wait: 5 * time.Second})
		if err != nil {
			t.Errorf("follow tail error: %v", err)
			return
		}
		if len(res.Entries) != 1 || res.Entries[0].Message != "later" {
			t.Errorf("unexpected follow entries: %#v", res.Entries)
		}
	}(result.Offset)

	time.Sleep(200 * time.Millisecond)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	if _, err := f.WriteString("{\"level\":\"info\",\"msg\":\"later\"}\n"); err != nil {
		t.Fatalf("append log: %v", err)
	}
	_ = f.Close()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("tail follow did not return")
	}
}

func TestEntryFormat(t *testing.T) {
	entry := logs.ParseEntry(`{"ts":"2030-06-01T12:00:00Z","level":"warn","msg":"capsule unlock failed","component":"scheduler","capsule_id":"c2","stage":"render","attempt":2}`)
	if entry.Level != "warn" || entry.Stage != "render" || entry.Time.IsZero() {
		t.Fatalf("unexpected parse: %#v", entry)
	}
	line := entry.Format()
	for _, want := range []string{"WARN", "[scheduler]", "capsule=c2", "stage=render", "capsule unlock failed", "attempt=2"} {
		if !strings.Contains(line, want) {
			t.Fatalf("formatted line %q missing %q", line, want)
		}
	}

	plain := logs.ParseEntry("not json")
	if plain.Format() != "not json" || plain.Message != "not json" {
		t.Fatalf("unexpected plain entry: %#v", plain)
	}
}
