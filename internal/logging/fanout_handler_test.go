package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
)

func TestNewTeeHandlerCollapses(t *testing.T) {
	if _, ok := newTeeHandler(nil, nil).(discardHandler); !ok {
		t.Fatal("expected discardHandler when every handler is nil")
	}

	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)
	if h := newTeeHandler(nil, inner, nil); h != inner {
		t.Fatal("expected single non-nil handler to be returned unwrapped")
	}
}

func TestTeeHandlerRespectsEachLevel(t *testing.T) {
	var consoleBuf, fileBuf bytes.Buffer
	console := slog.NewJSONHandler(&consoleBuf, &slog.HandlerOptions{Level: slog.LevelWarn})
	file := slog.NewJSONHandler(&fileBuf, &slog.HandlerOptions{Level: slog.LevelDebug})

	h := newTeeHandler(console, file)
	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("expected fanout enabled when any handler accepts debug")
	}

	logger := slog.New(h)
	logger.Debug("sweep tick")
	if consoleBuf.Len() != 0 {
		t.Fatalf("console handler should not receive debug, got %q", consoleBuf.String())
	}
	if !bytes.Contains(fileBuf.Bytes(), []byte("sweep tick")) {
		t.Fatalf("file handler should receive debug, got %q", fileBuf.String())
	}

	logger.Warn("render slow")
	if !bytes.Contains(consoleBuf.Bytes(), []byte("render slow")) {
		t.Fatal("console handler should receive warn")
	}
}

func TestTeeHandlerPropagatesAttrsAndGroups(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	h := newTeeHandler(slog.NewJSONHandler(&buf1, nil), slog.NewJSONHandler(&buf2, nil))

	logger := slog.New(h).With(slog.String(FieldCapsuleID, "cap-1")).WithGroup("stage")
	logger.Info("done", slog.String("name", "analyze"))

	for i, buf := range []*bytes.Buffer{&buf1, &buf2} {
		if !bytes.Contains(buf.Bytes(), []byte(`"capsule_id":"cap-1"`)) {
			t.Fatalf("handler %d missing capsule attr: %q", i, buf.String())
		}
		if !bytes.Contains(buf.Bytes(), []byte(`"stage":{"name":"analyze"}`)) {
			t.Fatalf("handler %d missing group: %q", i, buf.String())
		}
	}
}

func TestTeeLogger(t *testing.T) {
	var baseBuf, teeBuf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&baseBuf, nil))

	TeeLogger(base, slog.NewJSONHandler(&teeBuf, nil)).Info("teed message")
	if baseBuf.Len() == 0 || teeBuf.Len() == 0 {
		t.Fatalf("expected output in both buffers, base=%q tee=%q", baseBuf.String(), teeBuf.String())
	}

	teeBuf.Reset()
	TeeLogger(nil, nil, slog.NewJSONHandler(&teeBuf, nil)).Info("no base")
	if teeBuf.Len() == 0 {
		t.Fatal("expected output in tee buffer without base")
	}
}
