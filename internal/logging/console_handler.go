package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

const consoleTimestampLayout = "2006-01-02 15:04:05"

// consoleHandler writes one line per record for a terminal:
//
//	2026-01-02 15:04:05 INFO  retrieval[render]: stage failed capsule=01J... error="timeout"
//
// component and stage form the prefix and capsule_id follows the message as
// capsule=. Everything else is key=value in the order it was added.
type consoleHandler struct {
	mu        *sync.Mutex
	out       io.Writer
	level     *slog.LevelVar
	addSource bool
	groups    []string
	fields    []field
}

type field struct {
	key   string
	value slog.Value
}

// lead holds the attributes promoted out of the key=value tail.
type lead struct {
	component string
	stage     string
	capsule   string
}

func newConsoleHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return &consoleHandler{mu: &sync.Mutex{}, out: w, level: lvl, addSource: addSource}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	fields := append([]field(nil), h.fields...)
	record.Attrs(func(attr slog.Attr) bool {
		fields = appendAttr(fields, h.groups, attr)
		return true
	})
	head, tail := promote(fields)

	when := record.Time
	if when.IsZero() {
		when = time.Now()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-5s ", when.Local().Format(consoleTimestampLayout), levelLabel(record.Level))
	switch {
	case head.component != "" && head.stage != "":
		b.WriteString(head.component + "[" + head.stage + "]: ")
	case head.component != "":
		b.WriteString(head.component + ": ")
	case head.stage != "":
		b.WriteString("[" + head.stage + "]: ")
	}
	msg := strings.TrimSpace(record.Message)
	if msg == "" {
		msg = "(no message)"
	}
	b.WriteString(msg)
	if head.capsule != "" {
		b.WriteString(" capsule=" + head.capsule)
	}
	for _, f := range tail {
		b.WriteString(" " + f.key + "=" + formatValue(f.value))
	}
	if h.addSource {
		if src := record.Source(); src != nil {
			fmt.Fprintf(&b, " [%s:%d]", filepath.Base(src.File), src.Line)
		}
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, b.String())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := h.derive()
	for _, attr := range attrs {
		next.fields = appendAttr(next.fields, h.groups, attr)
	}
	return next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := h.derive()
	next.groups = append(next.groups, name)
	return next
}

func (h *consoleHandler) derive() *consoleHandler {
	next := *h
	next.groups = append([]string(nil), h.groups...)
	next.fields = append([]field(nil), h.fields...)
	return &next
}

// promote pulls the first component, stage and capsule_id values out of
// fields. Later duplicates stay in the tail.
func promote(fields []field) (lead, []field) {
	var head lead
	tail := fields[:0:0]
	for _, f := range fields {
		var slot *string
		switch f.key {
		case FieldComponent:
			slot = &head.component
		case FieldStage:
			slot = &head.stage
		case FieldCapsuleID:
			slot = &head.capsule
		}
		if slot != nil && *slot == "" {
			*slot = plainValue(f.value)
			continue
		}
		if f.key != "" {
			tail = append(tail, f)
		}
	}
	return head, tail
}

// appendAttr flattens groups into dotted keys.
func appendAttr(dst []field, groups []string, attr slog.Attr) []field {
	if attr.Equal(slog.Attr{}) {
		return dst
	}
	value := attr.Value.Resolve()
	if value.Kind() == slog.KindGroup {
		if attr.Key != "" {
			groups = append(groups[:len(groups):len(groups)], attr.Key)
		}
		for _, member := range value.Group() {
			dst = appendAttr(dst, groups, member)
		}
		return dst
	}
	key := attr.Key
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + key
	}
	return append(dst, field{key: key, value: value})
}

func plainValue(v slog.Value) string {
	if v.Kind() == slog.KindString {
		return v.String()
	}
	return formatValue(v)
}

func formatValue(v slog.Value) string {
	var s string
	switch v.Kind() {
	case slog.KindBool, slog.KindInt64, slog.KindUint64, slog.KindDuration:
		return v.String()
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			s = err.Error()
		} else {
			s = fmt.Sprint(v.Any())
		}
	default:
		s = v.String()
	}
	if s == "" || strings.ContainsAny(s, " \t\r\n=\"") {
		return strconv.Quote(s)
	}
	return s
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	}
	return "DEBUG"
}
