package logs

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"keepsake/internal/logging"
)

// Entry is one decoded log record.
type Entry struct {
	Time      time.Time
	Level     string
	Message   string
	Component string
	CapsuleID string
	Stage     string
	EventType string
	Attrs     map[string]any
	Raw       string
}

// ParseEntry decodes a JSON log line. Lines that are not JSON objects are
// returned with only Raw and Message set.
func ParseEntry(line string) Entry {
	entry := Entry{Raw: line}
	var fields map[string]any
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		entry.Message = line
		return entry
	}
	take := func(key string) string {
		value, ok := fields[key].(string)
		if ok {
			delete(fields, key)
		}
		return value
	}
	if ts := take("ts"); ts != "" {
		entry.Time, _ = time.Parse(time.RFC3339Nano, ts)
	}
	entry.Level = take("level")
	entry.Message = take("msg")
	entry.Component = take(logging.FieldComponent)
	entry.CapsuleID = take(logging.FieldCapsuleID)
	entry.Stage = take(logging.FieldStage)
	entry.EventType = take(logging.FieldEventType)
	delete(fields, "source")
	if len(fields) > 0 {
		entry.Attrs = fields
	}
	return entry
}

// Format renders the entry on one line in the console layout.
func (e Entry) Format() string {
	if e.Time.IsZero() && e.Level == "" {
		return e.Raw
	}
	var b strings.Builder
	b.WriteString(e.Time.Local().Format("2006-01-02 15:04:05"))
	b.WriteByte(' ')
	b.WriteString(strings.ToUpper(valueOr(e.Level, "info")))
	if e.Component != "" {
		fmt.Fprintf(&b, " [%s]", e.Component)
	}
	if e.CapsuleID != "" {
		fmt.Fprintf(&b, " capsule=%s", e.CapsuleID)
	}
	if e.Stage != "" {
		fmt.Fprintf(&b, " stage=%s", e.Stage)
	}
	b.WriteByte(' ')
	b.WriteString(e.Message)
	keys := make([]string, 0, len(e.Attrs))
	for key := range e.Attrs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, " %s=%v", key, e.Attrs[key])
	}
	return b.String()
}

// Filter selects entries. Zero values match everything.
type Filter struct {
	CapsuleID string
	Component string
	MinLevel  string
}

// Match reports whether the entry passes the filter.
func (f Filter) Match(e Entry) bool {
	if f.CapsuleID != "" && e.CapsuleID != f.CapsuleID {
		return false
	}
	if f.Component != "" && !strings.EqualFold(e.Component, f.Component) {
		return false
	}
	if f.MinLevel == "" {
		return true
	}
	var floor, level slog.Level
	if err := floor.UnmarshalText([]byte(f.MinLevel)); err != nil {
		return true
	}
	if err := level.UnmarshalText([]byte(valueOr(e.Level, "info"))); err != nil {
		return true
	}
	return level >= floor
}

func valueOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
