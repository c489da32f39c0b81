package api

import (
	"bytes"
	"slices"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"keepsake/internal/stage"
	"keepsake/internal/store"
	"keepsake/internal/workflow"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// FromUser converts a user record to its API representation.
func FromUser(user *store.User) User {
	if user == nil {
		return User{}
	}
	return User{ID: user.ID, Name: user.Name, CreatedAt: FormatTime(user.CreatedAt)}
}

// FromUsers converts a slice of user records.
func FromUsers(users []*store.User) []User {
	out := make([]User, 0, len(users))
	for _, user := range users {
		out = append(out, FromUser(user))
	}
	return out
}

// FromCapsule converts a capsule record to its API representation. Media items
// are included only when withMedia is set; the summary is always filled.
func FromCapsule(capsule *store.Capsule, withMedia bool) Capsule {
	if capsule == nil {
		return Capsule{}
	}
	dto := Capsule{
		ID:          capsule.ID,
		OwnerID:     capsule.OwnerID,
		Title:       capsule.Title,
		Description: capsule.Description,
		UnlockAt:    FormatTime(capsule.UnlockAt),
		State:       string(capsule.State),
		LastError:   capsule.LastError,
		FailedStage: capsule.FailedStage,
		Unlocked:    capsule.State == store.StateUnlocked,
		CreatedAt:   FormatTime(capsule.CreatedAt),
		UpdatedAt:   FormatTime(capsule.UpdatedAt),
	}
	if bundle := capsule.Media; bundle != nil {
		dto.Summary = MediaSummary{
			Images:     len(bundle.Images()),
			Videos:     len(bundle.Videos()),
			Other:      len(bundle.Other()),
			TotalBytes: bundle.TotalSize,
		}
		if withMedia {
			dto.Media = make([]MediaItem, 0, len(bundle.Items))
			for _, item := range bundle.Items {
				dto.Media = append(dto.Media, FromMediaItem(item))
			}
		}
	}
	return dto
}

// FromCapsules converts a slice of capsule records without their media items.
func FromCapsules(capsules []*store.Capsule) []Capsule {
	out := make([]Capsule, 0, len(capsules))
	for _, capsule := range capsules {
		out = append(out, FromCapsule(capsule, false))
	}
	return out
}

// FromMediaItem converts a media record.
func FromMediaItem(item store.MediaItem) MediaItem {
	return MediaItem{
		ID:          item.ID,
		Position:    item.Position,
		Name:        item.Name,
		Category:    string(item.Category),
		ContentType: item.ContentType,
		SizeBytes:   item.Size,
		Checksum:    item.Checksum,
		UploadedAt:  FormatTime(item.UploadedAt),
	}
}

// FromResult converts an enrichment result. The narrative is additionally
// rendered from Markdown to HTML; rendering failures leave NarrativeHTML empty.
func FromResult(capsuleID, title string, result *store.EnrichmentResult) Content {
	if result == nil {
		return Content{CapsuleID: capsuleID, Title: title}
	}
	return Content{
		CapsuleID:     capsuleID,
		Title:         title,
		Analysis:      result.Analysis,
		Narrative:     result.Narrative,
		NarrativeHTML: RenderMarkdown(result.Narrative),
		Comparison:    result.Comparison,
		VideoRef:      result.VideoRef,
		CompletedAt:   FormatTime(result.CompletedAt),
	}
}

// RenderMarkdown converts Markdown text to HTML. Raw HTML in the source is omitted.
func RenderMarkdown(source string) string {
	if strings.TrimSpace(source) == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(source), &buf); err != nil {
		return ""
	}
	return buf.String()
}

// FromNotification converts a notification record.
func FromNotification(n *store.Notification) Notification {
	if n == nil {
		return Notification{}
	}
	return Notification{
		ID:        n.ID,
		UserID:    n.UserID,
		Kind:      string(n.Kind),
		CapsuleID: n.Payload.CapsuleID,
		Title:     n.Payload.Title,
		Message:   n.Payload.Message,
		Read:      n.Read,
		CreatedAt: FormatTime(n.CreatedAt),
	}
}

// FromNotifications converts a slice of notification records.
func FromNotifications(items []*store.Notification) []Notification {
	out := make([]Notification, 0, len(items))
	for _, item := range items {
		out = append(out, FromNotification(item))
	}
	return out
}

// FromSweepReport converts a scheduler sweep report.
func FromSweepReport(report workflow.SweepReport) SweepReport {
	return SweepReport{
		StartedAt:  FormatTime(report.StartedAt),
		DurationMS: report.Duration.Milliseconds(),
		Due:        report.Due,
		Unlocked:   report.Unlocked,
		Skipped:    report.Skipped,
		Failed:     report.Failed,
		Recovered:  report.Recovered,
	}
}

// FromStatusSummary converts a scheduler status summary to API payload.
func FromStatusSummary(summary workflow.StatusSummary) SchedulerStatus {
	status := SchedulerStatus{
		Running:      summary.Running,
		CapsuleStats: MergeCapsuleStats(summary.CapsuleStats),
		LastError:    summary.LastError,
		LastSweep:    FormatTime(summary.LastSweep),
		StageHealth:  StageHealthSlice(summary.ProviderHealth),
	}
	if summary.LastReport != nil {
		report := FromSweepReport(*summary.LastReport)
		status.LastReport = &report
	}
	return status
}

// MergeCapsuleStats produces a string-keyed count for every state, including
// states with no capsules.
func MergeCapsuleStats(stats map[store.State]int) map[string]int {
	out := make(map[string]int, len(store.AllStates()))
	for _, state := range store.AllStates() {
		out[string(state)] = stats[state]
	}
	return out
}

// StageHealthSlice converts provider health into a slice ordered by name.
func StageHealthSlice(health []stage.Health) []StageHealth {
	out := make([]StageHealth, 0, len(health))
	for _, h := range health {
		out = append(out, StageHealth{Name: h.Name, Ready: h.Ready, Detail: h.Detail})
	}
	slices.SortFunc(out, func(a, b StageHealth) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// FormatTime converts a time to RFC3339 or returns empty string.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
