package store

import (
	"strings"
	"time"
)

// State represents the lifecycle state of a capsule.
type State string

const (
	StateDraft     State = "draft"
	StateLocked    State = "locked"
	StateUnlocking State = "unlocking"
	StateUnlocked  State = "unlocked"
	StateFailed    State = "failed"
)

var allStates = []State{StateDraft, StateLocked, StateUnlocking, StateUnlocked, StateFailed}

// AllStates returns every lifecycle state in transition order.
func AllStates() []State {
	out := make([]State, len(allStates))
	copy(out, allStates)
	return out
}

// ParseState converts a string into a State, if recognized.
func ParseState(value string) (State, bool) {
	normalized := State(strings.ToLower(strings.TrimSpace(value)))
	for _, state := range allStates {
		if state == normalized {
			return state, true
		}
	}
	return "", false
}

// Claimable reports whether the retrieval pipeline may claim a capsule in this state.
func (s State) Claimable() bool {
	return s == StateLocked || s == StateFailed
}

// ClaimableStates lists the states a claim may start from.
func ClaimableStates() []State {
	return []State{StateLocked, StateFailed}
}

// Category partitions media items by content type.
type Category string

const (
	CategoryImage Category = "image"
	CategoryVideo Category = "video"
	CategoryOther Category = "other"
)

// Role is a collaborator's access level.
type Role string

// RoleViewer is the only role currently granted by invitations.
const RoleViewer Role = "viewer"

// NotificationKind identifies what a notification announces.
type NotificationKind string

// KindCapsuleReady is created once per successful unlock.
const KindCapsuleReady NotificationKind = "capsule_ready"

// User is a minimal registry entry used to resolve owners and collaborators.
type User struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// MediaItem is a single persisted upload.
type MediaItem struct {
	ID          string
	Position    int
	Name        string
	Key         string
	Size        int64
	Category    Category
	ContentType string
	Checksum    string
	UploadedAt  time.Time
}

// MediaBundle is the ordered, append-only media collection owned by a capsule.
type MediaBundle struct {
	Items     []MediaItem
	TotalSize int64
}

// NewMediaBundle builds a bundle and derives its total from the items.
func NewMediaBundle(items []MediaItem) *MediaBundle {
	bundle := &MediaBundle{Items: items}
	bundle.Recompute()
	return bundle
}

// Recompute sets TotalSize to the sum of item sizes.
func (b *MediaBundle) Recompute() {
	var total int64
	for _, item := range b.Items {
		total += item.Size
	}
	b.TotalSize = total
}

// Images returns the image items in attach order.
func (b *MediaBundle) Images() []MediaItem { return b.byCategory(CategoryImage) }

// Videos returns the video items in attach order.
func (b *MediaBundle) Videos() []MediaItem { return b.byCategory(CategoryVideo) }

// Other returns items that are neither images nor videos.
func (b *MediaBundle) Other() []MediaItem { return b.byCategory(CategoryOther) }

func (b *MediaBundle) byCategory(category Category) []MediaItem {
	if b == nil {
		return nil
	}
	var out []MediaItem
	for _, item := range b.Items {
		if item.Category == category {
			out = append(out, item)
		}
	}
	return out
}

// EnrichmentResult is the composed output of a successful pipeline run.
type EnrichmentResult struct {
	Analysis    string
	Narrative   string
	Comparison  string
	VideoRef    string
	CompletedAt time.Time
}

// Capsule is the unit of time-gated content.
type Capsule struct {
	ID          string
	OwnerID     string
	Title       string
	Description string
	UnlockAt    time.Time
	State       State
	Media       *MediaBundle
	Result      *EnrichmentResult
	LastError   string
	FailedStage string
	ClaimedAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsDue reports whether the unlock gate is open at now.
func (c *Capsule) IsDue(now time.Time) bool {
	return !now.Before(c.UnlockAt)
}

// Collaboration grants a user access to a capsule.
type Collaboration struct {
	CapsuleID string
	UserID    string
	Role      Role
	CreatedAt time.Time
}

// NotificationPayload is the structured body of a notification record.
type NotificationPayload struct {
	CapsuleID string `json:"capsule_id"`
	Title     string `json:"title,omitempty"`
	Message   string `json:"message"`
}

// Notification is a delivery-pending message for a user.
type Notification struct {
	ID        string
	UserID    string
	Kind      NotificationKind
	Payload   NotificationPayload
	Read      bool
	CreatedAt time.Time
}

// CapsuleUpdate lists the fields a conditional update writes. State is always
// written; the remaining fields are cleared unless set.
type CapsuleUpdate struct {
	State       State
	LastError   string
	FailedStage string
	Claim       bool
}

// CapsuleFilter narrows ListCapsules.
type CapsuleFilter struct {
	OwnerID string
	States  []State
	Limit   int
}
