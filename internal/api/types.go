package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// User describes a registered user.
type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// MediaItem describes one attached upload.
type MediaItem struct {
	ID          string `json:"id"`
	Position    int    `json:"position"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	ContentType string `json:"contentType,omitempty"`
	SizeBytes   int64  `json:"sizeBytes"`
	Checksum    string `json:"checksum,omitempty"`
	UploadedAt  string `json:"uploadedAt,omitempty"`
}

// MediaSummary counts a capsule's media by category.
type MediaSummary struct {
	Images     int   `json:"images"`
	Videos     int   `json:"videos"`
	Other      int   `json:"other"`
	TotalBytes int64 `json:"totalBytes"`
}

// Capsule describes a capsule in a transport-friendly format. Media items are
// only populated by detail views.
type Capsule struct {
	ID          string       `json:"id"`
	OwnerID     string       `json:"ownerId"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	UnlockAt    string       `json:"unlockAt"`
	State       string       `json:"state"`
	LastError   string       `json:"lastError,omitempty"`
	FailedStage string       `json:"failedStage,omitempty"`
	Summary     MediaSummary `json:"summary"`
	Media       []MediaItem  `json:"media,omitempty"`
	Unlocked    bool         `json:"unlocked"`
	CreatedAt   string       `json:"createdAt,omitempty"`
	UpdatedAt   string       `json:"updatedAt,omitempty"`
}

// Content is the enrichment result served once a capsule unlocks.
type Content struct {
	CapsuleID     string `json:"capsuleId"`
	Title         string `json:"title,omitempty"`
	Analysis      string `json:"analysis"`
	Narrative     string `json:"narrative"`
	NarrativeHTML string `json:"narrativeHtml,omitempty"`
	Comparison    string `json:"comparison"`
	VideoRef      string `json:"videoRef"`
	CompletedAt   string `json:"completedAt,omitempty"`
}

// Notification describes a recorded user notification.
type Notification struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Kind      string `json:"kind"`
	CapsuleID string `json:"capsuleId"`
	Title     string `json:"title,omitempty"`
	Message   string `json:"message"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// StageHealth mirrors readiness reporting for enrichment providers.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// SweepReport summarizes one scheduler sweep.
type SweepReport struct {
	StartedAt  string `json:"startedAt"`
	DurationMS int64  `json:"durationMs"`
	Due        int    `json:"due"`
	Unlocked   int    `json:"unlocked"`
	Skipped    int    `json:"skipped"`
	Failed     int    `json:"failed"`
	Recovered  int    `json:"recovered"`
}

// SchedulerStatus summarizes unlock scheduler state.
type SchedulerStatus struct {
	Running      bool           `json:"running"`
	CapsuleStats map[string]int `json:"capsuleStats"`
	LastError    string         `json:"lastError,omitempty"`
	LastSweep    string         `json:"lastSweep,omitempty"`
	LastReport   *SweepReport   `json:"lastReport,omitempty"`
	StageHealth  []StageHealth  `json:"stageHealth"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool            `json:"running"`
	PID          int             `json:"pid"`
	DatabasePath string          `json:"databasePath"`
	BlobBackend  string          `json:"blobBackend"`
	LockFilePath string          `json:"lockFilePath"`
	Scheduler    SchedulerStatus `json:"scheduler"`
}

// CreateUserRequest is the body of POST /api/users.
type CreateUserRequest struct {
	Name string `json:"name"`
}

// CreateCapsuleRequest is the body of POST /api/capsules. UnlockAt must be RFC3339.
type CreateCapsuleRequest struct {
	OwnerID     string `json:"ownerId"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	UnlockAt    string `json:"unlockAt"`
}

// InviteRequest is the body of POST /api/capsules/{id}/collaborators.
type InviteRequest struct {
	UserIDs []string `json:"userIds"`
}

// CapsuleListResponse wraps a collection of capsules.
type CapsuleListResponse struct {
	Capsules []Capsule `json:"capsules"`
}

// UserListResponse wraps a collection of users.
type UserListResponse struct {
	Users []User `json:"users"`
}

// NotificationListResponse wraps a collection of notifications.
type NotificationListResponse struct {
	Notifications []Notification `json:"notifications"`
}

// ErrorResponse is the body returned for failed requests.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Stage string `json:"stage,omitempty"`
}
