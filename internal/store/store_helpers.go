package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// timeLayout is fixed width so that lexical comparison in SQL matches
// chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const capsuleColumns = "c.id, c.owner_id, c.title, c.description, c.unlock_at, c.state, c.last_error, c.failed_stage, c.claimed_at, c.created_at, c.updated_at"

const mediaColumns = "id, position, name, blob_key, size_bytes, category, content_type, checksum, uploaded_at"

type scanner interface {
	Scan(dest ...any) error
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(timeLayout, value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func stateArgs(states []State) []any {
	args := make([]any, 0, len(states))
	for _, state := range states {
		args = append(args, string(state))
	}
	return args
}

func scanCapsule(row scanner) (*Capsule, error) {
	var (
		capsule     Capsule
		description sql.NullString
		unlockRaw   string
		stateRaw    string
		lastError   sql.NullString
		failedStage sql.NullString
		claimedRaw  sql.NullString
		createdRaw  string
		updatedRaw  string
	)
	if err := row.Scan(
		&capsule.ID,
		&capsule.OwnerID,
		&capsule.Title,
		&description,
		&unlockRaw,
		&stateRaw,
		&lastError,
		&failedStage,
		&claimedRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	capsule.Description = description.String
	capsule.State = State(stateRaw)
	capsule.LastError = lastError.String
	capsule.FailedStage = failedStage.String

	unlockAt, err := parseTimeString(unlockRaw)
	if err != nil {
		return nil, err
	}
	capsule.UnlockAt = unlockAt
	if created, err := parseTimeString(createdRaw); err == nil {
		capsule.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		capsule.UpdatedAt = updated
	}
	if claimedRaw.Valid {
		if claimed, err := parseTimeString(claimedRaw.String); err == nil {
			capsule.ClaimedAt = &claimed
		}
	}
	return &capsule, nil
}

func scanMediaItem(row scanner) (MediaItem, error) {
	var (
		item        MediaItem
		category    string
		contentType sql.NullString
		checksum    sql.NullString
		uploadedRaw string
	)
	if err := row.Scan(
		&item.ID,
		&item.Position,
		&item.Name,
		&item.Key,
		&item.Size,
		&category,
		&contentType,
		&checksum,
		&uploadedRaw,
	); err != nil {
		return MediaItem{}, err
	}
	item.Category = Category(category)
	item.ContentType = contentType.String
	item.Checksum = checksum.String
	if uploaded, err := parseTimeString(uploadedRaw); err == nil {
		item.UploadedAt = uploaded
	}
	return item, nil
}

func scanNotification(row scanner) (*Notification, error) {
	var (
		n          Notification
		kind       string
		payload    string
		read       int
		createdRaw string
	)
	if err := row.Scan(&n.ID, &n.UserID, &kind, &payload, &read, &createdRaw); err != nil {
		return nil, err
	}
	n.Kind = NotificationKind(kind)
	n.Read = read != 0
	if err := json.Unmarshal([]byte(payload), &n.Payload); err != nil {
		return nil, err
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		n.CreatedAt = created
	}
	return &n, nil
}
