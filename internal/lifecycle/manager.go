package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"keepsake/internal/blob"
	"keepsake/internal/config"
	"keepsake/internal/logging"
	"keepsake/internal/services"
	"keepsake/internal/store"
)

// Manager coordinates capsule writes across the metadata and blob stores.
type Manager struct {
	cfg    *config.Config
	store  *store.Store
	blobs  blob.Store
	logger *slog.Logger
	now    func() time.Time
}

// Option configures optional Manager behavior.
type Option func(*Manager)

// WithClock overrides the time source used for the unlock-time check.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager constructs a lifecycle manager.
func NewManager(cfg *config.Config, st *store.Store, blobs blob.Store, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		cfg:    cfg,
		store:  st,
		blobs:  blobs,
		logger: logging.NewComponentLogger(logger, "lifecycle"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateCapsule registers a draft capsule for ownerID. The title is trimmed and
// NFC-normalized; unlockAt must lie strictly in the future.
func (m *Manager) CreateCapsule(ctx context.Context, ownerID, title string, unlockAt time.Time, description string) (*store.Capsule, error) {
	title = norm.NFC.String(strings.TrimSpace(title))
	if title == "" {
		return nil, services.Validation("create capsule", "title is required")
	}
	if unlockAt.IsZero() {
		return nil, services.Validation("create capsule", "unlock time is required")
	}
	if now := m.now(); !unlockAt.After(now) {
		return nil, services.Validation("create capsule", "unlock time %s must be after %s",
			unlockAt.UTC().Format(time.RFC3339), now.UTC().Format(time.RFC3339))
	}

	owner, err := m.store.GetUser(ctx, strings.TrimSpace(ownerID))
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "", "create capsule", "load owner", err)
	}
	if owner == nil {
		return nil, services.NotFound("user", ownerID)
	}

	capsule := &store.Capsule{
		OwnerID:     owner.ID,
		Title:       title,
		Description: norm.NFC.String(strings.TrimSpace(description)),
		UnlockAt:    unlockAt.UTC(),
	}
	if err := m.store.CreateCapsule(ctx, capsule); err != nil {
		return nil, services.Wrap(services.ErrStorage, "", "create capsule", "", err)
	}

	m.logger.Info("capsule created",
		logging.String(logging.FieldEventType, "capsule_created"),
		logging.String(logging.FieldCapsuleID, capsule.ID),
		logging.String("owner_id", owner.ID),
		logging.Time("unlock_at", capsule.UnlockAt),
	)
	return capsule, nil
}

// Capsule loads a capsule or returns a not-found error.
func (m *Manager) Capsule(ctx context.Context, id string) (*store.Capsule, error) {
	capsule, err := m.store.GetCapsule(ctx, id)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "", "load capsule", id, err)
	}
	if capsule == nil {
		return nil, services.NotFound("capsule", id)
	}
	return capsule, nil
}

// InviteCollaborators grants viewer access to each user in userIDs. Every user
// must exist; users who already collaborate, repeats within the request, and
// the owner are skipped.
func (m *Manager) InviteCollaborators(ctx context.Context, capsuleID string, userIDs []string) error {
	capsule, err := m.Capsule(ctx, capsuleID)
	if err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(userIDs))
	pending := make([]string, 0, len(userIDs))
	for _, raw := range userIDs {
		id := strings.TrimSpace(raw)
		if id == "" {
			return services.Validation("invite collaborators", "user id is required")
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		user, err := m.store.GetUser(ctx, id)
		if err != nil {
			return services.Wrap(services.ErrStorage, "", "invite collaborators", "load user", err)
		}
		if user == nil {
			return services.NotFound("user", id)
		}
		if id == capsule.OwnerID {
			continue
		}
		pending = append(pending, id)
	}

	added := 0
	for _, id := range pending {
		err := m.store.AddCollaboration(ctx, &store.Collaboration{
			CapsuleID: capsule.ID,
			UserID:    id,
			Role:      store.RoleViewer,
		})
		switch {
		case err == nil:
			added++
		case errors.Is(err, services.ErrConflict):
		default:
			return services.Wrap(services.ErrStorage, "", "invite collaborators", id, err)
		}
	}

	m.logger.Info("collaborators invited",
		logging.String(logging.FieldEventType, "collaborators_invited"),
		logging.String(logging.FieldCapsuleID, capsule.ID),
		logging.Int("requested", len(userIDs)),
		logging.Int("added", added),
	)
	return nil
}
