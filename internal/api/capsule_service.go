package api

import (
	"context"
	"strings"
	"time"

	"keepsake/internal/lifecycle"
	"keepsake/internal/services"
	"keepsake/internal/store"
)

// Registry abstracts the user, listing, and notification reads the API needs.
type Registry interface {
	CreateUser(ctx context.Context, name string) (*store.User, error)
	ListUsers(ctx context.Context) ([]*store.User, error)
	GetUser(ctx context.Context, id string) (*store.User, error)
	ListCapsules(ctx context.Context, filter store.CapsuleFilter) ([]*store.Capsule, error)
	ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]*store.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) (bool, error)
}

// Lifecycle is the capsule authoring surface.
type Lifecycle interface {
	CreateCapsule(ctx context.Context, ownerID, title string, unlockAt time.Time, description string) (*store.Capsule, error)
	Capsule(ctx context.Context, id string) (*store.Capsule, error)
	AttachMedia(ctx context.Context, capsuleID string, uploads []lifecycle.Upload) (*store.Capsule, error)
	InviteCollaborators(ctx context.Context, capsuleID string, userIDs []string) error
}

// Retriever serves unlocked content.
type Retriever interface {
	RetrieveContent(ctx context.Context, capsuleID string) (*store.EnrichmentResult, error)
	Retry(ctx context.Context, capsuleID string) (*store.EnrichmentResult, error)
}

// UserNotifier records capsule-ready notifications.
type UserNotifier interface {
	NotifyUser(ctx context.Context, capsuleID string) error
}

// CapsuleService exposes capsule operations returning API DTOs. The HTTP
// server and the CLI share it.
type CapsuleService struct {
	registry  Registry
	lifecycle Lifecycle
	retriever Retriever
	notifier  UserNotifier
}

// NewCapsuleService constructs a CapsuleService.
func NewCapsuleService(registry Registry, lc Lifecycle, retriever Retriever, notifier UserNotifier) *CapsuleService {
	return &CapsuleService{
		registry:  registry,
		lifecycle: lc,
		retriever: retriever,
		notifier:  notifier,
	}
}

// CreateUser registers a user.
func (s *CapsuleService) CreateUser(ctx context.Context, name string) (User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return User{}, services.Validation("create user", "name is required")
	}
	user, err := s.registry.CreateUser(ctx, name)
	if err != nil {
		return User{}, services.Wrap(services.ErrStorage, "", "create user", "insert user", err)
	}
	return FromUser(user), nil
}

// ListUsers returns every registered user.
func (s *CapsuleService) ListUsers(ctx context.Context) ([]User, error) {
	users, err := s.registry.ListUsers(ctx)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "", "list users", "query users", err)
	}
	return FromUsers(users), nil
}

// CreateCapsule parses the request and creates a draft capsule.
func (s *CapsuleService) CreateCapsule(ctx context.Context, req CreateCapsuleRequest) (Capsule, error) {
	unlockAt, err := ParseUnlockAt(req.UnlockAt)
	if err != nil {
		return Capsule{}, err
	}
	capsule, err := s.lifecycle.CreateCapsule(ctx, strings.TrimSpace(req.OwnerID), req.Title, unlockAt, req.Description)
	if err != nil {
		return Capsule{}, err
	}
	return FromCapsule(capsule, true), nil
}

// ListCapsules returns capsules, optionally narrowed by owner and state names.
func (s *CapsuleService) ListCapsules(ctx context.Context, ownerID string, states []string) ([]Capsule, error) {
	filter := store.CapsuleFilter{OwnerID: strings.TrimSpace(ownerID)}
	for _, raw := range states {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		state, ok := store.ParseState(raw)
		if !ok {
			return nil, services.Validation("list capsules", "unknown state %q", raw)
		}
		filter.States = append(filter.States, state)
	}
	capsules, err := s.registry.ListCapsules(ctx, filter)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "", "list capsules", "query capsules", err)
	}
	return FromCapsules(capsules), nil
}

// Describe returns one capsule with its media items.
func (s *CapsuleService) Describe(ctx context.Context, id string) (Capsule, error) {
	capsule, err := s.lifecycle.Capsule(ctx, id)
	if err != nil {
		return Capsule{}, err
	}
	return FromCapsule(capsule, true), nil
}

// AttachMedia stores a batch of uploads against a capsule.
func (s *CapsuleService) AttachMedia(ctx context.Context, id string, uploads []lifecycle.Upload) (Capsule, error) {
	capsule, err := s.lifecycle.AttachMedia(ctx, id, uploads)
	if err != nil {
		return Capsule{}, err
	}
	return FromCapsule(capsule, true), nil
}

// Invite grants viewer access to the listed users.
func (s *CapsuleService) Invite(ctx context.Context, id string, userIDs []string) error {
	return s.lifecycle.InviteCollaborators(ctx, id, userIDs)
}

// Content retrieves the enrichment result, running the pipeline if needed.
func (s *CapsuleService) Content(ctx context.Context, id string) (Content, error) {
	result, err := s.retriever.RetrieveContent(ctx, id)
	if err != nil {
		return Content{}, err
	}
	return s.content(ctx, id, result), nil
}

// Retry reruns the pipeline for a failed capsule.
func (s *CapsuleService) Retry(ctx context.Context, id string) (Content, error) {
	result, err := s.retriever.Retry(ctx, id)
	if err != nil {
		return Content{}, err
	}
	return s.content(ctx, id, result), nil
}

func (s *CapsuleService) content(ctx context.Context, id string, result *store.EnrichmentResult) Content {
	var title string
	if capsule, err := s.lifecycle.Capsule(ctx, id); err == nil {
		title = capsule.Title
	}
	return FromResult(id, title, result)
}

// Notify records another capsule-ready notification for an unlocked capsule.
func (s *CapsuleService) Notify(ctx context.Context, id string) error {
	capsule, err := s.lifecycle.Capsule(ctx, id)
	if err != nil {
		return err
	}
	if capsule.State != store.StateUnlocked {
		return services.Validation("notify", "capsule is %s, not unlocked", capsule.State)
	}
	if s.notifier == nil {
		return services.Wrap(services.ErrConfiguration, "", "notify", "notifier unavailable", nil)
	}
	return s.notifier.NotifyUser(ctx, id)
}

// Notifications lists a user's notifications, newest first.
func (s *CapsuleService) Notifications(ctx context.Context, userID string, unreadOnly bool) ([]Notification, error) {
	user, err := s.registry.GetUser(ctx, userID)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "", "list notifications", "load user", err)
	}
	if user == nil {
		return nil, services.NotFound("user", userID)
	}
	items, err := s.registry.ListNotifications(ctx, userID, unreadOnly)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "", "list notifications", "query notifications", err)
	}
	return FromNotifications(items), nil
}

// MarkRead flags a notification as read.
func (s *CapsuleService) MarkRead(ctx context.Context, id string) error {
	ok, err := s.registry.MarkNotificationRead(ctx, id)
	if err != nil {
		return services.Wrap(services.ErrStorage, "", "mark read", "update notification", err)
	}
	if !ok {
		return services.NotFound("notification", id)
	}
	return nil
}

// ParseUnlockAt accepts RFC3339 timestamps, with or without fractional seconds.
func ParseUnlockAt(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, services.Validation("create capsule", "unlock time is required")
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, services.Validation("create capsule", "unlock time %q is not RFC3339", value)
	}
	return t.UTC(), nil
}
