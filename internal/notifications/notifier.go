package notifications

import (
	"context"
	"log/slog"

	"keepsake/internal/logging"
	"keepsake/internal/services"
	"keepsake/internal/store"
)

// ReadyMessage is the in-app message recorded when a capsule unlocks.
const ReadyMessage = "Your time capsule is ready for viewing"

// Sink is the persistence surface the notifier needs.
type Sink interface {
	GetCapsule(ctx context.Context, id string) (*store.Capsule, error)
	CreateNotification(ctx context.Context, userID string, kind store.NotificationKind, payload store.NotificationPayload) (*store.Notification, error)
}

// Notifier records capsule-ready notifications for owners and mirrors them to
// the push service.
type Notifier struct {
	sink   Sink
	push   Service
	logger *slog.Logger
}

// NewNotifier constructs a Notifier. A nil push service disables pushes.
func NewNotifier(sink Sink, push Service, logger *slog.Logger) *Notifier {
	if push == nil {
		push = noopService{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Notifier{sink: sink, push: push, logger: logging.NewComponentLogger(logger, "notifier")}
}

// NotifyUser records one capsule_ready notification for the capsule owner.
// Every call creates a new record; callers decide when to notify.
func (n *Notifier) NotifyUser(ctx context.Context, capsuleID string) error {
	capsule, err := n.sink.GetCapsule(ctx, capsuleID)
	if err != nil {
		return services.Wrap(services.ErrStorage, "notify", "load capsule", capsuleID, err)
	}
	if capsule == nil {
		return services.NotFound("capsule", capsuleID)
	}

	note, err := n.sink.CreateNotification(ctx, capsule.OwnerID, store.KindCapsuleReady, store.NotificationPayload{
		CapsuleID: capsule.ID,
		Title:     capsule.Title,
		Message:   ReadyMessage,
	})
	if err != nil {
		return services.Wrap(services.ErrStorage, "notify", "create notification", capsuleID, err)
	}

	logger := logging.WithContext(services.WithCapsuleID(ctx, capsule.ID), n.logger)
	logger.Info("capsule ready notification recorded",
		logging.String(logging.FieldEventType, "notification_recorded"),
		logging.String("notification_id", note.ID),
		logging.String("user_id", capsule.OwnerID),
	)

	if err := n.push.NotifyCapsuleReady(ctx, capsule.Title); err != nil {
		logging.WarnWithContext(logger, "push notification failed", "notification_push_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic and network reachability"),
			logging.String(logging.FieldImpact, "owner was not pushed; in-app notification is recorded"),
		)
	}
	return nil
}

// NotifyFailure pushes an unlock failure. Nothing is recorded in-app.
func (n *Notifier) NotifyFailure(ctx context.Context, capsule *store.Capsule, stage string, cause error) {
	if capsule == nil {
		return
	}
	if err := n.push.NotifyUnlockFailed(ctx, capsule.Title, stage, cause); err != nil {
		logging.WarnWithContext(n.logger, "failure push failed", "notification_push_failed",
			logging.String(logging.FieldCapsuleID, capsule.ID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
		)
	}
}
