package notifications_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"keepsake/internal/notifications"
	"keepsake/internal/services"
	"keepsake/internal/store"
	"keepsake/internal/testsupport"
)

func seedCapsule(t *testing.T, s *store.Store, owner string) *store.Capsule {
	t.Helper()
	capsule := &store.Capsule{
		OwnerID:  owner,
		Title:    "first apartment",
		UnlockAt: time.Now().Add(time.Hour),
	}
	if err := s.CreateCapsule(context.Background(), capsule); err != nil {
		t.Fatalf("CreateCapsule: %v", err)
	}
	return capsule
}

func TestNotifyUserRecordsOneNotificationAndPushes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	s := testsupport.MustOpenStore(t, cfg)
	owner := testsupport.MustCreateUser(t, s, "ada")
	capsule := seedCapsule(t, s, owner.ID)
	push := testsupport.NewRecordingService()

	n := notifications.NewNotifier(s, push, nil)
	if err := n.NotifyUser(context.Background(), capsule.ID); err != nil {
		t.Fatalf("NotifyUser: %v", err)
	}

	notes, err := s.ListNotifications(context.Background(), owner.ID, false)
	if err != nil {
		t.Fatalf("ListNotifications: %v", err)
	}
	if len(notes) != 1 {
		t.Fatalf("expected one notification, got %d", len(notes))
	}
	if notes[0].Kind != store.KindCapsuleReady {
		t.Fatalf("unexpected kind %q", notes[0].Kind)
	}
	if notes[0].Payload.CapsuleID != capsule.ID || notes[0].Payload.Message != notifications.ReadyMessage {
		t.Fatalf("unexpected payload %+v", notes[0].Payload)
	}
	if push.Count("ready") != 1 {
		t.Fatalf("expected one push, got %+v", push.Calls())
	}
}

func TestNotifyUserDoesNotDeduplicate(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	s := testsupport.MustOpenStore(t, cfg)
	owner := testsupport.MustCreateUser(t, s, "ada")
	capsule := seedCapsule(t, s, owner.ID)

	n := notifications.NewNotifier(s, nil, nil)
	for i := 0; i < 2; i++ {
		if err := n.NotifyUser(context.Background(), capsule.ID); err != nil {
			t.Fatalf("NotifyUser #%d: %v", i, err)
		}
	}
	count, err := s.CountNotifications(context.Background(), capsule.ID, store.KindCapsuleReady)
	if err != nil {
		t.Fatalf("CountNotifications: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected two notifications, got %d", count)
	}
}

func TestNotifyUserMissingCapsule(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	s := testsupport.MustOpenStore(t, cfg)

	err := notifications.NewNotifier(s, nil, nil).NotifyUser(context.Background(), "missing")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestNotifyUserIgnoresPushFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	s := testsupport.MustOpenStore(t, cfg)
	owner := testsupport.MustCreateUser(t, s, "ada")
	capsule := seedCapsule(t, s, owner.ID)
	push := testsupport.NewRecordingService()
	push.FailWith(errors.New("ntfy down"))

	if err := notifications.NewNotifier(s, push, nil).NotifyUser(context.Background(), capsule.ID); err != nil {
		t.Fatalf("push failure should not surface, got %v", err)
	}
	count, err := s.CountNotifications(context.Background(), capsule.ID, store.KindCapsuleReady)
	if err != nil {
		t.Fatalf("CountNotifications: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected notification to be recorded, got %d", count)
	}
}

func TestNotifyFailurePushes(t *testing.T) {
	push := testsupport.NewRecordingService()
	n := notifications.NewNotifier(nil, push, nil)
	n.NotifyFailure(context.Background(), &store.Capsule{ID: "c1", Title: "trip"}, "render", errors.New("boom"))

	calls := push.Calls()
	if len(calls) != 1 || calls[0].Kind != "failed" || calls[0].Stage != "render" {
		t.Fatalf("unexpected calls %+v", calls)
	}
}
