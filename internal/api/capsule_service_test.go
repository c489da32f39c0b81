package api_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"keepsake/internal/api"
	"keepsake/internal/daemonrun"
	"keepsake/internal/lifecycle"
	"keepsake/internal/services"
	"keepsake/internal/stage"
	"keepsake/internal/testsupport"
)

type serviceFixture struct {
	clock *testsupport.Clock
	fake  *testsupport.StaticProviders
	svc   *api.CapsuleService
	owner api.User
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	f := &serviceFixture{
		clock: testsupport.NewClock(time.Now().UTC()),
		fake:  testsupport.NewStaticProviders(),
	}
	rt, err := daemonrun.Open(cfg, nil,
		daemonrun.WithProviders(f.fake.Providers()),
		daemonrun.WithPushService(testsupport.NewRecordingService()),
		daemonrun.WithClock(f.clock.Now),
	)
	if err != nil {
		t.Fatalf("daemonrun.Open: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	f.svc = rt.Service

	f.owner, err = f.svc.CreateUser(context.Background(), "  owner  ")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return f
}

func (f *serviceFixture) lockedCapsule(t *testing.T) api.Capsule {
	t.Helper()
	ctx := context.Background()
	capsule, err := f.svc.CreateCapsule(ctx, api.CreateCapsuleRequest{
		OwnerID:  f.owner.ID,
		Title:    "Reunion",
		UnlockAt: f.clock.Now().Add(time.Hour).Format(time.RFC3339Nano),
	})
	if err != nil {
		t.Fatalf("CreateCapsule: %v", err)
	}
	capsule, err = f.svc.AttachMedia(ctx, capsule.ID, []lifecycle.Upload{
		{Name: "group.jpg", ContentType: "image/jpeg", Data: testsupport.Payload(512)},
	})
	if err != nil {
		t.Fatalf("AttachMedia: %v", err)
	}
	return capsule
}

func TestCapsuleServiceUsers(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	if f.owner.Name != "owner" {
		t.Fatalf("expected trimmed name, got %q", f.owner.Name)
	}
	if _, err := f.svc.CreateUser(ctx, " "); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for blank name, got %v", err)
	}
	users, err := f.svc.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 1 || users[0].ID != f.owner.ID {
		t.Fatalf("unexpected users: %+v", users)
	}
}

func TestCapsuleServiceListFilters(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	locked := f.lockedCapsule(t)
	if _, err := f.svc.CreateCapsule(ctx, api.CreateCapsuleRequest{
		OwnerID:  f.owner.ID,
		Title:    "Draft",
		UnlockAt: f.clock.Now().Add(2 * time.Hour).Format(time.RFC3339),
	}); err != nil {
		t.Fatalf("CreateCapsule: %v", err)
	}

	all, err := f.svc.ListCapsules(ctx, f.owner.ID, nil)
	if err != nil {
		t.Fatalf("ListCapsules: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected two capsules, got %d", len(all))
	}
	onlyLocked, err := f.svc.ListCapsules(ctx, "", []string{"LOCKED"})
	if err != nil {
		t.Fatalf("ListCapsules locked: %v", err)
	}
	if len(onlyLocked) != 1 || onlyLocked[0].ID != locked.ID {
		t.Fatalf("unexpected locked list: %+v", onlyLocked)
	}
	if _, err := f.svc.ListCapsules(ctx, "", []string{"sealed"}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for unknown state, got %v", err)
	}
}

func TestCapsuleServiceCreateRejectsBadUnlockTime(t *testing.T) {
	f := newServiceFixture(t)
	for _, value := range []string{"", "next week", "2030-13-01T00:00:00Z"} {
		_, err := f.svc.CreateCapsule(context.Background(), api.CreateCapsuleRequest{
			OwnerID:  f.owner.ID,
			Title:    "x",
			UnlockAt: value,
		})
		if !errors.Is(err, services.ErrValidation) {
			t.Fatalf("unlock %q: expected validation error, got %v", value, err)
		}
	}
}

func TestCapsuleServiceContentAndNotify(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	capsule := f.lockedCapsule(t)

	if err := f.svc.Notify(ctx, capsule.ID); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected notify on locked capsule to be rejected, got %v", err)
	}
	if _, err := f.svc.Content(ctx, capsule.ID); !errors.Is(err, services.ErrStillLocked) {
		t.Fatalf("expected still locked, got %v", err)
	}

	f.clock.Advance(2 * time.Hour)
	content, err := f.svc.Content(ctx, capsule.ID)
	if err != nil {
		t.Fatalf("Content: %v", err)
	}
	if content.Title != "Reunion" || content.VideoRef != "V" {
		t.Fatalf("unexpected content: %+v", content)
	}
	if content.CompletedAt == "" {
		t.Fatal("expected completion time")
	}

	if err := f.svc.Notify(ctx, capsule.ID); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	items, err := f.svc.Notifications(ctx, f.owner.ID, true)
	if err != nil {
		t.Fatalf("Notifications: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected unlock plus manual notification, got %d", len(items))
	}
	if err := f.svc.MarkRead(ctx, items[0].ID); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if err := f.svc.MarkRead(ctx, "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for unknown notification, got %v", err)
	}
	if _, err := f.svc.Notifications(ctx, "ghost", false); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for unknown user, got %v", err)
	}
}

func TestCapsuleServiceRetry(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	capsule := f.lockedCapsule(t)
	f.clock.Advance(2 * time.Hour)

	f.fake.FailStage(stage.Render, errors.New("render backend down"))
	_, err := f.svc.Content(ctx, capsule.ID)
	if !errors.Is(err, services.ErrEnrichment) {
		t.Fatalf("expected enrichment error, got %v", err)
	}
	described, err := f.svc.Describe(ctx, capsule.ID)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if described.State != "failed" || described.FailedStage != stage.Render {
		t.Fatalf("expected failed at render, got %s/%s", described.State, described.FailedStage)
	}

	f.fake.ClearFailures()
	content, err := f.svc.Retry(ctx, capsule.ID)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if content.Analysis != "A" {
		t.Fatalf("unexpected retry content: %+v", content)
	}
	if _, err := f.svc.Retry(ctx, capsule.ID); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected retry of unlocked capsule to be rejected, got %v", err)
	}
}
