package retrieval_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"keepsake/internal/blob"
	"keepsake/internal/config"
	"keepsake/internal/lifecycle"
	"keepsake/internal/notifications"
	"keepsake/internal/retrieval"
	"keepsake/internal/services"
	"keepsake/internal/stage"
	"keepsake/internal/store"
	"keepsake/internal/testsupport"
)

type fixture struct {
	cfg      *config.Config
	store    *store.Store
	blobs    blob.Store
	fake     *testsupport.StaticProviders
	push     *testsupport.RecordingService
	capsules *lifecycle.Manager
	owner    *store.User
	later    time.Time
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	st := testsupport.MustOpenStore(t, cfg)
	blobs := testsupport.MustOpenBlob(t, cfg)
	return &fixture{
		cfg:      cfg,
		store:    st,
		blobs:    blobs,
		fake:     testsupport.NewStaticProviders(),
		push:     testsupport.NewRecordingService(),
		capsules: lifecycle.NewManager(cfg, st, blobs, nil),
		owner:    testsupport.MustCreateUser(t, st, "owner"),
		later:    time.Now().Add(2 * time.Hour),
	}
}

// pipeline returns a pipeline whose clock is past every fixture unlock time.
func (f *fixture) pipeline() *retrieval.Pipeline {
	return f.pipelineAt(func() time.Time { return f.later })
}

func (f *fixture) pipelineAt(now func() time.Time) *retrieval.Pipeline {
	notifier := notifications.NewNotifier(f.store, f.push, nil)
	return retrieval.NewPipeline(f.cfg, f.store, f.blobs, f.fake.Providers(), notifier, nil, retrieval.WithClock(now))
}

func (f *fixture) lockedCapsule(t *testing.T) *store.Capsule {
	t.Helper()
	ctx := context.Background()
	c, err := f.capsules.CreateCapsule(ctx, f.owner.ID, "Graduation", time.Now().Add(time.Hour), "class of 2020")
	if err != nil {
		t.Fatalf("CreateCapsule: %v", err)
	}
	c, err = f.capsules.AttachMedia(ctx, c.ID, []lifecycle.Upload{
		{Name: "cap.jpg", ContentType: "image/jpeg", Data: testsupport.Payload(1024)},
	})
	if err != nil {
		t.Fatalf("AttachMedia: %v", err)
	}
	return c
}

func (f *fixture) capsule(t *testing.T, id string) *store.Capsule {
	t.Helper()
	c, err := f.store.GetCapsule(context.Background(), id)
	if err != nil || c == nil {
		t.Fatalf("GetCapsule(%s): %v", id, err)
	}
	return c
}

func (f *fixture) readyCount(t *testing.T, id string) int {
	t.Helper()
	n, err := f.store.CountNotifications(context.Background(), id, store.KindCapsuleReady)
	if err != nil {
		t.Fatalf("CountNotifications: %v", err)
	}
	return n
}

func TestRetrieveBeforeUnlockIsStillLocked(t *testing.T) {
	f := newFixture(t)
	c := f.lockedCapsule(t)

	_, err := f.pipelineAt(time.Now).RetrieveContent(context.Background(), c.ID)
	if !errors.Is(err, services.ErrStillLocked) {
		t.Fatalf("expected still locked, got %v", err)
	}
	if got := f.capsule(t, c.ID); got.State != store.StateLocked {
		t.Fatalf("gate must not change state, got %s", got.State)
	}
	if f.fake.Calls(stage.Analyze) != 0 {
		t.Fatal("chain must not run before unlock")
	}
}

func TestRetrieveRunsChainAndUnlocks(t *testing.T) {
	f := newFixture(t)
	c := f.lockedCapsule(t)
	p := f.pipeline()
	ctx := context.Background()

	result, err := p.RetrieveContent(ctx, c.ID)
	if err != nil {
		t.Fatalf("RetrieveContent: %v", err)
	}
	if result.Analysis != "A" || result.Narrative != "B" || result.Comparison != "C" || result.VideoRef != "V" {
		t.Fatalf("unexpected result %+v", result)
	}

	if doc := f.fake.Input(stage.Analyze); !strings.Contains(doc, "Title: Graduation") || !strings.Contains(doc, "1 images") {
		t.Fatalf("analyze should receive the manifest document, got %q", doc)
	}
	if f.fake.Input(stage.Enhance) != "A" || f.fake.Input(stage.Compare) != "B" || f.fake.Input(stage.Render) != "C" {
		t.Fatal("stages must feed each other in order")
	}

	got := f.capsule(t, c.ID)
	if got.State != store.StateUnlocked {
		t.Fatalf("expected unlocked, got %s", got.State)
	}
	if got.Result == nil || got.Result.VideoRef != "V" {
		t.Fatalf("expected persisted result, got %+v", got.Result)
	}
	if !got.UnlockAt.Equal(c.UnlockAt) {
		t.Fatal("unlock time must never change")
	}
	if n := f.readyCount(t, c.ID); n != 1 {
		t.Fatalf("expected one notification, got %d", n)
	}
	if f.push.Count("ready") != 1 {
		t.Fatalf("expected one push, got %+v", f.push.Calls())
	}

	again, err := p.RetrieveContent(ctx, c.ID)
	if err != nil {
		t.Fatalf("second RetrieveContent: %v", err)
	}
	if again.VideoRef != result.VideoRef || again.Narrative != result.Narrative || !again.CompletedAt.Equal(result.CompletedAt) {
		t.Fatalf("expected stored result on repeat, got %+v", again)
	}
	if f.fake.Calls(stage.Analyze) != 1 || f.readyCount(t, c.ID) != 1 {
		t.Fatal("repeat retrieval must not rerun the chain or notify")
	}
}

func TestConcurrentRetrievalRunsChainOnce(t *testing.T) {
	f := newFixture(t)
	c := f.lockedCapsule(t)
	f.fake.SetDelay(50 * time.Millisecond)
	p := f.pipeline()

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = p.RetrieveContent(context.Background(), c.ID)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, services.ErrAlreadyUnlocking):
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if successes == 0 {
		t.Fatal("expected at least one caller to get the result")
	}
	for _, name := range stage.Chain {
		if n := f.fake.Calls(name); n != 1 {
			t.Fatalf("stage %s ran %d times", name, n)
		}
	}
	if n := f.readyCount(t, c.ID); n != 1 {
		t.Fatalf("expected exactly one notification, got %d", n)
	}
	if got := f.capsule(t, c.ID); got.State != store.StateUnlocked {
		t.Fatalf("expected unlocked, got %s", got.State)
	}
}

func TestRenderFailureIsRetryable(t *testing.T) {
	f := newFixture(t)
	c := f.lockedCapsule(t)
	p := f.pipeline()
	ctx := context.Background()
	f.fake.FailStage(stage.Render, errors.New("render job failed: out of credits"))

	_, err := p.RetrieveContent(ctx, c.ID)
	if !errors.Is(err, services.ErrEnrichment) {
		t.Fatalf("expected enrichment error, got %v", err)
	}
	if services.StageOf(err) != stage.Render {
		t.Fatalf("expected render stage, got %q", services.StageOf(err))
	}

	got := f.capsule(t, c.ID)
	if got.State != store.StateFailed || got.FailedStage != stage.Render {
		t.Fatalf("expected failed at render, got %s/%s", got.State, got.FailedStage)
	}
	if got.Result != nil {
		t.Fatal("failed run must not persist a result")
	}
	if !strings.Contains(got.LastError, "out of credits") {
		t.Fatalf("expected last error recorded, got %q", got.LastError)
	}
	if f.readyCount(t, c.ID) != 0 {
		t.Fatal("failed run must not notify")
	}
	if f.push.Count("failed") != 1 {
		t.Fatalf("expected failure push, got %+v", f.push.Calls())
	}

	f.fake.ClearFailures()
	result, err := p.Retry(ctx, c.ID)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if result.VideoRef != "V" {
		t.Fatalf("unexpected result %+v", result)
	}
	got = f.capsule(t, c.ID)
	if got.State != store.StateUnlocked || got.FailedStage != "" || got.LastError != "" {
		t.Fatalf("expected clean unlocked capsule, got %+v", got)
	}
	if f.readyCount(t, c.ID) != 1 {
		t.Fatal("expected one notification after retry")
	}
}

func TestRetryRequiresFailedState(t *testing.T) {
	f := newFixture(t)
	c := f.lockedCapsule(t)

	if _, err := f.pipeline().Retry(context.Background(), c.ID); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := f.pipeline().Retry(context.Background(), "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRetrieveDraftIsValidationError(t *testing.T) {
	f := newFixture(t)
	c, err := f.capsules.CreateCapsule(context.Background(), f.owner.ID, "empty", time.Now().Add(time.Hour), "")
	if err != nil {
		t.Fatalf("CreateCapsule: %v", err)
	}
	if _, err := f.pipeline().RetrieveContent(context.Background(), c.ID); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := f.pipeline().RetrieveContent(context.Background(), "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestFetchFailureRecordsStage(t *testing.T) {
	f := newFixture(t)
	c := f.lockedCapsule(t)
	if err := f.blobs.Delete(context.Background(), blob.ManifestKey(c.ID)); err != nil {
		t.Fatalf("delete manifest: %v", err)
	}

	_, err := f.pipeline().RetrieveContent(context.Background(), c.ID)
	if !errors.Is(err, services.ErrStorage) || services.StageOf(err) != stage.Fetch {
		t.Fatalf("expected storage error at fetch, got %v", err)
	}
	if got := f.capsule(t, c.ID); got.State != store.StateFailed || got.FailedStage != stage.Fetch {
		t.Fatalf("expected failed at fetch, got %s/%s", got.State, got.FailedStage)
	}
	if f.fake.Calls(stage.Analyze) != 0 {
		t.Fatal("chain must not run without content")
	}
}

func TestFetchRejectsMissingOrResizedMedia(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	missing := f.lockedCapsule(t)
	if err := f.blobs.Delete(ctx, missing.Media.Items[0].Key); err != nil {
		t.Fatalf("delete media: %v", err)
	}
	resized := f.lockedCapsule(t)
	item := resized.Media.Items[0]
	if _, err := f.blobs.Put(ctx, item.Key, testsupport.Payload(16), item.ContentType); err != nil {
		t.Fatalf("overwrite media: %v", err)
	}

	for _, c := range []*store.Capsule{missing, resized} {
		_, err := f.pipeline().RetrieveContent(ctx, c.ID)
		if !errors.Is(err, services.ErrStorage) || services.StageOf(err) != stage.Fetch {
			t.Fatalf("expected storage error at fetch, got %v", err)
		}
		if got := f.capsule(t, c.ID); got.State != store.StateFailed || got.FailedStage != stage.Fetch {
			t.Fatalf("expected failed at fetch, got %s/%s", got.State, got.FailedStage)
		}
	}
	if f.fake.Calls(stage.Analyze) != 0 {
		t.Fatal("chain must not run on inconsistent media")
	}
}

func TestStageTimeoutFails(t *testing.T) {
	f := newFixture(t)
	f.cfg.Enrichment.StageTimeoutSeconds = 1
	c := f.lockedCapsule(t)
	f.fake.SetDelay(3 * time.Second)

	_, err := f.pipeline().RetrieveContent(context.Background(), c.ID)
	if !errors.Is(err, services.ErrTimeout) || !errors.Is(err, services.ErrEnrichment) {
		t.Fatalf("expected enrichment timeout, got %v", err)
	}
	if got := f.capsule(t, c.ID); got.State != store.StateFailed || got.FailedStage != stage.Analyze {
		t.Fatalf("expected failed at analyze, got %s/%s", got.State, got.FailedStage)
	}
}

func TestRetrieveIgnoresCallerCancellationAfterClaim(t *testing.T) {
	f := newFixture(t)
	c := f.lockedCapsule(t)
	f.fake.SetDelay(100 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(150*time.Millisecond, cancel)
	if _, err := f.pipeline().RetrieveContent(ctx, c.ID); err != nil {
		t.Fatalf("claimed run should finish despite cancellation, got %v", err)
	}
	if got := f.capsule(t, c.ID); got.State != store.StateUnlocked {
		t.Fatalf("expected unlocked, got %s", got.State)
	}
}

func strand(t *testing.T, f *fixture, c *store.Capsule) store.EnrichmentResult {
	t.Helper()
	ctx := context.Background()
	ok, err := f.store.ConditionalUpdate(ctx, c.ID, []store.State{store.StateLocked}, store.CapsuleUpdate{State: store.StateUnlocking, Claim: true})
	if err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}
	result := store.EnrichmentResult{Analysis: "a", Narrative: "n", Comparison: "c", VideoRef: "v", CompletedAt: time.Now().UTC()}
	if err := f.store.AttachResult(ctx, c.ID, result); err != nil {
		t.Fatalf("AttachResult: %v", err)
	}
	return result
}

func TestRetrieveCompletesStrandedResult(t *testing.T) {
	f := newFixture(t)
	c := f.lockedCapsule(t)
	want := strand(t, f, c)

	got, err := f.pipeline().RetrieveContent(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("RetrieveContent: %v", err)
	}
	if got.VideoRef != want.VideoRef || got.Narrative != want.Narrative {
		t.Fatalf("expected stranded result, got %+v", got)
	}
	if f.capsule(t, c.ID).State != store.StateUnlocked {
		t.Fatal("expected flip to unlocked")
	}
	if f.fake.Calls(stage.Analyze) != 0 {
		t.Fatal("stranded result must not rerun the chain")
	}
	if f.readyCount(t, c.ID) != 1 {
		t.Fatal("expected the missed notification to be sent once")
	}
}

func TestRecoverCompletesStrandedAndReclaimsStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stranded := f.lockedCapsule(t)
	strand(t, f, stranded)
	stale := f.lockedCapsule(t)
	if ok, err := f.store.ConditionalUpdate(ctx, stale.ID, []store.State{store.StateLocked}, store.CapsuleUpdate{State: store.StateUnlocking, Claim: true}); err != nil || !ok {
		t.Fatalf("claim stale: ok=%v err=%v", ok, err)
	}

	// Two hours on, the default claim timeout has passed.
	report, err := f.pipeline().Recover(ctx)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if report.Completed != 1 || report.Reclaimed != 1 || report.Total() != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
	if got := f.capsule(t, stranded.ID); got.State != store.StateUnlocked {
		t.Fatalf("stranded capsule should be unlocked, got %s", got.State)
	}
	got := f.capsule(t, stale.ID)
	if got.State != store.StateFailed || got.FailedStage != store.ClaimExpiredStage {
		t.Fatalf("stale claim should be failed/claim, got %s/%s", got.State, got.FailedStage)
	}

	if _, err := f.pipeline().Retry(ctx, stale.ID); err != nil {
		t.Fatalf("reclaimed capsule should be retryable: %v", err)
	}
}

func TestRecoverLeavesFreshClaims(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.lockedCapsule(t)
	if ok, err := f.store.ConditionalUpdate(ctx, c.ID, []store.State{store.StateLocked}, store.CapsuleUpdate{State: store.StateUnlocking, Claim: true}); err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}

	report, err := f.pipelineAt(time.Now).Recover(ctx)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if report.Total() != 0 {
		t.Fatalf("fresh claim must be left alone, got %+v", report)
	}
	if _, err := f.pipeline().RetrieveContent(ctx, c.ID); !errors.Is(err, services.ErrAlreadyUnlocking) {
		t.Fatalf("expected already unlocking, got %v", err)
	}
}
