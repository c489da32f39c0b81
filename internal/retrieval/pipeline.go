package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"keepsake/internal/blob"
	"keepsake/internal/config"
	"keepsake/internal/enrichment"
	"keepsake/internal/logging"
	"keepsake/internal/services"
	"keepsake/internal/stage"
	"keepsake/internal/store"
)

// Notifier is told when a capsule becomes viewable.
type Notifier interface {
	NotifyUser(ctx context.Context, capsuleID string) error
}

// failureNotifier is optionally implemented by notifiers that push failures.
type failureNotifier interface {
	NotifyFailure(ctx context.Context, capsule *store.Capsule, stage string, cause error)
}

// Pipeline runs retrievals against the metadata store, blob store, and
// enrichment providers.
type Pipeline struct {
	cfg       *config.Config
	store     *store.Store
	blobs     blob.Store
	providers enrichment.Providers
	notifier  Notifier
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures optional Pipeline behavior.
type Option func(*Pipeline)

// WithClock overrides the time source used by the unlock gate.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// NewPipeline constructs a retrieval pipeline. notifier may be nil.
func NewPipeline(cfg *config.Config, st *store.Store, blobs blob.Store, providers enrichment.Providers, notifier Notifier, logger *slog.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = logging.NewNop()
	}
	p := &Pipeline{
		cfg:       cfg,
		store:     st,
		blobs:     blobs,
		providers: providers,
		notifier:  notifier,
		logger:    logging.NewComponentLogger(logger, "retrieval"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// HealthCheck reports the health of the enrichment providers.
func (p *Pipeline) HealthCheck(ctx context.Context) []stage.Health {
	return p.providers.HealthCheck(ctx)
}

// RetrieveContent returns the enrichment result of an unlocked capsule,
// running the pipeline first if the capsule is due and not yet unlocked.
func (p *Pipeline) RetrieveContent(ctx context.Context, capsuleID string) (*store.EnrichmentResult, error) {
	return p.retrieve(ctx, capsuleID, store.ClaimableStates())
}

// Retry reruns the pipeline for a failed capsule.
func (p *Pipeline) Retry(ctx context.Context, capsuleID string) (*store.EnrichmentResult, error) {
	capsule, err := p.load(ctx, capsuleID)
	if err != nil {
		return nil, err
	}
	if capsule.State != store.StateFailed {
		return nil, services.Validation("retry", "capsule %s is %s; only failed capsules can be retried", capsuleID, capsule.State)
	}
	return p.retrieve(ctx, capsuleID, []store.State{store.StateFailed})
}

func (p *Pipeline) retrieve(ctx context.Context, capsuleID string, claimFrom []store.State) (*store.EnrichmentResult, error) {
	ctx = services.WithRequestID(services.WithCapsuleID(ctx, capsuleID), uuid.NewString())
	logger := logging.WithContext(ctx, p.logger)

	capsule, err := p.load(ctx, capsuleID)
	if err != nil {
		return nil, err
	}
	if now := p.now(); !capsule.IsDue(now) {
		return nil, services.Wrap(services.ErrStillLocked, "", "retrieve", capsuleID,
			fmt.Errorf("unlocks at %s", capsule.UnlockAt.UTC().Format(time.RFC3339)))
	}
	if capsule.Result != nil {
		return p.serve(ctx, logger, capsule)
	}
	if err := claimableOrError(capsule); err != nil {
		return nil, err
	}
	if err := p.providers.Validate(); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "retrieve", capsuleID, err)
	}

	won, err := p.store.ConditionalUpdate(ctx, capsuleID, claimFrom, store.CapsuleUpdate{State: store.StateUnlocking, Claim: true})
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "", "claim", capsuleID, err)
	}
	if !won {
		return p.afterLostClaim(ctx, logger, capsuleID)
	}

	logger.Info("capsule claimed",
		logging.String(logging.FieldEventType, "capsule_claimed"),
		logging.String("from_state", string(capsule.State)),
	)
	return p.run(context.WithoutCancel(ctx), logger, capsule)
}

func (p *Pipeline) load(ctx context.Context, capsuleID string) (*store.Capsule, error) {
	capsule, err := p.store.GetCapsule(ctx, capsuleID)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "", "load capsule", capsuleID, err)
	}
	if capsule == nil {
		return nil, services.NotFound("capsule", capsuleID)
	}
	return capsule, nil
}

func claimableOrError(capsule *store.Capsule) error {
	switch capsule.State {
	case store.StateDraft:
		return services.Validation("retrieve", "capsule %s is a draft with no sealed media", capsule.ID)
	case store.StateUnlocking:
		return services.Wrap(services.ErrAlreadyUnlocking, "", "retrieve", capsule.ID, nil)
	case store.StateUnlocked:
		return services.Wrap(services.ErrStorage, "", "retrieve", capsule.ID, errors.New("unlocked capsule has no result"))
	}
	return nil
}

// afterLostClaim resolves a claim that another caller won.
func (p *Pipeline) afterLostClaim(ctx context.Context, logger *slog.Logger, capsuleID string) (*store.EnrichmentResult, error) {
	capsule, err := p.load(ctx, capsuleID)
	if err != nil {
		return nil, err
	}
	if capsule.Result != nil {
		return p.serve(ctx, logger, capsule)
	}
	if capsule.State == store.StateLocked {
		return nil, services.Validation("retry", "capsule %s is locked, not failed", capsuleID)
	}
	if err := claimableOrError(capsule); err != nil {
		return nil, err
	}
	return nil, services.Wrap(services.ErrAlreadyUnlocking, "", "retrieve", capsuleID, nil)
}

// serve returns an existing result, completing the state flip first when a
// previous run persisted the result but did not reach unlocked.
func (p *Pipeline) serve(ctx context.Context, logger *slog.Logger, capsule *store.Capsule) (*store.EnrichmentResult, error) {
	if capsule.State == store.StateUnlocked {
		return capsule.Result, nil
	}
	flipped, err := p.settle(ctx, capsule.ID)
	if err != nil {
		return nil, err
	}
	if flipped {
		logger.Info("stranded result recovered",
			logging.String(logging.FieldEventType, "stranded_result_recovered"),
			logging.String("from_state", string(capsule.State)),
		)
		p.notifyRecovered(ctx, logger, capsule.ID)
	}
	return capsule.Result, nil
}

// settle moves a capsule that holds a result to unlocked, retrying the
// conditional update from whatever state it is in. It reports whether this
// call performed the flip.
func (p *Pipeline) settle(ctx context.Context, capsuleID string) (bool, error) {
	for attempt := 0; attempt < 3; attempt++ {
		capsule, err := p.store.GetCapsule(ctx, capsuleID)
		if err != nil {
			return false, services.Wrap(services.ErrStorage, stage.Persist, "settle", capsuleID, err)
		}
		if capsule == nil {
			return false, services.NotFound("capsule", capsuleID)
		}
		if capsule.State == store.StateUnlocked {
			return false, nil
		}
		won, err := p.store.ConditionalUpdate(ctx, capsuleID, []store.State{capsule.State}, store.CapsuleUpdate{State: store.StateUnlocked})
		if err != nil {
			return false, services.Wrap(services.ErrStorage, stage.Persist, "settle", capsuleID, err)
		}
		if won {
			return true, nil
		}
	}
	return false, services.Wrap(services.ErrConflict, stage.Persist, "settle", capsuleID, errors.New("state kept changing"))
}

func (p *Pipeline) notifyRecovered(ctx context.Context, logger *slog.Logger, capsuleID string) {
	count, err := p.store.CountNotifications(ctx, capsuleID, store.KindCapsuleReady)
	if err != nil {
		logging.WarnWithContext(logger, "notification lookup failed", "notification_lookup_failed", logging.Error(err))
		return
	}
	if count > 0 {
		return
	}
	p.notify(ctx, logger, capsuleID)
}

func (p *Pipeline) notify(ctx context.Context, logger *slog.Logger, capsuleID string) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.NotifyUser(ctx, capsuleID); err != nil {
		logging.WarnWithContext(logger, "owner notification failed", "notification_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "trigger it again with POST /api/capsules/{id}/notify"),
			logging.String(logging.FieldImpact, "capsule is unlocked but the owner was not told"),
		)
	}
}
