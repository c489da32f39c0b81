package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"keepsake/internal/blob"
	"keepsake/internal/logging"
	"keepsake/internal/services"
	"keepsake/internal/stage"
	"keepsake/internal/store"
)

type step struct {
	name    string
	timeout time.Duration
	fn      func(context.Context, string) (string, error)
}

func (p *Pipeline) steps() []step {
	stageTimeout := p.cfg.StageTimeout()
	return []step{
		{name: stage.Analyze, timeout: stageTimeout, fn: p.providers.Analyzer.Analyze},
		{name: stage.Enhance, timeout: stageTimeout, fn: p.providers.Enhancer.Enhance},
		{name: stage.Compare, timeout: stageTimeout, fn: p.providers.Comparer.Compare},
		{name: stage.Render, timeout: p.cfg.RenderTimeout(), fn: p.providers.Renderer.Render},
	}
}

// run executes a claimed capsule through fetch, the enrichment chain, and
// persist. Any failure moves the capsule to failed with the stage recorded.
func (p *Pipeline) run(ctx context.Context, logger *slog.Logger, capsule *store.Capsule) (*store.EnrichmentResult, error) {
	started := time.Now()

	doc, err := stage.Run(ctx, stage.Fetch, p.cfg.StorageTimeout(), services.ErrStorage, func(ctx context.Context) (string, error) {
		var manifest store.Manifest
		if err := blob.GetJSON(ctx, p.blobs, blob.ManifestKey(capsule.ID), &manifest); err != nil {
			return "", err
		}
		if err := p.verifyMedia(ctx, capsule.Media, manifest); err != nil {
			return "", err
		}
		return manifest.Document(), nil
	})
	if err != nil {
		return nil, p.fail(ctx, logger, capsule, stage.Fetch, err)
	}

	outputs := make(map[string]string, len(stage.Chain))
	input := doc
	for _, s := range p.steps() {
		stepStart := time.Now()
		out, err := stage.Run(ctx, s.name, s.timeout, services.ErrEnrichment, func(ctx context.Context) (string, error) {
			return s.fn(ctx, input)
		})
		if err != nil {
			return nil, p.fail(ctx, logger, capsule, s.name, err)
		}
		logger.Debug("stage completed",
			logging.String(logging.FieldStage, s.name),
			logging.Duration("duration", time.Since(stepStart)),
			logging.Int("output_chars", len(out)),
		)
		outputs[s.name] = out
		input = out
	}

	result := store.EnrichmentResult{
		Analysis:    outputs[stage.Analyze],
		Narrative:   outputs[stage.Enhance],
		Comparison:  outputs[stage.Compare],
		VideoRef:    outputs[stage.Render],
		CompletedAt: p.now().UTC(),
	}
	if err := p.store.AttachResult(ctx, capsule.ID, result); err != nil {
		if !errors.Is(err, services.ErrConflict) {
			return nil, p.fail(ctx, logger, capsule, stage.Persist, services.Wrap(services.ErrStorage, stage.Persist, "attach result", capsule.ID, err))
		}
		// A run that outlived its claim already persisted; its result stands.
		existing, getErr := p.store.GetResult(ctx, capsule.ID)
		if getErr != nil || existing == nil {
			return nil, services.Wrap(services.ErrStorage, stage.Persist, "load result", capsule.ID, errors.Join(err, getErr))
		}
		result = *existing
	}

	won, err := p.store.ConditionalUpdate(ctx, capsule.ID, []store.State{store.StateUnlocking}, store.CapsuleUpdate{State: store.StateUnlocked})
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, stage.Persist, "unlock", capsule.ID, err)
	}
	if !won {
		if won, err = p.settle(ctx, capsule.ID); err != nil {
			return nil, err
		}
	}

	logger.Info("capsule unlocked",
		logging.String(logging.FieldEventType, "capsule_unlocked"),
		logging.Duration("duration", time.Since(started)),
		logging.String("video_ref", result.VideoRef),
	)
	if won {
		p.notify(ctx, logger, capsule.ID)
	}
	return &result, nil
}

// fail records a stage failure and returns cause for the caller.
func (p *Pipeline) fail(ctx context.Context, logger *slog.Logger, capsule *store.Capsule, stageName string, cause error) error {
	logging.ErrorWithContext(logger, "retrieval failed", "retrieval_failed",
		logging.String(logging.FieldStage, stageName),
		logging.Error(cause),
		logging.String(logging.FieldErrorHint, hintFor(stageName)),
	)
	ok, err := p.store.ConditionalUpdate(ctx, capsule.ID, []store.State{store.StateUnlocking}, store.CapsuleUpdate{
		State:       store.StateFailed,
		LastError:   cause.Error(),
		FailedStage: stageName,
	})
	if err != nil {
		logging.ErrorWithContext(logger, "failed to record failure", "failure_record_failed", logging.Error(err))
	} else if !ok {
		logging.WarnWithContext(logger, "capsule left unlocking before failure was recorded", "failure_record_skipped",
			logging.String(logging.FieldImpact, "state is owned by another writer"),
		)
	}
	if fn, ok := p.notifier.(failureNotifier); ok {
		fn.NotifyFailure(ctx, capsule, stageName, cause)
	}
	return cause
}

func hintFor(stageName string) string {
	switch stageName {
	case stage.Fetch:
		return "check the blob store for the capsule manifest"
	case stage.Render:
		return "check enrichment.render_base_url and the render service logs"
	case stage.Persist:
		return "check the metadata database"
	default:
		return "check enrichment.base_url, api_key, and model"
	}
}

// verifyMedia checks that the manifest describes the recorded bundle and that
// every object is still in the blob store at its recorded size.
func (p *Pipeline) verifyMedia(ctx context.Context, bundle *store.MediaBundle, manifest store.Manifest) error {
	var items []store.MediaItem
	if bundle != nil {
		items = bundle.Items
	}
	if len(items) != len(manifest.Media) {
		return fmt.Errorf("manifest lists %d media items, capsule records %d", len(manifest.Media), len(items))
	}
	for i, item := range items {
		if manifest.Media[i].Key != item.Key {
			return fmt.Errorf("manifest item %d is %s, capsule records %s", i, manifest.Media[i].Key, item.Key)
		}
		info, err := p.blobs.Stat(ctx, item.Key)
		if err != nil {
			return fmt.Errorf("media %s: %w", item.Name, err)
		}
		if info.Size != item.Size {
			return fmt.Errorf("media %s: stored size %d, recorded %d", item.Name, info.Size, item.Size)
		}
	}
	return nil
}
