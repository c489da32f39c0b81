package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"

	"keepsake/internal/blob"
	"keepsake/internal/logging"
	"keepsake/internal/services"
	"keepsake/internal/store"
)

// Upload is one file submitted for attachment.
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

var attachableStates = []store.State{store.StateDraft, store.StateLocked}

// AttachMedia uploads a batch and appends it to the capsule's bundle. The
// batch is all-or-nothing: if any upload fails the objects already written are
// removed and the capsule is left as it was. A draft capsule is locked by its
// first successful attach.
func (m *Manager) AttachMedia(ctx context.Context, capsuleID string, uploads []Upload) (*store.Capsule, error) {
	capsule, err := m.Capsule(ctx, capsuleID)
	if err != nil {
		return nil, err
	}
	if err := m.validateBatch(capsule, uploads); err != nil {
		return nil, err
	}

	logger := logging.WithContext(services.WithCapsuleID(ctx, capsule.ID), m.logger)

	items, err := m.uploadAll(ctx, capsule.ID, uploads)
	if err != nil {
		logging.WarnWithContext(logger, "media upload failed", "attach_upload_failed",
			logging.Error(err),
			logging.Int("batch_size", len(uploads)),
			logging.String(logging.FieldErrorHint, "check storage.blob_dir permissions and free space"),
			logging.String(logging.FieldImpact, "batch discarded; capsule unchanged"),
		)
		return nil, services.Wrap(services.ErrStorage, "", "attach media", "upload", err)
	}

	bundle, err := m.store.AppendMedia(ctx, capsule.ID, items, attachableStates...)
	if err != nil {
		m.discard(ctx, items)
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil, services.NotFound("capsule", capsule.ID)
		case errors.Is(err, store.ErrStateChanged):
			return nil, services.Validation("attach media", "capsule %s no longer accepts media", capsule.ID)
		default:
			return nil, services.Wrap(services.ErrStorage, "", "attach media", "record items", err)
		}
	}

	if err := m.writeManifest(ctx, capsule, bundle); err != nil {
		m.rollback(ctx, capsule.ID, items)
		logging.WarnWithContext(logger, "manifest write failed", "attach_manifest_failed",
			logging.Error(err),
			logging.Int("batch_size", len(items)),
			logging.String(logging.FieldErrorHint, "check storage.blob_dir permissions and free space"),
			logging.String(logging.FieldImpact, "batch discarded; capsule unchanged"),
		)
		return nil, services.Wrap(services.ErrStorage, "", "attach media", "write manifest", err)
	}

	sealed, err := m.store.ConditionalUpdate(ctx, capsule.ID,
		[]store.State{store.StateDraft}, store.CapsuleUpdate{State: store.StateLocked})
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "", "attach media", "lock capsule", err)
	}

	logger.Info("media attached",
		logging.String(logging.FieldEventType, "media_attached"),
		logging.Int("items", len(items)),
		logging.Int("bundle_items", len(bundle.Items)),
		logging.Int64("bundle_bytes", bundle.TotalSize),
		logging.Bool("sealed", sealed),
	)

	return m.Capsule(ctx, capsule.ID)
}

func (m *Manager) validateBatch(capsule *store.Capsule, uploads []Upload) error {
	if capsule.State != store.StateDraft && capsule.State != store.StateLocked {
		return services.Validation("attach media", "capsule %s is %s and no longer accepts media", capsule.ID, capsule.State)
	}
	if len(uploads) == 0 {
		return services.Validation("attach media", "at least one file is required")
	}
	if limit := m.cfg.Capsule.MaxBatchItems; len(uploads) > limit {
		return services.Validation("attach media", "batch of %d exceeds limit of %d items", len(uploads), limit)
	}
	for i, up := range uploads {
		if strings.TrimSpace(up.Name) == "" {
			return services.Validation("attach media", "item %d has no name", i)
		}
		if limit := m.cfg.Capsule.MaxFileBytes; int64(len(up.Data)) > limit {
			return services.Validation("attach media", "%s is %d bytes; limit is %d", up.Name, len(up.Data), limit)
		}
	}
	return nil
}

// uploadAll writes every upload with at most upload_concurrency in flight. On
// any failure the successfully written objects are deleted before returning.
func (m *Manager) uploadAll(ctx context.Context, capsuleID string, uploads []Upload) ([]store.MediaItem, error) {
	limit := m.cfg.Capsule.UploadConcurrency
	if limit <= 0 {
		limit = 1
	}

	items := make([]store.MediaItem, len(uploads))
	written := make([]bool, len(uploads))
	errs := make([]error, len(uploads))
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup

	for i := range uploads {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			item, err := m.uploadOne(ctx, capsuleID, uploads[i])
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", uploads[i].Name, err)
				return
			}
			items[i] = item
			written[i] = true
		}(i)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		var done []store.MediaItem
		for i, ok := range written {
			if ok {
				done = append(done, items[i])
			}
		}
		m.discard(ctx, done)
		return nil, err
	}
	return items, nil
}

func (m *Manager) uploadOne(ctx context.Context, capsuleID string, up Upload) (store.MediaItem, error) {
	name := strings.TrimSpace(up.Name)
	contentType, category := classify(up.ContentType, up.Data)
	key := blob.MediaKey(capsuleID, name)

	putCtx, cancel := context.WithTimeout(ctx, m.cfg.StorageTimeout())
	defer cancel()
	loc, err := m.blobs.Put(putCtx, key, up.Data, contentType)
	if err != nil {
		return store.MediaItem{}, err
	}
	return store.MediaItem{
		Name:        name,
		Key:         loc.Key,
		Size:        loc.Size,
		Category:    category,
		ContentType: contentType,
		Checksum:    loc.Checksum,
	}, nil
}

// rollback removes a recorded batch whose manifest could not be written, then
// its objects. The previous manifest, if any, still describes the bundle.
func (m *Manager) rollback(ctx context.Context, capsuleID string, items []store.MediaItem) {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	if err := m.store.RemoveMedia(context.WithoutCancel(ctx), capsuleID, ids); err != nil {
		logging.ErrorWithContext(m.logger, "attach rollback failed", "attach_rollback_failed",
			logging.String(logging.FieldCapsuleID, capsuleID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "media rows without a manifest entry remain; re-attach to rewrite the manifest"),
		)
	}
	m.discard(ctx, items)
}

// discard removes uploaded objects. Failures are logged only.
func (m *Manager) discard(ctx context.Context, items []store.MediaItem) {
	cleanupCtx := context.WithoutCancel(ctx)
	for _, item := range items {
		delCtx, cancel := context.WithTimeout(cleanupCtx, m.cfg.StorageTimeout())
		err := m.blobs.Delete(delCtx, item.Key)
		cancel()
		if err != nil {
			logging.WarnWithContext(m.logger, "orphaned blob cleanup failed", "attach_cleanup_failed",
				logging.String("key", item.Key),
				logging.Error(err),
				logging.String(logging.FieldImpact, "an unreferenced object remains in the blob store"),
			)
		}
	}
}

func (m *Manager) writeManifest(ctx context.Context, capsule *store.Capsule, bundle *store.MediaBundle) error {
	putCtx, cancel := context.WithTimeout(ctx, m.cfg.StorageTimeout())
	defer cancel()
	_, err := blob.PutJSON(putCtx, m.blobs, blob.ManifestKey(capsule.ID), store.BuildManifest(capsule, bundle, m.now()))
	return err
}

// classify derives the stored content type and category. A declared type wins
// unless it is missing or generic, in which case the payload is sniffed.
func classify(declared string, data []byte) (string, store.Category) {
	contentType := strings.ToLower(strings.TrimSpace(declared))
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	if isGeneric(contentType) {
		detected := mimetype.Detect(data).String()
		if i := strings.IndexByte(detected, ';'); i >= 0 {
			detected = strings.TrimSpace(detected[:i])
		}
		contentType = detected
	}
	return contentType, categoryOf(contentType)
}

func isGeneric(contentType string) bool {
	switch contentType {
	case "", "application/octet-stream", "binary/octet-stream", "application/unknown":
		return true
	default:
		return false
	}
}

func categoryOf(contentType string) store.Category {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return store.CategoryImage
	case strings.HasPrefix(contentType, "video/"):
		return store.CategoryVideo
	default:
		return store.CategoryOther
	}
}
