package blob

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"keepsake/internal/config"
)

// ErrNotFound reports that no object exists under a key.
var ErrNotFound = errors.New("blob not found")

// Backend names accepted by Open.
const (
	BackendFilesystem = "filesystem"
	BackendBadger     = "badger"
)

// Location describes where an object was written.
type Location struct {
	Backend  string
	Key      string
	Size     int64
	Checksum string
}

// Info describes a stored object without its payload.
type Info struct {
	Key         string
	Size        int64
	ContentType string
}

// Store is the blob storage contract used by capsule attach and retrieval.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (Location, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Stat(ctx context.Context, key string) (Info, error)
	Delete(ctx context.Context, key string) error
	Backend() string
	Close() error
}

// Open constructs the backend selected by configuration.
func Open(cfg *config.Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Backend)) {
	case "", BackendFilesystem:
		return NewFilesystem(cfg.Storage.BlobDir)
	case BackendBadger:
		return NewBadger(cfg.Storage.BlobDir)
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.Storage.Backend)
	}
}

// MediaKey returns a fresh, collision-free key for a media upload. The
// extension of name is preserved in lower case.
func MediaKey(capsuleID, name string) string {
	ext := strings.ToLower(path.Ext(strings.TrimSpace(name)))
	if strings.ContainsAny(ext, `/\ `) {
		ext = ""
	}
	return path.Join("capsules", capsuleID, "media", uuid.NewString()+ext)
}

// ManifestKey returns the key of a capsule's content manifest.
func ManifestKey(capsuleID string) string {
	return path.Join("capsules", capsuleID, "content.json")
}

// Checksum returns the hex blake3 digest of data.
func Checksum(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// PutJSON encodes value and writes it under key.
func PutJSON(ctx context.Context, store Store, key string, value any) (Location, error) {
	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return Location{}, fmt.Errorf("encode %s: %w", key, err)
	}
	return store.Put(ctx, key, payload, "application/json")
}

// GetJSON reads key and decodes it into target.
func GetJSON(ctx context.Context, store Store, key string, target any) error {
	data, err := store.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func validateKey(key string) (string, error) {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return "", errors.New("blob key is empty")
	}
	cleaned := path.Clean("/" + trimmed)[1:]
	if cleaned == "" || cleaned != strings.TrimPrefix(trimmed, "/") {
		return "", fmt.Errorf("blob key %q is not canonical", key)
	}
	return cleaned, nil
}
