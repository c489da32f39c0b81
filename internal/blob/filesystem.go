package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
)

// Filesystem stores objects as files below a root directory.
type Filesystem struct {
	root string
}

// NewFilesystem creates the root directory if needed.
func NewFilesystem(root string) (*Filesystem, error) {
	if root == "" {
		return nil, errors.New("blob directory is not configured")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob directory: %w", err)
	}
	return &Filesystem{root: root}, nil
}

// Backend implements Store.
func (f *Filesystem) Backend() string { return BackendFilesystem }

// Close implements Store.
func (f *Filesystem) Close() error { return nil }

func (f *Filesystem) resolve(key string) (string, error) {
	cleaned, err := validateKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(f.root, filepath.FromSlash(cleaned)), nil
}

// Put writes data atomically by renaming a temp file into place.
func (f *Filesystem) Put(ctx context.Context, key string, data []byte, _ string) (Location, error) {
	if err := ctx.Err(); err != nil {
		return Location{}, err
	}
	target, err := f.resolve(key)
	if err != nil {
		return Location{}, err
	}
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Location{}, fmt.Errorf("create blob parent: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return Location{}, fmt.Errorf("create temp blob: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return Location{}, fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return Location{}, fmt.Errorf("sync blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return Location{}, fmt.Errorf("close blob: %w", err)
	}
	if err := ctx.Err(); err != nil {
		cleanup()
		return Location{}, err
	}
	if err := os.Rename(tmpName, target); err != nil {
		cleanup()
		return Location{}, fmt.Errorf("commit blob: %w", err)
	}
	return Location{
		Backend:  BackendFilesystem,
		Key:      key,
		Size:     int64(len(data)),
		Checksum: Checksum(data),
	}, nil
}

// Get reads an object.
func (f *Filesystem) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	target, err := f.resolve(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return data, nil
}

// Stat reports an object's size. The filesystem keeps no metadata, so the
// content type is sniffed from the file header.
func (f *Filesystem) Stat(ctx context.Context, key string) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}
	target, err := f.resolve(key)
	if err != nil {
		return Info{}, err
	}
	st, err := os.Stat(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Info{}, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return Info{}, fmt.Errorf("stat blob: %w", err)
	}
	mtype, err := mimetype.DetectFile(target)
	if err != nil {
		return Info{}, fmt.Errorf("sniff blob: %w", err)
	}
	return Info{Key: key, Size: st.Size(), ContentType: mtype.String()}, nil
}

// Delete removes an object. Deleting a missing object is not an error.
func (f *Filesystem) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := f.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}
