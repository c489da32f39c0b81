package blob_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"keepsake/internal/blob"
	"keepsake/internal/testsupport"
)

func backends(t *testing.T) map[string]blob.Store {
	t.Helper()
	fsStore, err := blob.NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("NewFilesystem: %v", err)
	}
	kvStore, err := blob.NewBadger(t.TempDir())
	if err != nil {
		t.Fatalf("NewBadger: %v", err)
	}
	t.Cleanup(func() { _ = kvStore.Close() })
	return map[string]blob.Store{"filesystem": fsStore, "badger": kvStore}
}

func TestPutGetDelete(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := blob.MediaKey("cap-1", "notes.txt")
			payload := []byte("hello capsule")

			loc, err := store.Put(ctx, key, payload, "text/plain")
			if err != nil {
				t.Fatalf("Put: %v", err)
			}
			if loc.Backend != name || loc.Key != key || loc.Size != int64(len(payload)) {
				t.Fatalf("unexpected location: %#v", loc)
			}
			if loc.Checksum != blob.Checksum(payload) || len(loc.Checksum) != 64 {
				t.Fatalf("unexpected checksum %q", loc.Checksum)
			}

			data, err := store.Get(ctx, key)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if string(data) != string(payload) {
				t.Fatalf("payload mismatch: %q", data)
			}
			info, err := store.Stat(ctx, key)
			if err != nil {
				t.Fatalf("Stat: %v", err)
			}
			if info.Size != int64(len(payload)) || !strings.HasPrefix(info.ContentType, "text/plain") {
				t.Fatalf("unexpected info: %#v", info)
			}

			if err := store.Delete(ctx, key); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, err := store.Get(ctx, key); !errors.Is(err, blob.ErrNotFound) {
				t.Fatalf("expected ErrNotFound after delete, got %v", err)
			}
			if _, err := store.Stat(ctx, key); !errors.Is(err, blob.ErrNotFound) {
				t.Fatalf("expected Stat ErrNotFound after delete, got %v", err)
			}
		})
	}
}

func TestJSONHelpers(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := blob.ManifestKey("cap-2")
			in := map[string]string{"title": "Summer"}
			if _, err := blob.PutJSON(ctx, store, key, in); err != nil {
				t.Fatalf("PutJSON: %v", err)
			}
			var out map[string]string
			if err := blob.GetJSON(ctx, store, key, &out); err != nil {
				t.Fatalf("GetJSON: %v", err)
			}
			if out["title"] != "Summer" {
				t.Fatalf("unexpected manifest %#v", out)
			}
		})
	}
}

func TestRejectsTraversalKeys(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, key := range []string{"", "../escape", "capsules/../../etc", "a//b"} {
				if _, err := store.Put(context.Background(), key, []byte("x"), ""); err == nil {
					t.Fatalf("expected %q to be rejected", key)
				}
			}
		})
	}
}

func TestCanceledContext(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			if _, err := store.Put(ctx, "k", []byte("x"), ""); !errors.Is(err, context.Canceled) {
				t.Fatalf("expected context.Canceled, got %v", err)
			}
		})
	}
}

func TestKeysAreUnique(t *testing.T) {
	a := blob.MediaKey("cap", "Beach.JPG")
	b := blob.MediaKey("cap", "Beach.JPG")
	if a == b {
		t.Fatal("expected unique media keys")
	}
	if !strings.HasPrefix(a, "capsules/cap/media/") || !strings.HasSuffix(a, ".jpg") {
		t.Fatalf("unexpected media key %q", a)
	}
	if blob.ManifestKey("cap") != "capsules/cap/content.json" {
		t.Fatalf("unexpected manifest key %q", blob.ManifestKey("cap"))
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithBadgerBlobs())
	store, err := blob.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()
	if store.Backend() != blob.BackendBadger {
		t.Fatalf("expected badger backend, got %s", store.Backend())
	}

	cfg.Storage.Backend = "s3"
	if _, err := blob.Open(cfg); err == nil {
		t.Fatal("expected unknown backend to fail")
	}
}
