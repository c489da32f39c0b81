package testsupport

import (
	"context"
	"testing"

	"keepsake/internal/blob"
	"keepsake/internal/config"
	"keepsake/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	s, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

// MustCreateUser registers a user for tests.
func MustCreateUser(t testing.TB, s *store.Store, name string) *store.User {
	t.Helper()

	user, err := s.CreateUser(context.Background(), name)
	if err != nil {
		t.Fatalf("store.CreateUser: %v", err)
	}
	return user
}

// MustOpenBlob opens the configured blob backend and registers cleanup.
func MustOpenBlob(t testing.TB, cfg *config.Config) blob.Store {
	t.Helper()

	b, err := blob.Open(cfg)
	if err != nil {
		t.Fatalf("blob.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = b.Close()
	})
	return b
}
