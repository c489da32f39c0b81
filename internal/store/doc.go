// Package store persists capsule metadata in SQLite.
//
// It owns the schema (capsules, media items, enrichment results,
// collaborations, notifications, users), the busy-retry helpers that keep
// concurrent writers from failing on SQLITE_BUSY, and the conditional state
// update that the retrieval pipeline uses as its claim. Callers never hold a
// Go-side lock around capsule state: every cross-component decision is made by
// a single UPDATE ... WHERE state IN (...) statement and its affected-row count.
package store
