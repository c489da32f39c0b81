// Package api defines wire-format types and converters for the HTTP API and
// the CLI. It translates internal capsule models into transport-friendly DTOs
// so consumers never couple to store types.
//
// # Key Types
//
// Capsule: capsule metadata, a per-category media summary and, in detail
// views, the ordered media items.
//
// Content: the enrichment result served after unlock. The narrative is also
// rendered from Markdown to HTML.
//
// DaemonStatus and SchedulerStatus: daemon runtime information, per-state
// capsule counts, the last sweep report and provider health.
//
// # Service
//
// CapsuleService wraps the lifecycle manager, the retrieval pipeline and the
// notifier, returning DTOs. Errors pass through unchanged so callers can map
// them with services.Kind.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Internal enums (store.State, store.Category)
// are exposed as lowercase strings. Timestamps use RFC3339 with milliseconds.
package api
