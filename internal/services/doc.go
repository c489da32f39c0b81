// Package services defines shared utilities consumed by the capsule lifecycle,
// the retrieval pipeline, and the external provider clients.
//
// Key responsibilities:
//   - Context helpers that stamp capsule IDs, stage names, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper so every failure carries a
//     stable kind (validation, not_found, still_locked, ...) and, for pipeline
//     failures, the stage that produced it.
//
// Use these helpers when wiring new stage logic so operational behaviour (error
// classification, observability) stays uniform across the pipeline.
package services
