// Package daemon coordinates the long-running Keepsake process.
//
// It wires the unlock scheduler and the HTTP API into a single lifecycle with
// flock-based locking to prevent multiple instances from sweeping the same
// store. Keep orchestration here: capsule semantics live in lifecycle,
// retrieval and workflow, while the daemon owns startup, shutdown and the
// HTTP surface.
package daemon
