// Package retrieval unlocks capsules and produces their enrichment result.
//
// A retrieval passes the unlock gate, claims the capsule with a conditional
// state update, reads the content manifest, runs the analyze, enhance, compare
// and render stages in order, persists the result, and finally notifies the
// owner. The conditional update is the only synchronization: concurrent
// callers that lose the claim either see the winner's result or get
// ErrAlreadyUnlocking. Once claimed, a run is detached from its caller's
// cancellation and bounded only by per-stage timeouts.
package retrieval
