// Package workflow runs the unlock scheduler.
//
// The Manager sweeps on a fixed interval. Each sweep first repairs capsules a
// crashed run left behind (results persisted without the final state flip,
// and claims older than the claim timeout), then asks the metadata store for
// locked capsules whose unlock time has passed and hands each one to the
// retrieval pipeline. A failure on one capsule is logged and the sweep moves
// on. Manual sweeps from the CLI share the same code path.
package workflow
