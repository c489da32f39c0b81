// Package logs reads the daemon's JSON log file back for the CLI.
//
// Tail returns the last N matching records or everything after a byte offset,
// optionally waiting for new lines. Filter narrows records to one capsule,
// component, or minimum level so `keepsake logs --capsule` can follow a
// single unlock through the pipeline.
package logs
