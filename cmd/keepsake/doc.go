// Command keepsake is the command-line entry point for the capsule service.
//
// The daemon subcommand runs the unlock scheduler and HTTP API in the
// foreground. Every other subcommand opens the metadata and blob stores
// in-process, so user, capsule, and notification management works without a
// running daemon. The badger blob backend holds an exclusive directory lock,
// so those commands fail while a daemon using badger is running; use the HTTP
// API instead in that setup.
package main
