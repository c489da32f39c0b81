// Package config loads, normalizes, and validates Keepsake configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// KEEPSAKE_LLM_API_KEY. The Config type centralizes every knob the daemon and
// CLI need so it can be threaded explicitly into each component at
// construction; nothing reads configuration from process-wide state later.
package config
