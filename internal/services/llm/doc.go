// Package llm is a minimal client for OpenAI-compatible chat completion
// endpoints such as OpenRouter.
//
// The enrichment text stages (analyze, enhance, compare) each send one user
// prompt through Client.Complete and use the returned text verbatim.
// Client.HealthCheck sends a tiny ping and backs `keepsake status` and the
// preflight checks.
//
// Requests that fail with HTTP 408, 429 or 5xx, network timeouts, or an empty
// completion are retried with doubling backoff (1s up to 10s, 4 attempts by
// default). Retry-After is honoured up to the ceiling. Context cancellation
// stops retrying at once, so the caller's stage timeout bounds every call.
package llm
