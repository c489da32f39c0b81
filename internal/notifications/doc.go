// Package notifications tells capsule owners that their content is ready.
//
// Notifier records one in-app capsule_ready notification per call through the
// metadata store and then mirrors it to the push Service. The push side
// publishes to ntfy when a topic is configured and degrades to a no-op
// otherwise; push failures are logged and never undo an unlock.
package notifications
