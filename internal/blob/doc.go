// Package blob stores capsule media and content manifests.
//
// Two backends implement Store: a directory tree on the local filesystem and
// an embedded badger key-value database. Both address objects by slash
// separated keys produced by MediaKey and ManifestKey and report a blake3
// checksum for every object written.
package blob
