// Package lifecycle owns the write side of a capsule: creation, media attach,
// and collaborator invites.
//
// AttachMedia uploads a batch to the blob store concurrently, joins, and only
// then commits the items to the metadata store. A failed batch leaves the
// capsule untouched. The first successful attach seals a draft into the locked
// state; later attaches append while the capsule stays locked.
package lifecycle
