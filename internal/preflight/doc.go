// Package preflight provides readiness checks for the filesystem paths and
// external services Keepsake depends on.
//
// The CLI "keepsake status" command runs RunAll and prints each result. The
// checks never mutate state; a failed check only explains why sweeps or
// retrievals are likely to fail.
package preflight
