// Package apperr holds the sentinel errors shared across packages.
// Callers match them with errors.Is; producers wrap them with context.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")

	// ErrConfig marks a configuration problem that stops a sync pass
	// before any network activity.
	ErrConfig = errors.New("invalid configuration")
	// ErrTransport marks any failure while fetching the remote directory.
	ErrTransport = errors.New("remote directory unavailable")
	// ErrMissingIdentifier is returned for a remote record without a UID.
	ErrMissingIdentifier = errors.New("contact has no identifier")
	// ErrMismatch is returned when a note's SyncID belongs to another contact
	// and no fallback location is left.
	ErrMismatch = errors.New("sync id mismatch")
	// ErrFolderCollision is returned when a folder occupies a note location.
	ErrFolderCollision = errors.New("folder occupies note path")
)
