// Package storage defines the vault file-system abstraction.
package storage

import "github.com/starford/cardsync/internal/models"

// Kind is what occupies a vault path.
type Kind int

const (
	KindAbsent Kind = iota
	KindFile
	KindFolder
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindFolder:
		return "folder"
	default:
		return "absent"
	}
}

// UpdateFunc receives the current file bytes and returns the replacement.
// Returning nil content leaves the file untouched.
type UpdateFunc func(current []byte) ([]byte, error)

// Provider is the interface for vault file operations.
// All paths are slash-separated and relative to the vault root.
type Provider interface {
	// Lookup reports whether path is absent, a file or a folder.
	Lookup(path string) (Kind, error)
	// List returns metadata for every .md file under dir.
	List(dir string) ([]models.NoteMetadata, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path, replacing any existing file.
	Write(path string, content []byte) error
	// Create writes a new file and fails with apperr.ErrAlreadyExists if path is taken.
	Create(path string, content []byte) error
	// Update reads path, applies fn and atomically writes the result.
	// It reports whether the file was rewritten.
	Update(path string, fn UpdateFunc) (bool, error)
	// Move renames oldPath to newPath; it never replaces an existing entry.
	Move(oldPath, newPath string) error
	// Mkdir creates the folder at path and any missing parents.
	Mkdir(path string) error
}
