// Package storage defines the vault file-system abstraction.
package storage

import "time"

// NoteMetadata describes one Markdown file in the vault.
type NoteMetadata struct {
	Path      string
	Checksum  string
	UpdatedAt time.Time
}

// Provider is the interface for vault file operations.
type Provider interface {
	// List returns metadata for every .md file under dir (relative to vault root).
	List(dir string) ([]NoteMetadata, error)
	// Read returns the raw bytes of the file at path (relative to vault root).
	Read(path string) ([]byte, error)
	// Exists reports whether a file or directory occupies path.
	Exists(path string) (bool, error)
	// Create makes a new file at path and fails with apperr.ErrAlreadyExists
	// when path is taken.
	Create(path string, content []byte) error
	// Write atomically replaces the content of path.
	Write(path string, content []byte) error
}
