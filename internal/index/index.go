package index

// Cache defines the metadata cache operations consumers depend on.
// Depend on this interface rather than the concrete *DB type so tests can
// substitute an in-memory fake.
type Cache interface {
	UpsertNote(n NoteRow, frontmatter map[string]any) error
	DeleteNote(path string) error
	Metadata(path string) (*Metadata, error)
	NotesByKey(keyGroupID string) ([]NoteRow, error)
	AllChecksums() (map[string]string, error)
	IndexFile(path string, data []byte) error
	Close() error
}

// Verify *DB satisfies Cache at compile time.
var _ Cache = (*DB)(nil)
