package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/litlink/internal/parser"
	"github.com/starford/litlink/internal/storage"
)

// NoteRow represents a row in the notes table.
type NoteRow struct {
	Path      string
	Title     string
	Checksum  string
	ZoteroKey string
	UpdatedAt time.Time
}

// Metadata is the cached view of one note.
type Metadata struct {
	Path        string
	Title       string
	ZoteroKey   string
	Frontmatter map[string]any
	UpdatedAt   time.Time
}

// UpsertNote inserts or replaces a note row.
func (db *DB) UpsertNote(n NoteRow, frontmatter map[string]any) error {
	if frontmatter == nil {
		frontmatter = map[string]any{}
	}
	fmJSON, err := json.Marshal(frontmatter)
	if err != nil {
		return fmt.Errorf("index: encode frontmatter %s: %w", n.Path, err)
	}
	if n.UpdatedAt.IsZero() {
		n.UpdatedAt = time.Now().UTC()
	}
	_, err = db.conn.Exec(`
		INSERT INTO notes (path, title, checksum, zotero_key, frontmatter, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			title       = excluded.title,
			checksum    = excluded.checksum,
			zotero_key  = excluded.zotero_key,
			frontmatter = excluded.frontmatter,
			updated_at  = excluded.updated_at
	`, n.Path, n.Title, n.Checksum, n.ZoteroKey, string(fmJSON), n.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert note: %w", err)
	}
	return nil
}

// DeleteNote removes a note from the cache. Unknown paths are not an error.
func (db *DB) DeleteNote(path string) error {
	if _, err := db.conn.Exec(`DELETE FROM notes WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: delete note: %w", err)
	}
	return nil
}

// Metadata returns the cached metadata for path, or nil when the path has
// not been indexed.
func (db *DB) Metadata(path string) (*Metadata, error) {
	var (
		m      Metadata
		fmJSON string
	)
	err := db.conn.QueryRow(`
		SELECT path, title, zotero_key, frontmatter, updated_at
		FROM notes WHERE path = ?
	`, path).Scan(&m.Path, &m.Title, &m.ZoteroKey, &fmJSON, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("index: metadata %s: %w", path, err)
	}
	if err := json.Unmarshal([]byte(fmJSON), &m.Frontmatter); err != nil {
		return nil, fmt.Errorf("index: decode frontmatter %s: %w", path, err)
	}
	return &m, nil
}

// NotesByKey returns every note whose zotero-key equals keyGroupID,
// ordered by path.
func (db *DB) NotesByKey(keyGroupID string) ([]NoteRow, error) {
	rows, err := db.conn.Query(`
		SELECT path, title, checksum, zotero_key, updated_at
		FROM notes WHERE zotero_key = ? ORDER BY path
	`, keyGroupID)
	if err != nil {
		return nil, fmt.Errorf("index: notes by key: %w", err)
	}
	defer rows.Close()

	var out []NoteRow
	for rows.Next() {
		var n NoteRow
		if err := rows.Scan(&n.Path, &n.Title, &n.Checksum, &n.ZoteroKey, &n.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// AllChecksums returns path -> checksum for every cached note.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// IndexFile parses data and upserts it under path.
func (db *DB) IndexFile(path string, data []byte) error {
	res, err := parser.Parse(data)
	if err != nil {
		return err
	}
	return db.UpsertNote(NoteRow{
		Path:      path,
		Title:     res.Title,
		Checksum:  storage.Checksum(data),
		ZoteroKey: res.ZoteroKey,
	}, res.Frontmatter)
}
