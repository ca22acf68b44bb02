// Package zotero reads items and annotations straight from a local Zotero
// database.
package zotero

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/litlink/internal/apperr"
	"github.com/starford/litlink/internal/models"
)

// Annotation type codes as stored in itemAnnotations.type.
var annotationTypes = map[int]string{
	1: "highlight",
	2: "note",
	3: "image",
	4: "ink",
	5: "underline",
	6: "text",
}

// Library is a read-only handle on zotero.sqlite.
type Library struct {
	conn *sql.DB
}

// OpenLibrary opens the database at path. The file is opened read-only and
// immutable so a running Zotero keeps its exclusive lock.
func OpenLibrary(path string) (*Library, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("zotero: resolve path: %w", err)
	}
	dsn := (&url.URL{
		Scheme:   "file",
		Path:     filepath.ToSlash(abs),
		RawQuery: "mode=ro&immutable=1",
	}).String()
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("zotero: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("zotero: ping: %w", err)
	}
	return &Library{conn: conn}, nil
}

// Close closes the database handle.
func (l *Library) Close() error { return l.conn.Close() }

// libraryID resolves the user library when groupID is nil, else the group's.
func (l *Library) libraryID(ctx context.Context, groupID *int) (int64, error) {
	var (
		id  int64
		err error
	)
	if groupID == nil {
		err = l.conn.QueryRowContext(ctx,
			`SELECT libraryID FROM libraries WHERE type = 'user' ORDER BY libraryID LIMIT 1`).Scan(&id)
	} else {
		err = l.conn.QueryRowContext(ctx,
			`SELECT libraryID FROM groups WHERE groupID = ?`, *groupID).Scan(&id)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("zotero: library: %w", apperr.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("zotero: library: %w", err)
	}
	return id, nil
}

// Item returns the regular item with key in the user library, or in the
// group library when groupID is set.
func (l *Library) Item(ctx context.Context, key string, groupID *int) (models.RegularItem, error) {
	libID, err := l.libraryID(ctx, groupID)
	if err != nil {
		return nil, err
	}

	var (
		itemID                  int64
		itemType, added, modded string
	)
	err = l.conn.QueryRowContext(ctx, `
		SELECT i.itemID, t.typeName, i.dateAdded, i.dateModified
		FROM items i
		JOIN itemTypes t ON t.itemTypeID = i.itemTypeID
		WHERE i.libraryID = ? AND i.key = ?
		  AND i.itemID NOT IN (SELECT itemID FROM deletedItems)
	`, libID, key).Scan(&itemID, &itemType, &added, &modded)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("zotero: item %s: %w", key, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("zotero: item %s: %w", key, err)
	}

	raw := map[string]any{
		"key":          key,
		"itemType":     itemType,
		"itemID":       int(itemID),
		"libraryID":    int(libID),
		"dateAdded":    added,
		"dateModified": modded,
	}
	if groupID != nil {
		raw["groupID"] = *groupID
	}
	if err := l.loadFields(ctx, itemID, raw); err != nil {
		return nil, err
	}
	creators, err := l.creators(ctx, itemID)
	if err != nil {
		return nil, err
	}
	raw["creators"] = creators

	item, ok := models.Classify(raw).(models.RegularItem)
	if !ok {
		return nil, fmt.Errorf("zotero: item %s is a %s: %w", key, itemType, apperr.ErrNotFound)
	}
	return item, nil
}

func (l *Library) loadFields(ctx context.Context, itemID int64, into map[string]any) error {
	rows, err := l.conn.QueryContext(ctx, `
		SELECT f.fieldName, v.value
		FROM itemData d
		JOIN fields f ON f.fieldID = d.fieldID
		JOIN itemDataValues v ON v.valueID = d.valueID
		WHERE d.itemID = ?
	`, itemID)
	if err != nil {
		return fmt.Errorf("zotero: fields: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			name  string
			value any
		)
		if err := rows.Scan(&name, &value); err != nil {
			return fmt.Errorf("zotero: fields: %w", err)
		}
		if b, ok := value.([]byte); ok {
			value = string(b)
		}
		into[name] = value
	}
	return rows.Err()
}

func (l *Library) creators(ctx context.Context, itemID int64) ([]any, error) {
	rows, err := l.conn.QueryContext(ctx, `
		SELECT c.firstName, c.lastName, c.fieldMode, ct.creatorType
		FROM itemCreators ic
		JOIN creators c ON c.creatorID = ic.creatorID
		JOIN creatorTypes ct ON ct.creatorTypeID = ic.creatorTypeID
		WHERE ic.itemID = ?
		ORDER BY ic.orderIndex
	`, itemID)
	if err != nil {
		return nil, fmt.Errorf("zotero: creators: %w", err)
	}
	defer rows.Close()

	out := []any{}
	for rows.Next() {
		var (
			first, last sql.NullString
			mode        sql.NullInt64
			role        string
		)
		if err := rows.Scan(&first, &last, &mode, &role); err != nil {
			return nil, fmt.Errorf("zotero: creators: %w", err)
		}
		c := map[string]any{"creatorType": role}
		if mode.Int64 == 1 {
			// Single-field creator such as an institution.
			c["name"] = last.String
		} else {
			c["firstName"] = first.String
			c["lastName"] = last.String
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Annotations returns the annotations made on the attachments of item,
// ordered by attachment and then by position in the document.
func (l *Library) Annotations(ctx context.Context, item models.RegularItem) ([]models.AnnotationItem, error) {
	var groupID *int
	if g, ok := item.GroupID(); ok {
		groupID = &g
	}
	libID, err := l.libraryID(ctx, groupID)
	if err != nil {
		return nil, err
	}

	rows, err := l.conn.QueryContext(ctx, `
		SELECT a.key, att.key, ia.type, ia.text, ia.comment, ia.color,
		       ia.pageLabel, ia.sortIndex, ia.position, a.dateAdded, a.dateModified
		FROM items parent
		JOIN itemAttachments ix ON ix.parentItemID = parent.itemID
		JOIN items att ON att.itemID = ix.itemID
		JOIN itemAnnotations ia ON ia.parentItemID = ix.itemID
		JOIN items a ON a.itemID = ia.itemID
		WHERE parent.libraryID = ? AND parent.key = ?
		  AND a.itemID NOT IN (SELECT itemID FROM deletedItems)
		ORDER BY ix.itemID, ia.sortIndex, a.key
	`, libID, item.Key())
	if err != nil {
		return nil, fmt.Errorf("zotero: annotations: %w", err)
	}
	defer rows.Close()

	out := []models.AnnotationItem{}
	for rows.Next() {
		var (
			key, parent, sortIndex, added, modded string
			typ                                   int
			text, comment, color, pageLabel, pos  sql.NullString
		)
		if err := rows.Scan(&key, &parent, &typ, &text, &comment, &color,
			&pageLabel, &sortIndex, &pos, &added, &modded); err != nil {
			return nil, fmt.Errorf("zotero: annotations: %w", err)
		}
		raw := map[string]any{
			"key":                 key,
			"itemType":            models.ItemTypeAnnotation,
			"parentItem":          parent,
			"annotationType":      annotationTypes[typ],
			"annotationSortIndex": sortIndex,
			"dateAdded":           added,
			"dateModified":        modded,
		}
		setString(raw, "annotationText", text)
		setString(raw, "annotationComment", comment)
		setString(raw, "annotationColor", color)
		setString(raw, "annotationPageLabel", pageLabel)
		if pos.Valid {
			var decoded map[string]any
			if err := json.Unmarshal([]byte(pos.String), &decoded); err == nil {
				raw["annotationPosition"] = decoded
			}
		}
		if groupID != nil {
			raw["groupID"] = *groupID
		}
		if a, ok := models.Classify(raw).(models.AnnotationItem); ok {
			out = append(out, a)
		}
	}
	return out, rows.Err()
}

func setString(m map[string]any, name string, v sql.NullString) {
	if v.Valid {
		m[name] = v.String
	}
}
