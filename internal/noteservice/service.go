// Package noteservice creates literature notes in the vault from library
// items and finds the notes already linked to an item.
package noteservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/starford/litlink/internal/apperr"
	"github.com/starford/litlink/internal/index"
	"github.com/starford/litlink/internal/models"
	"github.com/starford/litlink/internal/parser"
	"github.com/starford/litlink/internal/storage"
)

// ErrNoLibrary is returned by operations that need the reference library
// when none is configured.
var ErrNoLibrary = errors.New("noteservice: no reference library configured")

// NoteExistsError reports that a note linked to the same item already
// occupies the target path.
type NoteExistsError struct {
	Path string
	Key  string
}

func (e *NoteExistsError) Error() string {
	return fmt.Sprintf("note linked to %s already exists: %s", e.Key, e.Path)
}

// Renderer renders items through the note templates.
type Renderer interface {
	RenderFilename(item models.RegularItem) (string, error)
	RenderContent(item models.RegularItem) (string, error)
	RenderCitation(item models.RegularItem, alt bool) (string, error)
}

// Library looks items up in the reference library.
type Library interface {
	Item(ctx context.Context, key string, groupID *int) (models.RegularItem, error)
	Annotations(ctx context.Context, item models.RegularItem) ([]models.AnnotationItem, error)
}

// MetadataCache is the subset of the metadata cache the service reads and
// feeds.
type MetadataCache interface {
	Metadata(path string) (*index.Metadata, error)
	NotesByKey(keyGroupID string) ([]index.NoteRow, error)
	IndexFile(path string, data []byte) error
}

// Note identifies a created literature note.
type Note struct {
	Path string `json:"path"`
	Key  string `json:"key"`
}

// Service coordinates templates, storage and the metadata cache.
type Service struct {
	store  storage.Provider
	cache  MetadataCache
	tpl    Renderer
	lib    Library
	folder string
	logger *slog.Logger
}

// New creates a note service writing notes under folder. lib may be nil, in
// which case only Create works.
func New(store storage.Provider, cache MetadataCache, tpl Renderer, lib Library, folder string, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		cache:  cache,
		tpl:    tpl,
		lib:    lib,
		folder: folder,
		logger: logger,
	}
}

// NotePath returns the vault path the note for item would be created at.
func (s *Service) NotePath(item models.RegularItem) (string, error) {
	name, err := s.tpl.RenderFilename(item)
	if err != nil {
		return "", err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("noteservice: empty filename for %s: %w", item.Key(), apperr.ErrInvalidInput)
	}
	return path.Join(s.folder, name+".md"), nil
}

// Create renders item (with annots when non-nil) into a new note.
//
// When a file already exists at the target path and is linked to the same
// item, Create fails with *NoteExistsError. A file linked elsewhere or not
// linked at all is left to the exclusive create, which fails with
// apperr.ErrAlreadyExists.
func (s *Service) Create(ctx context.Context, item models.RegularItem, annots []models.AnnotationItem) (*Note, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if item.Key() == "" {
		return nil, fmt.Errorf("noteservice: item key is required: %w", apperr.ErrInvalidInput)
	}
	target, err := s.NotePath(item)
	if err != nil {
		return nil, err
	}
	id := item.KeyGroupID()

	linked, found, err := s.linkedTo(target)
	if err != nil {
		return nil, err
	}
	if found && linked == id {
		return nil, &NoteExistsError{Path: target, Key: item.Key()}
	}

	if annots != nil {
		item = item.WithAnnotations(annots)
	}
	content, err := s.tpl.RenderContent(item)
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(target, []byte(content)); err != nil {
		return nil, err
	}
	if err := s.cache.IndexFile(target, []byte(content)); err != nil {
		s.logger.Warn("noteservice: index failed", slog.String("path", target), slog.String("error", err.Error()))
	}
	s.logger.Info("noteservice: note created", slog.String("path", target), slog.String("key", id))
	return &Note{Path: target, Key: id}, nil
}

// linkedTo returns the zotero-key of the file at p. found is false when
// nothing exists there; an unlinked file reports found with an empty key.
// Uncached files are parsed directly.
func (s *Service) linkedTo(p string) (key string, found bool, err error) {
	exists, err := s.store.Exists(p)
	if err != nil || !exists {
		return "", false, err
	}
	meta, err := s.cache.Metadata(p)
	if err != nil {
		return "", false, err
	}
	if meta != nil {
		key, _ = meta.Frontmatter[parser.ZoteroKeyField].(string)
		return key, true, nil
	}
	data, err := s.store.Read(p)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	res, err := parser.Parse(data)
	if err != nil {
		return "", false, err
	}
	return res.ZoteroKey, true, nil
}

// CreateFromLibrary looks key up in the library and creates its note,
// including annotations when withAnnotations is set.
func (s *Service) CreateFromLibrary(ctx context.Context, key string, groupID *int, withAnnotations bool) (*Note, error) {
	item, err := s.Item(ctx, key, groupID)
	if err != nil {
		return nil, err
	}
	var annots []models.AnnotationItem
	if withAnnotations {
		annots, err = s.lib.Annotations(ctx, item)
		if err != nil {
			return nil, err
		}
	}
	return s.Create(ctx, item, annots)
}

// Item returns the library item for key.
func (s *Service) Item(ctx context.Context, key string, groupID *int) (models.RegularItem, error) {
	if s.lib == nil {
		return nil, ErrNoLibrary
	}
	if key == "" {
		return nil, fmt.Errorf("noteservice: empty item key: %w", apperr.ErrInvalidInput)
	}
	return s.lib.Item(ctx, key, groupID)
}

// LinkedNotes returns the vault paths of notes linked to key.
func (s *Service) LinkedNotes(_ context.Context, key string, groupID *int) ([]string, error) {
	var g any
	if groupID != nil {
		g = *groupID
	}
	rows, err := s.cache.NotesByKey(models.KeyGroupID(key, g))
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(rows))
	for _, r := range rows {
		paths = append(paths, r.Path)
	}
	return paths, nil
}

// Citation renders the Markdown citation of key, the alternative form when
// alt is set.
func (s *Service) Citation(ctx context.Context, key string, groupID *int, alt bool) (string, error) {
	item, err := s.Item(ctx, key, groupID)
	if err != nil {
		return "", err
	}
	return s.tpl.RenderCitation(item, alt)
}
