package noteservice

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/litlink/internal/apperr"
	"github.com/starford/litlink/internal/models"
	"github.com/starford/litlink/internal/notetemplate"
	"github.com/starford/litlink/internal/storage"
	"github.com/starford/litlink/internal/testutil"
	"github.com/starford/litlink/internal/zotero"
)

const folder = "Literature"

type env struct {
	svc   *Service
	store *storage.FS
	tpl   *notetemplate.Engine
}

func newEnv(t *testing.T) env {
	t.Helper()
	_, store := testutil.TestVault(t)
	db := testutil.TestDB(t)
	lib, err := zotero.OpenLibrary(testutil.ZoteroLibrary(t))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { lib.Close() })
	tpl := notetemplate.New()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return env{svc: New(store, db, tpl, lib, folder, logger), store: store, tpl: tpl}
}

func article() models.RegularItem {
	return models.RegularItem{"key": "ABCD1234", "itemType": "journalArticle", "title": "Foo"}
}

func TestCreate(t *testing.T) {
	e := newEnv(t)
	note, err := e.svc.Create(context.Background(), article(), nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	want := &Note{Path: "Literature/Foo.md", Key: "ABCD1234"}
	if diff := cmp.Diff(want, note); diff != "" {
		t.Errorf("note mismatch (-want +got):\n%s", diff)
	}
	data, err := e.store.Read(note.Path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "---\nzotero-key: ABCD1234\ntitle: Foo\n---\n# Foo\n") {
		t.Errorf("content = %q", data)
	}

	paths, err := e.svc.LinkedNotes(context.Background(), "ABCD1234", nil)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"Literature/Foo.md"}, paths); diff != "" {
		t.Errorf("linked notes mismatch (-want +got):\n%s", diff)
	}
}

func TestCreate_SameItemTwice(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	if _, err := e.svc.Create(ctx, article(), nil); err != nil {
		t.Fatal(err)
	}
	_, err := e.svc.Create(ctx, article(), nil)
	var exists *NoteExistsError
	if !errors.As(err, &exists) {
		t.Fatalf("err = %v, want *NoteExistsError", err)
	}
	if exists.Path != "Literature/Foo.md" || exists.Key != "ABCD1234" {
		t.Errorf("error = %+v", exists)
	}
	if got := exists.Error(); got != "note linked to ABCD1234 already exists: Literature/Foo.md" {
		t.Errorf("message = %q", got)
	}
}

func TestCreate_CollisionWithOtherNote(t *testing.T) {
	cases := []struct {
		name     string
		existing string
	}{
		{"linked to another item", "---\nzotero-key: ZZZZ9999\n---\nother"},
		{"unlinked", "# Foo\nhand written"},
		{"same key other group", "---\nzotero-key: ABCD1234g7\n---\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t)
			// Not indexed: the service must read the file itself.
			if err := e.store.Write("Literature/Foo.md", []byte(tc.existing)); err != nil {
				t.Fatal(err)
			}
			_, err := e.svc.Create(context.Background(), article(), nil)
			var exists *NoteExistsError
			if errors.As(err, &exists) {
				t.Fatalf("unexpected NoteExistsError: %v", err)
			}
			if !errors.Is(err, apperr.ErrAlreadyExists) {
				t.Fatalf("err = %v, want ErrAlreadyExists", err)
			}
			data, _ := e.store.Read("Literature/Foo.md")
			if string(data) != tc.existing {
				t.Error("existing note was modified")
			}
		})
	}
}

func TestCreate_EmptyKey(t *testing.T) {
	e := newEnv(t)
	item := models.RegularItem{"key": "", "itemType": "book", "title": "Bar"}
	note, err := e.svc.Create(context.Background(), item, nil)
	if !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("note = %v, err = %v, want ErrInvalidInput", note, err)
	}
	var exists *NoteExistsError
	if errors.As(err, &exists) {
		t.Errorf("empty key reported as existing note: %v", err)
	}
	if ok, _ := e.store.Exists("Literature/Bar.md"); ok {
		t.Error("note written for an item without key")
	}
}

func TestLinkedTo(t *testing.T) {
	e := newEnv(t)
	_ = e.store.Write("Literature/linked.md", []byte("---\nzotero-key: ABCD1234\n---\n"))
	_ = e.store.Write("Literature/plain.md", []byte("# Plain\n"))

	cases := []struct {
		path      string
		wantKey   string
		wantFound bool
	}{
		{"Literature/missing.md", "", false},
		{"Literature/plain.md", "", true},
		{"Literature/linked.md", "ABCD1234", true},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			key, found, err := e.svc.linkedTo(tc.path)
			if err != nil {
				t.Fatal(err)
			}
			if key != tc.wantKey || found != tc.wantFound {
				t.Errorf("linkedTo = (%q, %v), want (%q, %v)", key, found, tc.wantKey, tc.wantFound)
			}
		})
	}
}

func TestCreate_RenderFailureWritesNothing(t *testing.T) {
	e := newEnv(t)
	if err := e.tpl.SetTemplateField(notetemplate.KindContent, `{{include "missing" .}}`); err != nil {
		t.Fatal(err)
	}
	if _, err := e.svc.Create(context.Background(), article(), nil); err == nil {
		t.Fatal("expected render error")
	}
	if ok, _ := e.store.Exists("Literature/Foo.md"); ok {
		t.Error("failed render left a file behind")
	}
}

func TestCreate_EmptyFilename(t *testing.T) {
	e := newEnv(t)
	if err := e.tpl.SetTemplateField(notetemplate.KindFilename, ` `); err != nil {
		t.Fatal(err)
	}
	_, err := e.svc.Create(context.Background(), article(), nil)
	if !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestCreateFromLibrary_WithAnnotations(t *testing.T) {
	e := newEnv(t)
	note, err := e.svc.CreateFromLibrary(context.Background(), testutil.ArticleKey, nil, true)
	if err != nil {
		t.Fatalf("CreateFromLibrary: %v", err)
	}
	if note.Path != "Literature/Attention Is All You Need.md" {
		t.Errorf("path = %q", note.Path)
	}
	data, _ := e.store.Read(note.Path)
	content := string(data)
	for _, want := range []string{
		"doi: 10.1000/xyz",
		"## Annotations",
		"first passage",
		"second passage",
		"zotero://open-pdf/library/items/ATTACH01?page=0&annotation=ANNO0001",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("content missing %q:\n%s", want, content)
		}
	}
	if strings.Index(content, "first passage") > strings.Index(content, "second passage") {
		t.Error("annotations out of order")
	}
}

func TestCreateFromLibrary_Group(t *testing.T) {
	e := newEnv(t)
	g := testutil.GroupID
	note, err := e.svc.CreateFromLibrary(context.Background(), testutil.GroupArticle, &g, false)
	if err != nil {
		t.Fatalf("CreateFromLibrary: %v", err)
	}
	if note.Key != "GRP00001g4711" {
		t.Errorf("key = %q", note.Key)
	}
	paths, _ := e.svc.LinkedNotes(context.Background(), testutil.GroupArticle, &g)
	if len(paths) != 1 {
		t.Errorf("linked notes = %v", paths)
	}
	if paths, _ := e.svc.LinkedNotes(context.Background(), testutil.GroupArticle, nil); len(paths) != 0 {
		t.Errorf("group note linked to user library key: %v", paths)
	}
}

func TestCreateFromLibrary_NotFound(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.CreateFromLibrary(context.Background(), "NOPE0000", nil, true)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestNoLibrary(t *testing.T) {
	_, store := testutil.TestVault(t)
	svc := New(store, testutil.TestDB(t), notetemplate.New(), nil, folder, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	if _, err := svc.Citation(context.Background(), "ABCD1234", nil, false); !errors.Is(err, ErrNoLibrary) {
		t.Errorf("err = %v, want ErrNoLibrary", err)
	}
	if _, err := svc.Create(context.Background(), article(), nil); err != nil {
		t.Errorf("Create without library: %v", err)
	}
}

func TestCitation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	got, err := e.svc.Citation(ctx, testutil.ArticleKey, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if got != "[@ABCD1234]" {
		t.Errorf("citation = %q", got)
	}
	got, _ = e.svc.Citation(ctx, testutil.ArticleKey, nil, true)
	if got != "@ABCD1234" {
		t.Errorf("alt citation = %q", got)
	}
}
