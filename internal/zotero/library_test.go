package zotero

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/litlink/internal/apperr"
	"github.com/starford/litlink/internal/testutil"
)

func openFixture(t *testing.T) *Library {
	t.Helper()
	lib, err := OpenLibrary(testutil.ZoteroLibrary(t))
	if err != nil {
		t.Fatalf("OpenLibrary: %v", err)
	}
	t.Cleanup(func() { lib.Close() })
	return lib
}

func TestItem_UserLibrary(t *testing.T) {
	lib := openFixture(t)
	item, err := lib.Item(context.Background(), testutil.ArticleKey, nil)
	if err != nil {
		t.Fatalf("Item: %v", err)
	}
	if item["title"] != "Attention Is All You Need" || item["DOI"] != "10.1000/xyz" {
		t.Errorf("fields = %v", item)
	}
	if item["itemType"] != "journalArticle" {
		t.Errorf("itemType = %v", item["itemType"])
	}
	if _, ok := item.GroupID(); ok {
		t.Error("user library item must not carry a group id")
	}
	if got := item.KeyGroupID(); got != testutil.ArticleKey {
		t.Errorf("KeyGroupID = %q", got)
	}
	want := []any{
		map[string]any{"creatorType": "author", "firstName": "Ashish", "lastName": "Vaswani"},
		map[string]any{"creatorType": "author", "name": "Google Brain"},
	}
	if diff := cmp.Diff(want, item["creators"]); diff != "" {
		t.Errorf("creators mismatch (-want +got):\n%s", diff)
	}
}

func TestItem_GroupLibrary(t *testing.T) {
	lib := openFixture(t)
	g := testutil.GroupID
	item, err := lib.Item(context.Background(), testutil.GroupArticle, &g)
	if err != nil {
		t.Fatalf("Item: %v", err)
	}
	if got := item.KeyGroupID(); got != "GRP00001g4711" {
		t.Errorf("KeyGroupID = %q", got)
	}
	if _, err := lib.Item(context.Background(), testutil.GroupArticle, nil); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("group item found in user library: %v", err)
	}
}

func TestItem_NotFound(t *testing.T) {
	lib := openFixture(t)
	unknownGroup := 1
	cases := []struct {
		name    string
		key     string
		groupID *int
	}{
		{"missing", "NOPE0000", nil},
		{"attachment", testutil.AttachmentKey, nil},
		{"note", "NOTE0001", nil},
		{"trashed", testutil.DeletedKey, nil},
		{"unknown group", testutil.ArticleKey, &unknownGroup},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := lib.Item(context.Background(), tc.key, tc.groupID)
			if !errors.Is(err, apperr.ErrNotFound) {
				t.Errorf("err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestAnnotations(t *testing.T) {
	lib := openFixture(t)
	ctx := context.Background()
	item, err := lib.Item(ctx, testutil.ArticleKey, nil)
	if err != nil {
		t.Fatal(err)
	}
	annots, err := lib.Annotations(ctx, item)
	if err != nil {
		t.Fatalf("Annotations: %v", err)
	}
	if len(annots) != 2 {
		t.Fatalf("len = %d, want 2", len(annots))
	}

	first, second := annots[0], annots[1]
	if first.Key() != "ANNO0001" || second.Key() != "ANNO0002" {
		t.Errorf("order = %s, %s", first.Key(), second.Key())
	}
	if first.ParentItem() != testutil.AttachmentKey {
		t.Errorf("parentItem = %q", first.ParentItem())
	}
	if first["annotationType"] != "highlight" || first["annotationComment"] != "key idea" {
		t.Errorf("first = %v", first)
	}
	if _, ok := second["annotationComment"]; ok {
		t.Error("NULL comment must be absent")
	}
	if p, ok := second.PageIndex(); !ok || p != "1" {
		t.Errorf("PageIndex = %q, %v", p, ok)
	}
}

func TestAnnotations_None(t *testing.T) {
	lib := openFixture(t)
	g := testutil.GroupID
	item, err := lib.Item(context.Background(), testutil.GroupArticle, &g)
	if err != nil {
		t.Fatal(err)
	}
	annots, err := lib.Annotations(context.Background(), item)
	if err != nil {
		t.Fatalf("Annotations: %v", err)
	}
	if len(annots) != 0 {
		t.Errorf("len = %d, want 0", len(annots))
	}
}
