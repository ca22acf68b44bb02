package notetemplate

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/litlink/internal/models"
)

func TestBacklink_RegularItem(t *testing.T) {
	tests := []struct {
		name string
		item models.RegularItem
		want string
	}{
		{"user library", models.RegularItem{"key": "ABCD1234", "itemType": "book"}, "zotero://select/library/items/ABCD1234"},
		{"group library", models.RegularItem{"key": "ABCD1234", "itemType": "book", "groupID": 42}, "zotero://select/groups/42/items/ABCD1234"},
		{"non numeric group", models.RegularItem{"key": "K", "groupID": "42"}, "zotero://select/library/items/K"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := backlink(tt.item); got != tt.want {
				t.Errorf("backlink = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBacklink_Annotation(t *testing.T) {
	page := map[string]any{"pageIndex": 3}
	tests := []struct {
		name string
		item models.AnnotationItem
		want string
	}{
		{
			"page and key",
			models.AnnotationItem{"itemType": "annotation", "parentItem": "PDF1", "key": "ANN1", "annotationPosition": page},
			"zotero://open-pdf/library/items/PDF1?page=3&annotation=ANN1",
		},
		{
			"key only",
			models.AnnotationItem{"itemType": "annotation", "parentItem": "PDF1", "key": "ANN1"},
			"zotero://open-pdf/library/items/PDF1?annotation=ANN1",
		},
		{
			"fractional page",
			models.AnnotationItem{"itemType": "annotation", "parentItem": "P", "key": "A", "annotationPosition": map[string]any{"pageIndex": 2.5}},
			"zotero://open-pdf/library/items/P?page=2.5&annotation=A",
		},
		{
			"page only in group",
			models.AnnotationItem{"itemType": "annotation", "parentItem": "PDF1", "groupID": 7.0, "annotationPosition": page},
			"zotero://open-pdf/groups/7/items/PDF1?page=3",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := backlink(tt.item); got != tt.want {
				t.Errorf("backlink = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBacklink_RawMapIsClassified(t *testing.T) {
	got := backlink(map[string]any{"key": "K", "itemType": "journalArticle"})
	if got != "zotero://select/library/items/K" {
		t.Errorf("backlink = %q", got)
	}
}

func TestBacklink_MalformedDegradesToEmpty(t *testing.T) {
	for _, v := range []any{nil, "text", 12, map[string]any{"itemType": "note", "key": "K"}, models.Unknown{}} {
		if got := backlink(v); got != "" {
			t.Errorf("backlink(%v) = %q, want empty", v, got)
		}
	}
}

func TestCoalesce(t *testing.T) {
	if got := coalesce(0, "", nil, "x", "y"); got != "x" {
		t.Errorf("coalesce = %v, want x", got)
	}
	if got := coalesce(0, "", nil); got != nil {
		t.Errorf("coalesce = %v, want nil", got)
	}
	if got := coalesce(); got != nil {
		t.Errorf("coalesce() = %v, want nil", got)
	}
	if got := coalesce(false, 3); got != 3 {
		t.Errorf("coalesce = %v, want 3", got)
	}
}

func TestBlockID(t *testing.T) {
	a := models.AnnotationItem{
		"itemType": "annotation", "parentItem": "P", "key": "ANN1",
		"groupID": 5, "annotationPosition": map[string]any{"pageIndex": 9},
	}
	if got := blockID(a); got != "ANN1g5p9" {
		t.Errorf("blockID = %q", got)
	}
	noPage := models.AnnotationItem{"itemType": "annotation", "parentItem": "P", "key": "ANN1"}
	if got := blockID(noPage); got != "ANN1" {
		t.Errorf("blockID = %q", got)
	}
	if got := blockID(models.RegularItem{"key": "K"}); got != "" {
		t.Errorf("blockID on regular item = %q, want empty", got)
	}
}

func TestFilenameHelper(t *testing.T) {
	if got := filename("a/b: c?"); got != "a_b_ c" {
		t.Errorf("filename = %q", got)
	}
	if got := filename(nil); got != "" {
		t.Errorf("filename(nil) = %q", got)
	}
	if got := filename(2024); got != "2024" {
		t.Errorf("filename(2024) = %q", got)
	}
}

func TestInclude_UnknownPartial(t *testing.T) {
	e := New()
	_, err := e.include("content", models.RegularItem{"key": "K"})
	if err == nil || !strings.Contains(err.Error(), "no partial") {
		t.Fatalf("expected partial error, got %v", err)
	}
}

func TestCoalesce_EmptyCollectionsAreFalse(t *testing.T) {
	if got := coalesce([]any{}, map[string]any{}, "x"); got != "x" {
		t.Errorf("coalesce = %v, want x", got)
	}
	tags := []any{"ml"}
	if got := coalesce(tags, "x"); !cmp.Equal(got, tags) {
		t.Errorf("coalesce = %v, want %v", got, tags)
	}
}

func TestBlockID_FractionalPage(t *testing.T) {
	a := models.AnnotationItem{"itemType": "annotation", "parentItem": "P", "key": "A", "annotationPosition": map[string]any{"pageIndex": 2.5}}
	if got := blockID(a); got != "Ap2.5" {
		t.Errorf("blockID = %q, want Ap2.5", got)
	}
}
