package notetemplate

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/litlink/internal/apperr"
	"github.com/starford/litlink/internal/models"
)

func sampleItem() models.RegularItem {
	return models.RegularItem{"key": "ABCD1234", "itemType": "book", "title": "Foo"}
}

func sampleAnnots() []models.AnnotationItem {
	return []models.AnnotationItem{
		{
			"itemType": "annotation", "parentItem": "PDF1", "key": "ANN1",
			"annotationText": "first", "annotationPageLabel": "4",
			"annotationPosition": map[string]any{"pageIndex": 3},
		},
		{
			"itemType": "annotation", "parentItem": "PDF1", "key": "ANN2",
			"annotationText": "second", "annotationComment": "note",
		},
	}
}

func TestNew_DefaultsCompile(t *testing.T) {
	e := New()
	for _, k := range Kinds {
		src, err := e.TemplateField(k)
		if err != nil {
			t.Fatalf("TemplateField(%s): %v", k, err)
		}
		if src != defaultTemplates[k] {
			t.Errorf("%s not seeded from defaults", k)
		}
	}
}

func TestRenderFilename_Default(t *testing.T) {
	got, err := New().RenderFilename(sampleItem())
	if err != nil {
		t.Fatalf("RenderFilename: %v", err)
	}
	if got == "" {
		t.Fatal("filename is empty")
	}
	if strings.ContainsAny(got, `<>:"/\|?*`) {
		t.Errorf("filename %q contains illegal characters", got)
	}
	if got != "Foo" {
		t.Errorf("filename = %q, want Foo", got)
	}
}

func TestRenderFilename_SanitizesTitle(t *testing.T) {
	item := models.RegularItem{"key": "K", "title": "What? A/B: test"}
	got, err := New().RenderFilename(item)
	if err != nil {
		t.Fatal(err)
	}
	if got != "What_ A_B_ test" {
		t.Errorf("filename = %q", got)
	}
}

func TestRenderContent_WithFrontmatter(t *testing.T) {
	e := New()
	got, err := e.RenderContent(sampleItem())
	if err != nil {
		t.Fatalf("RenderContent: %v", err)
	}
	wantPrefix := "---\nzotero-key: ABCD1234\ntitle: Foo\n---\n# Foo\n"
	if !strings.HasPrefix(got, wantPrefix) {
		t.Errorf("content =\n%s\nwant prefix\n%s", got, wantPrefix)
	}
	if !strings.Contains(got, "zotero://select/library/items/ABCD1234") {
		t.Errorf("content misses backlink:\n%s", got)
	}
}

func TestRenderContent_NoFrontmatterIsBodyOnly(t *testing.T) {
	e := New()
	if err := e.SetFrontmatter(FieldsInFrontmatter{"publisher": CopyField()}); err != nil {
		t.Fatal(err)
	}
	item := sampleItem()
	got, err := e.RenderContent(item)
	if err != nil {
		t.Fatal(err)
	}
	body, err := e.execute(KindContent, item)
	if err != nil {
		t.Fatal(err)
	}
	if got != body {
		t.Errorf("content with no front-matter fields differs from body:\n%q\n%q", got, body)
	}
	if strings.HasPrefix(got, "---") {
		t.Error("unexpected front-matter header")
	}

	if err := e.SetFrontmatter(FieldsInFrontmatter{}); err != nil {
		t.Fatal(err)
	}
	empty, _ := e.RenderContent(item)
	if empty != body {
		t.Error("empty mapping should render body only")
	}
}

func TestRenderContent_AliasFanOut(t *testing.T) {
	e := New()
	if err := e.SetFrontmatter(FieldsInFrontmatter{"status": AliasField("state", "status_alias")}); err != nil {
		t.Fatal(err)
	}
	item := sampleItem()
	item["status"] = "done"
	got, err := e.RenderContent(item)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "state: done\n") || !strings.Contains(got, "status_alias: done\n") {
		t.Errorf("aliases missing:\n%s", got)
	}
}

func TestRenderContent_WithAnnotations(t *testing.T) {
	item := sampleItem().WithAnnotations(sampleAnnots())
	got, err := New().RenderContent(item)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"## Annotations",
		"- first ([p. 4](zotero://open-pdf/library/items/PDF1?page=3&annotation=ANN1)) ^ANN1p3",
		"- second ([p. ?](zotero://open-pdf/library/items/PDF1?annotation=ANN2)): note ^ANN2",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("content misses %q:\n%s", want, got)
		}
	}
}

func TestRender_ContentRequiresRegularItem(t *testing.T) {
	_, err := New().Render(KindContent, models.AnnotationItem{"key": "A"})
	if !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestRender_AnnotsWrapsSequence(t *testing.T) {
	e := New()
	if err := e.SetTemplateField(KindAnnots, `{{len .annotations}}`); err != nil {
		t.Fatal(err)
	}
	got, err := e.Render(KindAnnots, sampleAnnots())
	if err != nil {
		t.Fatal(err)
	}
	if got != "2" {
		t.Errorf("annots = %q, want 2", got)
	}

	raw := []any{map[string]any{"itemType": "annotation", "parentItem": "P", "key": "A"}}
	got, err = e.Render(KindAnnots, raw)
	if err != nil || got != "1" {
		t.Errorf("raw annots = %q, %v", got, err)
	}

	if _, err := e.Render(KindAnnots, []any{"nope"}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestRender_UnknownKind(t *testing.T) {
	if _, err := New().Render(Kind("nope"), nil); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("err = %v, want ErrUnknownKind", err)
	}
}

func TestRenderCitation(t *testing.T) {
	e := New()
	item := sampleItem()
	item["citekey"] = "foo2020"
	cite, _ := e.RenderCitation(item, false)
	alt, _ := e.RenderCitation(item, true)
	if cite != "[@foo2020]" || alt != "@foo2020" {
		t.Errorf("cite = %q, alt = %q", cite, alt)
	}
}

func TestPartialRecompileSeenByIncluder(t *testing.T) {
	e := New()
	if err := e.SetTemplateField(KindMdCite, `<{{include "annotation" .}}>`); err != nil {
		t.Fatal(err)
	}
	if err := e.SetTemplateField(KindAnnotation, `A:{{.key}}`); err != nil {
		t.Fatal(err)
	}
	got, err := e.Render(KindMdCite, models.RegularItem{"key": "K"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "<A:K>" {
		t.Errorf("got %q", got)
	}
}

func TestSetTemplateField_SkipsUnchanged(t *testing.T) {
	e := New()
	before := e.compiles.Load()
	if err := e.SetTemplateField(KindMdCite, "[{{.key}}]"); err != nil {
		t.Fatal(err)
	}
	if err := e.SetTemplateField(KindMdCite, "[{{.key}}]"); err != nil {
		t.Fatal(err)
	}
	if n := e.compiles.Load() - before; n != 1 {
		t.Errorf("compiles = %d, want 1", n)
	}
}

func TestCompile_FailureKeepsPrevious(t *testing.T) {
	e := New()
	if err := e.SetTemplateField(KindFilename, "{{"); err == nil {
		t.Fatal("expected parse error")
	}
	src, _ := e.TemplateField(KindFilename)
	if src != defaultTemplates[KindFilename] {
		t.Errorf("source changed after failed compile: %q", src)
	}
	got, err := e.RenderFilename(sampleItem())
	if err != nil || got != "Foo" {
		t.Errorf("previous renderer not kept: %q, %v", got, err)
	}
}

func TestUpdateFromJSON_RoundTrip(t *testing.T) {
	original := New()
	data, err := json.Marshal(original)
	if err != nil {
		t.Fatal(err)
	}

	restored := New()
	if err := restored.SetTemplateField(KindContent, "changed"); err != nil {
		t.Fatal(err)
	}
	if err := restored.SetFrontmatter(FieldsInFrontmatter{}); err != nil {
		t.Fatal(err)
	}
	if err := restored.UpdateFromJSON(data); err != nil {
		t.Fatalf("UpdateFromJSON: %v", err)
	}

	if diff := cmp.Diff(original.ToJSON(), restored.ToJSON(), cmp.AllowUnexported(FieldMapping{})); diff != "" {
		t.Errorf("engine state mismatch (-want +got):\n%s", diff)
	}

	item := sampleItem().WithAnnotations(sampleAnnots())
	inputs := map[Kind]any{
		KindFilename:   item,
		KindContent:    item,
		KindAnnotation: sampleAnnots()[0],
		KindAnnots:     sampleAnnots(),
		KindMdCite:     item,
		KindAltMdCite:  item,
	}
	for k, in := range inputs {
		want, err := original.Render(k, in)
		if err != nil {
			t.Fatalf("%s: %v", k, err)
		}
		got, err := restored.Render(k, in)
		if err != nil {
			t.Fatalf("%s: %v", k, err)
		}
		if got != want {
			t.Errorf("%s render differs:\n%q\n%q", k, got, want)
		}
	}
}

func TestUpdateFromJSON_OverlaysPresentFields(t *testing.T) {
	e := New()
	if err := e.UpdateFromJSON([]byte(`{"mdCite": "cite:{{.key}}"}`)); err != nil {
		t.Fatal(err)
	}
	src, _ := e.TemplateField(KindMdCite)
	if src != "cite:{{.key}}" {
		t.Errorf("mdCite = %q", src)
	}
	content, _ := e.TemplateField(KindContent)
	if content != defaultTemplates[KindContent] {
		t.Error("absent field was overwritten")
	}
	if len(e.Frontmatter()) != len(DefaultFrontmatter()) {
		t.Error("absent frontmatter was overwritten")
	}
}

func TestUpdateFromJSON_FailureLeavesEngineUntouched(t *testing.T) {
	e := New()
	err := e.UpdateFromJSON([]byte(`{"mdCite": "new", "content": "{{"}`))
	if err == nil {
		t.Fatal("expected compile error")
	}
	src, _ := e.TemplateField(KindMdCite)
	if src != defaultTemplates[KindMdCite] {
		t.Errorf("mdCite changed despite failure: %q", src)
	}

	if err := e.UpdateFromJSON([]byte(`{"mdCite": "new", "frontmatter": {"title": false}}`)); err == nil {
		t.Fatal("expected frontmatter error")
	}
	src, _ = e.TemplateField(KindMdCite)
	if src != defaultTemplates[KindMdCite] {
		t.Errorf("mdCite changed despite invalid mapping: %q", src)
	}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("altMdCite")
	if err != nil || k != KindAltMdCite {
		t.Errorf("ParseKind = %q, %v", k, err)
	}
	if _, err := ParseKind("body"); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("err = %v", err)
	}
}

func TestIncludeCycleRejected(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
		src  string
	}{
		{"self", KindAnnotation, `{{include "annotation" .}}`},
		{"mutual", KindAnnotation, `{{with .x}}{{include "annots" .}}{{end}}`},
		{"nested define", KindAnnots, `{{define "row"}}{{include "annots" .}}{{end}}{{template "row" .}}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := New()
			before, _ := e.TemplateField(tc.kind)
			err := e.SetTemplateField(tc.kind, tc.src)
			if err == nil || !strings.Contains(err.Error(), "include cycle") {
				t.Fatalf("err = %v, want include cycle", err)
			}
			if after, _ := e.TemplateField(tc.kind); after != before {
				t.Errorf("template replaced despite cycle: %q", after)
			}
		})
	}
}

func TestIncludeNeedsLiteralName(t *testing.T) {
	e := New()
	err := e.SetTemplateField(KindMdCite, `{{$n := "annotation"}}{{include $n .}}`)
	if err == nil || !strings.Contains(err.Error(), "quoted partial name") {
		t.Fatalf("err = %v", err)
	}
}

func TestUpdateFromJSON_RejectsCycle(t *testing.T) {
	e := New()
	before := e.ToJSON()
	err := e.UpdateFromJSON([]byte(`{"annotation": "{{include \"annots\" .}}", "content": "changed"}`))
	if err == nil {
		t.Fatal("expected cycle error")
	}
	if diff := cmp.Diff(before, e.ToJSON(), cmp.AllowUnexported(FieldMapping{})); diff != "" {
		t.Errorf("engine changed (-want +got):\n%s", diff)
	}
}
