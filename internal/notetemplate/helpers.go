package notetemplate

import (
	"fmt"
	"net/url"
	"strings"
	"text/template"

	"github.com/starford/litlink/internal/models"
)

// Scheme is the URL scheme of reference-manager deep links.
const Scheme = "zotero"

// helpers returns the function map bound to e. It is built once per engine.
func (e *Engine) helpers() template.FuncMap {
	return template.FuncMap{
		"backlink": backlink,
		"coalesce": coalesce,
		"filename": filename,
		"blockID":  blockID,
		"include":  e.include,
	}
}

// backlink returns a deep link selecting a regular item or opening the PDF
// at an annotation. Any other value yields "".
func backlink(v any) string {
	switch it := models.AsItem(v).(type) {
	case models.RegularItem:
		return Scheme + "://select/" + libraryTarget(it) + "/items/" + it.Key()
	case models.AnnotationItem:
		link := Scheme + "://open-pdf/" + libraryTarget(it) + "/items/" + it.ParentItem()
		var query []string
		if page, ok := it.PageIndex(); ok {
			query = append(query, "page="+page)
		}
		if key := it.Key(); key != "" {
			query = append(query, "annotation="+url.QueryEscape(key))
		}
		if len(query) > 0 {
			link += "?" + strings.Join(query, "&")
		}
		return link
	}
	return ""
}

func libraryTarget(m map[string]any) string {
	if g, ok := models.Number(m["groupID"]); ok {
		return "groups/" + g
	}
	return "library"
}

// coalesce returns the first truthy value, or nil. Truth follows the
// template language: empty slices and maps are false, so {{coalesce .tags "x"}}
// yields "x" for an item without tags.
func coalesce(values ...any) any {
	for _, v := range values {
		if truth, ok := template.IsTrue(v); ok && truth {
			return v
		}
	}
	return nil
}

// filename sanitizes rendered text into a safe file name.
func filename(v any) string {
	return filenamify(toString(v), "_")
}

// blockID returns the block reference id of an annotation, "" otherwise.
func blockID(v any) string {
	a, ok := models.AsItem(v).(models.AnnotationItem)
	if !ok {
		return ""
	}
	id := a.KeyGroupID()
	if page, ok := a.PageIndex(); ok {
		id += "p" + page
	}
	return id
}

// include renders the partial registered under name against data.
func (e *Engine) include(name string, data any) (string, error) {
	kind := Kind(name)
	if !kind.IsPartial() {
		return "", fmt.Errorf("no partial named %q", name)
	}
	if kind == KindAnnots {
		if annots, ok := asAnnotations(data); ok {
			data = annotsScope(annots)
		}
	}
	return e.execute(kind, data)
}

func toString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}
