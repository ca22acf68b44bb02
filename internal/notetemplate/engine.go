// Package notetemplate compiles the user-editable note templates and renders
// items through them.
//
// Templates use text/template syntax with the helpers backlink, coalesce,
// filename, blockID and include. The annotation and annots templates are
// partials: any template may render them with {{include "annotation" .}}.
package notetemplate

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"text/template"

	"github.com/starford/litlink/internal/apperr"
	"github.com/starford/litlink/internal/models"
)

// compiled pairs a template source with its parsed form. It is immutable
// once stored.
type compiled struct {
	src  string
	tpl  *template.Template
	refs []Kind
}

// Engine holds one compiled template per kind plus the front-matter mapping.
//
// Each kind lives behind its own atomic pointer, so a recompile replaces
// source and renderer in a single store and concurrent renders always see a
// consistent pair.
type Engine struct {
	funcs       template.FuncMap
	slots       map[Kind]*atomic.Pointer[compiled]
	frontmatter atomic.Pointer[FieldsInFrontmatter]

	// mu serializes writers so an include cycle check sees what gets installed.
	mu sync.Mutex

	compiles atomic.Int64
}

// New returns an engine seeded with the built-in templates and mapping.
func New() *Engine {
	e := &Engine{slots: make(map[Kind]*atomic.Pointer[compiled], len(Kinds))}
	for _, k := range Kinds {
		e.slots[k] = new(atomic.Pointer[compiled])
	}
	e.funcs = e.helpers()

	fm := DefaultFrontmatter()
	e.frontmatter.Store(&fm)

	staged, err := e.compileSet(defaultTemplates)
	if err != nil {
		panic(fmt.Sprintf("notetemplate: built-in templates: %v", err))
	}
	e.install(staged)
	return e
}

func (e *Engine) slot(kind Kind) (*atomic.Pointer[compiled], error) {
	s, ok := e.slots[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return s, nil
}

func (e *Engine) parse(kind Kind, src string) (*compiled, error) {
	e.compiles.Add(1)
	tpl, err := template.New(string(kind)).Funcs(e.funcs).Parse(src)
	if err != nil {
		return nil, fmt.Errorf("notetemplate: compile %s: %w", kind, err)
	}
	refs, err := partialRefs(tpl)
	if err != nil {
		return nil, fmt.Errorf("notetemplate: compile %s: %w", kind, err)
	}
	return &compiled{src: src, tpl: tpl, refs: refs}, nil
}

// compileSet parses every kind from srcs without installing anything.
func (e *Engine) compileSet(srcs map[Kind]string) (map[Kind]*compiled, error) {
	staged := make(map[Kind]*compiled, len(Kinds))
	for _, k := range Kinds {
		c, err := e.parse(k, srcs[k])
		if err != nil {
			return nil, err
		}
		staged[k] = c
	}
	if err := checkIncludeCycles(staged); err != nil {
		return nil, err
	}
	return staged, nil
}

func (e *Engine) install(staged map[Kind]*compiled) {
	for k, c := range staged {
		e.slots[k].Store(c)
	}
}

func (e *Engine) sources() map[Kind]string {
	srcs := make(map[Kind]string, len(Kinds))
	for _, k := range Kinds {
		srcs[k] = e.slots[k].Load().src
	}
	return srcs
}

// Compile parses src and installs it under kind. On a parse error the
// previously installed template stays in place.
func (e *Engine) Compile(kind Kind, src string) error {
	s, err := e.slot(kind)
	if err != nil {
		return err
	}
	c, err := e.parse(kind, src)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	set := make(map[Kind]*compiled, len(e.slots))
	for k, other := range e.slots {
		set[k] = other.Load()
	}
	set[kind] = c
	if err := checkIncludeCycles(set); err != nil {
		return err
	}
	s.Store(c)
	return nil
}

// CompileAll recompiles every kind from its stored source.
func (e *Engine) CompileAll() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	staged, err := e.compileSet(e.sources())
	if err != nil {
		return err
	}
	e.install(staged)
	return nil
}

// SetTemplateField replaces the template of kind unless src is unchanged.
func (e *Engine) SetTemplateField(kind Kind, src string) error {
	s, err := e.slot(kind)
	if err != nil {
		return err
	}
	if s.Load().src == src {
		return nil
	}
	return e.Compile(kind, src)
}

// TemplateField returns the stored source of kind.
func (e *Engine) TemplateField(kind Kind) (string, error) {
	s, err := e.slot(kind)
	if err != nil {
		return "", err
	}
	return s.Load().src, nil
}

// Frontmatter returns a copy of the front-matter field mapping.
func (e *Engine) Frontmatter() FieldsInFrontmatter {
	return e.frontmatter.Load().clone()
}

// SetFrontmatter validates and installs a new front-matter field mapping.
func (e *Engine) SetFrontmatter(fields FieldsInFrontmatter) error {
	if err := fields.Validate(); err != nil {
		return err
	}
	fm := fields.clone()
	e.frontmatter.Store(&fm)
	return nil
}

// TemplateJSON is the persisted form of an engine.
type TemplateJSON struct {
	Filename    string              `json:"filename"`
	Content     string              `json:"content"`
	Annotation  string              `json:"annotation"`
	Annots      string              `json:"annots"`
	MdCite      string              `json:"mdCite"`
	AltMdCite   string              `json:"altMdCite"`
	Frontmatter FieldsInFrontmatter `json:"frontmatter"`
}

// templatePatch carries the fields present in a persisted document.
type templatePatch struct {
	Filename    *string              `json:"filename"`
	Content     *string              `json:"content"`
	Annotation  *string              `json:"annotation"`
	Annots      *string              `json:"annots"`
	MdCite      *string              `json:"mdCite"`
	AltMdCite   *string              `json:"altMdCite"`
	Frontmatter *FieldsInFrontmatter `json:"frontmatter"`
}

// ToJSON snapshots the engine.
func (e *Engine) ToJSON() TemplateJSON {
	srcs := e.sources()
	return TemplateJSON{
		Filename:    srcs[KindFilename],
		Content:     srcs[KindContent],
		Annotation:  srcs[KindAnnotation],
		Annots:      srcs[KindAnnots],
		MdCite:      srcs[KindMdCite],
		AltMdCite:   srcs[KindAltMdCite],
		Frontmatter: e.Frontmatter(),
	}
}

// MarshalJSON implements json.Marshaler.
func (e *Engine) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.ToJSON())
}

// UpdateFromJSON overlays the fields present in data onto the engine and
// recompiles everything. Nothing is installed unless every template
// compiles and the mapping is valid.
func (e *Engine) UpdateFromJSON(data []byte) error {
	var p templatePatch
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("notetemplate: decode settings: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	srcs := e.sources()
	overlay := func(kind Kind, v *string) {
		if v != nil {
			srcs[kind] = *v
		}
	}
	overlay(KindFilename, p.Filename)
	overlay(KindContent, p.Content)
	overlay(KindAnnotation, p.Annotation)
	overlay(KindAnnots, p.Annots)
	overlay(KindMdCite, p.MdCite)
	overlay(KindAltMdCite, p.AltMdCite)

	if p.Frontmatter != nil {
		if err := p.Frontmatter.Validate(); err != nil {
			return err
		}
	}
	staged, err := e.compileSet(srcs)
	if err != nil {
		return err
	}
	if p.Frontmatter != nil {
		fm := p.Frontmatter.clone()
		e.frontmatter.Store(&fm)
	}
	e.install(staged)
	return nil
}

func (e *Engine) execute(kind Kind, data any) (string, error) {
	s, err := e.slot(kind)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := s.Load().tpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("notetemplate: render %s: %w", kind, err)
	}
	return b.String(), nil
}

// Render executes the template of kind against data. Content renders gain
// a front-matter header; annots renders expect an annotation sequence.
func (e *Engine) Render(kind Kind, data any) (string, error) {
	switch kind {
	case KindContent:
		item, ok := models.AsItem(data).(models.RegularItem)
		if !ok {
			return "", fmt.Errorf("notetemplate: render content: %w: regular item required", apperr.ErrInvalidInput)
		}
		return e.renderContent(item)
	case KindAnnots:
		annots, ok := asAnnotations(data)
		if !ok {
			return "", fmt.Errorf("notetemplate: render annots: %w: annotation list required", apperr.ErrInvalidInput)
		}
		return e.execute(KindAnnots, annotsScope(annots))
	}
	return e.execute(kind, data)
}

func (e *Engine) renderContent(item models.RegularItem) (string, error) {
	body, err := e.execute(KindContent, item)
	if err != nil {
		return "", err
	}
	fm, ok := DeriveFrontmatter(item, *e.frontmatter.Load())
	if !ok {
		return body, nil
	}
	return Stringify(body, fm)
}

// RenderFilename renders the note file name of item.
func (e *Engine) RenderFilename(item models.RegularItem) (string, error) {
	return e.execute(KindFilename, item)
}

// RenderContent renders the note document of item, including front-matter.
func (e *Engine) RenderContent(item models.RegularItem) (string, error) {
	return e.renderContent(item)
}

// RenderAnnotation renders a single annotation.
func (e *Engine) RenderAnnotation(a models.AnnotationItem) (string, error) {
	return e.execute(KindAnnotation, a)
}

// RenderAnnots renders an annotation list.
func (e *Engine) RenderAnnots(annots []models.AnnotationItem) (string, error) {
	return e.execute(KindAnnots, annotsScope(annots))
}

// RenderCitation renders the Markdown citation of item, the alternative
// form when alt is set.
func (e *Engine) RenderCitation(item models.RegularItem, alt bool) (string, error) {
	if alt {
		return e.execute(KindAltMdCite, item)
	}
	return e.execute(KindMdCite, item)
}

func annotsScope(annots []models.AnnotationItem) map[string]any {
	return map[string]any{"annotations": annots}
}

func asAnnotations(data any) ([]models.AnnotationItem, bool) {
	switch v := data.(type) {
	case []models.AnnotationItem:
		return v, true
	case []any:
		return models.ClassifyAnnotations(v)
	}
	return nil, false
}
