package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/litlink/internal/apperr"
	"github.com/starford/litlink/internal/models"
	"github.com/starford/litlink/internal/noteservice"
	"github.com/starford/litlink/internal/notetemplate"
	"github.com/starford/litlink/internal/sse"
)

// SettingsSaver persists the engine after a successful edit.
type SettingsSaver interface {
	Save(e *notetemplate.Engine) error
}

// Handler holds API route handlers.
type Handler struct {
	notes    *noteservice.Service
	tpl      *notetemplate.Engine
	settings SettingsSaver
	events   *sse.Broker
}

// NewHandler creates a new Handler. settings may be nil, in which case
// edits only live in memory.
func NewHandler(notes *noteservice.Service, tpl *notetemplate.Engine, settings SettingsSaver) *Handler {
	return &Handler{notes: notes, tpl: tpl, settings: settings}
}

// WithEvents publishes note and template changes to b and serves its stream
// at GET /events.
func (h *Handler) WithEvents(b *sse.Broker) *Handler {
	h.events = b
	return h
}

func (h *Handler) persist() error {
	if h.settings == nil {
		return nil
	}
	if err := h.settings.Save(h.tpl); err != nil {
		return fmt.Errorf("api: save settings: %w", err)
	}
	return nil
}

// ListTemplates handles GET /api/templates.
//
//	@Summary		Get every template and the front-matter mapping
//	@Tags			templates
//	@Produce		json
//	@Success		200	{object}	notetemplate.TemplateJSON
//	@Security		BearerAuth
//	@Router			/templates [get]
func (h *Handler) ListTemplates(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.tpl.ToJSON())
}

// GetTemplate handles GET /api/templates/{kind}.
//
//	@Summary		Get one template source
//	@Tags			templates
//	@Produce		json
//	@Param			kind	path		string	true	"Template kind"
//	@Success		200		{object}	TemplateResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/templates/{kind} [get]
func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	kind, err := notetemplate.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody(err.Error()))
		return
	}
	src, err := h.tpl.TemplateField(kind)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TemplateResponse{Kind: string(kind), Template: src})
}

// UpdateTemplate handles PUT /api/templates/{kind}.
//
//	@Summary		Replace one template
//	@Tags			templates
//	@Accept			json
//	@Produce		json
//	@Param			kind	path		string					true	"Template kind"
//	@Param			body	body		UpdateTemplateRequest	true	"New source"
//	@Success		200		{object}	TemplateResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/templates/{kind} [put]
func (h *Handler) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	kind, err := notetemplate.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody(err.Error()))
		return
	}
	var req UpdateTemplateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Template == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("template is required"))
		return
	}
	if err := h.tpl.SetTemplateField(kind, *req.Template); err != nil {
		// Parse errors keep the previous template installed.
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if err := h.persist(); err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("template updated", slog.String("kind", string(kind)))
	if h.events != nil {
		h.events.PublishTemplateUpdated(string(kind))
	}
	writeJSON(w, http.StatusOK, TemplateResponse{Kind: string(kind), Template: *req.Template})
}

// UpdateFrontmatter handles PUT /api/frontmatter.
//
//	@Summary		Replace the front-matter field mapping
//	@Tags			templates
//	@Accept			json
//	@Produce		json
//	@Param			body	body		object	true	"Field name to true or alias list"
//	@Success		200		{object}	object
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/frontmatter [put]
func (h *Handler) UpdateFrontmatter(w http.ResponseWriter, r *http.Request) {
	var fields notetemplate.FieldsInFrontmatter
	if !decodeJSON(w, r, &fields) {
		return
	}
	if fields == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("mapping object is required"))
		return
	}
	if err := h.tpl.SetFrontmatter(fields); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if err := h.persist(); err != nil {
		writeError(w, r, err)
		return
	}
	if h.events != nil {
		h.events.PublishTemplateUpdated("frontmatter")
	}
	writeJSON(w, http.StatusOK, h.tpl.Frontmatter())
}

// Render handles POST /api/render/{kind}.
//
//	@Summary		Render a template against a JSON item
//	@Tags			templates
//	@Accept			json
//	@Produce		json
//	@Param			kind	path		string	true	"Template kind"
//	@Param			body	body		object	true	"Item, or annotation list for annots"
//	@Success		200		{object}	RenderResponse
//	@Failure		400		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/render/{kind} [post]
func (h *Handler) Render(w http.ResponseWriter, r *http.Request) {
	kind, err := notetemplate.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody(err.Error()))
		return
	}
	var body any
	if !decodeJSON(w, r, &body) {
		return
	}
	data := body
	if m, ok := body.(map[string]any); ok {
		data = models.Classify(m)
	}
	out, err := h.tpl.Render(kind, data)
	if err != nil {
		if errors.Is(err, apperr.ErrInvalidInput) {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
		writeJSON(w, http.StatusUnprocessableEntity, errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, RenderResponse{Kind: string(kind), Output: out})
}

// CreateLiteratureNote handles POST /api/literature-notes.
//
//	@Summary		Create the literature note of an item
//	@Tags			literature-notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateLiteratureNoteRequest	true	"Item to link"
//	@Success		201		{object}	noteservice.Note
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/literature-notes [post]
func (h *Handler) CreateLiteratureNote(w http.ResponseWriter, r *http.Request) {
	var req CreateLiteratureNoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var (
		note *noteservice.Note
		err  error
	)
	switch {
	case len(req.Item) > 0:
		var raw map[string]any
		if err := json.Unmarshal(req.Item, &raw); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("item must be a JSON object"))
			return
		}
		item, ok := models.Classify(raw).(models.RegularItem)
		if !ok {
			writeJSON(w, http.StatusBadRequest, errorBody("item is not a regular item"))
			return
		}
		note, err = h.notes.Create(r.Context(), item, item.Annotations())
	case req.Key != "":
		withAnnots := req.Annotations == nil || *req.Annotations
		note, err = h.notes.CreateFromLibrary(r.Context(), req.Key, req.GroupID, withAnnots)
	default:
		writeJSON(w, http.StatusBadRequest, errorBody("key or item is required"))
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	if h.events != nil {
		h.events.PublishNoteCreated(note.Path, note.Key)
	}
	writeJSON(w, http.StatusCreated, note)
}

// LiteratureNotes handles GET /api/literature-notes/{key}.
//
//	@Summary		List notes linked to an item
//	@Tags			literature-notes
//	@Produce		json
//	@Param			key		path		string	true	"Item key"
//	@Param			group	query		int		false	"Group library id"
//	@Success		200		{object}	LiteratureNotesResponse
//	@Security		BearerAuth
//	@Router			/literature-notes/{key} [get]
func (h *Handler) LiteratureNotes(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	group, ok := groupParam(w, r)
	if !ok {
		return
	}
	paths, err := h.notes.LinkedNotes(r.Context(), key, group)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var g any
	if group != nil {
		g = *group
	}
	writeJSON(w, http.StatusOK, LiteratureNotesResponse{Key: models.KeyGroupID(key, g), Paths: paths})
}

// Citation handles GET /api/citations/{key}.
//
//	@Summary		Render the Markdown citation of an item
//	@Tags			literature-notes
//	@Produce		json
//	@Param			key		path		string	true	"Item key"
//	@Param			alt		query		bool	false	"Use the alternative citation form"
//	@Param			group	query		int		false	"Group library id"
//	@Success		200		{object}	CitationResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/citations/{key} [get]
func (h *Handler) Citation(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	group, ok := groupParam(w, r)
	if !ok {
		return
	}
	alt, _ := strconv.ParseBool(r.URL.Query().Get("alt"))
	cite, err := h.notes.Citation(r.Context(), key, group, alt)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CitationResponse{Key: key, Citation: cite})
}

// groupParam parses the optional group query parameter.
func groupParam(w http.ResponseWriter, r *http.Request) (*int, bool) {
	raw := r.URL.Query().Get("group")
	if raw == "" {
		return nil, true
	}
	g, err := strconv.Atoi(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("group must be an integer"))
		return nil, false
	}
	return &g, true
}
