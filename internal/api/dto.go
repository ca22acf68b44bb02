package api

import "encoding/json"

// TemplateResponse carries one template source.
type TemplateResponse struct {
	Kind     string `json:"kind"`
	Template string `json:"template"`
}

// UpdateTemplateRequest is the request body for replacing a template.
type UpdateTemplateRequest struct {
	Template *string `json:"template"`
}

// RenderResponse carries rendered template output.
type RenderResponse struct {
	Kind   string `json:"kind"`
	Output string `json:"output"`
}

// CreateLiteratureNoteRequest is the request body for creating a note.
// Either Key (looked up in the library) or Item (used as given) is set.
type CreateLiteratureNoteRequest struct {
	Key         string          `json:"key"`
	GroupID     *int            `json:"groupID"`
	Annotations *bool           `json:"annotations"`
	Item        json.RawMessage `json:"item"`
}

// LiteratureNotesResponse lists the notes linked to an item.
type LiteratureNotesResponse struct {
	Key   string   `json:"key"`
	Paths []string `json:"paths"`
}

// CitationResponse carries a rendered citation.
type CitationResponse struct {
	Key      string `json:"key"`
	Citation string `json:"citation"`
}
