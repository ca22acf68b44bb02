package notetemplate

import (
	"errors"
	"fmt"
)

// ErrUnknownKind is returned for names outside the six template kinds.
var ErrUnknownKind = errors.New("unknown template kind")

// Kind names a template role.
type Kind string

const (
	KindFilename   Kind = "filename"
	KindContent    Kind = "content"
	KindAnnotation Kind = "annotation"
	KindAnnots     Kind = "annots"
	KindMdCite     Kind = "mdCite"
	KindAltMdCite  Kind = "altMdCite"
)

// Kinds lists every template kind in compile order.
var Kinds = []Kind{KindFilename, KindContent, KindAnnotation, KindAnnots, KindMdCite, KindAltMdCite}

// ParseKind validates s as a template kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// IsPartial reports whether other templates may include the kind by name.
func (k Kind) IsPartial() bool {
	return k == KindAnnotation || k == KindAnnots
}

var defaultTemplates = map[Kind]string{
	KindFilename: `{{filename (coalesce .citekey .title .key)}}`,
	KindContent: `# {{coalesce .title .key}}

[Open in Zotero]({{backlink .}})
{{with .abstractNote}}
> {{.}}
{{end}}{{with .annotations}}
## Annotations

{{include "annots" $}}{{end}}`,
	KindAnnotation: `- {{with .annotationText}}{{.}} {{end}}([p. {{coalesce .annotationPageLabel "?"}}]({{backlink .}})){{with .annotationComment}}: {{.}}{{end}}{{with blockID .}} ^{{.}}{{end}}`,
	KindAnnots: `{{range .annotations}}{{include "annotation" .}}
{{end}}`,
	KindMdCite:    `[@{{coalesce .citekey .key}}]`,
	KindAltMdCite: `@{{coalesce .citekey .key}}`,
}
