package mcpserver

// TemplateReference describes the note template language for LLM consumers
// that edit or render templates.
const TemplateReference = `# litlink Template Reference

Templates use Go text/template syntax. The dot is the item being rendered.

## Kinds

- ` + "`filename`" + `: note file name without the .md extension.
- ` + "`content`" + `: note body. YAML front-matter is prepended automatically.
- ` + "`annotation`" + `: one PDF annotation. Partial.
- ` + "`annots`" + `: the annotation list, exposed as ` + "`.annotations`" + `. Partial.
- ` + "`mdCite`" + ` and ` + "`altMdCite`" + `: Markdown citations.

## Helpers

- ` + "`{{backlink .}}`" + ` deep link into Zotero for an item or annotation.
- ` + "`{{coalesce .citekey .title}}`" + ` first non-empty value.
- ` + "`{{filename .title}}`" + ` strips characters that are illegal in file names.
- ` + "`{{blockID .}}`" + ` stable block id of an annotation (key, group, page).
- ` + "`{{include \"annotation\" .}}`" + ` renders a partial by name.

## Rules

1. Missing fields print ` + "`<no value>`" + `. Guard optional fields with
   ` + "`{{with .field}}...{{end}}`" + ` or ` + "`coalesce`" + `. In the filename
   template an unguarded field turns into ` + "`_no value_`" + `.
2. Only ` + "`annotation`" + ` and ` + "`annots`" + ` can be included, by a quoted
   name. Partials that include each other are rejected.
3. A template that fails to parse is rejected and the previous one stays.

## Example

` + "```" + `
# {{coalesce .title .key}}

[Open in Zotero]({{backlink .}})
{{with .annotations}}
## Annotations

{{include "annots" $}}{{end}}
` + "```" + `
`
