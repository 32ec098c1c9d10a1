// Package render builds the tracker-facing text for failures: issue
// summaries, descriptions, and recurrence comments. Pure presentation;
// all routing decisions happen before this layer.
package render

import (
	"strings"
	"text/template"
	"unicode/utf8"

	"lookout/internal/extract"
	"lookout/internal/rules"
)

// maxExcerpt bounds the failure message block embedded in issue text so
// a multi-megabyte log tail cannot blow up a tracker field.
const maxExcerpt = 2000

const descriptionTmpl = `CI job {{.JobName}} failed in build {{.BuildID}}.

* Kind: {{.Kind}} failure
* Failure: {{.Name}}
{{- if .Step}}
* Step: {{.Step}}
{{- end}}
* Observed: {{.Timestamp.UTC.Format "2006-01-02 15:04:05 UTC"}}
{{- if .Rule}}
* Matched rule: {{.Rule}}
{{- end}}
{{if .Message}}
{code}
{{.Message}}
{code}
{{- else}}
No failure message was captured for this record.
{{- end}}

Filed automatically by lookout. The fingerprint label on this issue
links recurrences of the same failure; please keep it in place.
`

const commentTmpl = `Failure recurred in build {{.BuildID}} ({{.Timestamp.UTC.Format "2006-01-02 15:04:05 UTC"}}).
{{- if .Message}}

{code}
{{.Message}}
{code}
{{- end}}`

// Renderer renders issue content. The zero value is not usable; use New.
type Renderer struct {
	description *template.Template
	comment     *template.Template
}

// New returns a Renderer with the built-in templates.
func New() *Renderer {
	return &Renderer{
		description: template.Must(template.New("description").Parse(descriptionTmpl)),
		comment:     template.Must(template.New("comment").Parse(commentTmpl)),
	}
}

type templateData struct {
	extract.Record
	Rule string
}

// Summary returns the one-line issue title for a failure.
func (r *Renderer) Summary(rec *extract.Record) string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(rec.JobName)
	b.WriteString("] ")
	switch rec.Kind {
	case extract.KindPod:
		b.WriteString("step ")
		b.WriteString(rec.Name)
		b.WriteString(" pod failed")
	default:
		b.WriteString("test ")
		b.WriteString(rec.Name)
		b.WriteString(" failed")
	}
	return truncate(b.String(), 250)
}

// Description renders the body of a newly created issue.
func (r *Renderer) Description(rec *extract.Record, d *rules.Decision) string {
	data := templateData{Record: *rec}
	data.Message = truncate(data.Message, maxExcerpt)
	if d != nil && d.Rule != nil {
		data.Rule = d.Rule.Name
	}
	return execute(r.description, data)
}

// Comment renders the recurrence note appended to an existing issue.
func (r *Renderer) Comment(rec *extract.Record) string {
	data := templateData{Record: *rec}
	data.Message = truncate(data.Message, maxExcerpt)
	return execute(r.comment, data)
}

func execute(t *template.Template, data any) string {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		// Templates are compile-time constants; execution can only fail
		// on a broken template, which the tests catch.
		return "lookout: render error: " + err.Error()
	}
	return b.String()
}

// truncate cuts s to at most n bytes, backing up to a rune boundary so
// the result stays valid UTF-8.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "…"
}
