// Package view renders the console's HTML pages. Everything goes
// through html/template, so row values are escaped no matter where
// they came from; entity names and topic strings are user input.
package view

import (
	"fmt"
	"html/template"
	"io"
)

// Table is one collection rendered as rows. An empty Rows slice shows
// the Empty placeholder instead of a bare table.
type Table struct {
	Caption string
	Columns []string
	Rows    [][]string
	Empty   string
}

const defaultEmpty = "no data"

var tableTmpl = template.Must(template.New("table").Parse(`<table class="collection">
{{- if .Caption}}
<caption>{{.Caption}}</caption>
{{- end}}
<thead><tr>{{range .Columns}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>
{{- if .Rows}}
{{- range .Rows}}
<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
{{- end}}
{{- else}}
<tr class="empty"><td colspan="{{len .Columns}}">{{.Empty}}</td></tr>
{{- end}}
</tbody>
</table>
`))

// RenderTable writes the table as HTML.
func RenderTable(w io.Writer, t Table) error {
	if t.Empty == "" {
		t.Empty = defaultEmpty
	}
	if err := tableTmpl.Execute(w, t); err != nil {
		return fmt.Errorf("render table: %w", err)
	}
	return nil
}

// Page is the shell around one console page.
type Page struct {
	Title  string
	Active string   // nav entry to highlight
	Nav    []NavItem
	Body   template.HTML // pre-rendered, already-escaped fragment
}

// NavItem is one sidebar link.
type NavItem struct {
	Label string
	Href  string
	Key   string
}

var pageTmpl = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title><link rel="stylesheet" href="/static/console.css"></head>
<body>
<nav>
<ul>
{{- range .Nav}}
<li{{if eq .Key $.Active}} class="active"{{end}}><a href="{{.Href}}">{{.Label}}</a></li>
{{- end}}
</ul>
</nav>
<main>
<h1>{{.Title}}</h1>
{{.Body}}
</main>
</body>
</html>
`))

// RenderPage writes a full page around the given body fragment.
func RenderPage(w io.Writer, p Page) error {
	if err := pageTmpl.Execute(w, p); err != nil {
		return fmt.Errorf("render page: %w", err)
	}
	return nil
}
