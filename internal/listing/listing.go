// Package listing renders document and bookmark collections to HTML
// fragments. It does no fetching; callers pass the records in.
package listing

import (
	"bytes"
	"fmt"
	"html/template"
	"math"
	"strconv"

	"github.com/drummonds/pdfshelf/internal/api"
)

var funcs = template.FuncMap{
	"fileSize": FormatFileSize,
	"date":     FormatDate,
}

var documentsTmpl = template.Must(template.New("documents").Funcs(funcs).Parse(`
{{- if not .Items -}}
<div class="empty-state">
  <h3>No documents found</h3>
  <p>Upload your first PDF document to get started</p>
</div>
{{- else -}}
{{- range .Items}}
<div class="document-card" data-id="{{.Doc.ID}}">
  <a class="document-preview" href="/viewer?id={{.Doc.ID}}">
    <img src="/thumbnail/{{.Doc.ID}}" alt="" loading="lazy">
    {{- if .Bookmarked}}<span class="bookmark-indicator" title="Bookmarked"></span>{{end}}
  </a>
  <div class="document-info">
    <h3 class="document-title">{{.Doc.Title}}</h3>
    <div class="document-meta">
      <span>{{.Doc.PageCount}} pages</span>
      <span>{{fileSize .Doc.FileSize}}</span>
    </div>
    {{- if or .Doc.ProductCode .Doc.Edition}}
    <div class="document-meta">
      {{- if .Doc.ProductCode}}<span class="product-code">{{.Doc.ProductCode}}</span>{{end}}
      {{- if .Doc.Edition}}<span class="edition">{{.Doc.Edition}}</span>{{end}}
    </div>
    {{- end}}
    <div class="document-meta"><small>{{date .Doc.UploadDate}}</small></div>
    {{- if .Doc.Notes}}
    <p class="document-notes">{{.Doc.Notes}}</p>
    {{- end}}
    <div class="document-actions">
      <a class="btn-small" href="/viewer?id={{.Doc.ID}}">View</a>
      <a class="btn-small" href="/download/{{.Doc.ID}}">Download</a>
      <form method="post" action="/document/{{.Doc.ID}}/bookmark">
        <button class="btn-small" type="submit">{{if .Bookmarked}}Remove bookmark{{else}}Bookmark{{end}}</button>
      </form>
      <form method="post" action="/document/{{.Doc.ID}}/delete">
        <button class="btn-small btn-danger" type="submit">Delete</button>
      </form>
    </div>
  </div>
</div>
{{- end}}
{{- end}}
`))

var bookmarksTmpl = template.Must(template.New("bookmarks").Funcs(funcs).Parse(`
{{- if not . -}}
<div class="empty-state">
  <h3>No bookmarks yet</h3>
  <p>Start reading documents and bookmark pages you want to return to later</p>
  <a class="btn-primary" href="/">Browse Documents</a>
</div>
{{- else -}}
{{- range .}}
<div class="bookmark-item" data-id="{{.Document.ID}}">
  <div class="bookmark-info">
    <h3 class="bookmark-title">{{.Document.Title}}</h3>
    <p class="bookmark-details">
      <span class="bookmark-page">Page {{.PageNumber}}</span>
      {{- if .BookmarkName}}
      <span class="bookmark-name">{{.BookmarkName}}</span>
      {{- end}}
    </p>
    <small class="bookmark-date">Bookmarked {{date .CreatedDate}}</small>
  </div>
  <div class="bookmark-actions">
    <a class="btn-small" href="/viewer?id={{.Document.ID}}&page={{.PageNumber}}">Open</a>
    <form method="post" action="/document/{{.Document.ID}}/bookmark">
      <button class="btn-small btn-danger" type="submit">Remove</button>
    </form>
  </div>
</div>
{{- end}}
{{- end}}
`))

type documentItem struct {
	Doc        api.Document
	Bookmarked bool
}

// RenderDocuments renders one document card per record, or the empty state
// when docs is empty. bookmarked may be nil.
func RenderDocuments(docs []api.Document, bookmarked func(id int64) bool) (template.HTML, error) {
	items := make([]documentItem, len(docs))
	for i, d := range docs {
		items[i] = documentItem{Doc: d, Bookmarked: bookmarked != nil && bookmarked(d.ID)}
	}
	var buf bytes.Buffer
	if err := documentsTmpl.Execute(&buf, struct{ Items []documentItem }{items}); err != nil {
		return "", fmt.Errorf("render documents: %w", err)
	}
	return template.HTML(buf.String()), nil
}

// RenderBookmarks renders one bookmark item per record, or the empty state.
func RenderBookmarks(bms []api.Bookmark) (template.HTML, error) {
	var buf bytes.Buffer
	if err := bookmarksTmpl.Execute(&buf, bms); err != nil {
		return "", fmt.Errorf("render bookmarks: %w", err)
	}
	return template.HTML(buf.String()), nil
}

var sizeUnits = []string{"Bytes", "KB", "MB", "GB"}

// FormatFileSize formats n bytes with 1024-based units and at most two
// decimals, e.g. "1.5 MB".
func FormatFileSize(n int64) string {
	if n <= 0 {
		return "0 Bytes"
	}
	v, i := float64(n), 0
	for v >= 1024 && i < len(sizeUnits)-1 {
		v /= 1024
		i++
	}
	v = math.Round(v*100) / 100
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + sizeUnits[i]
}

// FormatDate formats a wire timestamp for display. The zero time renders
// as an empty string.
func FormatDate(t api.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("Jan 2, 2006 15:04")
}
