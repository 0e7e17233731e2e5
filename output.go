package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"

	"github.com/drummonds/pdfshelf/internal/api"
	"github.com/drummonds/pdfshelf/internal/listing"
	"github.com/drummonds/pdfshelf/internal/notify"
)

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.Style().Options.DrawBorder = false
	tw.Style().Options.SeparateColumns = false
	tw.Style().Options.SeparateFooter = false
	tw.Style().Options.SeparateHeader = false
	tw.Style().Options.SeparateRows = false
	return tw
}

// printStructured writes v as json or yaml. It reports false for the
// table format.
func printStructured(w io.Writer, output string, v interface{}) (bool, error) {
	switch output {
	case "", "table":
		return false, nil
	case "json":
		out, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return true, fmt.Errorf("marshal JSON: %w", err)
		}
		fmt.Fprintln(w, string(out))
		return true, nil
	case "yaml":
		out, err := yaml.Marshal(v)
		if err != nil {
			return true, fmt.Errorf("marshal YAML: %w", err)
		}
		fmt.Fprint(w, string(out))
		return true, nil
	default:
		return true, fmt.Errorf("unknown output format: %s", output)
	}
}

func printDocuments(w io.Writer, output string, docs []api.Document, bookmarked func(int64) bool) error {
	if done, err := printStructured(w, output, docs); done {
		return err
	}
	if len(docs) == 0 {
		fmt.Fprintln(w, "No documents found")
		return nil
	}
	tw := newTable()
	tw.AppendHeader(table.Row{"ID", "TITLE", "PAGES", "SIZE", "PRODUCT CODE", "EDITION", "UPLOADED", ""})
	for _, d := range docs {
		mark := ""
		if bookmarked != nil && bookmarked(d.ID) {
			mark = "*"
		}
		tw.AppendRow(table.Row{
			d.ID,
			d.Title,
			d.PageCount,
			listing.FormatFileSize(d.FileSize),
			d.ProductCode,
			d.Edition,
			listing.FormatDate(d.UploadDate),
			mark,
		})
	}
	fmt.Fprintln(w, tw.Render())
	return nil
}

func printBookmarks(w io.Writer, output string, bms []api.Bookmark) error {
	if done, err := printStructured(w, output, bms); done {
		return err
	}
	if len(bms) == 0 {
		fmt.Fprintln(w, "No bookmarks yet")
		return nil
	}
	tw := newTable()
	tw.AppendHeader(table.Row{"DOCUMENT", "TITLE", "PAGE", "NAME", "CREATED"})
	for _, bm := range bms {
		tw.AppendRow(table.Row{
			bm.Document.ID,
			bm.Document.Title,
			bm.PageNumber,
			bm.BookmarkName,
			listing.FormatDate(bm.CreatedDate),
		})
	}
	fmt.Fprintln(w, tw.Render())
	return nil
}

// documentDetail is one document with the caller's bookmark.
type documentDetail struct {
	api.Document `yaml:",inline"`
	Bookmark     *api.Bookmark `json:"bookmark,omitempty" yaml:"bookmark,omitempty"`
}

func printDocument(w io.Writer, output string, d documentDetail) error {
	if done, err := printStructured(w, output, d); done {
		return err
	}
	tw := newTable()
	rows := []table.Row{
		{"ID", d.ID},
		{"Title", d.Title},
		{"Filename", d.Filename},
		{"Pages", d.PageCount},
		{"Size", listing.FormatFileSize(d.FileSize)},
		{"Uploaded", listing.FormatDate(d.UploadDate)},
		{"Product code", d.ProductCode},
		{"Edition", d.Edition},
		{"Publication date", d.PublicationDate},
		{"Created by", d.CreatedBy},
		{"Notes", d.Notes},
	}
	if d.Bookmark != nil {
		rows = append(rows, table.Row{"Bookmark", "page " + strconv.Itoa(d.Bookmark.PageNumber) + " " + d.Bookmark.BookmarkName})
	}
	tw.AppendRows(rows)
	fmt.Fprintln(w, tw.Render())
	return nil
}

var severityColors = map[notify.Severity]text.Colors{
	notify.Success: {text.FgGreen, text.Bold},
	notify.Error:   {text.FgRed, text.Bold},
	notify.Warning: {text.FgYellow, text.Bold},
	notify.Info:    {text.FgCyan},
}

// consoleNotifier prints notifications with a coloured severity prefix.
type consoleNotifier struct {
	w io.Writer
}

func (n consoleNotifier) Notify(message string, severity notify.Severity) notify.Notification {
	prefix := severityColors[severity].Sprint(string(severity))
	fmt.Fprintf(n.w, "%s: %s\n", prefix, message)
	now := time.Now()
	return notify.Notification{Message: message, Severity: severity, CreatedAt: now, ExpiresAt: now}
}
