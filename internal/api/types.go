// Package api is the HTTP client for the PDF document REST API.
//
// Every JSON endpoint answers with the envelope {success, message, data}.
// Binary endpoints (view, download) answer with the raw PDF bytes.
package api

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DefaultBasePath is the path prefix every endpoint lives under.
const DefaultBasePath = "/api/pdf"

// TimeLayout is the timestamp layout used on the wire.
const TimeLayout = "2006-01-02 15:04:05"

// Time is a timestamp that accepts both TimeLayout and RFC 3339 on decode
// and always encodes as TimeLayout.
type Time struct {
	time.Time
}

// NewTime wraps t.
func NewTime(t time.Time) Time {
	return Time{Time: t}
}

func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(TimeLayout))
}

func (t *Time) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range []string{TimeLayout, time.RFC3339Nano, "2006-01-02T15:04:05"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("parsing time %q", s)
}

// Document is the metadata of one stored PDF.
type Document struct {
	ID              int64  `json:"id"               yaml:"id"`
	Title           string `json:"title"            yaml:"title"`
	Filename        string `json:"filename"         yaml:"filename"`
	PageCount       int    `json:"pageCount"        yaml:"page_count"`
	FileSize        int64  `json:"fileSize"         yaml:"file_size"`
	UploadDate      Time   `json:"uploadDate"       yaml:"-"`
	ProductCode     string `json:"productCode,omitempty"     yaml:"product_code,omitempty"`
	Edition         string `json:"edition,omitempty"         yaml:"edition,omitempty"`
	PublicationDate string `json:"publicationDate,omitempty" yaml:"publication_date,omitempty"`
	Notes           string `json:"notes,omitempty"           yaml:"notes,omitempty"`
	ContentType     string `json:"contentType,omitempty"     yaml:"content_type,omitempty"`
	CreatedBy       string `json:"createdBy,omitempty"       yaml:"created_by,omitempty"`
}

// Bookmark marks one page of a document for its owner.
type Bookmark struct {
	ID           int64    `json:"id"                     yaml:"id"`
	Document     Document `json:"pdfDocument"            yaml:"document"`
	PageNumber   int      `json:"pageNumber"             yaml:"page_number"`
	BookmarkName string   `json:"bookmarkName,omitempty" yaml:"bookmark_name,omitempty"`
	CreatedDate  Time     `json:"createdDate"            yaml:"-"`
}

// UploadResult is returned by a successful upload.
type UploadResult struct {
	DocumentID int64  `json:"documentId"`
	Filename   string `json:"filename"`
	FileSize   int64  `json:"fileSize"`
	PageCount  int    `json:"pageCount"`
	Message    string `json:"message"`
}

// Download is a binary document together with its suggested filename.
type Download struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Envelope wraps every JSON response.
type Envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}
