package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/drummonds/pdfshelf/internal/logging"
	"github.com/drummonds/pdfshelf/internal/metrics"
)

const (
	defaultTimeout          = 30 * time.Second
	defaultDownloadFilename = "watermarked_document.pdf"

	// OwnerHeader carries the bookmark owner.
	OwnerHeader = "X-User-ID"
)

// Client talks to the PDF document REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	owner      string
	logger     logging.Logger
	metrics    *metrics.Metrics
}

// New creates a client for the API rooted at baseURL. When baseURL has no
// path, DefaultBasePath is appended.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing api url %q: %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("api url %q must be absolute", baseURL)
	}
	if u.Path == "" {
		u.Path = DefaultBasePath
	}

	options := Options{Timeout: defaultTimeout}
	for _, opt := range opts {
		opt(&options)
	}
	httpClient := options.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: options.Timeout}
	}
	logger := options.Logger
	if logger == nil {
		logger = logging.New("api")
	}

	return &Client{
		baseURL:    u.String(),
		httpClient: httpClient,
		owner:      options.Owner,
		logger:     logger,
		metrics:    options.Metrics,
	}, nil
}

// BaseURL returns the root every endpoint is resolved against.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Ping checks that the API answers.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.getJSON(ctx, "ping", "/test", nil); err != nil {
		return fmt.Errorf("pinging %s: %w", c.baseURL, err)
	}
	return nil
}

func (c *Client) ListDocuments(ctx context.Context) ([]Document, error) {
	var docs []Document
	if err := c.getJSON(ctx, "list", "/documents", &docs); err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	return docs, nil
}

func (c *Client) SearchDocuments(ctx context.Context, query string) ([]Document, error) {
	var docs []Document
	path := "/search?query=" + url.QueryEscape(query)
	if err := c.getJSON(ctx, "search", path, &docs); err != nil {
		return nil, fmt.Errorf("searching documents for %q: %w", query, err)
	}
	return docs, nil
}

func (c *Client) GetDocument(ctx context.Context, id int64) (*Document, error) {
	var doc Document
	if err := c.getJSON(ctx, "get", fmt.Sprintf("/document/%d", id), &doc); err != nil {
		return nil, fmt.Errorf("fetching document %d: %w", id, err)
	}
	return &doc, nil
}

// ViewDocument returns the original PDF bytes.
func (c *Client) ViewDocument(ctx context.Context, id int64) ([]byte, error) {
	dl, err := c.getBinary(ctx, "view", fmt.Sprintf("/view/%d", id))
	if err != nil {
		return nil, fmt.Errorf("viewing document %d: %w", id, err)
	}
	return dl.Data, nil
}

// DownloadDocument returns the server-watermarked PDF and its filename.
func (c *Client) DownloadDocument(ctx context.Context, id int64) (*Download, error) {
	dl, err := c.getBinary(ctx, "download", fmt.Sprintf("/download/%d", id))
	if err != nil {
		return nil, fmt.Errorf("downloading document %d: %w", id, err)
	}
	return dl, nil
}

func (c *Client) DeleteDocument(ctx context.Context, id int64) error {
	if err := c.do(ctx, "delete", http.MethodDelete, fmt.Sprintf("/document/%d", id), nil, "", nil); err != nil {
		return fmt.Errorf("deleting document %d: %w", id, err)
	}
	return nil
}

// Upload posts a multipart payload built by the caller.
func (c *Client) Upload(ctx context.Context, body io.Reader, contentType string) (*UploadResult, error) {
	var result UploadResult
	if err := c.do(ctx, "upload", http.MethodPost, "/upload", body, contentType, &result); err != nil {
		return nil, fmt.Errorf("uploading document: %w", err)
	}
	return &result, nil
}

// GetBookmark returns the caller's bookmark for a document. A missing
// bookmark is not an error: ok is false.
func (c *Client) GetBookmark(ctx context.Context, documentID int64) (*Bookmark, bool, error) {
	var bm Bookmark
	err := c.getJSON(ctx, "get_bookmark", fmt.Sprintf("/bookmark/%d", documentID), &bm)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("fetching bookmark of %d: %w", documentID, err)
	}
	return &bm, true, nil
}

func (c *Client) CreateBookmark(ctx context.Context, documentID int64, page int, name string) (*Bookmark, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("name", name)
	var bm Bookmark
	path := fmt.Sprintf("/bookmark/%d?%s", documentID, q.Encode())
	if err := c.do(ctx, "create_bookmark", http.MethodPost, path, nil, "", &bm); err != nil {
		return nil, fmt.Errorf("bookmarking document %d: %w", documentID, err)
	}
	return &bm, nil
}

func (c *Client) DeleteBookmark(ctx context.Context, documentID int64) error {
	if err := c.do(ctx, "delete_bookmark", http.MethodDelete, fmt.Sprintf("/bookmark/%d", documentID), nil, "", nil); err != nil {
		return fmt.Errorf("removing bookmark of %d: %w", documentID, err)
	}
	return nil
}

func (c *Client) ListBookmarks(ctx context.Context) ([]Bookmark, error) {
	var bms []Bookmark
	if err := c.getJSON(ctx, "list_bookmarks", "/bookmarks", &bms); err != nil {
		return nil, fmt.Errorf("listing bookmarks: %w", err)
	}
	return bms, nil
}

func (c *Client) getJSON(ctx context.Context, op, path string, out interface{}) error {
	return c.do(ctx, op, http.MethodGet, path, nil, "", out)
}

// do issues one request and decodes the envelope into out (if non-nil).
func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader, contentType string, out interface{}) (err error) {
	start := time.Now()
	defer func() {
		c.metrics.ObserveAPIRequest(op, err, time.Since(start))
	}()

	resp, err := c.send(ctx, method, path, body, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w: %v", ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Message: envelopeMessage(raw)}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		// Some mutations answer with an empty 200.
		return nil
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decoding envelope: %w: %v", ErrPayload, err)
	}
	if !env.Success {
		return &StatusError{Code: resp.StatusCode, Message: env.Message}
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decoding data: %w: %v", ErrPayload, err)
	}
	return nil
}

func (c *Client) getBinary(ctx context.Context, op, path string) (dl *Download, err error) {
	start := time.Now()
	defer func() {
		c.metrics.ObserveAPIRequest(op, err, time.Since(start))
	}()

	resp, err := c.send(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, &StatusError{Code: resp.StatusCode, Message: envelopeMessage(b)}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading document body: %w: %v", ErrTransport, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty document body: %w", ErrPayload)
	}
	return &Download{
		Filename:    filenameFrom(resp.Header.Get("Content-Disposition")),
		ContentType: resp.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func (c *Client) send(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.owner != "" {
		req.Header.Set(OwnerHeader, c.owner)
	}

	c.logger.Debugf("%s %s", method, req.URL.Redacted())
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w: %v", method, path, ErrTransport, err)
	}
	return resp, nil
}

const maxMessageBytes = 200

// envelopeMessage extracts a readable error text from a failed response:
// the envelope message when there is one, else the trimmed body.
func envelopeMessage(raw []byte) string {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Message != "" {
		return env.Message
	}
	msg := strings.TrimSpace(string(raw))
	if len(msg) > maxMessageBytes {
		cut := maxMessageBytes
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut] + "..."
	}
	return msg
}

// filenameFrom reads the filename parameter of a Content-Disposition header.
func filenameFrom(header string) string {
	if header == "" {
		return defaultDownloadFilename
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil || params["filename"] == "" {
		return defaultDownloadFilename
	}
	return params["filename"]
}
