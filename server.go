package main

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/drummonds/pdfshelf/internal/api"
	"github.com/drummonds/pdfshelf/internal/guard"
	"github.com/drummonds/pdfshelf/internal/library"
	"github.com/drummonds/pdfshelf/internal/listing"
	"github.com/drummonds/pdfshelf/internal/logging"
	"github.com/drummonds/pdfshelf/internal/metrics"
	"github.com/drummonds/pdfshelf/internal/notify"
	"github.com/drummonds/pdfshelf/internal/thumbs"
	"github.com/drummonds/pdfshelf/internal/upload"
	"github.com/drummonds/pdfshelf/internal/viewer"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	maxUploadBytes = 64 << 20
	frameTimeout   = 30 * time.Second
	thumbnailWait  = 10 * time.Second
	evictInterval  = time.Minute
)

type App struct {
	config     Config
	configFile string
	demo       bool

	client   *api.Client
	notices  *notify.Center
	library  *library.Controller
	uploads  *upload.Controller
	sessions *viewer.Sessions
	thumbs   *thumbs.Cache
	metrics  *metrics.Metrics
	logger   logging.Logger
	tmpl     *template.Template

	mu      sync.Mutex
	shields map[string]*guard.Shield
}

// newApp wires the controllers over the API at cfg.APIURL. engine renders
// viewer pages.
func newApp(cfg Config, configFile string, engine viewer.Engine, m *metrics.Metrics) (*App, error) {
	logger := logging.New("web")

	client, err := api.New(cfg.APIURL,
		api.WithOwner(cfg.Owner),
		api.WithTimeout(cfg.Timeout),
		api.WithLogger(logging.New("api")),
		api.WithMetrics(m),
	)
	if err != nil {
		return nil, err
	}
	cache, err := thumbs.New(cfg.thumbDir(), logging.New("thumbs"))
	if err != nil {
		return nil, err
	}
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}

	notices := notify.NewCenter(notify.DefaultTTL, logging.New("notify"), m)
	lib := library.New(client, notices, logging.New("library"))
	return &App{
		config:     cfg,
		configFile: configFile,
		client:     client,
		notices:    notices,
		library:    lib,
		uploads:    upload.NewController(client, lib, notices, logging.New("upload")),
		sessions: viewer.NewSessions(engine, viewer.SessionOptions{
			IdleTimeout: cfg.ViewerIdle,
			Watermark:   viewer.NewWatermark(cfg.Watermark),
			Notifier:    notices,
			Logger:      logging.New("viewer"),
			Metrics:     m,
		}),
		thumbs:  cache,
		metrics: m,
		logger:  logger,
		tmpl:    tmpl,
		shields: make(map[string]*guard.Shield),
	}, nil
}

// Close drops open viewers and waits for thumbnail generation.
func (app *App) Close() {
	app.sessions.CloseAll()
	app.thumbs.Close()
}

// run evicts idle viewer sessions until ctx is done.
func (app *App) run(ctx context.Context) {
	app.sessions.Run(ctx, evictInterval)
}

func (app *App) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", app.handleIndex)
	mux.HandleFunc("GET /documents", app.handleDocumentsFragment)
	mux.HandleFunc("GET /bookmarks", app.handleBookmarks)
	mux.HandleFunc("POST /upload", app.handleUpload)
	mux.HandleFunc("POST /document/{id}/delete", app.handleDelete)
	mux.HandleFunc("POST /document/{id}/bookmark", app.handleToggleBookmark)
	mux.HandleFunc("GET /download/{id}", app.handleDownload)
	mux.HandleFunc("GET /thumbnail/{id}", app.handleThumbnail)
	mux.HandleFunc("GET /notification", app.handleNotification)
	mux.HandleFunc("POST /notification/dismiss", app.handleDismiss)
	mux.HandleFunc("GET /about", app.handleAbout)
	mux.Handle("GET /metrics", app.metrics.Handler())

	mux.HandleFunc("GET /viewer", app.handleOpenViewer)
	mux.Handle("GET /viewer/{sid}", guard.Headers(http.HandlerFunc(app.handleViewer)))
	mux.Handle("GET /viewer/{sid}/frame.png", guard.Headers(http.HandlerFunc(app.handleFrame)))
	mux.HandleFunc("POST /viewer/{sid}/event", app.handleEvent)
	mux.HandleFunc("POST /viewer/{sid}/{action}", app.handleViewerAction)
	return mux
}

// --- Page data ---

type basePage struct {
	Page   string
	Notice *notify.Notification
	IsDemo bool
	APIURL string
}

type IndexPageData struct {
	basePage
	Query     string
	Count     int
	Documents template.HTML
	Form      upload.Metadata
	Uploading bool
}

type BookmarksPageData struct {
	basePage
	Query     string
	Count     int
	Bookmarks template.HTML
}

type ViewerPageData struct {
	basePage
	SessionID  string
	DocumentID int64
	Title      string
	PageNumber int
	Total      int
	Zoom       string
	Bookmarked bool
	Watermark  string

	ZoomOptions []string
}

type AboutPageData struct {
	basePage
	Config       Config
	ConfigSource string
	Sessions     int
}

func (app *App) base(page string) basePage {
	b := basePage{Page: page, IsDemo: app.demo, APIURL: app.client.BaseURL()}
	if n, ok := app.notices.Current(); ok {
		b.Notice = &n
	}
	return b
}

func (app *App) render(w http.ResponseWriter, name string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := app.tmpl.ExecuteTemplate(w, name, data); err != nil {
		app.logger.Errorf("render %s: %v", name, err)
	}
}

// --- Library pages ---

func (app *App) handleIndex(w http.ResponseWriter, r *http.Request) {
	app.renderIndex(w, r, upload.Metadata{})
}

func (app *App) renderIndex(w http.ResponseWriter, r *http.Request, form upload.Metadata) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	docs := app.findDocuments(r.Context(), q)
	html, err := listing.RenderDocuments(docs, app.library.IsBookmarked)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	app.render(w, "index.html", IndexPageData{
		basePage:  app.base("documents"),
		Query:     q,
		Count:     len(docs),
		Documents: html,
		Form:      form,
		Uploading: app.uploads.Busy(),
	})
}

// findDocuments lists the documents matching q for this request only and
// reloads the bookmarks. Failures are reported through the notifications
// and give an empty list.
func (app *App) findDocuments(ctx context.Context, q string) []api.Document {
	docs, err := app.library.Find(ctx, q)
	if err != nil {
		app.logger.Warnf("documents for %q: %v", q, err)
		return nil
	}
	if err := app.library.RefreshBookmarks(ctx); err != nil {
		app.logger.Warnf("bookmarks for document list: %v", err)
	}
	app.warmThumbnails(docs)
	return docs
}

// warmThumbnails starts generating the missing card thumbnails so the
// browser's image requests find them ready or in progress.
func (app *App) warmThumbnails(docs []api.Document) {
	for _, doc := range docs {
		id := doc.ID
		app.thumbs.Generate(id, func(ctx context.Context) ([]byte, error) {
			return app.client.ViewDocument(ctx, id)
		})
	}
}

// handleDocumentsFragment answers search-as-you-type with the list markup
// only.
func (app *App) handleDocumentsFragment(w http.ResponseWriter, r *http.Request) {
	docs := app.findDocuments(r.Context(), r.URL.Query().Get("q"))
	html, err := listing.RenderDocuments(docs, app.library.IsBookmarked)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	io.WriteString(w, string(html))
}

func (app *App) handleBookmarks(w http.ResponseWriter, r *http.Request) {
	if err := app.library.RefreshBookmarks(r.Context()); err != nil {
		app.notices.Error("Error loading bookmarks: " + api.Message(err))
	}
	q := r.URL.Query().Get("q")
	bms := app.library.FilterBookmarks(q)
	html, err := listing.RenderBookmarks(bms)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	app.render(w, "bookmarks.html", BookmarksPageData{
		basePage:  app.base("bookmarks"),
		Query:     q,
		Count:     len(bms),
		Bookmarks: html,
	})
}

func (app *App) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		app.notices.Error("Upload failed: " + err.Error())
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	meta := upload.Metadata{
		Title:           r.FormValue("title"),
		ProductCode:     r.FormValue("productCode"),
		Edition:         r.FormValue("edition"),
		PublicationDate: r.FormValue("publicationDate"),
		Notes:           r.FormValue("notes"),
		CreatedBy:       r.FormValue("createdBy"),
	}
	file, err := formFile(r, "file")
	if err != nil {
		app.notices.Error("Upload failed: " + err.Error())
		app.renderIndex(w, r, meta)
		return
	}

	if _, err := app.uploads.Submit(r.Context(), file, meta); err != nil {
		// Keep what was typed so the user can retry.
		app.renderIndex(w, r, meta)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// formFile reads the uploaded file. A missing file is not an error: the
// upload controller reports it.
func formFile(r *http.Request, field string) (*upload.File, error) {
	f, hdr, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", hdr.Filename, err)
	}
	return &upload.File{Name: hdr.Filename, ContentType: hdr.Header.Get("Content-Type"), Data: data}, nil
}

func (app *App) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := app.documentID(w, r)
	if !ok {
		return
	}
	_ = app.library.Delete(r.Context(), id)
	http.Redirect(w, r, backTo(r, "/"), http.StatusSeeOther)
}

func (app *App) handleToggleBookmark(w http.ResponseWriter, r *http.Request) {
	id, ok := app.documentID(w, r)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(r.FormValue("page"))
	_, _ = app.library.ToggleBookmark(r.Context(), id, page, r.FormValue("name"))
	http.Redirect(w, r, backTo(r, "/"), http.StatusSeeOther)
}

func (app *App) handleDownload(w http.ResponseWriter, r *http.Request) {
	id, ok := app.documentID(w, r)
	if !ok {
		return
	}
	dl, err := app.client.DownloadDocument(r.Context(), id)
	if err != nil {
		app.logger.Warnf("download %d: %v", id, err)
		app.notices.Error("Download failed: " + api.Message(err))
		http.Redirect(w, r, backTo(r, "/"), http.StatusSeeOther)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", dl.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(dl.Data)))
	w.Write(dl.Data)
}

func (app *App) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if !app.thumbs.Exists(id) {
		app.thumbs.Generate(id, func(ctx context.Context) ([]byte, error) {
			return app.client.ViewDocument(ctx, id)
		})
		ctx, cancel := context.WithTimeout(r.Context(), thumbnailWait)
		defer cancel()
		if _, err := app.thumbs.Wait(ctx, id); err != nil {
			http.NotFound(w, r)
			return
		}
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	http.ServeFile(w, r, app.thumbs.Path(id))
}

// --- Notifications ---

type noticeJSON struct {
	Message  string          `json:"message"`
	Severity notify.Severity `json:"severity"`
	Expires  time.Time       `json:"expires"`
}

func currentNotice(c *notify.Center) *noticeJSON {
	n, ok := c.Current()
	if !ok {
		return nil
	}
	return &noticeJSON{Message: n.Message, Severity: n.Severity, Expires: n.ExpiresAt}
}

func (app *App) handleNotification(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]*noticeJSON{"notification": currentNotice(app.notices)})
}

func (app *App) handleDismiss(w http.ResponseWriter, r *http.Request) {
	app.notices.Dismiss()
	if wantsJSON(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, backTo(r, "/"), http.StatusSeeOther)
}

func (app *App) handleAbout(w http.ResponseWriter, r *http.Request) {
	app.render(w, "about.html", AboutPageData{
		basePage:     app.base("about"),
		Config:       app.config,
		ConfigSource: app.configFile,
		Sessions:     app.sessions.Len(),
	})
}

// --- Viewer ---

func (app *App) handleOpenViewer(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id, err := strconv.ParseInt(q.Get("id"), 10, 64)
	if err != nil {
		app.notices.Error("Invalid document id")
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	page := 1
	if p, err := strconv.Atoi(q.Get("page")); err == nil {
		page = p
	}
	zoom := viewer.Scale(1)
	if z := q.Get("zoom"); z != "" {
		if zoom, err = viewer.ParseZoom(z); err != nil {
			zoom = viewer.Scale(1)
		}
	}

	ctx := r.Context()
	doc, err := app.client.GetDocument(ctx, id)
	if err != nil {
		app.notices.Error("Error loading document: " + api.Message(err))
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	data, err := app.client.ViewDocument(ctx, id)
	if err != nil {
		app.notices.Error("Error loading document: " + api.Message(err))
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	var viewport image.Point
	width, _ := strconv.Atoi(q.Get("width"))
	height, _ := strconv.Atoi(q.Get("height"))
	if width > 0 && height > 0 {
		viewport = image.Pt(width, height)
	}
	sess, err := app.sessions.Open(id, doc.Title, data, page, zoom, viewport)
	if err != nil {
		app.logger.Warnf("open viewer on %d: %v", id, err)
		app.notices.Error("Error loading PDF document")
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	app.mu.Lock()
	app.shields[sess.ID] = guard.NewShield(guard.DefaultRestoreAfter)
	for sid := range app.shields {
		if !app.sessions.Has(sid) {
			delete(app.shields, sid)
		}
	}
	app.mu.Unlock()

	http.Redirect(w, r, "/viewer/"+sess.ID, http.StatusSeeOther)
}

func (app *App) session(w http.ResponseWriter, r *http.Request) (*viewer.Session, bool) {
	sess, err := app.sessions.Get(r.PathValue("sid"))
	if err != nil {
		if wantsJSON(r) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		} else {
			http.NotFound(w, r)
		}
		return nil, false
	}
	return sess, true
}

func (app *App) shield(sid string) *guard.Shield {
	app.mu.Lock()
	defer app.mu.Unlock()
	s, ok := app.shields[sid]
	if !ok {
		s = guard.NewShield(guard.DefaultRestoreAfter)
		app.shields[sid] = s
	}
	return s
}

func (app *App) handleViewer(w http.ResponseWriter, r *http.Request) {
	sess, ok := app.session(w, r)
	if !ok {
		return
	}
	_, bookmarked, err := app.library.BookmarkStatus(r.Context(), sess.DocumentID)
	if err != nil {
		app.logger.Warnf("bookmark status of %d: %v", sess.DocumentID, err)
	}
	v := sess.Viewer
	app.render(w, "viewer.html", ViewerPageData{
		basePage:   app.base("viewer"),
		SessionID:  sess.ID,
		DocumentID: sess.DocumentID,
		Title:      sess.Title,
		PageNumber: v.Page(),
		Total:      v.Total(),
		Zoom:       v.Zoom().String(),
		Bookmarked: bookmarked,
		Watermark:  app.config.Watermark,

		ZoomOptions: zoomOptions(v.Zoom()),
	})
}

var presetZooms = []string{"fit", "auto", "0.50", "0.75", "1.00", "1.25", "1.50", "2.00", "3.00"}

// zoomOptions lists the preset zooms plus current when it is not a preset.
func zoomOptions(current viewer.Zoom) []string {
	cur := current.String()
	for _, z := range presetZooms {
		if z == cur {
			return presetZooms
		}
	}
	return append(append([]string(nil), presetZooms...), cur)
}

type viewerState struct {
	Session     string      `json:"session"`
	Page        int         `json:"page"`
	Total       int         `json:"total"`
	Zoom        string      `json:"zoom"`
	State       string      `json:"state"`
	PrevEnabled bool        `json:"prevEnabled"`
	NextEnabled bool        `json:"nextEnabled"`
	Bookmarked  *bool       `json:"bookmarked,omitempty"`
	Notice      *noticeJSON `json:"notification,omitempty"`
}

func (app *App) state(sess *viewer.Session) viewerState {
	v := sess.Viewer
	page, total := v.Page(), v.Total()
	return viewerState{
		Session:     sess.ID,
		Page:        page,
		Total:       total,
		Zoom:        v.Zoom().String(),
		State:       string(v.State()),
		PrevEnabled: page > 1,
		NextEnabled: page < total,
		Notice:      currentNotice(app.notices),
	}
}

func (app *App) handleViewerAction(w http.ResponseWriter, r *http.Request) {
	sess, ok := app.session(w, r)
	if !ok {
		return
	}
	v := sess.Viewer
	action := r.PathValue("action")
	var bookmarked *bool

	switch action {
	case "goto":
		n, err := strconv.Atoi(strings.TrimSpace(r.FormValue("page")))
		if err == nil {
			_, err = v.GoTo(n)
		}
		if err != nil {
			app.notices.Warning(fmt.Sprintf("Enter a page between 1 and %d", v.Total()))
		}
	case "zoom":
		z, err := viewer.ParseZoom(r.FormValue("zoom"))
		if err != nil {
			app.notices.Warning("Invalid zoom " + strconv.Quote(r.FormValue("zoom")))
			break
		}
		if err := v.SetZoom(z); err != nil {
			app.logger.Warnf("set zoom on %s: %v", sess.ID, err)
		}
	case "resize":
		width, _ := strconv.Atoi(r.FormValue("width"))
		height, _ := strconv.Atoi(r.FormValue("height"))
		if width > 0 && height > 0 {
			v.Resize(width, height)
		}
	case "bookmark":
		on, err := app.library.ToggleBookmark(r.Context(), sess.DocumentID, v.Page(), r.FormValue("name"))
		if err == nil {
			bookmarked = &on
		}
	case "close":
		if err := app.sessions.Close(sess.ID); err != nil {
			app.logger.Warnf("close session %s: %v", sess.ID, err)
		}
		app.mu.Lock()
		delete(app.shields, sess.ID)
		app.mu.Unlock()
		if wantsJSON(r) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	default:
		if !v.Apply(action) {
			http.NotFound(w, r)
			return
		}
	}

	if !wantsJSON(r) {
		http.Redirect(w, r, "/viewer/"+sess.ID, http.StatusSeeOther)
		return
	}
	st := app.state(sess)
	st.Bookmarked = bookmarked
	writeJSON(w, http.StatusOK, st)
}

// handleFrame serves the latest rendered page once the render in flight
// has finished.
func (app *App) handleFrame(w http.ResponseWriter, r *http.Request) {
	sess, ok := app.session(w, r)
	if !ok {
		return
	}
	sess.Viewer.FlushResize()
	ctx, cancel := context.WithTimeout(r.Context(), frameTimeout)
	defer cancel()
	if err := sess.Viewer.WaitIdle(ctx); err != nil {
		http.Error(w, "render timed out", http.StatusServiceUnavailable)
		return
	}

	frame, err := sess.Frame()
	if err != nil {
		// The shown frame is older than the failed page.
		w.Header().Set("X-Render-Error", err.Error())
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if frame == nil {
		http.Error(w, "no page rendered", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Page", strconv.Itoa(frame.Page))
	if err := png.Encode(w, frame.Image); err != nil {
		app.logger.Warnf("encode frame of %s: %v", sess.ID, err)
	}
}

func (app *App) handleEvent(w http.ResponseWriter, r *http.Request) {
	sess, ok := app.session(w, r)
	if !ok {
		return
	}
	var e guard.Event
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&e); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad request"})
		return
	}

	// Keyboard navigation goes to the viewer unless the deterrence layer
	// claims the key.
	resp := app.shield(sess.ID).Handle(e)
	if e.Type == "key" && !resp.Block {
		if action := viewer.Shortcut(e.Key.Key, e.Key.Ctrl || e.Key.Meta); action != "" {
			sess.Viewer.Apply(action)
		}
	}
	if resp.Message != "" {
		app.notices.Warning(resp.Message)
	}
	writeJSON(w, http.StatusOK, struct {
		guard.Response
		Viewer viewerState `json:"viewer"`
	}{resp, app.state(sess)})
}

// --- Helpers ---

func (app *App) documentID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		app.notices.Error("Invalid document id")
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return 0, false
	}
	return id, true
}

// backTo returns the local page the request came from, or fallback.
func backTo(r *http.Request, fallback string) string {
	ref, err := url.Parse(r.Referer())
	if err != nil || ref.Host != r.Host || !strings.HasPrefix(ref.Path, "/") {
		return fallback
	}
	return ref.RequestURI()
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
