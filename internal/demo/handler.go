package demo

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/drummonds/pdfshelf/internal/api"
	"github.com/drummonds/pdfshelf/internal/logging"
)

const maxUploadBytes = 64 << 20

// Server serves the REST API over a Store.
type Server struct {
	store         *Store
	logger        logging.Logger
	watermarkText string
	now           func() time.Time
}

// NewServer creates an API server backed by store.
func NewServer(store *Store, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.New("demo")
	}
	return &Server{store: store, logger: logger, watermarkText: "CONFIDENTIAL - DOWNLOAD COPY", now: time.Now}
}

// Handler returns the API mounted under api.DefaultBasePath.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	p := api.DefaultBasePath
	mux.HandleFunc("GET "+p+"/test", s.handleTest)
	mux.HandleFunc("GET "+p+"/documents", s.handleDocuments)
	mux.HandleFunc("GET "+p+"/search", s.handleSearch)
	mux.HandleFunc("GET "+p+"/document/{id}", s.handleDocument)
	mux.HandleFunc("DELETE "+p+"/document/{id}", s.handleDeleteDocument)
	mux.HandleFunc("GET "+p+"/view/{id}", s.handleView)
	mux.HandleFunc("GET "+p+"/download/{id}", s.handleDownload)
	mux.HandleFunc("POST "+p+"/upload", s.handleUpload)
	mux.HandleFunc("GET "+p+"/bookmarks", s.handleBookmarks)
	mux.HandleFunc("GET "+p+"/bookmark/{id}", s.handleBookmark)
	mux.HandleFunc("POST "+p+"/bookmark/{id}", s.handleCreateBookmark)
	mux.HandleFunc("DELETE "+p+"/bookmark/{id}", s.handleDeleteBookmark)
	return mux
}

func (s *Server) handleTest(w http.ResponseWriter, r *http.Request) {
	writeOK(w, "Controller is working!", nil)
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.store.Documents()
	if err != nil {
		s.fail(w, http.StatusInternalServerError, "Failed to fetch documents", err)
		return
	}
	writeOK(w, "", docs)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	docs, err := s.store.Search(r.URL.Query().Get("query"))
	if err != nil {
		s.fail(w, http.StatusInternalServerError, "Search failed", err)
		return
	}
	writeOK(w, "", docs)
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	doc, _, err := s.store.Document(id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeOK(w, "", doc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	if err := s.store.DeleteDocument(id); err != nil {
		s.storeError(w, err)
		return
	}
	s.logger.Infof("deleted document %d", id)
	writeOK(w, "Document deleted successfully", nil)
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	doc, data, err := s.store.Document(id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename=%q`, doc.Filename))
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate, private")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Write(data)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	doc, data, err := s.store.Document(id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	text := s.watermarkText + " - Downloaded: " + s.now().Format(api.TimeLayout)
	stamped, err := watermark(data, text)
	if err != nil {
		s.fail(w, http.StatusInternalServerError, "Error creating watermarked PDF", err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, "watermarked_"+doc.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(stamped)))
	w.Write(stamped)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.fail(w, http.StatusBadRequest, "Invalid multipart form", err)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.fail(w, http.StatusBadRequest, "File is empty", err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil || len(data) == 0 {
		s.fail(w, http.StatusBadRequest, "File is empty", err)
		return
	}
	if ct := header.Header.Get("Content-Type"); ct != "application/pdf" {
		s.fail(w, http.StatusBadRequest, "File must be a PDF", fmt.Errorf("content type %q", ct))
		return
	}
	pages, err := pageCount(data)
	if err != nil {
		s.fail(w, http.StatusInternalServerError, "Failed to upload document: "+err.Error(), err)
		return
	}

	meta := api.Document{
		Title:       strings.TrimSpace(r.FormValue("title")),
		Filename:    header.Filename,
		PageCount:   pages,
		ProductCode: r.FormValue("productCode"),
		Edition:     r.FormValue("edition"),
		Notes:       r.FormValue("notes"),
		ContentType: "application/pdf",
		CreatedBy:   r.FormValue("createdBy"),
	}
	if meta.Title == "" {
		meta.Title = strings.TrimSuffix(header.Filename, ".pdf")
	}
	if meta.CreatedBy == "" {
		meta.CreatedBy = "system"
	}
	if pd := strings.TrimSpace(r.FormValue("publicationDate")); pd != "" {
		if _, err := time.Parse("2006-01-02", pd); err != nil {
			s.logger.Warnf("could not parse publication date %q", pd)
		} else {
			meta.PublicationDate = pd
		}
	}

	saved, err := s.store.AddDocument(meta, data)
	if err != nil {
		s.fail(w, http.StatusInternalServerError, "Failed to upload document: "+err.Error(), err)
		return
	}
	s.logger.Infof("uploaded document %d %q (%d pages)", saved.ID, saved.Title, saved.PageCount)
	writeOK(w, "Document uploaded successfully", api.UploadResult{
		DocumentID: saved.ID,
		Filename:   saved.Filename,
		FileSize:   saved.FileSize,
		PageCount:  saved.PageCount,
		Message:    "Document uploaded successfully",
	})
}

func (s *Server) handleBookmarks(w http.ResponseWriter, r *http.Request) {
	bms, err := s.store.Bookmarks(owner(r))
	if err != nil {
		s.fail(w, http.StatusInternalServerError, "Failed to fetch bookmarks", err)
		return
	}
	writeOK(w, "", bms)
}

func (s *Server) handleBookmark(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	bm, found, err := s.store.Bookmark(owner(r), id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, api.Envelope{Message: "No bookmark"})
		return
	}
	writeOK(w, "", bm)
}

func (s *Server) handleCreateBookmark(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.fail(w, http.StatusBadRequest, "Invalid page number", err)
			return
		}
		page = n
	}
	bm, err := s.store.PutBookmark(owner(r), id, page, strings.TrimSpace(r.URL.Query().Get("name")))
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeOK(w, "Bookmark saved", bm)
}

func (s *Server) handleDeleteBookmark(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	if err := s.store.DeleteBookmark(owner(r), id); err != nil {
		s.storeError(w, err)
		return
	}
	writeOK(w, "Bookmark removed", nil)
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.fail(w, http.StatusBadRequest, "Invalid document id", err)
		return 0, false
	}
	return id, true
}

func (s *Server) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrDocumentNotFound) {
		writeJSON(w, http.StatusNotFound, api.Envelope{Message: "Document not found"})
		return
	}
	s.fail(w, http.StatusInternalServerError, "Internal error", err)
}

func (s *Server) fail(w http.ResponseWriter, code int, msg string, err error) {
	s.logger.Warnf("%s: %v", msg, err)
	writeJSON(w, code, api.Envelope{Message: msg})
}

// owner identifies the bookmark owner the way the original server did:
// explicit header first, then proxy headers, then the remote address.
func owner(r *http.Request) string {
	if id := r.Header.Get(api.OwnerHeader); id != "" {
		return id
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeOK(w http.ResponseWriter, msg string, data interface{}) {
	env := api.Envelope{Success: true, Message: msg}
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, api.Envelope{Message: "encoding response"})
			return
		}
		env.Data = b
	}
	writeJSON(w, http.StatusOK, env)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
