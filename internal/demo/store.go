// Package demo is an in-memory implementation of the PDF document REST API.
// It backs `pdfshelf demo` and the end-to-end tests.
package demo

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-memdb"

	"github.com/drummonds/pdfshelf/internal/api"
)

var (
	tblDocuments = "documents"
	tblBookmarks = "bookmarks"
)

// ErrDocumentNotFound is returned when no active document has the id.
var ErrDocumentNotFound = errors.New("document not found")

var schema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		tblDocuments: {
			Name: tblDocuments,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.IntFieldIndex{Field: "ID"},
				},
			},
		},
		tblBookmarks: {
			Name: tblBookmarks,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.IntFieldIndex{Field: "ID"},
				},
				"owner": {
					Name:    "owner",
					Indexer: &memdb.StringFieldIndex{Field: "Owner"},
				},
				"document_id": {
					Name:    "document_id",
					Indexer: &memdb.IntFieldIndex{Field: "DocumentID"},
				},
				"owner_document_id": {
					Name:   "owner_document_id",
					Unique: true,
					Indexer: &memdb.CompoundIndex{
						Indexes: []memdb.Indexer{
							&memdb.StringFieldIndex{Field: "Owner"},
							&memdb.IntFieldIndex{Field: "DocumentID"},
						},
					},
				},
			},
		},
	},
}

// documentRow is a stored document together with its bytes.
type documentRow struct {
	ID   int64
	Meta api.Document
	Data []byte
}

type bookmarkRow struct {
	ID         int64
	Owner      string
	DocumentID int64
	Page       int
	Name       string
	Created    time.Time
}

// Store keeps documents and bookmarks in memory.
type Store struct {
	db     *memdb.MemDB
	nextID int64
	now    func() time.Time
}

// NewStore creates an empty store.
func NewStore() (*Store, error) {
	db, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, fmt.Errorf("new memdb: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// AddDocument stores a document, assigns it an id and upload date.
func (s *Store) AddDocument(meta api.Document, data []byte) (api.Document, error) {
	txn := s.db.Txn(true)
	defer txn.Abort()

	s.nextID++
	meta.ID = s.nextID
	meta.FileSize = int64(len(data))
	meta.UploadDate = api.NewTime(s.now().Truncate(time.Second))
	if err := txn.Insert(tblDocuments, &documentRow{ID: meta.ID, Meta: meta, Data: data}); err != nil {
		return api.Document{}, fmt.Errorf("insert document: %w", err)
	}
	txn.Commit()
	return meta, nil
}

// Documents returns every document, newest first.
func (s *Store) Documents() ([]api.Document, error) {
	return s.filterDocuments(func(api.Document) bool { return true })
}

// Search matches query case-insensitively against title, filename,
// product code, edition and notes.
func (s *Store) Search(query string) ([]api.Document, error) {
	q := strings.ToLower(query)
	return s.filterDocuments(func(d api.Document) bool {
		for _, field := range []string{d.Title, d.Filename, d.ProductCode, d.Edition, d.Notes} {
			if strings.Contains(strings.ToLower(field), q) {
				return true
			}
		}
		return false
	})
}

func (s *Store) filterDocuments(keep func(api.Document) bool) ([]api.Document, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(tblDocuments, "id")
	if err != nil {
		return nil, fmt.Errorf("fetch documents: %w", err)
	}
	docs := []api.Document{}
	for raw := it.Next(); raw != nil; raw = it.Next() {
		row := raw.(*documentRow)
		if keep(row.Meta) {
			docs = append(docs, row.Meta)
		}
	}
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].UploadDate.Equal(docs[j].UploadDate.Time) {
			return docs[i].ID > docs[j].ID
		}
		return docs[i].UploadDate.After(docs[j].UploadDate.Time)
	})
	return docs, nil
}

// Document returns the metadata and bytes of one document.
func (s *Store) Document(id int64) (api.Document, []byte, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	row, err := findDocument(txn, id)
	if err != nil {
		return api.Document{}, nil, err
	}
	return row.Meta, row.Data, nil
}

// DeleteDocument removes a document and every bookmark pointing at it.
func (s *Store) DeleteDocument(id int64) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	row, err := findDocument(txn, id)
	if err != nil {
		return err
	}
	if _, err := txn.DeleteAll(tblBookmarks, "document_id", id); err != nil {
		return fmt.Errorf("delete bookmarks of %d: %w", id, err)
	}
	if err := txn.Delete(tblDocuments, row); err != nil {
		return fmt.Errorf("delete document %d: %w", id, err)
	}
	txn.Commit()
	return nil
}

// PutBookmark creates or replaces the owner's bookmark on a document.
func (s *Store) PutBookmark(owner string, documentID int64, page int, name string) (api.Bookmark, error) {
	txn := s.db.Txn(true)
	defer txn.Abort()

	doc, err := findDocument(txn, documentID)
	if err != nil {
		return api.Bookmark{}, err
	}
	if name == "" {
		name = fmt.Sprintf("Page %d", page)
	}

	row := &bookmarkRow{Owner: owner, DocumentID: documentID, Page: page, Name: name, Created: s.now().Truncate(time.Second)}
	existing, err := txn.First(tblBookmarks, "owner_document_id", owner, documentID)
	if err != nil {
		return api.Bookmark{}, fmt.Errorf("find bookmark: %w", err)
	}
	if existing != nil {
		row.ID = existing.(*bookmarkRow).ID
	} else {
		s.nextID++
		row.ID = s.nextID
	}
	if err := txn.Insert(tblBookmarks, row); err != nil {
		return api.Bookmark{}, fmt.Errorf("insert bookmark: %w", err)
	}
	txn.Commit()
	return toBookmark(row, doc.Meta), nil
}

// Bookmark returns the owner's bookmark on a document, if any.
func (s *Store) Bookmark(owner string, documentID int64) (api.Bookmark, bool, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tblBookmarks, "owner_document_id", owner, documentID)
	if err != nil {
		return api.Bookmark{}, false, fmt.Errorf("find bookmark: %w", err)
	}
	if raw == nil {
		return api.Bookmark{}, false, nil
	}
	row := raw.(*bookmarkRow)
	doc, err := findDocument(txn, row.DocumentID)
	if err != nil {
		return api.Bookmark{}, false, err
	}
	return toBookmark(row, doc.Meta), true, nil
}

// DeleteBookmark removes the owner's bookmark on a document. Removing a
// missing bookmark is not an error.
func (s *Store) DeleteBookmark(owner string, documentID int64) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	if _, err := txn.DeleteAll(tblBookmarks, "owner_document_id", owner, documentID); err != nil {
		return fmt.Errorf("delete bookmark: %w", err)
	}
	txn.Commit()
	return nil
}

// Bookmarks returns the owner's bookmarks, newest first.
func (s *Store) Bookmarks(owner string) ([]api.Bookmark, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(tblBookmarks, "owner", owner)
	if err != nil {
		return nil, fmt.Errorf("fetch bookmarks: %w", err)
	}
	bms := []api.Bookmark{}
	for raw := it.Next(); raw != nil; raw = it.Next() {
		row := raw.(*bookmarkRow)
		doc, err := findDocument(txn, row.DocumentID)
		if err != nil {
			continue
		}
		bms = append(bms, toBookmark(row, doc.Meta))
	}
	sort.SliceStable(bms, func(i, j int) bool {
		return bms[i].CreatedDate.After(bms[j].CreatedDate.Time)
	})
	return bms, nil
}

func findDocument(txn *memdb.Txn, id int64) (*documentRow, error) {
	raw, err := txn.First(tblDocuments, "id", id)
	if err != nil {
		return nil, fmt.Errorf("find document %d: %w", id, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%d: %w", id, ErrDocumentNotFound)
	}
	return raw.(*documentRow), nil
}

func toBookmark(row *bookmarkRow, doc api.Document) api.Bookmark {
	return api.Bookmark{
		ID:           row.ID,
		Document:     doc,
		PageNumber:   row.Page,
		BookmarkName: row.Name,
		CreatedDate:  api.NewTime(row.Created),
	}
}
