package main

import (
	"github.com/drummonds/pdfshelf/internal/api"
	"github.com/drummonds/pdfshelf/internal/demo"
	"github.com/drummonds/pdfshelf/internal/samplepdf"
)

type demoDocument struct {
	meta  api.Document
	pages int
}

var demoDocuments = []demoDocument{
	{
		meta: api.Document{
			Title:           "Installation Guide",
			Filename:        "installation-guide.pdf",
			ProductCode:     "PX-100",
			Edition:         "3rd",
			PublicationDate: "2024-03-01",
			Notes:           "Covers rack and wall mounting.",
		},
		pages: 12,
	},
	{
		meta: api.Document{
			Title:       "Safety Data Sheet",
			Filename:    "safety-data-sheet.pdf",
			ProductCode: "SDS-7",
			Notes:       "Handling, storage and first aid.",
		},
		pages: 4,
	},
	{
		meta: api.Document{
			Title:           "Quarterly Report Q3",
			Filename:        "q3-report.pdf",
			Edition:         "Final",
			PublicationDate: "2024-10-15",
		},
		pages: 8,
	},
	{
		meta: api.Document{
			Title:    "Release Notes",
			Filename: "release-notes.pdf",
			Notes:    "Changes since the previous firmware.",
		},
		pages: 2,
	},
}

// seedDemo fills store with sample documents and bookmarks two of them
// for owner.
func seedDemo(store *demo.Store, owner string) error {
	var ids []int64
	for _, d := range demoDocuments {
		meta := d.meta
		meta.PageCount = d.pages
		meta.ContentType = "application/pdf"
		meta.CreatedBy = "demo"
		doc, err := store.AddDocument(meta, samplepdf.New(meta.Title, d.pages))
		if err != nil {
			return err
		}
		ids = append(ids, doc.ID)
	}
	if _, err := store.PutBookmark(owner, ids[0], 5, "Wall mounting"); err != nil {
		return err
	}
	if _, err := store.PutBookmark(owner, ids[2], 1, ""); err != nil {
		return err
	}
	return nil
}
