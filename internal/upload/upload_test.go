package upload_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drummonds/pdfshelf/internal/api"
	"github.com/drummonds/pdfshelf/internal/logging"
	"github.com/drummonds/pdfshelf/internal/notify"
	"github.com/drummonds/pdfshelf/internal/samplepdf"
	"github.com/drummonds/pdfshelf/internal/upload"
)

type fakeUploader struct {
	mu      sync.Mutex
	calls   int
	fields  map[string]string
	file    []byte
	err     error
	started chan struct{}
	release chan struct{}
}

func (f *fakeUploader) Upload(ctx context.Context, body io.Reader, contentType string) (*api.UploadResult, error) {
	if f.started != nil {
		close(f.started)
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, err
	}
	mr := multipart.NewReader(body, params["boundary"])
	f.fields = map[string]string{}
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		b, _ := io.ReadAll(p)
		if p.FormName() == "file" {
			f.file = b
			continue
		}
		f.fields[p.FormName()] = string(b)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &api.UploadResult{DocumentID: 1, PageCount: 2}, nil
}

type fakeRefresher struct {
	calls int
	err   error
}

func (f *fakeRefresher) Refresh(context.Context) error {
	f.calls++
	return f.err
}

func newController(up upload.Uploader, ref upload.Refresher) (*upload.Controller, *notify.Center) {
	center := notify.NewCenter(0, logging.Nop(), nil)
	return upload.NewController(up, ref, center, logging.Nop()), center
}

func pdfFile() *upload.File {
	return &upload.File{Name: "manual.pdf", ContentType: "application/pdf", Data: samplepdf.New("Manual", 2)}
}

func TestValidate(t *testing.T) {
	t.Run("no file test", func(t *testing.T) {
		assert.ErrorIs(t, upload.Validate(nil, upload.Metadata{}), upload.ErrNoFile)
		assert.ErrorIs(t, upload.Validate(&upload.File{}, upload.Metadata{}), upload.ErrNoFile)
	})

	t.Run("declared type test", func(t *testing.T) {
		f := &upload.File{Name: "a.txt", ContentType: "text/plain", Data: []byte("hello")}
		assert.ErrorIs(t, upload.Validate(f, upload.Metadata{}), upload.ErrNotPDF)

		f = &upload.File{Name: "a.pdf", ContentType: "application/pdf; name=a.pdf", Data: []byte("%PDF-1.4")}
		assert.NoError(t, upload.Validate(f, upload.Metadata{}))
	})

	t.Run("sniffed type test", func(t *testing.T) {
		assert.NoError(t, upload.Validate(&upload.File{Name: "a", Data: samplepdf.New("A", 1)}, upload.Metadata{}))
		assert.ErrorIs(t, upload.Validate(&upload.File{Name: "a", Data: []byte("GIF89a")}, upload.Metadata{}), upload.ErrNotPDF)
	})

	t.Run("metadata test", func(t *testing.T) {
		err := upload.Validate(pdfFile(), upload.Metadata{
			Title:           strings.Repeat("t", 256),
			PublicationDate: "01/02/2024",
		})
		var ve *upload.ValidationError
		require.ErrorAs(t, err, &ve)
		require.Len(t, ve.Violations, 2)
		assert.Equal(t, "title", ve.Violations[0].Field)
		assert.Equal(t, "publicationDate", ve.Violations[1].Field)
		assert.Contains(t, err.Error(), "title must be at most 255 characters")

		assert.NoError(t, upload.Validate(pdfFile(), upload.Metadata{PublicationDate: "2024-01-02"}))
	})
}

func TestBuildPayload(t *testing.T) {
	t.Run("only present fields test", func(t *testing.T) {
		up := &fakeUploader{}
		body, ct, err := upload.BuildPayload(pdfFile(), upload.Metadata{Title: "Manual", Notes: "  ", Edition: "2nd"})
		require.NoError(t, err)
		_, err = up.Upload(context.Background(), body, ct)
		require.NoError(t, err)

		assert.Equal(t, map[string]string{"title": "Manual", "edition": "2nd"}, up.fields)
		assert.True(t, bytes.HasPrefix(up.file, []byte("%PDF-")))
	})

	t.Run("file only test", func(t *testing.T) {
		up := &fakeUploader{}
		body, ct, err := upload.BuildPayload(pdfFile(), upload.Metadata{})
		require.NoError(t, err)
		_, err = up.Upload(context.Background(), body, ct)
		require.NoError(t, err)
		assert.Empty(t, up.fields)
	})
}

func TestController(t *testing.T) {
	ctx := context.Background()

	t.Run("non pdf makes no call test", func(t *testing.T) {
		up := &fakeUploader{}
		c, center := newController(up, nil)

		_, err := c.Submit(ctx, &upload.File{Name: "x.png", ContentType: "image/png", Data: []byte{1}}, upload.Metadata{})
		assert.ErrorIs(t, err, upload.ErrNotPDF)
		assert.Equal(t, 0, up.calls)
		n, ok := center.Current()
		require.True(t, ok)
		assert.Equal(t, notify.Error, n.Severity)
		assert.Equal(t, "Please select a PDF file", n.Message)
	})

	t.Run("success refreshes and notifies test", func(t *testing.T) {
		up := &fakeUploader{}
		ref := &fakeRefresher{}
		c, center := newController(up, ref)

		res, err := c.Submit(ctx, pdfFile(), upload.Metadata{Title: "Manual"})
		require.NoError(t, err)
		assert.Equal(t, 2, res.PageCount)
		assert.Equal(t, 1, ref.calls)
		n, _ := center.Current()
		assert.Equal(t, notify.Success, n.Severity)
		assert.False(t, c.Busy())
	})

	t.Run("refresh failure keeps success test", func(t *testing.T) {
		c, center := newController(&fakeUploader{}, &fakeRefresher{err: errors.New("offline")})

		_, err := c.Submit(ctx, pdfFile(), upload.Metadata{})
		require.NoError(t, err)
		n, _ := center.Current()
		assert.Equal(t, notify.Success, n.Severity)
	})

	t.Run("server message is shown verbatim test", func(t *testing.T) {
		up := &fakeUploader{err: &api.StatusError{Code: 400, Message: "File is empty"}}
		ref := &fakeRefresher{}
		c, center := newController(up, ref)

		_, err := c.Submit(ctx, pdfFile(), upload.Metadata{})
		require.Error(t, err)
		assert.Equal(t, 0, ref.calls)
		n, _ := center.Current()
		assert.Equal(t, notify.Error, n.Severity)
		assert.Contains(t, n.Message, "File is empty")
	})

	t.Run("second submission while in flight test", func(t *testing.T) {
		up := &fakeUploader{started: make(chan struct{}), release: make(chan struct{})}
		c, _ := newController(up, nil)

		done := make(chan error, 1)
		go func() {
			_, err := c.Submit(ctx, pdfFile(), upload.Metadata{})
			done <- err
		}()
		<-up.started
		assert.True(t, c.Busy())

		_, err := c.Submit(ctx, pdfFile(), upload.Metadata{})
		assert.ErrorIs(t, err, upload.ErrInProgress)

		close(up.release)
		assert.NoError(t, <-done)
		assert.Equal(t, 1, up.calls)
	})
}
