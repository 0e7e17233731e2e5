// Package upload validates a chosen file and its metadata, submits it as a
// multipart form and reconciles the rest of the UI afterwards.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"reflect"
	"strings"
	"sync/atomic"

	"github.com/go-playground/validator/v10"

	"github.com/drummonds/pdfshelf/internal/api"
	"github.com/drummonds/pdfshelf/internal/logging"
	"github.com/drummonds/pdfshelf/internal/notify"
)

const pdfMediaType = "application/pdf"

var (
	// ErrNoFile is returned when no file was chosen.
	ErrNoFile = errors.New("please select a file to upload")

	// ErrNotPDF is returned when the chosen file is not a PDF.
	ErrNotPDF = errors.New("please select a PDF file")

	// ErrInProgress is returned while an earlier submission is in flight.
	ErrInProgress = errors.New("an upload is already in progress")
)

// File is the file chosen for upload.
type File struct {
	Name string
	// ContentType is the declared media type. When empty the content is
	// sniffed.
	ContentType string
	Data        []byte
}

// Metadata holds the optional fields sent with a file. Empty fields are
// not sent.
type Metadata struct {
	Title           string `json:"title"           validate:"max=255"`
	ProductCode     string `json:"productCode"     validate:"max=100"`
	Edition         string `json:"edition"         validate:"max=100"`
	PublicationDate string `json:"publicationDate" validate:"omitempty,datetime=2006-01-02"`
	Notes           string `json:"notes"           validate:"max=4000"`
	CreatedBy       string `json:"createdBy"       validate:"max=100"`
}

// fields lists the metadata in the order it is written to the form.
func (m Metadata) fields() [][2]string {
	return [][2]string{
		{"title", m.Title},
		{"productCode", m.ProductCode},
		{"edition", m.Edition},
		{"publicationDate", m.PublicationDate},
		{"notes", m.Notes},
		{"createdBy", m.CreatedBy},
	}
}

// Violation is one metadata field that failed validation.
type Violation struct {
	Field string
	Tag   string
	Param string
}

func (v Violation) String() string {
	switch v.Tag {
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", v.Field, v.Param)
	case "datetime":
		return fmt.Sprintf("%s must be a date like YYYY-MM-DD", v.Field)
	default:
		return fmt.Sprintf("%s is invalid", v.Field)
	}
}

// ValidationError is returned when metadata fails validation.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.String()
	}
	return strings.Join(msgs, "; ")
}

// Uploader sends a built multipart payload. *api.Client implements it.
type Uploader interface {
	Upload(ctx context.Context, body io.Reader, contentType string) (*api.UploadResult, error)
}

// Refresher reloads the document list after a successful upload.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Notifier reports outcomes to the user. *notify.Center implements it.
type Notifier interface {
	Notify(message string, severity notify.Severity) notify.Notification
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks file and meta without touching the network.
func Validate(file *File, meta Metadata) error {
	if file == nil || (file.Name == "" && len(file.Data) == 0) {
		return ErrNoFile
	}
	if !isPDF(file) {
		return ErrNotPDF
	}
	if err := validate.Struct(meta); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validate metadata: %w", err)
		}
		ve := &ValidationError{}
		for _, fe := range verrs {
			ve.Violations = append(ve.Violations, Violation{Field: fe.Field(), Tag: fe.Tag(), Param: fe.Param()})
		}
		return ve
	}
	return nil
}

func isPDF(file *File) bool {
	if file.ContentType != "" {
		mt, _, err := mime.ParseMediaType(file.ContentType)
		return err == nil && mt == pdfMediaType
	}
	return http.DetectContentType(file.Data) == pdfMediaType
}

// BuildPayload writes the multipart form: the file part first, then every
// non-empty metadata field.
func BuildPayload(file *File, meta Metadata) (*bytes.Buffer, string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(file.Name)))
	h.Set("Content-Type", pdfMediaType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, "", fmt.Errorf("write file part: %w", err)
	}

	for _, f := range meta.fields() {
		v := strings.TrimSpace(f[1])
		if v == "" {
			continue
		}
		if err := mw.WriteField(f[0], v); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", f[0], err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return &body, mw.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// Controller runs one upload at a time.
type Controller struct {
	uploader  Uploader
	refresher Refresher
	notifier  Notifier
	logger    logging.Logger

	inFlight atomic.Bool
}

// NewController creates a Controller. refresher may be nil.
func NewController(uploader Uploader, refresher Refresher, notifier Notifier, logger logging.Logger) *Controller {
	if logger == nil {
		logger = logging.New("upload")
	}
	return &Controller{uploader: uploader, refresher: refresher, notifier: notifier, logger: logger}
}

// Busy reports whether a submission is in flight. Forms disable their
// submit control while it is true.
func (c *Controller) Busy() bool {
	return c.inFlight.Load()
}

// Submit validates, uploads and then refreshes the document list. Every
// outcome is also reported through the notifier.
func (c *Controller) Submit(ctx context.Context, file *File, meta Metadata) (*api.UploadResult, error) {
	if err := Validate(file, meta); err != nil {
		c.notifier.Notify(message(err), notify.Error)
		return nil, err
	}
	if !c.inFlight.CompareAndSwap(false, true) {
		c.notifier.Notify(message(ErrInProgress), notify.Warning)
		return nil, ErrInProgress
	}
	defer c.inFlight.Store(false)

	body, contentType, err := BuildPayload(file, meta)
	if err != nil {
		c.notifier.Notify("Upload failed: "+err.Error(), notify.Error)
		return nil, err
	}
	res, err := c.uploader.Upload(ctx, body, contentType)
	if err != nil {
		c.notifier.Notify("Upload failed: "+api.Message(err), notify.Error)
		return nil, err
	}

	if c.refresher != nil {
		if err := c.refresher.Refresh(ctx); err != nil {
			// The upload stands; the stale list stays until the next refresh.
			c.logger.Warnf("refresh after upload of %q: %v", file.Name, err)
		}
	}
	c.notifier.Notify("Document uploaded successfully!", notify.Success)
	return res, nil
}

// message capitalises a validation error for display.
func message(err error) string {
	s := err.Error()
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
