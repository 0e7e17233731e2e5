package viewer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/drummonds/pdfshelf/internal/logging"
	"github.com/drummonds/pdfshelf/internal/metrics"
	"github.com/drummonds/pdfshelf/internal/notify"
)

// DefaultIdleTimeout closes a session nobody has touched for this long.
const DefaultIdleTimeout = 30 * time.Minute

// ErrSessionNotFound is returned for an unknown or expired session id.
var ErrSessionNotFound = errors.New("viewer session not found")

// Notifier reports render failures to the user.
type Notifier interface {
	Notify(message string, severity notify.Severity) notify.Notification
}

// Session is one open viewer. It keeps the latest frame for display.
type Session struct {
	ID         string
	DocumentID int64
	Title      string
	Viewer     *Viewer

	notifier Notifier

	mu       sync.Mutex
	frame    *Frame
	lastErr  error
	lastUsed time.Time
}

// PageRendered keeps f as the latest frame.
func (s *Session) PageRendered(f *Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame = f
	s.lastErr = nil
}

// RenderFailed records err and tells the user.
func (s *Session) RenderFailed(page int, err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	if s.notifier != nil {
		s.notifier.Notify(fmt.Sprintf("Error rendering page %d", page), notify.Error)
	}
}

// Frame returns the latest frame and the error of the latest render, if it
// failed. The frame is nil before the first successful render.
func (s *Session) Frame() (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame, s.lastErr
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastUsed = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// SessionOptions configures Sessions.
type SessionOptions struct {
	IdleTimeout time.Duration
	Watermark   *Watermark
	Notifier    Notifier
	Logger      logging.Logger
	Metrics     *metrics.Metrics
}

// Sessions keeps the open viewers by id.
type Sessions struct {
	engine Engine
	opts   SessionOptions
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessions creates an empty session table over engine.
func NewSessions(engine Engine, opts SessionOptions) *Sessions {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.New("viewer")
	}
	return &Sessions{
		engine:   engine,
		opts:     opts,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Open opens data in a new session and starts rendering page. A page out
// of range starts on page 1.
func (s *Sessions) Open(documentID int64, title string, data []byte, page int, zoom Zoom, viewport image.Point) (*Session, error) {
	doc, err := s.engine.Open(data)
	if err != nil {
		return nil, fmt.Errorf("open document %d: %w", documentID, err)
	}

	sess := &Session{
		ID:         xid.New().String(),
		DocumentID: documentID,
		Title:      title,
		notifier:   s.opts.Notifier,
		lastUsed:   s.now(),
	}
	sess.Viewer = New(doc, sess, Options{
		Watermark: s.opts.Watermark,
		Zoom:      zoom,
		Viewport:  viewport,
		Logger:    s.opts.Logger.With("session", sess.ID),
		Metrics:   s.opts.Metrics,
	})
	if err := sess.Viewer.RequestPage(page); err != nil {
		if err := sess.Viewer.RequestPage(1); err != nil {
			_ = sess.Viewer.Close()
			return nil, err
		}
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	n := len(s.sessions)
	s.mu.Unlock()

	s.opts.Metrics.SetViewerSessions(n)
	s.opts.Logger.Debugf("opened session %s on document %d", sess.ID, documentID)
	return sess, nil
}

// Get returns a session and marks it used.
func (s *Sessions) Get(id string) (*Session, error) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrSessionNotFound)
	}
	sess.touch(s.now())
	return sess, nil
}

// Has reports whether id is open without marking it used.
func (s *Sessions) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	return ok
}

// Len returns the number of open sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close closes one session.
func (s *Sessions) Close(id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	n := len(s.sessions)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrSessionNotFound)
	}
	s.opts.Metrics.SetViewerSessions(n)
	return sess.Viewer.Close()
}

// Evict closes every session idle for longer than the idle timeout and
// returns how many it closed.
func (s *Sessions) Evict() int {
	cutoff := s.now().Add(-s.opts.IdleTimeout)

	s.mu.Lock()
	var stale []*Session
	for id, sess := range s.sessions {
		if sess.idleSince().Before(cutoff) {
			stale = append(stale, sess)
			delete(s.sessions, id)
		}
	}
	n := len(s.sessions)
	s.mu.Unlock()

	for _, sess := range stale {
		if err := sess.Viewer.Close(); err != nil {
			s.opts.Logger.Warnf("close session %s: %v", sess.ID, err)
		}
	}
	if len(stale) > 0 {
		s.opts.Metrics.SetViewerSessions(n)
		s.opts.Logger.Infof("evicted %d idle viewer sessions", len(stale))
	}
	return len(stale)
}

// Run evicts idle sessions every interval until ctx is done, then closes
// every session.
func (s *Sessions) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.CloseAll()
			return
		case <-ticker.C:
			s.Evict()
		}
	}
}

// CloseAll closes every session.
func (s *Sessions) CloseAll() {
	s.mu.Lock()
	all := s.sessions
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()

	for _, sess := range all {
		if err := sess.Viewer.Close(); err != nil {
			s.opts.Logger.Warnf("close session %s: %v", sess.ID, err)
		}
	}
	s.opts.Metrics.SetViewerSessions(0)
}
