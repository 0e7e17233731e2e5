// Package guard discourages printing, saving and capturing the viewer.
//
// Everything here is advisory. The browser owns the keyboard, the window
// and the pixels, so any user can get around all of it. Nothing else in
// pdfshelf relies on guard for correctness.
package guard

import (
	"image"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	// DevtoolsThreshold is the outer/inner window size gap, in pixels, that
	// suggests docked developer tools.
	DevtoolsThreshold = 160

	// DefaultRestoreAfter is how long content stays obscured.
	DefaultRestoreAfter = 2 * time.Second
)

// Action is what a key press is trying to do.
type Action string

const (
	None       Action = ""
	Print      Action = "print"
	Save       Action = "save"
	DevTools   Action = "devtools"
	Screenshot Action = "screenshot"
)

// DevtoolsMessage is shown when the size heuristic trips.
const DevtoolsMessage = "Developer tools detected. Content protection is active."

// Message is the warning shown for a, or "" when a is silently blocked.
func (a Action) Message() string {
	switch a {
	case Print:
		return "Print functionality is disabled for this document"
	case Save:
		return "Save functionality is disabled for this document"
	case Screenshot:
		return "Screenshots are not permitted for this document"
	default:
		return ""
	}
}

// KeyEvent is a key press as reported by the browser.
type KeyEvent struct {
	Key   string `json:"key"`
	Ctrl  bool   `json:"ctrl"`
	Meta  bool   `json:"meta"`
	Shift bool   `json:"shift"`
	Alt   bool   `json:"alt"`
}

// Classify names the action a key press is reaching for.
func Classify(e KeyEvent) Action {
	mod := e.Ctrl || e.Meta
	lower := strings.ToLower(e.Key)

	switch {
	case e.Key == "PrintScreen":
		return Screenshot
	case e.Ctrl && e.Shift && lower == "s":
		return Screenshot
	case e.Meta && e.Shift && (e.Key == "3" || e.Key == "4" || e.Key == "5"):
		return Screenshot
	case e.Key == "F12":
		return DevTools
	case mod && e.Shift && lower == "i":
		return DevTools
	case mod && !e.Shift && lower == "u":
		return DevTools
	case mod && !e.Shift && lower == "p":
		return Print
	case mod && !e.Shift && lower == "s":
		return Save
	}
	return None
}

// DevtoolsOpen reports whether the window's outer size exceeds its inner
// size by more than DevtoolsThreshold in either dimension.
func DevtoolsOpen(outer, inner image.Point) bool {
	return outer.Y-inner.Y > DevtoolsThreshold || outer.X-inner.X > DevtoolsThreshold
}

// Event is something the viewer page reports.
type Event struct {
	// Type is one of "key", "blur", "focus" or "size".
	Type  string      `json:"type"`
	Key   KeyEvent    `json:"key"`
	Outer image.Point `json:"outer"`
	Inner image.Point `json:"inner"`
}

// Response tells the page what to do about an Event.
type Response struct {
	Action   Action `json:"action,omitempty"`
	Block    bool   `json:"block"`
	Message  string `json:"message,omitempty"`
	Obscured bool   `json:"obscured"`
}

// Shield tracks whether the content of one viewer should be obscured.
type Shield struct {
	restoreAfter time.Duration
	now          func() time.Time

	mu       sync.Mutex
	until    time.Time
	devtools bool
}

// NewShield creates a visible Shield. restoreAfter <= 0 means
// DefaultRestoreAfter.
func NewShield(restoreAfter time.Duration) *Shield {
	if restoreAfter <= 0 {
		restoreAfter = DefaultRestoreAfter
	}
	return &Shield{restoreAfter: restoreAfter, now: time.Now}
}

// Obscure hides the content until Restore or until the restore delay has
// passed.
func (s *Shield) Obscure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.until = s.now().Add(s.restoreAfter)
}

// Restore shows the content again.
func (s *Shield) Restore() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.until = time.Time{}
}

// Obscured reports whether the content is hidden right now.
func (s *Shield) Obscured() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now().Before(s.until)
}

// CheckDevtools runs the size heuristic. It returns true only when the
// heuristic newly trips, and obscures the content then.
func (s *Shield) CheckDevtools(outer, inner image.Point) bool {
	open := DevtoolsOpen(outer, inner)

	s.mu.Lock()
	defer s.mu.Unlock()
	edge := open && !s.devtools
	s.devtools = open
	if edge {
		s.until = s.now().Add(s.restoreAfter)
	}
	return edge
}

// Handle applies e and returns what the page should do.
func (s *Shield) Handle(e Event) Response {
	var resp Response
	switch e.Type {
	case "key":
		resp.Action = Classify(e.Key)
		resp.Block = resp.Action != None
		resp.Message = resp.Action.Message()
		if resp.Action == Screenshot {
			s.Obscure()
		}
	case "blur":
		s.Obscure()
	case "focus":
		s.Restore()
	case "size":
		if s.CheckDevtools(e.Outer, e.Inner) {
			resp.Action = DevTools
			resp.Message = DevtoolsMessage
		}
	}
	resp.Obscured = s.Obscured()
	return resp
}

// Headers marks every response of next as not cacheable or storable.
func Headers(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Cache-Control", "no-cache, no-store, must-revalidate, private")
		h.Set("Pragma", "no-cache")
		h.Set("Expires", "0")
		h.Set("X-Content-Type-Options", "nosniff")
		next.ServeHTTP(w, r)
	})
}
