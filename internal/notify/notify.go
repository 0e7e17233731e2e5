// Package notify holds the transient messages shown to the user. At most
// one notification is visible: a new one replaces the current one.
package notify

import (
	"sync"
	"time"

	"github.com/drummonds/pdfshelf/internal/logging"
	"github.com/drummonds/pdfshelf/internal/metrics"
)

// DefaultTTL is how long a notification stays visible.
const DefaultTTL = 5 * time.Second

// Severity of a notification.
type Severity string

const (
	Success Severity = "success"
	Error   Severity = "error"
	Warning Severity = "warning"
	Info    Severity = "info"
)

// Notification is one message shown to the user.
type Notification struct {
	ID        uint64
	Message   string
	Severity  Severity
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Center keeps the visible notification.
type Center struct {
	mu      sync.Mutex
	current *Notification
	timer   *time.Timer
	seq     uint64
	ttl     time.Duration

	logger  logging.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewCenter creates a Center. ttl <= 0 means DefaultTTL.
func NewCenter(ttl time.Duration, logger logging.Logger, m *metrics.Metrics) *Center {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = logging.New("notify")
	}
	return &Center{ttl: ttl, logger: logger, metrics: m, now: time.Now}
}

// Notify replaces the visible notification with message and arms its
// expiry.
func (c *Center) Notify(message string, severity Severity) Notification {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer != nil {
		c.timer.Stop()
	}
	c.seq++
	now := c.now()
	n := Notification{
		ID:        c.seq,
		Message:   message,
		Severity:  severity,
		CreatedAt: now,
		ExpiresAt: now.Add(c.ttl),
	}
	c.current = &n
	id := n.ID
	c.timer = time.AfterFunc(c.ttl, func() { c.expire(id) })

	switch severity {
	case Error:
		c.logger.Errorf("%s", message)
	case Warning:
		c.logger.Warnf("%s", message)
	default:
		c.logger.Infof("%s", message)
	}
	c.metrics.AddNotification(string(severity))
	return n
}

func (c *Center) Success(message string) Notification { return c.Notify(message, Success) }
func (c *Center) Error(message string) Notification   { return c.Notify(message, Error) }
func (c *Center) Warning(message string) Notification { return c.Notify(message, Warning) }
func (c *Center) Info(message string) Notification    { return c.Notify(message, Info) }

// Dismiss hides the visible notification, if any.
func (c *Center) Dismiss() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.current = nil
}

// Current returns the visible notification.
func (c *Center) Current() (Notification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return Notification{}, false
	}
	return *c.current, true
}

// expire hides notification id unless it was already replaced.
func (c *Center) expire(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil && c.current.ID == id {
		c.current = nil
		c.timer = nil
	}
}
