package api

import (
	"net/http"
	"time"

	"github.com/drummonds/pdfshelf/internal/logging"
	"github.com/drummonds/pdfshelf/internal/metrics"
)

// Option configures Options.
type Option func(*Options)

// Options configures how we set up the client.
type Options struct {
	// HTTPClient is used for every request. A client with Timeout is
	// created when nil.
	HTTPClient *http.Client

	// Timeout bounds every request when HTTPClient is nil.
	Timeout time.Duration

	// Owner identifies the bookmark owner, sent as X-User-ID.
	Owner string

	// Logger is the logger of the client.
	Logger logging.Logger

	// Metrics records every call. Optional.
	Metrics *metrics.Metrics
}

// WithHTTPClient configures the underlying http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Options) { o.HTTPClient = c }
}

// WithTimeout configures the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = d }
}

// WithOwner configures the bookmark owner.
func WithOwner(owner string) Option {
	return func(o *Options) { o.Owner = owner }
}

// WithLogger configures the logger of the client.
func WithLogger(logger logging.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}

// WithMetrics configures the metrics the client records into.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Options) { o.Metrics = m }
}
