package session

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
)

const (
	// DefaultProbeTimeout bounds a single probe, retry included.
	DefaultProbeTimeout = 1500 * time.Millisecond

	defaultRetryBackoff = 100 * time.Millisecond
)

// Prober answers whether a switch console URL is reachable.
// Implementations must not panic on network failures and must always return.
type Prober interface {
	Probe(ctx context.Context, url string) bool
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, url string) bool

func (f ProberFunc) Probe(ctx context.Context, url string) bool { return f(ctx, url) }

// HTTPProber treats HTTP 200 as reachable and everything else as unreachable.
type HTTPProber struct {
	client  *http.Client
	timeout time.Duration
	backoff time.Duration
	logger  *log.Logger
}

// ProberOption configures an HTTPProber.
type ProberOption func(*HTTPProber)

// WithProbeTimeout overrides DefaultProbeTimeout.
func WithProbeTimeout(d time.Duration) ProberOption {
	return func(p *HTTPProber) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) ProberOption {
	return func(p *HTTPProber) {
		if c != nil {
			p.client = c
		}
	}
}

// WithRetryBackoff sets the wait before the single transient-status retry.
func WithRetryBackoff(d time.Duration) ProberOption {
	return func(p *HTTPProber) {
		if d >= 0 {
			p.backoff = d
		}
	}
}

// WithProbeLogger sets the logger used for probe diagnostics.
func WithProbeLogger(l *log.Logger) ProberOption {
	return func(p *HTTPProber) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewHTTPProber returns a prober with a 1.5s bound and one retry on transient statuses.
func NewHTTPProber(opts ...ProberOption) *HTTPProber {
	p := &HTTPProber{
		client:  &http.Client{},
		timeout: DefaultProbeTimeout,
		backoff: defaultRetryBackoff,
		logger:  log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe issues a GET against url and reports whether it answered 200.
// The body is never read. Both attempts share one deadline: the deadline of
// ctx when it carries one, otherwise the configured timeout.
func (p *HTTPProber) Probe(ctx context.Context, url string) bool {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	status, err := p.attempt(ctx, url)
	if err == nil && isTransientStatus(status) {
		p.logger.Debug("probe got transient status, retrying", "url", url, "status", status)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(p.backoff):
		}
		status, err = p.attempt(ctx, url)
	}
	if err != nil {
		p.logger.Debug("probe failed", "url", url, "error", err)
		return false
	}
	p.logger.Debug("probe finished", "url", url, "status", status)
	return status == http.StatusOK
}

func (p *HTTPProber) attempt(ctx context.Context, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}

func isTransientStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
