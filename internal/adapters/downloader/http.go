package downloader

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"mediabatch/internal/core/domain"
	"mediabatch/internal/core/ports"
)

const (
	defaultConnectTimeout = 30 * time.Second
	defaultReadTimeout    = 60 * time.Second
	defaultUserAgent      = "mediabatch/1.0"
)

// Options configures an HTTPDownloader. Zero values fall back to defaults.
type Options struct {
	// ConnectTimeout bounds dialing and the TLS handshake.
	ConnectTimeout time.Duration
	// ReadTimeout bounds the wait for response headers and any gap between body reads.
	ReadTimeout time.Duration
	UserAgent   string
	// Transport overrides the default transport (tests).
	Transport http.RoundTripper
}

// HTTPDownloader implements ports.Downloader using standard HTTP.
type HTTPDownloader struct {
	client      *http.Client
	userAgent   string
	readTimeout time.Duration
}

// NewHTTPDownloader creates a new HTTPDownloader.
func NewHTTPDownloader(opts Options) *HTTPDownloader {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = defaultReadTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	transport := opts.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   opts.ConnectTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   opts.ConnectTimeout,
			ResponseHeaderTimeout: opts.ReadTimeout,
			MaxIdleConnsPerHost:   8,
			IdleConnTimeout:       90 * time.Second,
		}
	}
	return &HTTPDownloader{
		// No overall client timeout: videos can be large. Stalls are caught by the idle watchdog.
		client:      &http.Client{Transport: transport},
		userAgent:   opts.UserAgent,
		readTimeout: opts.ReadTimeout,
	}
}

// Download opens a streamed GET of transferURL.
func (d *HTTPDownloader) Download(ctx context.Context, transferURL string) (*ports.Stream, error) {
	ctx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, transferURL, http.NoBody)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: failed to create request: %v", domain.ErrTransfer, err)
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: failed to open stream: %w", domain.ErrTransfer, err)
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("%w: unexpected status code: %d", domain.ErrTransfer, resp.StatusCode)
	}

	return &ports.Stream{
		Body:        newIdleTimeoutBody(resp.Body, d.readTimeout, cancel),
		Size:        resp.ContentLength,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

// idleTimeoutBody cancels the request when no bytes arrive for timeout.
type idleTimeoutBody struct {
	rc       io.ReadCloser
	timeout  time.Duration
	timer    *time.Timer
	cancel   context.CancelFunc
	timedOut atomic.Bool
}

func newIdleTimeoutBody(rc io.ReadCloser, timeout time.Duration, cancel context.CancelFunc) *idleTimeoutBody {
	b := &idleTimeoutBody{rc: rc, timeout: timeout, cancel: cancel}
	b.timer = time.AfterFunc(timeout, func() {
		b.timedOut.Store(true)
		cancel()
	})
	return b
}

func (b *idleTimeoutBody) Read(p []byte) (int, error) {
	n, err := b.rc.Read(p)
	if n > 0 {
		b.timer.Reset(b.timeout)
	}
	if err != nil && err != io.EOF && b.timedOut.Load() {
		return n, fmt.Errorf("%w: no data received for %s: %w", domain.ErrTransfer, b.timeout, err)
	}
	return n, err
}

func (b *idleTimeoutBody) Close() error {
	b.timer.Stop()
	err := b.rc.Close()
	b.cancel()
	return err
}
