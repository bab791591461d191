package browser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxBodySize = 5 * 1024 * 1024

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTP is a Browser that downloads pages without running scripts.
type HTTP struct {
	client    HTTPClient
	userAgent string
}

// NewHTTP creates an HTTP browser with the given client.
func NewHTTP(client HTTPClient) *HTTP {
	return &HTTP{
		client:    client,
		userAgent: DefaultUserAgent,
	}
}

// NewPage returns an empty page.
func (b *HTTP) NewPage(_ context.Context) (Page, error) {
	return &httpPage{browser: b}, nil
}

// Close is a no-op.
func (b *HTTP) Close() error {
	return nil
}

type httpPage struct {
	browser *HTTP
	url     string
	body    []byte
}

func (p *httpPage) Goto(ctx context.Context, url string, timeout time.Duration) error {
	body, err := p.fetch(ctx, url, timeout)
	if err != nil {
		return &NavigationError{URL: url, Err: err}
	}
	p.url = url
	p.body = body
	return nil
}

func (p *httpPage) fetch(ctx context.Context, url string, timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", p.browser.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := p.browser.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func (p *httpPage) Snapshot(_ context.Context) (*Document, error) {
	if p.body == nil {
		return nil, errors.New("page has not been navigated")
	}
	return NewDocument(bytes.NewReader(p.body), p.url)
}

func (p *httpPage) Close() error {
	p.body = nil
	return nil
}
