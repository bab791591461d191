// Package browser provides the page capability used for extraction: open a
// page, navigate it to a URL, and query the resulting DOM with CSS selectors.
package browser

import (
	"context"
	"fmt"
	"time"
)

// DefaultUserAgent is sent by every backend.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Browser opens pages. One Browser is shared by all pages of a polling task.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Page is a single navigable page.
type Page interface {
	// Goto navigates to url, failing with a *NavigationError on timeout or
	// network failure.
	Goto(ctx context.Context, url string, timeout time.Duration) error
	// Snapshot returns the current DOM of the page.
	Snapshot(ctx context.Context) (*Document, error)
	Close() error
}

// NavigationError reports a failed Goto.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigate to %s: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error {
	return e.Err
}
