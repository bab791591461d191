package extract

import (
	"context"
	"fmt"
	"time"

	"pagewatch/internal/browser"
	"pagewatch/internal/model"
)

// Default timings.
const (
	DefaultNavTimeout  = 60 * time.Second
	DefaultSettleDelay = 10 * time.Second
)

// Extractor navigates pages and applies mode recipes.
type Extractor struct {
	// NavTimeout bounds page navigation.
	NavTimeout time.Duration
	// Settle is a fixed wait after navigation that lets client-side
	// rendering finish. It is a heuristic: nothing guarantees the page is
	// complete when it elapses.
	Settle time.Duration
}

// New returns an Extractor with the given timings.
func New(navTimeout, settle time.Duration) *Extractor {
	return &Extractor{NavTimeout: navTimeout, Settle: settle}
}

// Extract opens a page on b, navigates to url, waits the settle delay and
// returns the content selected by mode.
func (e *Extractor) Extract(ctx context.Context, b browser.Browser, url string, mode model.Mode) (string, error) {
	recipe, err := RecipeFor(mode)
	if err != nil {
		return "", err
	}

	page, err := b.NewPage(ctx)
	if err != nil {
		return "", fmt.Errorf("open page: %w", err)
	}
	defer func() { _ = page.Close() }()

	if err := page.Goto(ctx, url, e.NavTimeout); err != nil {
		return "", err
	}

	if e.Settle > 0 {
		t := time.NewTimer(e.Settle)
		select {
		case <-ctx.Done():
			t.Stop()
			return "", ctx.Err()
		case <-t.C:
		}
	}

	doc, err := page.Snapshot(ctx)
	if err != nil {
		return "", fmt.Errorf("snapshot page: %w", err)
	}
	return recipe.Apply(doc)
}
