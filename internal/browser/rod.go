package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// RodConfig configures the headless Chrome backend.
type RodConfig struct {
	// Bin is the Chrome executable. Empty lets the launcher find or
	// download one.
	Bin string
	// ControlURL connects to an already running browser instead of
	// launching one.
	ControlURL string
}

// Rod is a Browser backed by one headless Chrome process. Pages run the
// site's scripts before the DOM is queried.
type Rod struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
}

// NewRod launches (or connects to) Chrome.
func NewRod(cfg RodConfig) (*Rod, error) {
	controlURL := cfg.ControlURL
	var l *launcher.Launcher
	if controlURL == "" {
		l = launcher.New().Headless(true)
		if cfg.Bin != "" {
			l = l.Bin(cfg.Bin)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = u
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		if l != nil {
			l.Kill()
		}
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	return &Rod{browser: b, launcher: l}, nil
}

// NewPage opens a blank tab.
func (r *Rod) NewPage(ctx context.Context) (Page, error) {
	p, err := r.browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	if err := p.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: DefaultUserAgent}); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("set user agent: %w", err)
	}
	return &rodPage{page: p}, nil
}

// Close shuts the browser down.
func (r *Rod) Close() error {
	err := r.browser.Close()
	if r.launcher != nil {
		r.launcher.Kill()
	}
	return err
}

type rodPage struct {
	page *rod.Page
	url  string
}

func (p *rodPage) Goto(ctx context.Context, url string, timeout time.Duration) error {
	pg := p.page.Context(ctx)
	if timeout > 0 {
		pg = pg.Timeout(timeout)
		defer pg.CancelTimeout()
	}
	wait := pg.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := pg.Navigate(url); err != nil {
		return &NavigationError{URL: url, Err: err}
	}
	wait()
	if err := pg.GetContext().Err(); err != nil {
		return &NavigationError{URL: url, Err: err}
	}
	p.url = url
	return nil
}

func (p *rodPage) Snapshot(ctx context.Context) (*Document, error) {
	html, err := p.page.Context(ctx).HTML()
	if err != nil {
		return nil, fmt.Errorf("read page html: %w", err)
	}
	return NewDocument(strings.NewReader(html), p.url)
}

func (p *rodPage) Close() error {
	return p.page.Close()
}
