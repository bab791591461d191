// Package scheduler drives the polling loop: it picks due targets, runs the
// fetch, detect and notify pipeline for each one and persists the result.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"pagewatch/internal/browser"
	"pagewatch/internal/detect"
	"pagewatch/internal/metrics"
	"pagewatch/internal/model"
	"pagewatch/internal/notify"
	"pagewatch/internal/registry"
)

// DefaultIdleInterval is the pause after every cycle.
const DefaultIdleInterval = 5 * time.Second

// Extractor fetches a page and returns its shaped content for a mode.
type Extractor interface {
	Extract(ctx context.Context, b browser.Browser, url string, mode model.Mode) (string, error)
}

// Notifier delivers a composed message.
type Notifier interface {
	Send(ctx context.Context, settings model.Settings, text string) (notify.Report, error)
}

// BrowserFactory opens the browser shared by one run of the loop.
type BrowserFactory func(ctx context.Context) (browser.Browser, error)

// Scheduler polls due targets one at a time. At most one loop goroutine
// exists at any moment.
type Scheduler struct {
	reg        *registry.Registry
	extractor  Extractor
	notifier   Notifier
	newBrowser BrowserFactory
	metrics    *metrics.Metrics
	log        *slog.Logger
	idle       time.Duration
	now        func() time.Time

	mu   sync.Mutex // guards stop and done
	stop chan struct{}
	done chan struct{}

	// pipe serializes target pipelines between the loop and CheckNow and
	// guards br.
	pipe sync.Mutex
	br   browser.Browser
}

// New creates a stopped Scheduler.
func New(reg *registry.Registry, ext Extractor, n Notifier, newBrowser BrowserFactory, log *slog.Logger) *Scheduler {
	return &Scheduler{
		reg:        reg,
		extractor:  ext,
		notifier:   n,
		newBrowser: newBrowser,
		log:        log,
		idle:       DefaultIdleInterval,
		now:        time.Now,
	}
}

// SetIdleInterval overrides the pause between cycles.
func (s *Scheduler) SetIdleInterval(d time.Duration) {
	s.idle = d
}

// SetMetrics attaches Prometheus collectors.
func (s *Scheduler) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Start launches the polling loop. It returns false without doing anything
// if a loop is already active, including one that is stopping but has not
// exited yet. Cancelling ctx aborts the loop and any in-flight fetch.
func (s *Scheduler) Start(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil {
		select {
		case <-s.done:
		default:
			return false
		}
	}

	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.metrics.SetRunning(true)
	go s.run(ctx, s.stop, s.done)
	return true
}

// Stop asks the loop to exit. The current target finishes first; no new
// target or cycle is started afterwards. It returns false if no loop is
// active or a stop is already pending.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done == nil || isClosed(s.done) || isClosed(s.stop) {
		return false
	}
	close(s.stop)
	return true
}

// Running reports whether the loop goroutine is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done != nil && !isClosed(s.done)
}

// Wait blocks until the current loop, if any, has exited.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

func isClosed(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func (s *Scheduler) run(ctx context.Context, stop, done chan struct{}) {
	defer func() {
		s.metrics.SetRunning(false)
		close(done)
	}()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("scheduler terminated", "panic", r)
		}
	}()

	br, err := s.newBrowser(ctx)
	if err != nil {
		s.log.Error("launch browser", "error", err)
		return
	}
	s.setBrowser(br)
	defer func() {
		s.setBrowser(nil)
		if err := br.Close(); err != nil {
			s.log.Warn("close browser", "error", err)
		}
	}()

	s.log.Info("scheduler started")
	defer s.log.Info("scheduler stopped")

	for {
		if isClosed(stop) || ctx.Err() != nil {
			return
		}
		s.cycle(ctx, stop)

		t := time.NewTimer(s.idle)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-stop:
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func (s *Scheduler) setBrowser(br browser.Browser) {
	s.pipe.Lock()
	s.br = br
	s.pipe.Unlock()
}

func (s *Scheduler) cycle(ctx context.Context, stop chan struct{}) {
	targets, err := s.reg.List(ctx)
	if err != nil {
		s.log.Error("load targets", "error", err)
		return
	}

	due := registry.Due(targets, s.now())
	if len(due) > 0 {
		s.log.Debug("cycle", "due", len(due), "total", len(targets))
	}
	for _, t := range due {
		if isClosed(stop) || ctx.Err() != nil {
			return
		}
		if err := s.checkShared(ctx, t.ID); err != nil && !isFetchError(err) {
			// The registry is unhealthy; retry after the idle pause.
			s.log.Error("check target", "target_id", t.ID, "error", err)
			return
		}
	}
}

// checkShared polls one target of the cycle with the loop's browser. The
// cycle's snapshot may be stale by the time the pipeline is free, so the
// target is re-read and skipped if it was deleted, disabled or checked by
// CheckNow in the meantime.
func (s *Scheduler) checkShared(ctx context.Context, id int64) error {
	s.pipe.Lock()
	defer s.pipe.Unlock()

	t, err := s.reg.Get(ctx, id)
	if errors.Is(err, registry.ErrNotFound) {
		s.log.Debug("target deleted before check", "target_id", id)
		return nil
	}
	if err != nil {
		return err
	}
	if !t.IsDue(s.now()) {
		s.log.Debug("target no longer due", "target_id", id, "enabled", t.Enabled)
		return nil
	}
	_, err = s.check(ctx, s.br, t)
	return err
}

// CheckNow runs the pipeline for one target immediately, whether or not it
// is due or enabled. It waits for any pipeline already in progress. The
// returned error is the fetch error, if any, or a persistence error.
func (s *Scheduler) CheckNow(ctx context.Context, id int64) (model.Event, error) {
	t, err := s.reg.Get(ctx, id)
	if err != nil {
		return 0, err
	}

	s.pipe.Lock()
	defer s.pipe.Unlock()

	br := s.br
	if br == nil {
		br, err = s.newBrowser(ctx)
		if err != nil {
			return 0, fmt.Errorf("launch browser: %w", err)
		}
		defer func() { _ = br.Close() }()
	}
	return s.check(ctx, br, t)
}

// fetchError marks a failed extraction whose outcome was still recorded.
type fetchError struct{ err error }

func (e *fetchError) Error() string { return e.err.Error() }
func (e *fetchError) Unwrap() error { return e.err }

func isFetchError(err error) bool {
	var fe *fetchError
	return errors.As(err, &fe)
}

// check runs one target through fetch, detect and notify, then reconciles
// the outcome into the registry. The caller holds s.pipe.
func (s *Scheduler) check(ctx context.Context, br browser.Browser, t model.Target) (model.Event, error) {
	log := s.log.With("target_id", t.ID, "url", t.URL)
	log.Info("checking target", "mode", t.Mode)

	start := time.Now()
	content, err := s.extractor.Extract(ctx, br, t.URL, t.Mode)
	checked := model.UnixSeconds(s.now())
	if err != nil {
		s.metrics.ObserveCheck(metrics.ResultError, time.Since(start))
		log.Error("fetch target", "error", err)
		if perr := s.persist(ctx, log, t.ID, checked, nil); perr != nil {
			return 0, perr
		}
		return 0, &fetchError{err: err}
	}
	s.metrics.ObserveCheck(metrics.ResultOK, time.Since(start))

	res := detect.Classify(t.LastContent, content)
	s.metrics.IncEvent(res.Event)
	switch res.Event {
	case model.EventInitial:
		log.Info("initial content captured")
	case model.EventChanged:
		log.Info("change detected", "diff_lines", len(res.Diff))
	default:
		log.Info("no change")
	}

	s.notify(ctx, log, t, res, content)

	return res.Event, s.persist(ctx, log, t.ID, checked, &content)
}

func (s *Scheduler) notify(ctx context.Context, log *slog.Logger, t model.Target, res detect.Result, content string) {
	in := notify.Input{
		Event:         res.Event,
		URL:           t.URL,
		Mode:          t.Mode,
		NotifyOnCheck: t.NotifyOnCheck,
		AttachContent: t.AttachContent,
		Current:       content,
		Diff:          res.Diff,
	}
	if t.LastContent != nil {
		in.Previous = *t.LastContent
	}
	text, ok := notify.Compose(in)
	if !ok {
		return
	}

	settings, err := s.reg.Settings(ctx)
	if err != nil {
		log.Error("load settings", "error", err)
		return
	}
	if _, err := s.notifier.Send(ctx, settings, text); err != nil && !errors.Is(err, notify.ErrNoCredentials) {
		log.Error("notify", "error", err)
	}
}

// persist applies the check outcome to a fresh copy of the registry. A nil
// content leaves last_content untouched. A target deleted while it was
// being checked is not re-created.
func (s *Scheduler) persist(ctx context.Context, log *slog.Logger, id int64, checked float64, content *string) error {
	err := s.reg.Reconcile(ctx, id, func(t *model.Target) {
		if checked > t.LastChecked {
			t.LastChecked = checked
		}
		if content != nil {
			t.LastContent = content
		}
	})
	if errors.Is(err, registry.ErrNotFound) {
		log.Warn("target deleted during check, result dropped")
		return nil
	}
	return err
}
