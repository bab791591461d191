// Package registry implements the operations performed on the target
// registry: validated creation, enable/disable, deletion and the
// reconciliation used by long-running polls.
package registry

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"pagewatch/internal/model"
	"pagewatch/internal/storage"
)

// Interval bounds enforced when a target is added.
const (
	MinInterval = 10
	MaxInterval = 86400
)

// ErrNotFound is returned when no target has the requested id.
var ErrNotFound = errors.New("target not found")

// ValidationError reports input rejected before any state was changed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// NewTarget holds the operator-supplied fields of a target.
type NewTarget struct {
	URL           string `json:"url"`
	Interval      int    `json:"interval"`
	Mode          string `json:"mode"`
	NotifyOnCheck bool   `json:"notify_on_check"`
	AttachContent bool   `json:"attach_content"`
}

// Registry performs operations on a Store. Every mutation holds mu across
// its load, change and save, so concurrent callers never overwrite each
// other's writes.
type Registry struct {
	store storage.Store

	mu sync.Mutex
}

// New creates a Registry over store.
func New(store storage.Store) *Registry {
	return &Registry{store: store}
}

// List returns a snapshot of all targets.
func (r *Registry) List(ctx context.Context) ([]model.Target, error) {
	return r.store.LoadAll(ctx)
}

// Get returns the target with the given id.
func (r *Registry) Get(ctx context.Context, id int64) (model.Target, error) {
	targets, err := r.store.LoadAll(ctx)
	if err != nil {
		return model.Target{}, err
	}
	i := indexOf(targets, id)
	if i < 0 {
		return model.Target{}, fmt.Errorf("target %d: %w", id, ErrNotFound)
	}
	return targets[i], nil
}

// Add validates nt and appends it to the registry under a freshly reserved
// id. Ids of deleted targets are never reused.
func (r *Registry) Add(ctx context.Context, nt NewTarget) ([]model.Target, error) {
	nt.URL = strings.TrimSpace(nt.URL)
	mode, err := validate(nt)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	targets, err := r.store.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range targets {
		if t.URL == nt.URL {
			return nil, &ValidationError{Field: "url", Reason: "already monitored"}
		}
	}

	var maxID int64
	for _, t := range targets {
		maxID = max(maxID, t.ID)
	}
	id, err := r.store.ReserveID(ctx, maxID+1)
	if err != nil {
		return nil, fmt.Errorf("reserve id: %w", err)
	}
	targets = append(targets, model.Target{
		ID:            id,
		URL:           nt.URL,
		Mode:          mode,
		Interval:      nt.Interval,
		Enabled:       true,
		NotifyOnCheck: nt.NotifyOnCheck,
		AttachContent: nt.AttachContent,
	})
	if err := r.store.SaveAll(ctx, targets); err != nil {
		return nil, err
	}
	return targets, nil
}

func validate(nt NewTarget) (model.Mode, error) {
	if nt.URL == "" {
		return "", &ValidationError{Field: "url", Reason: "required"}
	}
	u, err := url.Parse(nt.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", &ValidationError{Field: "url", Reason: "must be an http or https URL"}
	}
	if nt.Interval < MinInterval || nt.Interval > MaxInterval {
		return "", &ValidationError{
			Field:  "interval",
			Reason: fmt.Sprintf("must be between %d and %d seconds", MinInterval, MaxInterval),
		}
	}
	mode, err := model.ParseMode(nt.Mode)
	if err != nil {
		return "", &ValidationError{Field: "mode", Reason: err.Error()}
	}
	return mode, nil
}

// SetEnabled toggles polling of a target.
func (r *Registry) SetEnabled(ctx context.Context, id int64, enabled bool) ([]model.Target, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	targets, err := r.store.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	i := indexOf(targets, id)
	if i < 0 {
		return nil, fmt.Errorf("target %d: %w", id, ErrNotFound)
	}
	targets[i].Enabled = enabled
	if err := r.store.SaveAll(ctx, targets); err != nil {
		return nil, err
	}
	return targets, nil
}

// Delete removes a target.
func (r *Registry) Delete(ctx context.Context, id int64) ([]model.Target, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	targets, err := r.store.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	i := indexOf(targets, id)
	if i < 0 {
		return nil, fmt.Errorf("target %d: %w", id, ErrNotFound)
	}
	targets = slices.Delete(targets, i, i+1)
	if err := r.store.SaveAll(ctx, targets); err != nil {
		return nil, err
	}
	return targets, nil
}

// Reconcile reloads the registry, applies mutate to the target with the
// given id and saves the result. If the target has been deleted since the
// caller's snapshot, nothing is saved and ErrNotFound is returned; the
// target is never re-created.
//
// mutate runs with the registry locked and must not call back into r.
func (r *Registry) Reconcile(ctx context.Context, id int64, mutate func(*model.Target)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	targets, err := r.store.LoadAll(ctx)
	if err != nil {
		return err
	}
	i := indexOf(targets, id)
	if i < 0 {
		return fmt.Errorf("target %d: %w", id, ErrNotFound)
	}
	mutate(&targets[i])
	return r.store.SaveAll(ctx, targets)
}

// Due returns the targets that should be polled at now.
func Due(targets []model.Target, now time.Time) []model.Target {
	var due []model.Target
	for _, t := range targets {
		if t.IsDue(now) {
			due = append(due, t)
		}
	}
	return due
}

// Settings returns the shared messaging credentials.
func (r *Registry) Settings(ctx context.Context) (model.Settings, error) {
	return r.store.LoadSettings(ctx)
}

// SaveSettings stores new messaging credentials.
func (r *Registry) SaveSettings(ctx context.Context, st model.Settings) error {
	st.ChannelToken = strings.TrimSpace(st.ChannelToken)
	st.UserID = strings.TrimSpace(st.UserID)
	if st.ChannelToken == "" {
		return &ValidationError{Field: "channel_token", Reason: "required"}
	}
	if st.UserID == "" {
		return &ValidationError{Field: "user_id", Reason: "required"}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.SaveSettings(ctx, st)
}

func indexOf(targets []model.Target, id int64) int {
	return slices.IndexFunc(targets, func(t model.Target) bool { return t.ID == id })
}
