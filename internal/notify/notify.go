// Package notify composes change notifications and pushes them to the
// configured messaging provider.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"pagewatch/internal/metrics"
	"pagewatch/internal/model"
)

// Defaults for the dispatcher.
const (
	DefaultMessageLimit = 4800
	DefaultSendInterval = time.Second

	// markerRoom is reserved in every chunk for the "[i/N]" prefix.
	markerRoom = 16
)

// ErrNoCredentials is returned when the settings lack a token or user id.
var ErrNoCredentials = errors.New("messaging credentials are not configured")

// Pusher delivers a single text message through a messaging provider.
type Pusher interface {
	Push(ctx context.Context, token, userID, text string) error
	Verify(ctx context.Context, token, userID string) error
	// MaxLen is the longest text, in characters, the provider accepts in
	// one message. Zero means no known limit.
	MaxLen() int
}

// Report aggregates the outcome of one Send.
type Report struct {
	Sent   int
	Failed int
}

// Dispatcher splits messages into chunks and sends them in order, pacing
// consecutive sends.
type Dispatcher struct {
	pusher  Pusher
	limiter *rate.Limiter
	limit   int
	metrics *metrics.Metrics
	log     *slog.Logger
}

// NewDispatcher creates a Dispatcher. A zero interval disables pacing and a
// non-positive limit selects DefaultMessageLimit. The limit is lowered so
// that a chunk and its prefix fit within p.MaxLen.
func NewDispatcher(p Pusher, interval time.Duration, limit int, m *metrics.Metrics, log *slog.Logger) *Dispatcher {
	if limit <= 0 {
		limit = DefaultMessageLimit
	}
	if p != nil {
		if maxLen := p.MaxLen(); maxLen > markerRoom && limit+markerRoom > maxLen {
			log.Warn("message limit exceeds provider maximum, lowering",
				"limit", limit, "provider_max", maxLen, "effective", maxLen-markerRoom)
			limit = maxLen - markerRoom
		}
	}
	every := rate.Inf
	if interval > 0 {
		every = rate.Every(interval)
	}
	return &Dispatcher{
		pusher:  p,
		limiter: rate.NewLimiter(every, 1),
		limit:   limit,
		metrics: m,
		log:     log,
	}
}

// Send delivers text to the recipient in settings. Failed chunks are logged
// and counted; they do not stop the remaining chunks.
func (d *Dispatcher) Send(ctx context.Context, settings model.Settings, text string) (Report, error) {
	var rep Report
	if !settings.HasCredentials() {
		d.log.Error("notification skipped", "error", ErrNoCredentials)
		d.metrics.IncNotification(metrics.StatusNoCredentials)
		return rep, ErrNoCredentials
	}

	chunks := Chunk(text, d.limit)
	for i, chunk := range chunks {
		if err := d.limiter.Wait(ctx); err != nil {
			return rep, fmt.Errorf("wait for send slot: %w", err)
		}
		if err := d.pusher.Push(ctx, settings.ChannelToken, settings.UserID, chunk); err != nil {
			rep.Failed++
			d.metrics.IncNotification(metrics.StatusFailed)
			d.log.Error("send notification", "chunk", i+1, "chunks", len(chunks), "error", err)
			continue
		}
		rep.Sent++
		d.metrics.IncNotification(metrics.StatusSent)
	}

	d.log.Info("notification sent", "sent", rep.Sent, "failed", rep.Failed)
	return rep, nil
}

// Test checks the credentials in settings against the provider without
// sending a message.
func (d *Dispatcher) Test(ctx context.Context, settings model.Settings) error {
	if !settings.HasCredentials() {
		return ErrNoCredentials
	}
	if err := d.pusher.Verify(ctx, settings.ChannelToken, settings.UserID); err != nil {
		return fmt.Errorf("verify credentials: %w", err)
	}
	return nil
}
