// Package logbuf keeps the most recent log lines in memory so the operator
// surface can tail them.
package logbuf

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// DefaultSize is the number of lines retained when no size is given.
const DefaultSize = 500

const timeLayout = "2006-01-02 15:04:05"

type ring struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool
}

// Ring is a slog.Handler that formats each record as one line and keeps the
// newest lines in a fixed-size buffer. Handlers derived with WithAttrs or
// WithGroup share the buffer.
type Ring struct {
	buf    *ring
	level  slog.Leveler
	prefix string
	group  string
}

// NewRing creates a Ring holding up to size lines. Records below level are
// dropped.
func NewRing(size int, level slog.Leveler) *Ring {
	if size <= 0 {
		size = DefaultSize
	}
	if level == nil {
		level = slog.LevelInfo
	}
	return &Ring{buf: &ring{lines: make([]string, size)}, level: level}
}

func (r *Ring) Enabled(_ context.Context, level slog.Level) bool {
	return level >= r.level.Level()
}

func (r *Ring) Handle(_ context.Context, rec slog.Record) error {
	var b strings.Builder
	b.WriteString(rec.Time.Format(timeLayout))
	b.WriteByte(' ')
	b.WriteString(rec.Level.String())
	b.WriteByte(' ')
	b.WriteString(rec.Message)
	b.WriteString(r.prefix)
	rec.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, r.group, a)
		return true
	})

	r.buf.mu.Lock()
	r.buf.lines[r.buf.next] = b.String()
	r.buf.next = (r.buf.next + 1) % len(r.buf.lines)
	if r.buf.next == 0 {
		r.buf.full = true
	}
	r.buf.mu.Unlock()
	return nil
}

func (r *Ring) WithAttrs(attrs []slog.Attr) slog.Handler {
	var b strings.Builder
	b.WriteString(r.prefix)
	for _, a := range attrs {
		writeAttr(&b, r.group, a)
	}
	clone := *r
	clone.prefix = b.String()
	return &clone
}

func (r *Ring) WithGroup(name string) slog.Handler {
	if name == "" {
		return r
	}
	clone := *r
	clone.group = joinKey(r.group, name)
	return &clone
}

// Tail returns up to n of the most recent lines, oldest first. A
// non-positive n returns every retained line.
func (r *Ring) Tail(n int) []string {
	r.buf.mu.Lock()
	defer r.buf.mu.Unlock()

	var all []string
	if r.buf.full {
		all = append(all, r.buf.lines[r.buf.next:]...)
	}
	all = append(all, r.buf.lines[:r.buf.next]...)

	if n > 0 && n < len(all) {
		all = all[len(all)-n:]
	}
	return all
}

func writeAttr(b *strings.Builder, group string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		g := joinKey(group, a.Key)
		for _, ga := range a.Value.Group() {
			writeAttr(b, g, ga)
		}
		return
	}
	val := a.Value.String()
	if strings.ContainsAny(val, " \n\t\"=") {
		val = fmt.Sprintf("%q", val)
	}
	fmt.Fprintf(b, " %s=%s", joinKey(group, a.Key), val)
}

func joinKey(group, key string) string {
	if group == "" {
		return key
	}
	if key == "" {
		return group
	}
	return group + "." + key
}

type fanout struct{ hs []slog.Handler }

// Fanout sends every record to each handler that accepts its level.
func Fanout(h ...slog.Handler) slog.Handler { return &fanout{hs: h} }

func (f *fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.hs {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f *fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f.hs {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func (f *fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(f.hs))
	for i, h := range f.hs {
		hs[i] = h.WithAttrs(attrs)
	}
	return &fanout{hs: hs}
}

func (f *fanout) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(f.hs))
	for i, h := range f.hs {
		hs[i] = h.WithGroup(name)
	}
	return &fanout{hs: hs}
}
