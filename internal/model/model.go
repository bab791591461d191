// Package model defines the domain types used across the application.
package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Mode selects the extraction recipe applied to a fetched page.
type Mode string

// Supported extraction modes.
const (
	ModeDefault     Mode = "default"
	ModeProduct     Mode = "product"
	ModeAriaLabel   Mode = "aria-label"
	ModeLinkTitle   Mode = "link-title"
	ModeSearchTitle Mode = "search-title"
	ModeArticle     Mode = "article"
)

// Modes lists every supported mode in display order.
var Modes = []Mode{
	ModeDefault,
	ModeProduct,
	ModeAriaLabel,
	ModeLinkTitle,
	ModeSearchTitle,
	ModeArticle,
}

// ParseMode converts a mode name into a Mode.
// An empty name selects ModeDefault.
func ParseMode(s string) (Mode, error) {
	if s == "" {
		return ModeDefault, nil
	}
	for _, m := range Modes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// NormalizeMode maps a stored mode to a supported one. Mode labels found
// in older registry files are translated and anything unrecognized falls
// back to ModeDefault.
func NormalizeMode(s string) Mode {
	if m, err := ParseMode(s); err == nil {
		return m
	}
	switch s {
	case "エルメスモード (特定要素)":
		return ModeProduct
	case "a-title":
		return ModeLinkTitle
	case "span-content":
		return ModeSearchTitle
	}
	return ModeDefault
}

// Target is one monitored page together with its last observed state.
type Target struct {
	ID            int64   `json:"id"`
	URL           string  `json:"url"`
	Mode          Mode    `json:"mode"`
	Interval      int     `json:"interval"`
	Enabled       bool    `json:"enabled"`
	NotifyOnCheck bool    `json:"notify_on_check"`
	AttachContent bool    `json:"attach_content"`
	LastContent   *string `json:"last_content"`
	LastChecked   float64 `json:"last_checked"`
}

// UnmarshalJSON decodes a target, treating records without an "enabled"
// field as enabled and normalizing the mode.
func (t *Target) UnmarshalJSON(data []byte) error {
	type plain Target
	aux := struct {
		*plain
		Enabled *bool `json:"enabled"`
	}{plain: (*plain)(t)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	t.Enabled = aux.Enabled == nil || *aux.Enabled
	t.Mode = NormalizeMode(string(t.Mode))
	return nil
}

// CheckedAt returns LastChecked as a time, or the zero time if never checked.
func (t Target) CheckedAt() time.Time {
	if t.LastChecked <= 0 {
		return time.Time{}
	}
	sec := int64(t.LastChecked)
	nsec := int64((t.LastChecked - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

// IsDue reports whether the target should be polled at now.
func (t Target) IsDue(now time.Time) bool {
	if !t.Enabled {
		return false
	}
	return UnixSeconds(now)-t.LastChecked > float64(t.Interval)
}

// UnixSeconds converts a time into fractional Unix seconds.
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// Settings holds the shared messaging credentials.
type Settings struct {
	ChannelToken string `json:"channel_token"`
	UserID       string `json:"user_id"`
}

// HasCredentials reports whether both credentials are present.
func (s Settings) HasCredentials() bool {
	return s.ChannelToken != "" && s.UserID != ""
}

// Event classifies the outcome of a poll.
type Event int

// Poll outcomes.
const (
	EventInitial Event = iota
	EventUnchanged
	EventChanged
)

func (e Event) String() string {
	switch e {
	case EventInitial:
		return "initial"
	case EventUnchanged:
		return "unchanged"
	case EventChanged:
		return "changed"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}
