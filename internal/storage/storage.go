// Package storage defines the target registry interface and its implementations.
package storage

import (
	"context"

	"pagewatch/internal/model"
)

// Store is the persisted registry of targets and shared settings.
//
// Each call holds the store's lock only for its own duration. A
// read-modify-write spanning several calls is not transactional; callers
// that hold a snapshot across slow work must reload before saving.
type Store interface {
	// LoadAll returns every target in registry order. A missing or
	// unreadable registry yields an empty slice.
	LoadAll(ctx context.Context) ([]model.Target, error)
	// SaveAll overwrites the registry with targets.
	SaveAll(ctx context.Context, targets []model.Target) error
	// ReserveID allocates a target id that is at least atLeast and greater
	// than every id reserved before. Reserved ids are never handed out
	// again, even after the target carrying them is deleted.
	ReserveID(ctx context.Context, atLeast int64) (int64, error)

	LoadSettings(ctx context.Context) (model.Settings, error)
	SaveSettings(ctx context.Context, s model.Settings) error

	Close() error
}
