package domain

import (
	"context"
	"time"
)

// StateStore persists datafeed state across restarts.
type StateStore interface {
	// DatafeedID returns the stored datafeed ID, creating one on first use.
	DatafeedID(ctx context.Context) (string, error)
	// ResetDatafeedID discards the stored ID so the next call creates a new one.
	ResetDatafeedID(ctx context.Context) error
	// Unseen returns the events not recorded yet, preserving input order and
	// dropping repeats within the input. It records nothing.
	Unseen(ctx context.Context, events []V4Event) ([]V4Event, error)
	// MarkSeen records events and returns the ones not recorded before,
	// preserving input order.
	MarkSeen(ctx context.Context, events []V4Event) ([]V4Event, error)
	// Prune forgets events recorded before the given time.
	Prune(ctx context.Context, before time.Time) (int64, error)

	Close() error
}
