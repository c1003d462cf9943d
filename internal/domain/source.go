package domain

import "context"

// Batch is one read from an event source.
type Batch struct {
	// AckID identifies the batch when acknowledging it. Empty when the
	// source needs no acknowledgement.
	AckID  string
	Events []V4Event
}

// Source delivers datafeed event batches. Read blocks until a batch is
// available or ctx is done.
type Source interface {
	Read(ctx context.Context) (Batch, error)
	Ack(ctx context.Context, ackID string) error
	Close() error
}
