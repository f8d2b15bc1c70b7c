package interfaces

import (
	"context"

	"ridestore/internal/models"
)

// JournalRepository is the durable record of committed transactions: an
// append-only log plus the newest snapshot.
type JournalRepository interface {
	// Log operations
	Append(ctx context.Context, entry *models.CommitEntry) error
	// ReadEntries calls fn for every entry with Seq > afterSeq in order.
	ReadEntries(ctx context.Context, afterSeq uint64, fn func(*models.CommitEntry) error) error

	// Snapshot operations
	SaveSnapshot(ctx context.Context, snapshot *models.Snapshot) error
	// LoadSnapshot returns nil, nil when no snapshot exists.
	LoadSnapshot(ctx context.Context) (*models.Snapshot, error)

	Close() error
}
