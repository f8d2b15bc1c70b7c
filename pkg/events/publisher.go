package events

import (
	"context"

	"ridestore/internal/models"
)

// Publisher fans committed transactions out to downstream consumers.
// Publishing happens after the commit is durable, so a failure never undoes
// it.
type Publisher interface {
	Publish(ctx context.Context, event *models.CommitEvent) error
	Close() error
}

type nopPublisher struct{}

func NewNopPublisher() Publisher {
	return nopPublisher{}
}

func (nopPublisher) Publish(context.Context, *models.CommitEvent) error { return nil }
func (nopPublisher) Close() error                                       { return nil }
