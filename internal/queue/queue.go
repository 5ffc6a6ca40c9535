// Package queue delivers raw message ids to the trigger workers at least
// once. A delivery stays owned by the receiver until it is acked or nacked.
package queue

import (
	"context"
	"errors"
)

var (
	// ErrNoMessage means Receive waited its block timeout without a delivery.
	ErrNoMessage = errors.New("queue: no message")
	ErrClosed    = errors.New("queue: closed")
	ErrFull      = errors.New("queue: full")
)

type Publisher interface {
	Publish(ctx context.Context, id string) error
}

type Queue interface {
	Publisher
	Receive(ctx context.Context) (string, error)
	Ack(ctx context.Context, id string) error
	Nack(ctx context.Context, id string) error
	Close() error
}
