// Package messagequeue defines the message queue port (interface).
package messagequeue

import "context"

// Handler processes a message received from the queue.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to messages.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain gracefully drains all subscriptions before closing.
	Drain() error

	// Close shuts down the queue connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// Subjects for negotiation workflow messages.
const (
	// SubjectRoundReady carries the exactly-once round-ready signal from the
	// selection tracker to the negotiation engine.
	SubjectRoundReady = "negotiations.round.ready"

	// SubjectRoundAdvanced notifies external dispatchers that a new round is
	// visible and both parties should be prompted to act.
	SubjectRoundAdvanced = "negotiations.round.advanced"

	// SubjectFinalized notifies external dispatchers that the negotiation
	// terminated and the final contract exists.
	SubjectFinalized = "negotiations.finalized"
)
