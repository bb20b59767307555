package libbus

import (
	"context"
	"errors"
	"time"
)

var (
	ErrConnectionClosed = errors.New("libbus: connection closed")
	ErrRequestTimeout   = errors.New("libbus: request timed out")
)

// Handler processes a request message and returns the reply payload.
type Handler func(ctx context.Context, data []byte) ([]byte, error)

// Subscription is a handle for an active Stream or Serve registration.
type Subscription interface {
	Unsubscribe() error
}

// Messenger is the pub/sub surface the engine depends on. The server backs it
// with NATS; local single-process mode and tests use InMem.
type Messenger interface {
	// Publish sends a fire-and-forget message to all subscribers of subject.
	Publish(ctx context.Context, subject string, data []byte) error
	// Stream subscribes to subject; messages are delivered to ch until the
	// context is done or the subscription is released.
	Stream(ctx context.Context, subject string, ch chan<- []byte) (Subscription, error)
	// Request sends data and waits for a single reply from a Serve handler.
	Request(ctx context.Context, subject string, data []byte) ([]byte, error)
	// Serve registers a request-reply handler for subject.
	Serve(ctx context.Context, subject string, handler Handler) (Subscription, error)
	Close() error
}

// Config holds NATS connection settings.
type Config struct {
	NATSURL      string
	NATSUser     string
	NATSPassword string
	// RequestTimeout bounds Request round trips; defaults to 5s.
	RequestTimeout time.Duration
}
