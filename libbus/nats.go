package libbus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// pubSub implements Messenger on top of a NATS connection.
type pubSub struct {
	nc             *nats.Conn
	requestTimeout time.Duration
}

// NewPubSub connects to NATS using the provided configuration.
func NewPubSub(ctx context.Context, cfg *Config) (Messenger, error) {
	if cfg == nil || cfg.NATSURL == "" {
		return nil, fmt.Errorf("libbus: NATS URL is required")
	}
	opts := []nats.Option{
		nats.Timeout(10 * time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	}
	if cfg.NATSUser != "" {
		opts = append(opts, nats.UserInfo(cfg.NATSUser, cfg.NATSPassword))
	}
	nc, err := nats.Connect(cfg.NATSURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("libbus: failed to connect to NATS: %w", err)
	}
	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 5 * time.Second
	}
	return &pubSub{nc: nc, requestTimeout: requestTimeout}, nil
}

func (p *pubSub) Publish(ctx context.Context, subject string, data []byte) error {
	if p.nc.IsClosed() {
		return ErrConnectionClosed
	}
	return p.nc.Publish(subject, data)
}

func (p *pubSub) Stream(ctx context.Context, subject string, ch chan<- []byte) (Subscription, error) {
	if p.nc.IsClosed() {
		return nil, ErrConnectionClosed
	}
	sub, err := p.nc.Subscribe(subject, func(msg *nats.Msg) {
		select {
		case ch <- msg.Data:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return nil, err
	}
	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()
	return sub, nil
}

func (p *pubSub) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	if p.nc.IsClosed() {
		return nil, ErrConnectionClosed
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, p.requestTimeout)
	defer cancel()
	msg, err := p.nc.RequestWithContext(timeoutCtx, subject, data)
	if errors.Is(err, nats.ErrNoResponders) || errors.Is(err, context.DeadlineExceeded) {
		return nil, ErrRequestTimeout
	}
	if err != nil {
		return nil, err
	}
	return msg.Data, nil
}

func (p *pubSub) Serve(ctx context.Context, subject string, handler Handler) (Subscription, error) {
	if p.nc.IsClosed() {
		return nil, ErrConnectionClosed
	}
	sub, err := p.nc.Subscribe(subject, func(msg *nats.Msg) {
		reply, err := handler(ctx, msg.Data)
		if err != nil {
			return
		}
		_ = msg.Respond(reply)
	})
	if err != nil {
		return nil, err
	}
	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()
	return sub, nil
}

func (p *pubSub) Close() error {
	p.nc.Close()
	return nil
}

var _ Messenger = (*pubSub)(nil)
