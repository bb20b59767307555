package libbus

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	natscontainer "github.com/testcontainers/testcontainers-go/modules/nats"
)

// SetupNatsInstance starts a disposable NATS container for tests.
func SetupNatsInstance(ctx context.Context) (string, testcontainers.Container, func(), error) {
	cleanup := func() {}

	container, err := natscontainer.Run(ctx, "docker.io/nats:2.10-alpine")
	if err != nil {
		return "", nil, cleanup, fmt.Errorf("failed to start nats container: %w", err)
	}

	cleanup = func() {
		timeout := time.Second
		_ = container.Stop(context.Background(), &timeout)
	}

	url, err := container.ConnectionString(ctx)
	if err != nil {
		return "", container, cleanup, err
	}
	return url, container, cleanup, nil
}

// NewTestPubSub returns an in-memory Messenger for unit tests. The returned
// cleanup closes it.
func NewTestPubSub() (Messenger, func(), error) {
	ps := NewInMem()
	return ps, func() { _ = ps.Close() }, nil
}
