package libkvstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var ErrNotFound = errors.New("libkv: key not found")

// Config holds Valkey connection settings.
type Config struct {
	KVAddr     string
	KVPassword string
}

// KVManager owns the Valkey client and hands out executors.
type KVManager interface {
	Executor(ctx context.Context) (KVExec, error)
	Close() error
}

// KVExec is the key-value surface the engine uses: plain keys with optional
// TTL, lists for bounded logs and queues, and sets for dedup indexes.
type KVExec interface {
	Get(ctx context.Context, key string) (json.RawMessage, error)
	Set(ctx context.Context, key string, value json.RawMessage) error
	SetWithTTL(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, pattern string) ([]string, error)

	ListPush(ctx context.Context, key string, value []byte) error
	ListTrim(ctx context.Context, key string, start, stop int64) error
	ListLength(ctx context.Context, key string) (int64, error)
	ListRange(ctx context.Context, key string, start, stop int64) ([][]byte, error)
	ListPop(ctx context.Context, key string) ([]byte, error)

	SetAdd(ctx context.Context, key string, member []byte) error
	SetMembers(ctx context.Context, key string) ([][]byte, error)
}
