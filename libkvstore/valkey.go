package libkvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"
)

type manager struct {
	client valkey.Client
}

// NewManager connects to Valkey at cfg.KVAddr and verifies the connection
// within connectTimeout.
func NewManager(cfg Config, connectTimeout time.Duration) (KVManager, error) {
	if cfg.KVAddr == "" {
		return nil, fmt.Errorf("libkv: address is required")
	}
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{cfg.KVAddr},
		Password:    cfg.KVPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("libkv: failed to create client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("libkv: ping failed: %w", err)
	}

	return &manager{client: client}, nil
}

func (m *manager) Executor(ctx context.Context) (KVExec, error) {
	if m.client == nil {
		return nil, fmt.Errorf("libkv: manager is closed")
	}
	return &executor{client: m.client}, nil
}

func (m *manager) Close() error {
	if m.client != nil {
		m.client.Close()
	}
	return nil
}

type executor struct {
	client valkey.Client
}

func (e *executor) Get(ctx context.Context, key string) (json.RawMessage, error) {
	resp := e.client.Do(ctx, e.client.B().Get().Key(key).Build())
	if err := resp.Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	data, err := resp.AsBytes()
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

func (e *executor) Set(ctx context.Context, key string, value json.RawMessage) error {
	return e.client.Do(ctx, e.client.B().Set().Key(key).Value(string(value)).Build()).Error()
}

func (e *executor) SetWithTTL(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) error {
	return e.client.Do(ctx, e.client.B().Set().Key(key).Value(string(value)).Px(ttl).Build()).Error()
}

func (e *executor) Exists(ctx context.Context, key string) (bool, error) {
	n, err := e.client.Do(ctx, e.client.B().Exists().Key(key).Build()).AsInt64()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (e *executor) Delete(ctx context.Context, key string) error {
	return e.client.Do(ctx, e.client.B().Del().Key(key).Build()).Error()
}

func (e *executor) Keys(ctx context.Context, pattern string) ([]string, error) {
	return e.client.Do(ctx, e.client.B().Keys().Pattern(pattern).Build()).AsStrSlice()
}

func (e *executor) ListPush(ctx context.Context, key string, value []byte) error {
	return e.client.Do(ctx, e.client.B().Lpush().Key(key).Element(string(value)).Build()).Error()
}

func (e *executor) ListTrim(ctx context.Context, key string, start, stop int64) error {
	return e.client.Do(ctx, e.client.B().Ltrim().Key(key).Start(start).Stop(stop).Build()).Error()
}

func (e *executor) ListLength(ctx context.Context, key string) (int64, error) {
	return e.client.Do(ctx, e.client.B().Llen().Key(key).Build()).AsInt64()
}

func (e *executor) ListRange(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	items, err := e.client.Do(ctx, e.client.B().Lrange().Key(key).Start(start).Stop(stop).Build()).AsStrSlice()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(items))
	for _, item := range items {
		out = append(out, []byte(item))
	}
	return out, nil
}

func (e *executor) ListPop(ctx context.Context, key string) ([]byte, error) {
	resp := e.client.Do(ctx, e.client.B().Rpop().Key(key).Build())
	if err := resp.Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return resp.AsBytes()
}

func (e *executor) SetAdd(ctx context.Context, key string, member []byte) error {
	return e.client.Do(ctx, e.client.B().Sadd().Key(key).Member(string(member)).Build()).Error()
}

func (e *executor) SetMembers(ctx context.Context, key string) ([][]byte, error) {
	items, err := e.client.Do(ctx, e.client.B().Smembers().Key(key).Build()).AsStrSlice()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(items))
	for _, item := range items {
		out = append(out, []byte(item))
	}
	return out, nil
}
