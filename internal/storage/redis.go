package storage

import (
	"context"
	"fmt"

	"github.com/redis/rueidis"
)

// DefaultRedisKey is where the document lives when no key is configured.
const DefaultRedisKey = "warden:settings"

// RedisBackend stores the document as a single string value.
type RedisBackend struct {
	client rueidis.Client
	key    string
}

// NewRedisBackend creates a backend on an existing client. The client is owned by the caller.
func NewRedisBackend(client rueidis.Client, key string) *RedisBackend {
	if key == "" {
		key = DefaultRedisKey
	}

	return &RedisBackend{client: client, key: key}
}

func (b *RedisBackend) Load(ctx context.Context) (Document, error) {
	data, err := b.client.Do(ctx, b.client.B().Get().Key(b.key).Build()).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return Document{}, nil
		}

		return nil, fmt.Errorf("failed to get %s: %w", b.key, err)
	}

	return Decode(data)
}

func (b *RedisBackend) Save(ctx context.Context, doc Document) error {
	data, err := Encode(doc)
	if err != nil {
		return err
	}

	err = b.client.Do(ctx, b.client.B().Set().Key(b.key).Value(rueidis.BinaryString(data)).Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", b.key, err)
	}

	return nil
}

func (b *RedisBackend) Close() error {
	return nil
}
