package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smallnest/ragserve/rag"
)

// RedisStore keeps each session as a redis list of JSON-encoded turns, so
// appends are O(1) and histories survive process restarts.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// RedisStoreOptions configures a RedisStore.
type RedisStoreOptions struct {
	// Prefix namespaces the session keys. Defaults to "ragserve:session:".
	Prefix string
	// TTL is refreshed on every append; zero means sessions never expire.
	TTL time.Duration
}

// NewRedisStore creates a RedisStore over an existing client.
func NewRedisStore(client redis.UniversalClient, opts RedisStoreOptions) *RedisStore {
	if opts.Prefix == "" {
		opts.Prefix = "ragserve:session:"
	}
	return &RedisStore{
		client: client,
		prefix: opts.Prefix,
		ttl:    opts.TTL,
	}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, id string) (rag.History, error) {
	raw, err := s.client.LRange(ctx, s.key(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read session %s: %w", id, err)
	}

	history := make(rag.History, 0, len(raw))
	for _, item := range raw {
		var msg rag.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("corrupt turn in session %s: %w", id, err)
		}
		history = append(history, msg)
	}
	return history, nil
}

// Append implements Store.
func (s *RedisStore) Append(ctx context.Context, id string, turns ...rag.Message) error {
	if len(turns) == 0 {
		return nil
	}

	values := make([]any, len(turns))
	for i, turn := range turns {
		data, err := json.Marshal(turn)
		if err != nil {
			return fmt.Errorf("failed to encode turn: %w", err)
		}
		values[i] = data
	}

	key := s.key(id)
	if err := s.client.RPush(ctx, key, values...).Err(); err != nil {
		return fmt.Errorf("failed to append to session %s: %w", id, err)
	}
	if s.ttl > 0 {
		if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
			return fmt.Errorf("failed to refresh ttl for session %s: %w", id, err)
		}
	}
	return nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}
