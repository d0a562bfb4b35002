package snapshot

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/proffectiv/warrantyflow/internal/models"
)

// defaultRedisKey is the hash holding ticket_id -> status pairs.
const defaultRedisKey = "warrantyflow:status_snapshot"

// RedisStore keeps the snapshot in a Redis hash. Useful when several
// hosts share the notification schedule and a local file would drift.
type RedisStore struct {
	client *redis.Client
	key    string
	logger *log.Logger
}

var _ Store = (*RedisStore)(nil)

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisKey overrides the hash key.
func WithRedisKey(key string) RedisOption {
	return func(s *RedisStore) {
		if key != "" {
			s.key = key
		}
	}
}

// WithRedisLogger overrides the default logger.
func WithRedisLogger(logger *log.Logger) RedisOption {
	return func(s *RedisStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewRedisStore wraps an existing client. The caller owns the client's
// lifecycle.
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		key:    defaultRedisKey,
		logger: log.New(log.Writer(), "[SNAPSHOT] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load reads the full hash. A missing key yields an empty snapshot.
func (s *RedisStore) Load(ctx context.Context) (models.Snapshot, error) {
	pairs, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("loading snapshot hash %s: %w", s.key, err)
	}

	snap := models.Snapshot{}
	for id, status := range pairs {
		snap[id] = models.Status(status)
	}
	return snap, nil
}

// Save replaces the hash in one MULTI/EXEC block so concurrent readers
// never see a partially written snapshot.
func (s *RedisStore) Save(ctx context.Context, snap models.Snapshot) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key)
	if len(snap) > 0 {
		fields := make(map[string]any, len(snap))
		for id, status := range snap {
			fields[id] = string(status)
		}
		pipe.HSet(ctx, s.key, fields)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saving snapshot hash %s: %w", s.key, err)
	}

	s.logger.Printf("saved %d tracked tickets to redis", len(snap))
	return nil
}
