package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Kyle-Grantland/finterm/pkg/models"
)

const (
	keyPrefix   = "quote:"
	snapshotTTL = time.Hour
)

// Compile-time check to ensure RedisStore implements SnapshotStore
var _ SnapshotStore = (*RedisStore)(nil)

// RedisStore keeps the latest quote per symbol under quote:<symbol> with a
// TTL so stale symbols age out on their own
type RedisStore struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisStore(client *redis.Client, logger *zap.Logger) *RedisStore {
	return &RedisStore{client: client, logger: logger}
}

// StoreQuotes writes a flushed batch in one pipeline round trip
func (r *RedisStore) StoreQuotes(ctx context.Context, quotes []models.Quote) error {
	if len(quotes) == 0 {
		return nil
	}

	pipe := r.client.Pipeline()
	for _, q := range quotes {
		payload, err := json.Marshal(q)
		if err != nil {
			r.logger.Warn("Skipping unmarshalable quote", zap.String("symbol", q.Symbol), zap.Error(err))
			continue
		}
		pipe.Set(ctx, keyPrefix+q.Symbol, payload, snapshotTTL)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// GetSnapshots fetches the latest stored quote for each symbol (MGET).
// Symbols with no snapshot are simply absent from the result.
func (r *RedisStore) GetSnapshots(ctx context.Context, symbols []string) ([]models.Quote, error) {
	if len(symbols) == 0 {
		return nil, nil
	}

	keys := make([]string, len(symbols))
	for i, sym := range symbols {
		keys[i] = keyPrefix + sym
	}

	results, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	var quotes []models.Quote
	for _, val := range results {
		payload, ok := val.(string)
		if !ok || payload == "" {
			continue
		}
		var q models.Quote
		if err := json.Unmarshal([]byte(payload), &q); err != nil {
			r.logger.Warn("Dropping corrupt snapshot", zap.Error(err))
			continue
		}
		quotes = append(quotes, q)
	}
	return quotes, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
