package redisstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"tollbooth/backend/services/toll-controller/internal/metrics"
	"tollbooth/backend/services/toll-controller/internal/service"
)

const (
	// StatusKey holds the latest status snapshot as JSON.
	StatusKey = "toll:status"
	// StatusChannel receives every snapshot as it is saved.
	StatusChannel = "toll:status:updates"

	writeTimeout = 2 * time.Second
)

// Client is the subset of *redis.Client the store uses.
type Client interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// StatusStore caches the booth status in redis for other processes.
type StatusStore struct {
	client  Client
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewStatusStore returns redis-backed status cache.
func NewStatusStore(client Client, m *metrics.Metrics, logger *zap.Logger) *StatusStore {
	return &StatusStore{client: client, metrics: m, logger: logger}
}

// Save stores the snapshot and publishes it.
func (s *StatusStore) Save(ctx context.Context, snap service.StatusSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, StatusKey, data, 0).Err(); err != nil {
		return err
	}
	return s.client.Publish(ctx, StatusChannel, data).Err()
}

// Get returns the cached snapshot.
func (s *StatusStore) Get(ctx context.Context) (*service.StatusSnapshot, error) {
	result, err := s.client.Get(ctx, StatusKey).Result()
	if err != nil {
		return nil, err
	}
	var snap service.StatusSnapshot
	if err := json.Unmarshal([]byte(result), &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Run saves each update until ctx ends or updates is closed. Failures are logged and the
// next update is attempted.
func (s *StatusStore) Run(ctx context.Context, updates <-chan service.StatusSnapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			saveCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := s.Save(saveCtx, snap)
			cancel()
			if err != nil {
				s.metrics.SinkFailed(metrics.SinkRedis)
				s.logger.Warn("status cache update failed", zap.Error(err))
			}
		}
	}
}
