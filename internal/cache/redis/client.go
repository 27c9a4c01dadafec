package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kbassist/backend/internal/metrics"
	"github.com/kbassist/backend/pkg/logger"
	"github.com/kbassist/backend/pkg/utils"
)

const (
	promptPrefix    = "prompt:"
	embeddingPrefix = "embedding:"
)

type Client struct {
	client *redis.Client
}

func NewClient(host string, port int, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func promptKey(key string) string {
	return promptPrefix + key
}

// Get returns the cached answer stored under key. A missing key is a miss,
// not an error.
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, promptKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		metrics.CacheMisses.WithLabelValues("prompt").Inc()
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get prompt cache: %w", err)
	}

	metrics.CacheHits.WithLabelValues("prompt").Inc()
	logger.Debug("Prompt cache hit", zap.String("key_hash", utils.HashString(key)))
	return val, true, nil
}

// Set stores value under key with the given expiry. The value and its TTL are
// written in one pipeline so a stored entry never lacks an expiry.
func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	full := promptKey(key)

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, full, value, 0)
	pipe.Expire(ctx, full, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set prompt cache: %w", err)
	}

	logger.Debug("Prompt cached", zap.String("key_hash", utils.HashString(key)), zap.Duration("ttl", ttl))
	return nil
}

func (c *Client) SetEmbedding(ctx context.Context, textHash string, embedding []float32, ttl time.Duration) error {
	data, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}

	if err := c.client.Set(ctx, embeddingPrefix+textHash, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set embedding cache: %w", err)
	}

	logger.Debug("Embedding cached", zap.String("text_hash", textHash))
	return nil
}

func (c *Client) GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error) {
	data, err := c.client.Get(ctx, embeddingPrefix+textHash).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.CacheMisses.WithLabelValues("embedding").Inc()
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get embedding cache: %w", err)
	}

	var embedding []float32
	if err := json.Unmarshal(data, &embedding); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal embedding: %w", err)
	}

	metrics.CacheHits.WithLabelValues("embedding").Inc()
	return embedding, true, nil
}

// InvalidatePrompts drops every cached answer. Called after the knowledge
// corpus changes so stale answers are not served.
func (c *Client) InvalidatePrompts(ctx context.Context) (int, error) {
	deleted := 0
	iter := c.client.Scan(ctx, 0, promptPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warn("Failed to delete cache key", zap.Error(err))
			continue
		}
		deleted++
	}

	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("failed to iterate cache keys: %w", err)
	}

	logger.Info("Prompt cache invalidated", zap.Int("keys", deleted))
	return deleted, nil
}
