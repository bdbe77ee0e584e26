package readmodel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"priceflow/config"
	"priceflow/dates"
	"priceflow/logger"
)

// RedisStore keeps each (model, date) collection under one key:
// readmodel:<model>:<YYYY-MM-DD>. Collections are small enough (one day of
// held securities) that whole-value reads and writes stay cheap.
type RedisStore struct {
	client *redis.Client
	log    *logger.Log
}

func NewRedisStore(cfg config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: client, log: logger.GetLogger()}, nil
}

func (rs *RedisStore) key(model string, date dates.Date) string {
	return fmt.Sprintf("readmodel:%s:%s", model, date)
}

func (rs *RedisStore) Read(ctx context.Context, model string, date dates.Date) ([]byte, bool, error) {
	data, err := rs.client.Get(ctx, rs.key(model, date)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s collection: %w", model, err)
	}
	return data, true, nil
}

func (rs *RedisStore) Write(ctx context.Context, model string, date dates.Date, payload []byte) error {
	if err := rs.client.Set(ctx, rs.key(model, date), payload, 0).Err(); err != nil {
		return fmt.Errorf("failed to write %s collection: %w", model, err)
	}
	logger.IncrementReadModelWrite(len(payload))
	rs.log.WithComponent("read_model_store").WithFields(logger.Fields{
		"model": model,
		"date":  date.String(),
		"bytes": len(payload),
	}).Debug("collection written")
	return nil
}

func (rs *RedisStore) Close() error {
	return rs.client.Close()
}
