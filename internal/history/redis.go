package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const DefaultRedisKey = "vidown:history"

// RedisSink keeps the log in a Redis list so several daemons can share it.
type RedisSink struct {
	client *redis.Client
	key    string
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

func NewRedisSink(opts RedisOptions) (*RedisSink, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("redis history requires an address")
	}
	if opts.Key == "" {
		opts.Key = DefaultRedisKey
	}
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("error connecting to redis: %v", err)
	}
	return &RedisSink{client: client, key: opts.Key}, nil
}

func (r *RedisSink) Append(ctx context.Context, entry Entry) error {
	b, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("error encoding history entry: %v", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, r.key, b)
	pipe.Set(ctx, r.key+":updated", entry.Timestamp.Unix(), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("error appending history entry: %v", err)
	}
	return nil
}

func (r *RedisSink) List(ctx context.Context) ([]Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	vals, err := r.client.LRange(ctx, r.key, 0, -1).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("error reading history: %v", err)
	}
	entries := make([]Entry, 0, len(vals))
	for _, v := range vals {
		var e Entry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			log.Warn().Str("op", "history/redis").Err(err).Msg("skipping malformed history entry")
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (r *RedisSink) Close() error {
	return r.client.Close()
}
