package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisProducer struct {
	client     *redis.Client
	streamName string
	ensureMu   sync.Mutex
	ensured    bool
}

func NewRedisProducer(addr, streamName string) (*RedisProducer, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &RedisProducer{
		client:     client,
		streamName: streamName,
	}, nil
}

func (p *RedisProducer) EnqueueRetentionAlert(ctx context.Context, alert RetentionAlert) error {
	if err := p.ensureStream(ctx); err != nil {
		return err
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		return err
	}

	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.streamName,
		Values: map[string]any{
			"payload": string(payload),
		},
	}).Err(); err != nil {
		return fmt.Errorf("enqueue retention alert: %w", err)
	}
	return nil
}

func (p *RedisProducer) Close() error {
	return p.client.Close()
}

func (p *RedisProducer) ensureStream(ctx context.Context) error {
	p.ensureMu.Lock()
	if p.ensured {
		p.ensureMu.Unlock()
		return nil
	}
	p.ensureMu.Unlock()

	keyType, err := p.client.Type(ctx, p.streamName).Result()
	if err != nil {
		return fmt.Errorf("ensure alert stream: %w", err)
	}

	switch keyType {
	case "none", "stream":
	case "list":
		// Earlier deployments pushed alerts onto a plain list. Move the
		// backlog into the stream so nothing is dropped on upgrade.
		legacyName := fmt.Sprintf("%s:legacy:list:%d", p.streamName, time.Now().UTC().UnixNano())
		if err := p.client.Rename(ctx, p.streamName, legacyName).Err(); err != nil {
			if err == redis.Nil {
				break
			}
			return fmt.Errorf("rename legacy alert list: %w", err)
		}

		migrated := 0
		for {
			payload, err := p.client.RPop(ctx, legacyName).Result()
			if err == redis.Nil {
				break
			}
			if err != nil {
				return fmt.Errorf("read legacy alert list: %w", err)
			}
			if err := p.client.XAdd(ctx, &redis.XAddArgs{
				Stream: p.streamName,
				Values: map[string]any{
					"payload": payload,
				},
			}).Err(); err != nil {
				return fmt.Errorf("append migrated alert: %w", err)
			}
			migrated++
		}

		if err := p.client.Del(ctx, legacyName).Err(); err != nil {
			return fmt.Errorf("cleanup legacy alert key: %w", err)
		}
		if migrated > 0 {
			log.Printf("migrated legacy alert list to stream stream=%s entries=%d", p.streamName, migrated)
		}
	default:
		return fmt.Errorf("unsupported redis key type=%s", keyType)
	}

	p.ensureMu.Lock()
	p.ensured = true
	p.ensureMu.Unlock()
	return nil
}
