package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisBodyRepo хранит тела в одном хэше Redis: поле - ID, значение - JSON записи.
// TTL в этом репозитории не применяется.
type RedisBodyRepo struct {
	client *redis.Client
	key    string
}

// NewRedisBodyRepo подключается к Redis и проверяет соединение
func NewRedisBodyRepo(cfg RedisConfig) (*RedisBodyRepo, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("не удалось подключиться к Redis %s: %w", cfg.Addr, err)
	}

	return &RedisBodyRepo{client: client, key: cfg.KeyPrefix + "bodies"}, nil
}

func bodyField(id uint64) string {
	return strconv.FormatUint(id, 10)
}

// Save сохраняет запись тела
func (r *RedisBodyRepo) Save(ctx context.Context, rec BodyRecord) error {
	return r.BatchSave(ctx, []BodyRecord{rec})
}

// Load загружает запись тела
func (r *RedisBodyRepo) Load(ctx context.Context, id uint64) (BodyRecord, bool, error) {
	data, err := r.client.HGet(ctx, r.key, bodyField(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return BodyRecord{}, false, nil
	}
	if err != nil {
		return BodyRecord{}, false, fmt.Errorf("failed to get body: %w", err)
	}

	var rec BodyRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return BodyRecord{}, false, fmt.Errorf("failed to unmarshal body %d: %w", id, err)
	}
	return rec, true, nil
}

// LoadAll загружает все записи хэша
func (r *RedisBodyRepo) LoadAll(ctx context.Context) ([]BodyRecord, error) {
	all, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get bodies: %w", err)
	}

	recs := make([]BodyRecord, 0, len(all))
	for id, data := range all {
		var rec BodyRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal body %s: %w", id, err)
		}
		recs = append(recs, rec)
	}
	sortRecords(recs)
	return recs, nil
}

// Delete удаляет запись тела
func (r *RedisBodyRepo) Delete(ctx context.Context, id uint64) error {
	if err := r.client.HDel(ctx, r.key, bodyField(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete body: %w", err)
	}
	return nil
}

// BatchSave записывает записи одной командой HSET
func (r *RedisBodyRepo) BatchSave(ctx context.Context, recs []BodyRecord) error {
	if len(recs) == 0 {
		return nil
	}

	values := make([]any, 0, 2*len(recs))
	for _, rec := range recs {
		if err := rec.validate(); err != nil {
			return err
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal body %d: %w", rec.ID, err)
		}
		values = append(values, bodyField(rec.ID), data)
	}

	if err := r.client.HSet(ctx, r.key, values...).Err(); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func (r *RedisBodyRepo) Close() error {
	return r.client.Close()
}
