package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/annel0/voxel-engine/internal/logging"
	"github.com/annel0/voxel-engine/internal/mesh"
)

// RedisConfig содержит настройки подключения к Redis
type RedisConfig struct {
	Addr      string        // Адрес Redis сервера
	Password  string        // Пароль (пустой если не требуется)
	DB        int           // Номер базы данных
	KeyPrefix string        // Префикс для ключей
	TTL       time.Duration // Время жизни записей
	Timeout   time.Duration // Таймаут одной операции
}

// DefaultRedisConfig возвращает конфигурацию по умолчанию
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:      "localhost:6379",
		KeyPrefix: "voxel:",
		TTL:       time.Hour,
		Timeout:   time.Second,
	}
}

// RedisMeshCache - общий для нескольких серверов кэш мешей в Redis.
// Ключи совпадают с MeshCache, записи живут TTL.
type RedisMeshCache struct {
	client *redis.Client
	codec  *codec
	cfg    RedisConfig
	logger *logging.Logger
}

// NewRedisMeshCache подключается к Redis и проверяет соединение
func NewRedisMeshCache(cfg RedisConfig, logger *logging.Logger) (*RedisMeshCache, error) {
	if logger == nil {
		logger = logging.GetMeshLogger()
	}
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

	c, err := newCodec()
	if err != nil {
		client.Close()
		return nil, err
	}
	logger.Info("Кэш мешей в Redis %s, TTL %v", cfg.Addr, cfg.TTL)
	return &RedisMeshCache{client: client, codec: c, cfg: cfg, logger: logger}, nil
}

func (rc *RedisMeshCache) key(view *mesh.SectorView) string {
	return rc.cfg.KeyPrefix + string(meshKey(view))
}

// Lookup ищет меш для содержимого снимка
func (rc *RedisMeshCache) Lookup(view *mesh.SectorView) (*mesh.SectorMesh, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), rc.cfg.Timeout)
	defer cancel()

	data, err := rc.client.Get(ctx, rc.key(view)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ошибка чтения из Redis: %w", err)
	}

	var cm cachedMesh
	if err := rc.codec.unmarshal(data, &cm); err != nil {
		rc.logger.Warn("Повреждённая запись кэша сектора %d: %v", view.SectorID, err)
		return nil, false, nil
	}
	return cm.restore(view), true, nil
}

// Store сохраняет меш под ключом содержимого снимка
func (rc *RedisMeshCache) Store(view *mesh.SectorView, m *mesh.SectorMesh) error {
	data, err := rc.codec.marshal(cachedMesh{Origin: m.Origin, Vertices: m.Vertices, Indices: m.Indices})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), rc.cfg.Timeout)
	defer cancel()
	if err := rc.client.Set(ctx, rc.key(view), data, rc.cfg.TTL).Err(); err != nil {
		return fmt.Errorf("ошибка сохранения в Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение
func (rc *RedisMeshCache) Close() error {
	rc.codec.close()
	return rc.client.Close()
}
