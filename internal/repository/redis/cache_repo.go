package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/DRSN-tech/image-indexer/internal/cfg"
	"github.com/DRSN-tech/image-indexer/pkg/clients"
	"github.com/DRSN-tech/image-indexer/pkg/e"
	"github.com/DRSN-tech/image-indexer/pkg/logger"
	"github.com/jimlawless/whereami"
)

// featuresRedisModel — закэшированный редуцированный вектор признаков.
// Hash дублируется в значении для проверки целостности записи.
type featuresRedisModel struct {
	Hash     string    `json:"hash"`
	Features []float32 `json:"features"`
}

// CacheRepo кэширует редуцированные векторы признаков по SHA-256 содержимого изображения.
type CacheRepo struct {
	client *clients.RedisClient
	cfg    *cfg.RedisCfg
	logger logger.Logger
}

func NewCacheRepo(client *clients.RedisClient, cfg *cfg.RedisCfg, logger logger.Logger) *CacheRepo {
	return &CacheRepo{
		client: client,
		cfg:    cfg,
		logger: logger,
	}
}

// GetFeatures возвращает закэшированные векторы по хэшам, игнорируя промахи и логируя их
func (r *CacheRepo) GetFeatures(ctx context.Context, hashes []string) (map[string][]float32, error) {
	keys := r.buildFeatureCacheKeys(hashes)

	values, err := r.client.Client.MGet(ctx, keys...).Result()
	if err != nil {
		r.logger.Warnf("Redis MGET failed: %v", e.Wrap(whereami.WhereAmI(), err))
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	result := make(map[string][]float32, len(values))
	for i, val := range values {
		data, err := redisValueToBytes(val, keys[i])
		if err != nil {
			r.logger.Warnf("%v", e.Wrap(whereami.WhereAmI(), err))
		}

		if data == nil {
			continue // cache miss
		}

		var model featuresRedisModel
		if err := json.Unmarshal(data, &model); err != nil {
			r.logger.Warnf("Redis unmarshal failed: %v", e.Wrap(whereami.WhereAmI(), err))
			continue
		}

		if model.Hash != hashes[i] {
			r.logger.Warnf("Cache hash mismatch: key_hash: %s, model_hash: %s", hashes[i], model.Hash)
			if err := r.client.Client.Del(context.Background(), keys[i]).Err(); err != nil {
				r.logger.Warnf("Redis del failed: %v", e.Wrap(whereami.WhereAmI(), err))
			}
			continue // cache miss
		}
		result[hashes[i]] = model.Features
	}

	return result, nil
}

// SetFeatures атомарно кэширует несколько векторов с заданным TTL.
// Игнорирует ошибки сериализации/записи, логируя их.
func (r *CacheRepo) SetFeatures(ctx context.Context, features map[string][]float32) error {
	pipeline := r.client.Client.Pipeline()
	for hash, vector := range features {
		data, err := json.Marshal(&featuresRedisModel{Hash: hash, Features: vector})
		if err != nil {
			r.logger.Warnf("Failed to marshal features for caching (hash: %s): %v", hash, e.Wrap(whereami.WhereAmI(), err))
			continue
		}

		pipeline.Set(ctx, r.featureKey(hash), data, r.cfg.FeaturesTTL)
	}

	if _, err := pipeline.Exec(ctx); err != nil {
		r.logger.Warnf("Cache pipeline failed: %v", e.Wrap(whereami.WhereAmI(), err))
	}

	return nil
}

// buildFeatureCacheKeys формирует Redis-ключи из хэшей изображений
func (r *CacheRepo) buildFeatureCacheKeys(hashes []string) []string {
	keys := make([]string, len(hashes))
	for i, hash := range hashes {
		keys[i] = r.featureKey(hash)
	}

	return keys
}

// featureKey возвращает Redis-ключ для одного вектора признаков
func (r *CacheRepo) featureKey(hash string) string {
	return fmt.Sprintf("features:%s", hash)
}

// redisValueToBytes конвертирует значение из Redis в []byte.
// Поддерживает string и []byte, возвращает ошибку для неизвестных типов.
func redisValueToBytes(val interface{}, key string) ([]byte, error) {
	switch v := val.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	case nil:
		return nil, nil // cache miss
	default:
		return nil, fmt.Errorf("unexpected Redis value type for key %s: %T", key, val)
	}
}
