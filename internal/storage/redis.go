package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/life2you_mini/backtest/internal/config"
	"github.com/life2you_mini/backtest/internal/model"
)

// RedisStorage 基于Redis的数据集存储
// 每个数据集整体JSON序列化，key带起止时间戳，另有一个index集合用于遍历
type RedisStorage struct {
	client    *redis.Client
	keyPrefix string
	logger    *zap.Logger
}

// NewRedisStorage 创建Redis存储并验证连接
func NewRedisStorage(ctx context.Context, cfg *config.RedisConfig, logger *zap.Logger) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("Redis连接失败: %w", err)
	}

	logger.Info("Redis存储已连接",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.Int("db", cfg.DB))

	return &RedisStorage{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
		logger:    logger.With(zap.String("component", "redis_storage")),
	}, nil
}

func (s *RedisStorage) datasetKey(start, end time.Time) string {
	return fmt.Sprintf("%sdataset:%d:%d", s.keyPrefix, start.Unix(), end.Unix())
}

func (s *RedisStorage) indexKey() string {
	return s.keyPrefix + "dataset:index"
}

// SaveDataset 保存数据集并登记到索引
func (s *RedisStorage) SaveDataset(ctx context.Context, ds *model.HistoricalDataSet) error {
	if ds == nil {
		return fmt.Errorf("数据集为空")
	}

	data, err := json.Marshal(ds)
	if err != nil {
		return fmt.Errorf("数据集序列化失败: %w", err)
	}

	key := s.datasetKey(ds.Metadata.StartTime, ds.Metadata.EndTime)
	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("数据集写入失败: %w", err)
	}
	if err := s.client.SAdd(ctx, s.indexKey(), key).Err(); err != nil {
		return fmt.Errorf("索引更新失败: %w", err)
	}

	s.logger.Info("数据集已保存",
		zap.String("key", key),
		zap.Int("symbols", len(ds.Metadata.Symbols)),
		zap.Int("bytes", len(data)))
	return nil
}

// FindCovering 遍历索引查找覆盖请求区间的数据集
// 多个候选时取范围最小的，减少后续ExtractRange的拷贝量
func (s *RedisStorage) FindCovering(ctx context.Context, start, end time.Time, tolerance time.Duration) (*model.HistoricalDataSet, error) {
	keys, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("索引读取失败: %w", err)
	}
	sort.Strings(keys)

	var best *model.HistoricalDataSet
	var bestSpan time.Duration
	for _, key := range keys {
		raw, err := s.client.Get(ctx, key).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("数据集读取失败: %w", err)
		}

		var ds model.HistoricalDataSet
		if err := json.Unmarshal(raw, &ds); err != nil {
			s.logger.Warn("数据集反序列化失败，跳过", zap.String("key", key), zap.Error(err))
			continue
		}
		if !ds.Metadata.Covers(start, end, tolerance) {
			continue
		}

		span := ds.Metadata.EndTime.Sub(ds.Metadata.StartTime)
		if best == nil || span < bestSpan {
			copied := ds
			best = &copied
			bestSpan = span
		}
	}

	if best == nil {
		return nil, &model.DataNotFoundError{Start: start, End: end}
	}
	return best, nil
}

// ListRanges 列出所有已保存数据集的元信息
func (s *RedisStorage) ListRanges(ctx context.Context) ([]model.DatasetMetadata, error) {
	keys, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("索引读取失败: %w", err)
	}
	sort.Strings(keys)

	var ranges []model.DatasetMetadata
	for _, key := range keys {
		raw, err := s.client.Get(ctx, key).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("数据集读取失败: %w", err)
		}

		var ds model.HistoricalDataSet
		if err := json.Unmarshal(raw, &ds); err != nil {
			continue
		}
		ranges = append(ranges, ds.Metadata)
	}

	sort.Slice(ranges, func(i, j int) bool {
		return ranges[i].StartTime.Before(ranges[j].StartTime)
	})
	return ranges, nil
}

// Health 检查Redis连接
func (s *RedisStorage) Health(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close 关闭Redis连接
func (s *RedisStorage) Close() error {
	return s.client.Close()
}
