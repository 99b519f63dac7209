package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/life2you_mini/backtest/internal/model"
)

// MemoryStorage 内存数据集存储，用于测试和单次运行场景
type MemoryStorage struct {
	mu       sync.RWMutex
	datasets []*model.HistoricalDataSet
}

// NewMemoryStorage 创建内存存储
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// SaveDataset 保存数据集
func (s *MemoryStorage) SaveDataset(ctx context.Context, ds *model.HistoricalDataSet) error {
	if ds == nil {
		return fmt.Errorf("数据集为空")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.datasets = append(s.datasets, ds)
	return nil
}

// FindCovering 查找覆盖请求区间的数据集，多个候选时取范围最小的
func (s *MemoryStorage) FindCovering(ctx context.Context, start, end time.Time, tolerance time.Duration) (*model.HistoricalDataSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *model.HistoricalDataSet
	var bestSpan time.Duration
	for _, ds := range s.datasets {
		if !ds.Metadata.Covers(start, end, tolerance) {
			continue
		}
		span := ds.Metadata.EndTime.Sub(ds.Metadata.StartTime)
		if best == nil || span < bestSpan {
			best = ds
			bestSpan = span
		}
	}

	if best == nil {
		return nil, &model.DataNotFoundError{Start: start, End: end}
	}
	return best, nil
}

// ListRanges 列出所有数据集元信息，按起始时间升序
func (s *MemoryStorage) ListRanges(ctx context.Context) ([]model.DatasetMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ranges := make([]model.DatasetMetadata, 0, len(s.datasets))
	for _, ds := range s.datasets {
		ranges = append(ranges, ds.Metadata)
	}
	sort.Slice(ranges, func(i, j int) bool {
		return ranges[i].StartTime.Before(ranges[j].StartTime)
	})
	return ranges, nil
}

// Health 内存存储总是健康的
func (s *MemoryStorage) Health(ctx context.Context) error {
	return nil
}

// Close 关闭存储（无操作）
func (s *MemoryStorage) Close() error {
	return nil
}
