package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/life2you_mini/backtest/internal/model"
)

// 存储类型
const (
	StorageTypeRedis  = "redis"
	StorageTypeMemory = "memory"
)

// Storage 历史数据集的持久化接口
// 数据集按时间范围寻址：回测请求一个窗口时查找已保存的覆盖超集，避免重复抓取
type Storage interface {
	// SaveDataset 保存完整数据集
	SaveDataset(ctx context.Context, ds *model.HistoricalDataSet) error

	// FindCovering 查找覆盖[start, end]（容差内）的数据集
	// 没有覆盖的数据集时返回DataNotFoundError
	FindCovering(ctx context.Context, start, end time.Time, tolerance time.Duration) (*model.HistoricalDataSet, error)

	// ListRanges 列出所有已保存数据集的元信息，按起始时间升序
	ListRanges(ctx context.Context) ([]model.DatasetMetadata, error)

	// Health 健康检查
	Health(ctx context.Context) error

	// Close 关闭存储连接
	Close() error
}

// Factory 存储工厂
type Factory struct {
	mu       sync.RWMutex
	backends map[string]Storage
}

// NewFactory 创建存储工厂
func NewFactory() *Factory {
	return &Factory{
		backends: make(map[string]Storage),
	}
}

// Register 注册存储后端
func (f *Factory) Register(name string, s Storage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.backends[name] = s
}

// Get 获取指定名称的存储后端
func (f *Factory) Get(name string) (Storage, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	s, ok := f.backends[name]
	if !ok {
		return nil, fmt.Errorf("存储后端未注册: %s", name)
	}
	return s, nil
}

// GetAll 返回所有已注册的存储后端
func (f *Factory) GetAll() map[string]Storage {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make(map[string]Storage, len(f.backends))
	for name, s := range f.backends {
		out[name] = s
	}
	return out
}
