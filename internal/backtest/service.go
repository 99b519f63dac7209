package backtest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/life2you_mini/backtest/internal/config"
	"github.com/life2you_mini/backtest/internal/datastore"
	"github.com/life2you_mini/backtest/internal/model"
	"github.com/life2you_mini/backtest/internal/storage"
)

// Service 回测服务：从存储加载数据集、构建引擎并执行
type Service struct {
	cfg     *config.Config
	factory *storage.Factory
	logger  *zap.Logger
}

// NewService 创建回测服务
func NewService(cfg *config.Config, factory *storage.Factory, logger *zap.Logger) *Service {
	return &Service{
		cfg:     cfg,
		factory: factory,
		logger:  logger.With(zap.String("component", "backtest_service")),
	}
}

// Run 执行一次完整回测
// 从配置指定的存储后端查找覆盖回测区间的数据集，找不到时返回DataNotFoundError
func (s *Service) Run(ctx context.Context) (*model.BacktestResult, error) {
	start, end, err := s.cfg.Backtest.Window()
	if err != nil {
		return nil, err
	}

	backend, err := s.factory.Get(s.cfg.Data.Source)
	if err != nil {
		return nil, fmt.Errorf("获取存储后端失败: %w", err)
	}

	ds, err := backend.FindCovering(ctx, start, end, datastore.CoverageTolerance)
	if err != nil {
		return nil, err
	}
	s.logger.Info("数据集已加载",
		zap.Time("dataset_start", ds.Metadata.StartTime),
		zap.Time("dataset_end", ds.Metadata.EndTime),
		zap.Int("symbols", len(ds.Metadata.Symbols)),
		zap.String("exchange", ds.Metadata.Exchange))

	store, err := datastore.New(ds)
	if err != nil {
		return nil, fmt.Errorf("构建数据存储失败: %w", err)
	}

	engine, err := NewEngine(&s.cfg.Backtest, store, s.logger)
	if err != nil {
		return nil, err
	}

	return engine.Run(ctx)
}
