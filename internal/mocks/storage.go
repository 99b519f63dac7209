package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/life2you_mini/backtest/internal/model"
)

// MockStorage 存储接口的mock实现
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) SaveDataset(ctx context.Context, ds *model.HistoricalDataSet) error {
	args := m.Called(ctx, ds)
	return args.Error(0)
}

func (m *MockStorage) FindCovering(ctx context.Context, start, end time.Time, tolerance time.Duration) (*model.HistoricalDataSet, error) {
	args := m.Called(ctx, start, end, tolerance)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.HistoricalDataSet), args.Error(1)
}

func (m *MockStorage) ListRanges(ctx context.Context) ([]model.DatasetMetadata, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.DatasetMetadata), args.Error(1)
}

func (m *MockStorage) Health(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockStorage) Close() error {
	args := m.Called()
	return args.Error(0)
}
