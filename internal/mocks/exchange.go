package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/life2you_mini/backtest/internal/model"
)

// MockHistoryProvider 交易所历史数据接口的mock实现
type MockHistoryProvider struct {
	mock.Mock
}

func (m *MockHistoryProvider) GetName() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockHistoryProvider) FetchFundingRateHistory(ctx context.Context, symbol string, start, end time.Time) ([]model.FundingRateRecord, error) {
	args := m.Called(ctx, symbol, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.FundingRateRecord), args.Error(1)
}

func (m *MockHistoryProvider) FetchSpotOHLCV(ctx context.Context, symbol string, start, end time.Time) ([]model.Candle, error) {
	args := m.Called(ctx, symbol, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Candle), args.Error(1)
}

func (m *MockHistoryProvider) FetchPerpOHLCV(ctx context.Context, symbol string, start, end time.Time) ([]model.Candle, error) {
	args := m.Called(ctx, symbol, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Candle), args.Error(1)
}

func (m *MockHistoryProvider) ValidPairs(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}
