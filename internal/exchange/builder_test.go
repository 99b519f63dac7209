package exchange

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/life2you_mini/backtest/internal/mocks"
	"github.com/life2you_mini/backtest/internal/model"
)

func TestBuildDataset(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	rates := []model.FundingRateRecord{
		{Timestamp: start, Rate: 0.0001, FundingTime: start},
		{Timestamp: start.Add(8 * time.Hour), Rate: 0.0002, FundingTime: start.Add(8 * time.Hour)},
	}
	candles := []model.Candle{
		{Timestamp: start, Open: 100, High: 101, Low: 99, Close: 100, Volume: 1000},
	}

	provider := new(mocks.MockHistoryProvider)
	provider.On("GetName").Return("Binance")
	provider.On("FetchFundingRateHistory", mock.Anything, "BTC/USDT", start, end).Return(rates, nil)
	provider.On("FetchSpotOHLCV", mock.Anything, "BTC/USDT", start, end).Return(candles, nil)
	provider.On("FetchPerpOHLCV", mock.Anything, "BTC/USDT", start, end).Return(candles, nil)
	// ETH抓取失败，应被跳过而不中断
	provider.On("FetchFundingRateHistory", mock.Anything, "ETH/USDT", start, end).
		Return(nil, errors.New("接口超时"))

	ds, err := BuildDataset(context.Background(), provider, []string{"ETH/USDT", "BTC/USDT"}, start, end, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.Equal(t, "Binance", ds.Metadata.Exchange)
	assert.Equal(t, []string{"BTC/USDT"}, ds.Metadata.Symbols)
	assert.Len(t, ds.FundingRates["BTC/USDT"], 2)
	assert.Len(t, ds.SpotCandles["BTC/USDT"], 1)
	assert.NotContains(t, ds.FundingRates, "ETH/USDT")
	provider.AssertExpectations(t)
}

func TestBuildDataset_全部失败(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	provider := new(mocks.MockHistoryProvider)
	provider.On("GetName").Return("Binance")
	provider.On("FetchFundingRateHistory", mock.Anything, mock.Anything, start, end).
		Return(nil, errors.New("接口超时"))

	_, err := BuildDataset(context.Background(), provider, []string{"BTC/USDT"}, start, end, zaptest.NewLogger(t))
	assert.Error(t, err)

	_, err = BuildDataset(context.Background(), provider, nil, start, end, zaptest.NewLogger(t))
	assert.Error(t, err)
}
