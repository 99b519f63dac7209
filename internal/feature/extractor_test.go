package feature

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/life2you_mini/backtest/internal/datastore"
	"github.com/life2you_mini/backtest/internal/model"
)

var testBase = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// 构造带衰减费率的测试存储：6条费率记录，41根小时K线，最后一根跳涨2%
func buildFeatureStore(t *testing.T) *datastore.Store {
	rates := []float64{0.0005, 0.0004, 0.0003, 0.0002, 0.0001, 0.00005}
	var records []model.FundingRateRecord
	for i, r := range rates {
		ts := testBase.Add(time.Duration(i) * 8 * time.Hour)
		records = append(records, model.FundingRateRecord{Timestamp: ts, Rate: r, FundingTime: ts})
	}

	var candles []model.Candle
	for i := 0; i <= 40; i++ {
		price := 100.0
		if i == 40 {
			price = 102.0
		}
		candles = append(candles, model.Candle{
			Timestamp: testBase.Add(time.Duration(i) * time.Hour),
			Open:      100, High: 102, Low: 99, Close: price, Volume: 1000,
		})
	}

	store, err := datastore.New(&model.HistoricalDataSet{
		FundingRates: map[string][]model.FundingRateRecord{"BTC/USDT": records},
		SpotCandles:  map[string][]model.Candle{"BTC/USDT": candles},
		PerpCandles:  map[string][]model.Candle{"BTC/USDT": candles},
	})
	require.NoError(t, err)
	return store
}

func TestExtract_特征计算(t *testing.T) {
	logger := zaptest.NewLogger(t)
	store := buildFeatureStore(t)
	extractor := NewExtractor(store, 3, logger)

	ts := testBase.Add(40 * time.Hour)
	fv, err := extractor.Extract("BTC/USDT", ts)
	require.NoError(t, err)

	// 窗口取最后5条费率，年化 = rate * 3 * 365 * 100
	require.Len(t, fv.RateWindow, 5)
	assert.InDelta(t, 5.475, fv.CurrentAPR, 1e-9)
	assert.InDelta(t, 43.8, fv.RateWindow[0], 1e-9)

	// 持续衰减：斜率为负，当前值处于窗口低位
	assert.Negative(t, fv.RateSlope)
	assert.InDelta(t, 20.0, fv.RatePercentile, 1e-9)
	assert.Positive(t, fv.RateStd)
	assert.InDelta(t, (43.8+32.85+21.9+10.95+5.475)/5, fv.RateMean, 1e-9)

	// 末根K线跳涨2%
	assert.InDelta(t, 0.02, fv.Return1h, 1e-9)
	assert.InDelta(t, 0.02, fv.Return4h, 1e-9)
	assert.InDelta(t, 0.02, fv.Return24h, 1e-9)
	assert.Positive(t, fv.RealizedVol)
	// 跳涨落在当前窗口，波动率处于历史最高位
	assert.InDelta(t, 100.0, fv.VolPercentile, 1e-9)

	assert.Equal(t, 16.0, fv.HourOfDay)
	assert.Equal(t, 0.0, fv.HoursSinceFunding)
}

func TestExtract_历史不足(t *testing.T) {
	logger := zaptest.NewLogger(t)
	store := buildFeatureStore(t)
	extractor := NewExtractor(store, 3, logger)

	// 费率记录不足：base+16h时只有3条
	_, err := extractor.Extract("BTC/USDT", testBase.Add(16*time.Hour))
	var insufficient *model.InsufficientHistoryError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, "BTC/USDT", insufficient.Symbol)
}

func TestExtract_K线不足(t *testing.T) {
	logger := zaptest.NewLogger(t)

	// 费率密集但K线稀少：6条费率对11根K线
	var records []model.FundingRateRecord
	for i := 0; i < 6; i++ {
		ts := testBase.Add(time.Duration(i) * 2 * time.Hour)
		records = append(records, model.FundingRateRecord{Timestamp: ts, Rate: 0.0001, FundingTime: ts})
	}
	var candles []model.Candle
	for i := 0; i <= 10; i++ {
		candles = append(candles, model.Candle{
			Timestamp: testBase.Add(time.Duration(i) * time.Hour),
			Open:      100, High: 101, Low: 99, Close: 100, Volume: 1000,
		})
	}
	store, err := datastore.New(&model.HistoricalDataSet{
		FundingRates: map[string][]model.FundingRateRecord{"BTC/USDT": records},
		SpotCandles:  map[string][]model.Candle{"BTC/USDT": candles},
		PerpCandles:  map[string][]model.Candle{"BTC/USDT": candles},
	})
	require.NoError(t, err)

	extractor := NewExtractor(store, 3, logger)
	_, err = extractor.Extract("BTC/USDT", testBase.Add(10*time.Hour))
	var insufficient *model.InsufficientHistoryError
	require.True(t, errors.As(err, &insufficient))
}

func TestExtract_未知symbol(t *testing.T) {
	logger := zaptest.NewLogger(t)
	store := buildFeatureStore(t)
	extractor := NewExtractor(store, 3, logger)

	_, err := extractor.Extract("XXX/USDT", testBase.Add(40*time.Hour))
	var insufficient *model.InsufficientHistoryError
	assert.True(t, errors.As(err, &insufficient))
}

func TestToVector_形状固定(t *testing.T) {
	logger := zaptest.NewLogger(t)
	store := buildFeatureStore(t)
	extractor := NewExtractor(store, 3, logger)

	fv, err := extractor.Extract("BTC/USDT", testBase.Add(40*time.Hour))
	require.NoError(t, err)

	vec := fv.ToVector()
	require.Len(t, vec, 8)
	assert.Equal(t, fv.CurrentAPR, vec[0])
	assert.Equal(t, fv.VolPercentile, vec[7])
}
