package datastore

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/life2you_mini/backtest/internal/model"
)

var testBase = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// 构造days天的测试数据集：资金费率每8小时一条，K线每小时一根
func buildTestDataset(symbol string, days int, rate float64) *model.HistoricalDataSet {
	var rates []model.FundingRateRecord
	for i := 0; i <= days*3; i++ {
		ts := testBase.Add(time.Duration(i) * 8 * time.Hour)
		rates = append(rates, model.FundingRateRecord{Timestamp: ts, Rate: rate, FundingTime: ts})
	}

	var candles []model.Candle
	for i := 0; i <= days*24; i++ {
		ts := testBase.Add(time.Duration(i) * time.Hour)
		candles = append(candles, model.Candle{
			Timestamp: ts, Open: 100, High: 101, Low: 99, Close: 100 + float64(i%2), Volume: 1000,
		})
	}

	return &model.HistoricalDataSet{
		FundingRates: map[string][]model.FundingRateRecord{symbol: rates},
		SpotCandles:  map[string][]model.Candle{symbol: candles},
		PerpCandles:  map[string][]model.Candle{symbol: candles},
		Metadata: model.DatasetMetadata{
			StartTime: testBase,
			EndTime:   testBase.Add(time.Duration(days) * 24 * time.Hour),
			Symbols:   []string{symbol},
		},
	}
}

func TestNew_排序与去重(t *testing.T) {
	ts0 := testBase
	ts1 := testBase.Add(8 * time.Hour)
	ds := &model.HistoricalDataSet{
		FundingRates: map[string][]model.FundingRateRecord{
			"BTC/USDT": {
				{Timestamp: ts1, Rate: 0.0002},
				{Timestamp: ts0, Rate: 0.0001},
				{Timestamp: ts1, Rate: 0.0009}, // 重复时间戳，应被丢弃
			},
		},
		SpotCandles: map[string][]model.Candle{},
		PerpCandles: map[string][]model.Candle{},
	}

	store, err := New(ds)
	require.NoError(t, err)

	records := store.Dataset().FundingRates["BTC/USDT"]
	require.Len(t, records, 2)
	assert.Equal(t, ts0, records[0].Timestamp)
	assert.Equal(t, ts1, records[1].Timestamp)
	assert.Equal(t, 0.0002, records[1].Rate)

	// 元信息从序列推导
	assert.Equal(t, ts0, store.Metadata().StartTime)
	assert.Equal(t, ts1, store.Metadata().EndTime)
	assert.Equal(t, []string{"BTC/USDT"}, store.Symbols())
}

func TestExtractRange_子区间提取(t *testing.T) {
	store, err := New(buildTestDataset("BTC/USDT", 30, 0.0001))
	require.NoError(t, err)

	start := testBase.Add(10 * 24 * time.Hour)
	end := testBase.Add(15 * 24 * time.Hour)
	sub, err := store.ExtractRange(start, end)
	require.NoError(t, err)

	records := sub.Dataset().FundingRates["BTC/USDT"]
	require.NotEmpty(t, records)
	// 边界两端都是闭区间
	assert.Equal(t, start, records[0].Timestamp)
	assert.Equal(t, end, records[len(records)-1].Timestamp)
	assert.Len(t, records, 5*3+1)

	candles := sub.Dataset().SpotCandles["BTC/USDT"]
	assert.Len(t, candles, 5*24+1)
	assert.Equal(t, start, sub.Metadata().StartTime)
	assert.Equal(t, end, sub.Metadata().EndTime)
}

func TestExtractRange_覆盖不足(t *testing.T) {
	store, err := New(buildTestDataset("BTC/USDT", 10, 0.0001))
	require.NoError(t, err)

	tests := []struct {
		name  string
		start time.Time
		end   time.Time
		want  bool
	}{
		{"完全覆盖", testBase, testBase.Add(10 * 24 * time.Hour), true},
		{"起点超前超出容差", testBase.Add(-9 * time.Hour), testBase.Add(24 * time.Hour), false},
		{"起点超前但在容差内", testBase.Add(-7 * time.Hour), testBase.Add(24 * time.Hour), true},
		{"终点超出", testBase, testBase.Add(11 * 24 * time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.ExtractRange(tt.start, tt.end)
			if tt.want {
				assert.NoError(t, err)
			} else {
				var notFound *model.DataNotFoundError
				require.True(t, errors.As(err, &notFound))
				assert.Equal(t, tt.start, notFound.Start)
			}
		})
	}
}

func TestFundingRateAsOf(t *testing.T) {
	store, err := New(buildTestDataset("BTC/USDT", 10, 0.0001))
	require.NoError(t, err)

	// 精确命中
	rec, ok := store.FundingRateAsOf("BTC/USDT", testBase.Add(8*time.Hour))
	require.True(t, ok)
	assert.Equal(t, testBase.Add(8*time.Hour), rec.Timestamp)

	// 两条记录之间取前一条
	rec, ok = store.FundingRateAsOf("BTC/USDT", testBase.Add(11*time.Hour))
	require.True(t, ok)
	assert.Equal(t, testBase.Add(8*time.Hour), rec.Timestamp)

	// 早于首条记录
	_, ok = store.FundingRateAsOf("BTC/USDT", testBase.Add(-time.Minute))
	assert.False(t, ok)

	// 不存在的symbol
	_, ok = store.FundingRateAsOf("XXX/USDT", testBase)
	assert.False(t, ok)
}

func TestPriceAsOf(t *testing.T) {
	store, err := New(buildTestDataset("BTC/USDT", 10, 0.0001))
	require.NoError(t, err)

	// 整点命中：奇数小时收盘价101
	price, ok := store.SpotPriceAsOf("BTC/USDT", testBase.Add(3*time.Hour))
	require.True(t, ok)
	assert.Equal(t, 101.0, price)

	// 半点取前一根
	price, ok = store.PerpPriceAsOf("BTC/USDT", testBase.Add(3*time.Hour+30*time.Minute))
	require.True(t, ok)
	assert.Equal(t, 101.0, price)

	_, ok = store.SpotPriceAsOf("BTC/USDT", testBase.Add(-time.Hour))
	assert.False(t, ok)
}

func TestFundingRatesUpTo_尾部窗口(t *testing.T) {
	store, err := New(buildTestDataset("BTC/USDT", 10, 0.0001))
	require.NoError(t, err)

	ts := testBase.Add(5 * 24 * time.Hour)
	window := store.FundingRatesUpTo("BTC/USDT", ts, 5)
	require.Len(t, window, 5)
	assert.Equal(t, ts, window[4].Timestamp)
	assert.Equal(t, ts.Add(-32*time.Hour), window[0].Timestamp)

	// max<=0返回全部
	all := store.FundingRatesUpTo("BTC/USDT", ts, 0)
	assert.Len(t, all, 5*3+1)

	// 历史不足max条时返回已有的
	short := store.FundingRatesUpTo("BTC/USDT", testBase.Add(8*time.Hour), 5)
	assert.Len(t, short, 2)
}

func TestFundingTimestamps(t *testing.T) {
	store, err := New(buildTestDataset("BTC/USDT", 10, 0.0001))
	require.NoError(t, err)

	start := testBase
	end := testBase.Add(24 * time.Hour)
	ticks := store.FundingTimestamps(start, end, 8*time.Hour)
	require.Len(t, ticks, 4)
	assert.Equal(t, start, ticks[0])
	assert.Equal(t, end, ticks[3])

	assert.Nil(t, store.FundingTimestamps(end, start, 8*time.Hour))
	assert.Nil(t, store.FundingTimestamps(start, end, 0))
}
