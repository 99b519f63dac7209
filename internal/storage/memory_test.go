package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/life2you_mini/backtest/internal/model"
)

var testBase = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func testDS(start, end time.Time) *model.HistoricalDataSet {
	return &model.HistoricalDataSet{
		FundingRates: map[string][]model.FundingRateRecord{},
		SpotCandles:  map[string][]model.Candle{},
		PerpCandles:  map[string][]model.Candle{},
		Metadata: model.DatasetMetadata{
			StartTime: start,
			EndTime:   end,
			Symbols:   []string{"BTC/USDT"},
		},
	}
}

func TestMemoryStorage_FindCovering(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	// 大小两个数据集都覆盖请求区间时取范围更小的
	wide := testDS(testBase, testBase.Add(90*24*time.Hour))
	narrow := testDS(testBase.Add(5*24*time.Hour), testBase.Add(40*24*time.Hour))
	require.NoError(t, s.SaveDataset(ctx, wide))
	require.NoError(t, s.SaveDataset(ctx, narrow))

	got, err := s.FindCovering(ctx, testBase.Add(10*24*time.Hour), testBase.Add(20*24*time.Hour), 8*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, narrow.Metadata.StartTime, got.Metadata.StartTime)

	// 容差内的边界偏移仍算覆盖
	got, err = s.FindCovering(ctx, testBase.Add(-7*time.Hour), testBase.Add(24*time.Hour), 8*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, wide.Metadata.StartTime, got.Metadata.StartTime)

	// 无覆盖数据集
	_, err = s.FindCovering(ctx, testBase.Add(-30*24*time.Hour), testBase, 8*time.Hour)
	var notFound *model.DataNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestMemoryStorage_ListRanges(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	require.NoError(t, s.SaveDataset(ctx, testDS(testBase.Add(48*time.Hour), testBase.Add(96*time.Hour))))
	require.NoError(t, s.SaveDataset(ctx, testDS(testBase, testBase.Add(24*time.Hour))))

	ranges, err := s.ListRanges(ctx)
	require.NoError(t, err)
	require.Len(t, ranges, 2)
	// 按起始时间升序
	assert.Equal(t, testBase, ranges[0].StartTime)
	assert.Equal(t, testBase.Add(48*time.Hour), ranges[1].StartTime)
}

func TestMemoryStorage_非法输入与健康检查(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	assert.Error(t, s.SaveDataset(ctx, nil))
	assert.NoError(t, s.Health(ctx))
	assert.NoError(t, s.Close())
}
