package exchange

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/life2you_mini/backtest/internal/model"
)

// BuildDataset 从交易所抓取指定区间的历史数据并组装成数据集
// 单个symbol失败只记录日志并跳过，不中断整个构建
func BuildDataset(ctx context.Context, provider HistoryProvider, symbols []string, start, end time.Time, logger *zap.Logger) (*model.HistoricalDataSet, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("symbol列表为空")
	}

	ds := &model.HistoricalDataSet{
		FundingRates: make(map[string][]model.FundingRateRecord, len(symbols)),
		SpotCandles:  make(map[string][]model.Candle, len(symbols)),
		PerpCandles:  make(map[string][]model.Candle, len(symbols)),
		Metadata: model.DatasetMetadata{
			StartTime: start,
			EndTime:   end,
			Exchange:  provider.GetName(),
		},
	}

	sorted := append([]string(nil), symbols...)
	sort.Strings(sorted)

	var kept []string
	for _, symbol := range sorted {
		rates, err := provider.FetchFundingRateHistory(ctx, symbol, start, end)
		if err != nil {
			logger.Warn("抓取资金费率历史失败，跳过symbol",
				zap.String("symbol", symbol),
				zap.Error(err))
			continue
		}

		spot, err := provider.FetchSpotOHLCV(ctx, symbol, start, end)
		if err != nil {
			logger.Warn("抓取现货K线失败，跳过symbol",
				zap.String("symbol", symbol),
				zap.Error(err))
			continue
		}

		perp, err := provider.FetchPerpOHLCV(ctx, symbol, start, end)
		if err != nil {
			logger.Warn("抓取永续K线失败，跳过symbol",
				zap.String("symbol", symbol),
				zap.Error(err))
			continue
		}

		ds.FundingRates[symbol] = rates
		ds.SpotCandles[symbol] = spot
		ds.PerpCandles[symbol] = perp
		kept = append(kept, symbol)

		logger.Info("symbol历史数据已抓取",
			zap.String("symbol", symbol),
			zap.Int("funding_records", len(rates)),
			zap.Int("spot_candles", len(spot)),
			zap.Int("perp_candles", len(perp)))
	}

	if len(kept) == 0 {
		return nil, fmt.Errorf("所有symbol抓取失败")
	}

	ds.Metadata.Symbols = kept
	return ds, nil
}
