package feature

import (
	"fmt"
	"time"

	"github.com/markcheno/go-talib"
	"go.uber.org/zap"

	"github.com/life2you_mini/backtest/internal/datastore"
	"github.com/life2you_mini/backtest/internal/exchange"
	"github.com/life2you_mini/backtest/internal/model"
)

const (
	// MinFundingHistory 计算费率特征需要的最少结算记录数
	MinFundingHistory = 5
	// MinCandleHistory 计算24小时收益和波动率需要的最少小时K线数
	MinCandleHistory = 25
	// volLookbackCandles 波动率分位数的回看K线上限，约30天
	volLookbackCandles = 720
)

// Extractor 从历史序列中计算某时刻的特征向量
// 所有输入都取自ts时刻或之前的数据，不会读取未来
type Extractor struct {
	store          *datastore.Store
	paymentsPerDay int
	logger         *zap.Logger
}

// NewExtractor 创建特征提取器
func NewExtractor(store *datastore.Store, paymentsPerDay int, logger *zap.Logger) *Extractor {
	return &Extractor{
		store:          store,
		paymentsPerDay: paymentsPerDay,
		logger:         logger.With(zap.String("component", "feature_extractor")),
	}
}

// Extract 计算symbol在ts时刻的特征向量
// 历史长度不足时返回InsufficientHistoryError，调用方应跳过该symbol而不是降级
func (e *Extractor) Extract(symbol string, ts time.Time) (*model.FeatureVector, error) {
	rates := e.store.FundingRatesUpTo(symbol, ts, MinFundingHistory)
	if len(rates) < MinFundingHistory {
		return nil, &model.InsufficientHistoryError{
			Symbol: symbol, Timestamp: ts,
			Reason: fmt.Sprintf("资金费记录 %d < %d", len(rates), MinFundingHistory)}
	}

	candles := e.store.PerpCandlesUpTo(symbol, ts, volLookbackCandles)
	if len(candles) < MinCandleHistory {
		return nil, &model.InsufficientHistoryError{
			Symbol: symbol, Timestamp: ts,
			Reason: fmt.Sprintf("小时K线 %d < %d", len(candles), MinCandleHistory)}
	}

	aprWindow := make([]float64, len(rates))
	for i, r := range rates {
		aprWindow[i] = exchange.CalculateAPR(r.Rate, e.paymentsPerDay)
	}
	currentAPR := aprWindow[len(aprWindow)-1]

	fv := &model.FeatureVector{
		Symbol:            symbol,
		Timestamp:         ts,
		CurrentAPR:        currentAPR,
		RateWindow:        aprWindow,
		RateMean:          mean(aprWindow),
		RateStd:           lastOf(talib.StdDev(aprWindow, len(aprWindow), 1)),
		RateSlope:         lastOf(talib.LinearRegSlope(aprWindow, len(aprWindow))),
		RatePercentile:    percentileRank(aprWindow, currentAPR),
		HourOfDay:         float64(ts.UTC().Hour()),
		HoursSinceFunding: ts.Sub(rates[len(rates)-1].Timestamp).Hours(),
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	fv.Return1h = simpleReturn(closes, 1)
	fv.Return4h = simpleReturn(closes, 4)
	fv.Return24h = simpleReturn(closes, 24)

	returns := hourlyReturns(closes)
	window := returns[len(returns)-24:]
	fv.RealizedVol = lastOf(talib.StdDev(window, len(window), 1))
	fv.VolPercentile = volPercentile(returns)

	return fv, nil
}

// mean 算术平均
func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// lastOf talib的滚动指标输出与输入等长，前期填零，只有末位是完整窗口的值
func lastOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return values[len(values)-1]
}

// percentileRank 当前值在窗口中的分位（0-100，窗口最大值为100）
func percentileRank(window []float64, value float64) float64 {
	count := 0
	for _, v := range window {
		if v <= value {
			count++
		}
	}
	return float64(count) / float64(len(window)) * 100
}

// simpleReturn 末位收盘价相对lag根之前的简单收益率
func simpleReturn(closes []float64, lag int) float64 {
	n := len(closes)
	if n <= lag || closes[n-1-lag] == 0 {
		return 0
	}
	return closes[n-1]/closes[n-1-lag] - 1
}

// hourlyReturns 相邻收盘价的简单收益率序列
func hourlyReturns(closes []float64) []float64 {
	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, closes[i]/closes[i-1]-1)
	}
	return returns
}

// volPercentile 当前24小时波动率在回看期所有滚动窗口中的分位
func volPercentile(returns []float64) float64 {
	if len(returns) < 24 {
		return 0
	}

	vols := talib.StdDev(returns, 24, 1)
	// 前23位是不完整窗口，丢弃
	vols = vols[23:]
	current := vols[len(vols)-1]
	return percentileRank(vols, current)
}
