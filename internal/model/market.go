package model

import (
	"time"
)

// FundingRateRecord 单条历史资金费率记录
type FundingRateRecord struct {
	Timestamp   time.Time `json:"timestamp"`    // 费率生效时间
	Rate        float64   `json:"rate"`         // 资金费率(原始值, 非百分比)
	FundingTime time.Time `json:"funding_time"` // 结算时间
}

// Candle K线数据
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// DatasetMetadata 数据集元信息
type DatasetMetadata struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Symbols   []string  `json:"symbols"`
	Exchange  string    `json:"exchange,omitempty"`
}

// HistoricalDataSet 回测输入的历史数据集
// 每个symbol的序列按时间升序排列且无重复时间戳（datastore在构建时校验）
type HistoricalDataSet struct {
	FundingRates map[string][]FundingRateRecord `json:"funding_rates"`
	SpotCandles  map[string][]Candle            `json:"spot_candles"`
	PerpCandles  map[string][]Candle            `json:"perp_candles"`
	Metadata     DatasetMetadata                `json:"metadata"`
}

// Covers 判断数据集范围是否覆盖[start, end]，tolerance用于吸收抓取边界的轻微偏移
func (m DatasetMetadata) Covers(start, end time.Time, tolerance time.Duration) bool {
	return !m.StartTime.After(start.Add(tolerance)) && !m.EndTime.Before(end.Add(-tolerance))
}
