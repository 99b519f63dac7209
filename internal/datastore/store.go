package datastore

import (
	"fmt"
	"sort"
	"time"

	"github.com/life2you_mini/backtest/internal/model"
)

// CoverageTolerance 覆盖检查的容差窗口，吸收抓取边界的轻微偏移
// 取一个资金费结算周期：足以容忍边界漂移，又不会放过缺失整天数据的数据集
const CoverageTolerance = 8 * time.Hour

// Store 历史数据存储的内存表示
// 所有序列在构建时排序并去重，之后只读；时间戳查找使用二分而非线性扫描
type Store struct {
	dataset *model.HistoricalDataSet
}

// New 构建数据存储，对每个序列排序、去重并补全元信息
// 外部传入的未校验JSON数据在此归一化，之后不会再有未排序数据流入特征提取
func New(ds *model.HistoricalDataSet) (*Store, error) {
	if ds == nil {
		return nil, fmt.Errorf("数据集为空")
	}

	normalized := &model.HistoricalDataSet{
		FundingRates: make(map[string][]model.FundingRateRecord, len(ds.FundingRates)),
		SpotCandles:  make(map[string][]model.Candle, len(ds.SpotCandles)),
		PerpCandles:  make(map[string][]model.Candle, len(ds.PerpCandles)),
		Metadata:     ds.Metadata,
	}

	for symbol, records := range ds.FundingRates {
		normalized.FundingRates[symbol] = normalizeRates(records)
	}
	for symbol, candles := range ds.SpotCandles {
		normalized.SpotCandles[symbol] = normalizeCandles(candles)
	}
	for symbol, candles := range ds.PerpCandles {
		normalized.PerpCandles[symbol] = normalizeCandles(candles)
	}

	store := &Store{dataset: normalized}
	if normalized.Metadata.StartTime.IsZero() || normalized.Metadata.EndTime.IsZero() {
		store.deriveMetadata()
	}
	if len(normalized.Metadata.Symbols) == 0 {
		normalized.Metadata.Symbols = store.Symbols()
	}

	return store, nil
}

// normalizeRates 按时间排序并去除重复时间戳（保留首条）
func normalizeRates(records []model.FundingRateRecord) []model.FundingRateRecord {
	out := make([]model.FundingRateRecord, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})

	deduped := out[:0]
	for _, r := range out {
		if len(deduped) > 0 && r.Timestamp.Equal(deduped[len(deduped)-1].Timestamp) {
			continue
		}
		deduped = append(deduped, r)
	}
	return deduped
}

func normalizeCandles(candles []model.Candle) []model.Candle {
	out := make([]model.Candle, len(candles))
	copy(out, candles)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})

	deduped := out[:0]
	for _, c := range out {
		if len(deduped) > 0 && c.Timestamp.Equal(deduped[len(deduped)-1].Timestamp) {
			continue
		}
		deduped = append(deduped, c)
	}
	return deduped
}

// deriveMetadata 从序列本身推导数据集范围
func (s *Store) deriveMetadata() {
	var start, end time.Time
	update := func(ts time.Time) {
		if start.IsZero() || ts.Before(start) {
			start = ts
		}
		if end.IsZero() || ts.After(end) {
			end = ts
		}
	}

	for _, records := range s.dataset.FundingRates {
		if len(records) > 0 {
			update(records[0].Timestamp)
			update(records[len(records)-1].Timestamp)
		}
	}
	for _, candles := range s.dataset.SpotCandles {
		if len(candles) > 0 {
			update(candles[0].Timestamp)
			update(candles[len(candles)-1].Timestamp)
		}
	}
	for _, candles := range s.dataset.PerpCandles {
		if len(candles) > 0 {
			update(candles[0].Timestamp)
			update(candles[len(candles)-1].Timestamp)
		}
	}

	s.dataset.Metadata.StartTime = start
	s.dataset.Metadata.EndTime = end
}

// Dataset 返回底层数据集（只读约定）
func (s *Store) Dataset() *model.HistoricalDataSet {
	return s.dataset
}

// Metadata 返回数据集元信息
func (s *Store) Metadata() model.DatasetMetadata {
	return s.dataset.Metadata
}

// Symbols 返回所有有资金费率数据的symbol，按名称升序保证遍历确定性
func (s *Store) Symbols() []string {
	symbols := make([]string, 0, len(s.dataset.FundingRates))
	for symbol := range s.dataset.FundingRates {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// ExtractRange 从超集数据集中提取[start, end]子区间
// 数据集范围不能覆盖请求区间（容差内）时返回DataNotFoundError
func (s *Store) ExtractRange(start, end time.Time) (*Store, error) {
	if !s.dataset.Metadata.Covers(start, end, CoverageTolerance) {
		return nil, &model.DataNotFoundError{Start: start, End: end}
	}

	sub := &model.HistoricalDataSet{
		FundingRates: make(map[string][]model.FundingRateRecord, len(s.dataset.FundingRates)),
		SpotCandles:  make(map[string][]model.Candle, len(s.dataset.SpotCandles)),
		PerpCandles:  make(map[string][]model.Candle, len(s.dataset.PerpCandles)),
		Metadata: model.DatasetMetadata{
			StartTime: start,
			EndTime:   end,
			Symbols:   s.dataset.Metadata.Symbols,
			Exchange:  s.dataset.Metadata.Exchange,
		},
	}

	for symbol, records := range s.dataset.FundingRates {
		lo := sort.Search(len(records), func(i int) bool { return !records[i].Timestamp.Before(start) })
		hi := sort.Search(len(records), func(i int) bool { return records[i].Timestamp.After(end) })
		sub.FundingRates[symbol] = append([]model.FundingRateRecord(nil), records[lo:hi]...)
	}
	for symbol, candles := range s.dataset.SpotCandles {
		sub.SpotCandles[symbol] = candleRange(candles, start, end)
	}
	for symbol, candles := range s.dataset.PerpCandles {
		sub.PerpCandles[symbol] = candleRange(candles, start, end)
	}

	return &Store{dataset: sub}, nil
}

func candleRange(candles []model.Candle, start, end time.Time) []model.Candle {
	lo := sort.Search(len(candles), func(i int) bool { return !candles[i].Timestamp.Before(start) })
	hi := sort.Search(len(candles), func(i int) bool { return candles[i].Timestamp.After(end) })
	return append([]model.Candle(nil), candles[lo:hi]...)
}

// FundingRateAsOf 返回ts时刻或之前最近的一条费率记录
// ts早于首条记录时返回ok=false，调用方必须跳过而不能代入默认值
func (s *Store) FundingRateAsOf(symbol string, ts time.Time) (model.FundingRateRecord, bool) {
	records := s.dataset.FundingRates[symbol]
	idx := sort.Search(len(records), func(i int) bool { return records[i].Timestamp.After(ts) })
	if idx == 0 {
		return model.FundingRateRecord{}, false
	}
	return records[idx-1], true
}

// SpotPriceAsOf 现货as-of价格（最近一根K线的收盘价）
func (s *Store) SpotPriceAsOf(symbol string, ts time.Time) (float64, bool) {
	return priceAsOf(s.dataset.SpotCandles[symbol], ts)
}

// PerpPriceAsOf 永续as-of价格
func (s *Store) PerpPriceAsOf(symbol string, ts time.Time) (float64, bool) {
	return priceAsOf(s.dataset.PerpCandles[symbol], ts)
}

func priceAsOf(candles []model.Candle, ts time.Time) (float64, bool) {
	idx := sort.Search(len(candles), func(i int) bool { return candles[i].Timestamp.After(ts) })
	if idx == 0 {
		return 0, false
	}
	return candles[idx-1].Close, true
}

// FundingRatesUpTo 返回ts时刻或之前的尾部费率记录，最多max条（max<=0表示全部）
func (s *Store) FundingRatesUpTo(symbol string, ts time.Time, max int) []model.FundingRateRecord {
	records := s.dataset.FundingRates[symbol]
	hi := sort.Search(len(records), func(i int) bool { return records[i].Timestamp.After(ts) })
	lo := 0
	if max > 0 && hi-max > 0 {
		lo = hi - max
	}
	return records[lo:hi]
}

// PerpCandlesUpTo 返回ts时刻或之前的尾部K线，最多max根（max<=0表示全部）
func (s *Store) PerpCandlesUpTo(symbol string, ts time.Time, max int) []model.Candle {
	candles := s.dataset.PerpCandles[symbol]
	hi := sort.Search(len(candles), func(i int) bool { return candles[i].Timestamp.After(ts) })
	lo := 0
	if max > 0 && hi-max > 0 {
		lo = hi - max
	}
	return candles[lo:hi]
}

// FundingTimestamps 生成[start, end]内按interval步进的资金费tick序列
func (s *Store) FundingTimestamps(start, end time.Time, interval time.Duration) []time.Time {
	if interval <= 0 || end.Before(start) {
		return nil
	}

	var ticks []time.Time
	for t := start; !t.After(end); t = t.Add(interval) {
		ticks = append(ticks, t)
	}
	return ticks
}
