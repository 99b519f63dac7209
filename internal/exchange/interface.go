package exchange

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/life2you_mini/backtest/internal/model"
)

// HistoryProvider 历史行情数据提供方
// 回测本身离线运行，该接口只在构建数据集阶段使用
type HistoryProvider interface {
	// GetName 返回交易所名称
	GetName() string

	// FetchFundingRateHistory 获取永续合约资金费率历史，按时间升序
	FetchFundingRateHistory(ctx context.Context, symbol string, start, end time.Time) ([]model.FundingRateRecord, error)

	// FetchSpotOHLCV 获取现货1小时K线，按时间升序
	FetchSpotOHLCV(ctx context.Context, symbol string, start, end time.Time) ([]model.Candle, error)

	// FetchPerpOHLCV 获取永续合约1小时K线，按时间升序
	FetchPerpOHLCV(ctx context.Context, symbol string, start, end time.Time) ([]model.Candle, error)

	// ValidPairs 返回同时存在现货和永续市场的symbol，按名称升序
	ValidPairs(ctx context.Context) ([]string, error)
}

// CalculateAPR 将单次资金费率换算为年化收益率(%)
// 空头收取正费率：rate=0.0001、每天3次结算时约10.95%
func CalculateAPR(rate float64, paymentsPerDay int) float64 {
	return rate * float64(paymentsPerDay) * 365 * 100
}

// IntersectPairs 求现货与永续市场的交集，结果按名称升序
func IntersectPairs(spot, perp []string) []string {
	perpSet := make(map[string]struct{}, len(perp))
	for _, s := range perp {
		perpSet[s] = struct{}{}
	}

	var out []string
	for _, s := range spot {
		if _, ok := perpSet[s]; ok {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// Factory 交易所工厂
type Factory struct {
	mu        sync.RWMutex
	providers map[string]HistoryProvider
}

// NewFactory 创建交易所工厂
func NewFactory() *Factory {
	return &Factory{
		providers: make(map[string]HistoryProvider),
	}
}

// Register 注册交易所
func (f *Factory) Register(name string, p HistoryProvider) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.providers[name] = p
}

// Get 获取指定名称的交易所
func (f *Factory) Get(name string) (HistoryProvider, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	p, ok := f.providers[name]
	if !ok {
		return nil, fmt.Errorf("交易所未注册: %s", name)
	}
	return p, nil
}
