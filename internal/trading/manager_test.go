package trading

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/life2you_mini/backtest/internal/model"
)

var testTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestManager(t *testing.T, capital, feeRate float64) *Manager {
	return NewManager(NewPortfolio(capital), feeRate, zaptest.NewLogger(t))
}

func TestOpenPosition(t *testing.T) {
	m := newTestManager(t, 10000, 0.001)

	pos, err := m.OpenPosition("BTC/USDT", testTime, 100, 101, 5000)
	require.NoError(t, err)

	assert.Equal(t, model.StatusOpen, pos.Status)
	assert.Equal(t, 50.0, pos.Quantity)
	assert.Equal(t, 5000.0, pos.NotionalValue)
	assert.Equal(t, 5.0, pos.EntryFees)
	// 现金减少 名义价值+手续费
	assert.InDelta(t, 10000-5000-5, m.Portfolio().Cash, 1e-9)
	assert.Equal(t, 1, m.Portfolio().OpenCount())
}

func TestOpenPosition_拒绝非法请求(t *testing.T) {
	m := newTestManager(t, 10000, 0.001)
	_, err := m.OpenPosition("BTC/USDT", testTime, 100, 101, 5000)
	require.NoError(t, err)

	tests := []struct {
		name     string
		symbol   string
		spot     float64
		perp     float64
		notional float64
	}{
		{"同symbol重复开仓", "BTC/USDT", 100, 101, 1000},
		{"名义价值为零", "ETH/USDT", 100, 101, 0},
		{"价格非法", "ETH/USDT", 0, 101, 1000},
		{"现金不足", "ETH/USDT", 100, 101, 9000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.OpenPosition(tt.symbol, testTime, tt.spot, tt.perp, tt.notional)
			assert.Error(t, err)
		})
	}
	assert.Equal(t, 1, m.Portfolio().OpenCount())
}

func TestApplyFunding(t *testing.T) {
	m := newTestManager(t, 10000, 0.001)
	pos, err := m.OpenPosition("BTC/USDT", testTime, 100, 100, 5000)
	require.NoError(t, err)
	cashBefore := m.Portfolio().Cash

	amount, err := m.ApplyFunding("BTC/USDT", testTime.Add(8*time.Hour), 0.0001)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, amount, 1e-9)
	assert.InDelta(t, cashBefore+0.5, m.Portfolio().Cash, 1e-9)

	// 负费率时空头付费
	amount, err = m.ApplyFunding("BTC/USDT", testTime.Add(16*time.Hour), -0.0002)
	require.NoError(t, err)
	assert.InDelta(t, -1.0, amount, 1e-9)

	require.Len(t, pos.FundingPayments, 2)
	assert.InDelta(t, -0.5, pos.TotalFunding(), 1e-9)

	_, err = m.ApplyFunding("ETH/USDT", testTime, 0.0001)
	assert.Error(t, err)
}

func TestClosePosition_盈亏核算(t *testing.T) {
	m := newTestManager(t, 10000, 0.001)
	_, err := m.OpenPosition("BTC/USDT", testTime, 100, 100, 5000)
	require.NoError(t, err)
	_, err = m.ApplyFunding("BTC/USDT", testTime.Add(8*time.Hour), 0.0001)
	require.NoError(t, err)

	// 现货涨到102，永续涨到103：对冲后价差亏损
	pos, err := m.ClosePosition("BTC/USDT", testTime.Add(16*time.Hour), 102, 103, CloseReasonLowAPR)
	require.NoError(t, err)

	assert.Equal(t, model.StatusClosed, pos.Status)
	assert.Equal(t, CloseReasonLowAPR, pos.CloseReason)
	require.NotNil(t, pos.RealizedPnL)

	// spotPnL = (102-100)*50 = +100, perpPnL = (100-103)*50 = -150
	// realized = -50 + 0.5资金费 - 5开仓费 - 5平仓费 = -59.5
	assert.InDelta(t, -59.5, *pos.RealizedPnL, 1e-9)
	require.NotNil(t, pos.ExitFees)
	assert.InDelta(t, 5.0, *pos.ExitFees, 1e-9)

	// 现金守恒：最终现金-初始资金 == 已实现盈亏
	assert.InDelta(t, 10000-59.5, m.Portfolio().Cash, 1e-9)
	assert.Equal(t, 0, m.Portfolio().OpenCount())
	assert.Len(t, m.Portfolio().ClosedPositions(), 1)

	_, err = m.ClosePosition("BTC/USDT", testTime, 100, 100, CloseReasonLowAPR)
	assert.Error(t, err)
}

func TestMarkToMarket(t *testing.T) {
	m := newTestManager(t, 10000, 0.001)
	pos, err := m.OpenPosition("BTC/USDT", testTime, 100, 100, 5000)
	require.NoError(t, err)

	// 两腿同涨：对冲后市值不变
	assert.InDelta(t, 5000.0, MarkToMarket(pos, 110, 110), 1e-9)
	// 现货涨永续跌：双向浮盈
	assert.InDelta(t, 5000+100+100, MarkToMarket(pos, 102, 98), 1e-9)
}

func TestEquity(t *testing.T) {
	m := newTestManager(t, 10000, 0.001)
	_, err := m.OpenPosition("BTC/USDT", testTime, 100, 100, 5000)
	require.NoError(t, err)

	// 价格不变时净值只少了手续费
	equity := m.Equity(func(symbol string) (float64, float64, bool) {
		return 100, 100, true
	})
	assert.InDelta(t, 10000-5, equity, 1e-9)

	// 取不到价格时退回开仓价计价，结果一致
	equity = m.Equity(func(symbol string) (float64, float64, bool) {
		return 0, 0, false
	})
	assert.InDelta(t, 10000-5, equity, 1e-9)
}

func TestNotionalFor(t *testing.T) {
	m := newTestManager(t, 10000, 0.001)

	tests := []struct {
		name    string
		slots   int
		percent float64
		want    float64
	}{
		{"比例限制更紧", 1, 0.3, 3000},
		{"槽位均分更紧", 3, 0.5, 10000.0 / 3},
		{"单槽全仓压到手续费上限", 1, 1.0, 10000 / 1.001},
		{"无剩余槽位", 0, 0.3, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, m.NotionalFor(tt.slots, tt.percent), 1e-9)
		})
	}
}

func TestRankCandidates(t *testing.T) {
	candidates := []EntryCandidate{
		{Symbol: "ETH/USDT", APR: 10},
		{Symbol: "SOL/USDT", APR: 20},
		{Symbol: "BTC/USDT", APR: 10},
		{Symbol: "DOGE/USDT", APR: 30},
	}

	RankCandidates(candidates)

	// 年化降序，相同年化按symbol升序
	want := []string{"DOGE/USDT", "SOL/USDT", "BTC/USDT", "ETH/USDT"}
	for i, c := range candidates {
		assert.Equal(t, want[i], c.Symbol)
	}
}

func TestPortfolio_确定性遍历(t *testing.T) {
	m := newTestManager(t, 10000, 0.001)
	for _, symbol := range []string{"SOL/USDT", "BTC/USDT", "ETH/USDT"} {
		_, err := m.OpenPosition(symbol, testTime, 100, 100, 1000)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"BTC/USDT", "ETH/USDT", "SOL/USDT"}, m.Portfolio().OpenSymbols())

	positions := m.Portfolio().OpenPositions()
	require.Len(t, positions, 3)
	assert.Equal(t, "BTC/USDT", positions[0].Symbol)
}
