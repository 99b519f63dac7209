package trading

import (
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/life2you_mini/backtest/internal/model"
)

// 平仓原因
const (
	CloseReasonNegativeFunding = "negative_funding"
	CloseReasonLowAPR          = "low_apr"
	CloseReasonMLExit          = "ml_exit_signal"
	CloseReasonBacktestEnd     = "backtest_end"
)

// Manager 仓位管理器，负责开平仓、资金费结算和净值计算
// 现金守恒：所有进出账户的资金都在这里记账，回测结束后
// 最终现金减初始资金必须等于全部已实现盈亏之和
type Manager struct {
	portfolio *Portfolio
	feeRate   float64
	logger    *zap.Logger
}

// NewManager 创建仓位管理器
func NewManager(portfolio *Portfolio, feeRate float64, logger *zap.Logger) *Manager {
	return &Manager{
		portfolio: portfolio,
		feeRate:   feeRate,
		logger:    logger.With(zap.String("component", "position_manager")),
	}
}

// Portfolio 返回底层账户
func (m *Manager) Portfolio() *Portfolio {
	return m.portfolio
}

// NotionalFor 计算下一笔开仓的名义价值
// 取单仓比例与剩余槽位均分两者的较小值，再压到手续费后现金够付的上限
func (m *Manager) NotionalFor(remainingSlots int, positionSizePercent float64) float64 {
	cash := m.portfolio.Cash
	if cash <= 0 || remainingSlots <= 0 {
		return 0
	}

	notional := math.Min(cash*positionSizePercent, cash/float64(remainingSlots))
	return math.Min(notional, cash/(1+m.feeRate))
}

// OpenPosition 开仓：现货买入与永续卖空同时以当前价格成交
// 现金减少 名义价值+开仓手续费，同一symbol不允许叠加仓位
func (m *Manager) OpenPosition(symbol string, ts time.Time, spotPrice, perpPrice, notional float64) (*model.Position, error) {
	if m.portfolio.HasOpen(symbol) {
		return nil, fmt.Errorf("symbol已有持仓: %s", symbol)
	}
	if notional <= 0 {
		return nil, fmt.Errorf("无效的名义价值: %f", notional)
	}
	if spotPrice <= 0 || perpPrice <= 0 {
		return nil, fmt.Errorf("无效的开仓价格: spot=%f perp=%f", spotPrice, perpPrice)
	}

	entryFee := notional * m.feeRate
	cost := notional + entryFee
	if cost > m.portfolio.Cash {
		return nil, fmt.Errorf("现金不足: 需要%f, 可用%f", cost, m.portfolio.Cash)
	}

	pos := &model.Position{
		Symbol:         symbol,
		EntryTime:      ts,
		SpotEntryPrice: spotPrice,
		PerpEntryPrice: perpPrice,
		Quantity:       notional / spotPrice,
		NotionalValue:  notional,
		EntryFees:      entryFee,
		Status:         model.StatusOpen,
	}

	m.portfolio.Cash -= cost
	m.portfolio.open[symbol] = pos

	m.logger.Debug("开仓",
		zap.String("symbol", symbol),
		zap.Time("time", ts),
		zap.Float64("notional", notional),
		zap.Float64("entry_fee", entryFee),
		zap.Float64("cash", m.portfolio.Cash))
	return pos, nil
}

// ApplyFunding 结算一次资金费：空头收取正费率，金额立即计入现金
func (m *Manager) ApplyFunding(symbol string, ts time.Time, rate float64) (float64, error) {
	pos, ok := m.portfolio.Open(symbol)
	if !ok {
		return 0, fmt.Errorf("symbol无持仓: %s", symbol)
	}

	amount := pos.NotionalValue * rate
	pos.FundingPayments = append(pos.FundingPayments, model.FundingPayment{
		Timestamp: ts,
		Rate:      rate,
		Amount:    amount,
	})
	m.portfolio.Cash += amount
	return amount, nil
}

// ClosePosition 平仓：两腿同时以当前价格了结
// 现金收回 名义价值+两腿价差盈亏-平仓手续费（资金费和开仓费此前已入账）
// 记录的已实现盈亏是全口径：价差盈亏+资金费合计-全部手续费
func (m *Manager) ClosePosition(symbol string, ts time.Time, spotPrice, perpPrice float64, reason string) (*model.Position, error) {
	pos, ok := m.portfolio.Open(symbol)
	if !ok {
		return nil, fmt.Errorf("symbol无持仓: %s", symbol)
	}
	if spotPrice <= 0 || perpPrice <= 0 {
		return nil, fmt.Errorf("无效的平仓价格: spot=%f perp=%f", spotPrice, perpPrice)
	}

	spotPnL := (spotPrice - pos.SpotEntryPrice) * pos.Quantity
	perpPnL := (pos.PerpEntryPrice - perpPrice) * pos.Quantity
	exitFee := pos.NotionalValue * m.feeRate
	realized := spotPnL + perpPnL + pos.TotalFunding() - pos.EntryFees - exitFee

	m.portfolio.Cash += pos.NotionalValue + spotPnL + perpPnL - exitFee

	exitTime := ts
	pos.ExitTime = &exitTime
	pos.SpotExitPrice = &spotPrice
	pos.PerpExitPrice = &perpPrice
	pos.ExitFees = &exitFee
	pos.RealizedPnL = &realized
	pos.CloseReason = reason
	pos.Status = model.StatusClosed

	delete(m.portfolio.open, symbol)
	m.portfolio.closed = append(m.portfolio.closed, pos)

	m.logger.Debug("平仓",
		zap.String("symbol", symbol),
		zap.Time("time", ts),
		zap.String("reason", reason),
		zap.Float64("realized_pnl", realized),
		zap.Float64("cash", m.portfolio.Cash))
	return pos, nil
}

// MarkToMarket 持仓的按市价估值
// 名义价值加两腿浮动盈亏，对冲仓位下价差噪声大体抵消
func MarkToMarket(pos *model.Position, spotPrice, perpPrice float64) float64 {
	spotPnL := (spotPrice - pos.SpotEntryPrice) * pos.Quantity
	perpPnL := (pos.PerpEntryPrice - perpPrice) * pos.Quantity
	return pos.NotionalValue + spotPnL + perpPnL
}

// Equity 账户净值：现金加全部持仓市值
// priceFn取不到价格时用开仓价计价（即市值退化为名义价值）
func (m *Manager) Equity(priceFn func(symbol string) (spot, perp float64, ok bool)) float64 {
	equity := m.portfolio.Cash
	for _, symbol := range m.portfolio.OpenSymbols() {
		pos := m.portfolio.open[symbol]
		spot, perp, ok := priceFn(symbol)
		if !ok {
			spot, perp = pos.SpotEntryPrice, pos.PerpEntryPrice
		}
		equity += MarkToMarket(pos, spot, perp)
	}
	return equity
}

// EntryCandidate 一个待开仓的symbol及其信号
type EntryCandidate struct {
	Symbol string
	APR    float64
	Signal *model.Signal
}

// RankCandidates 入场候选排序：年化费率降序，相同时按symbol升序
// 排序稳定且与map遍历顺序无关，保证回测结果可复现
func RankCandidates(candidates []EntryCandidate) {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].APR != candidates[j].APR {
			return candidates[i].APR > candidates[j].APR
		}
		return candidates[i].Symbol < candidates[j].Symbol
	})
}
