package model

import (
	"time"
)

// 持仓状态
const (
	StatusOpen   = "OPEN"
	StatusClosed = "CLOSED"
)

// 信号建议
const (
	RecommendEnter    = "enter"
	RecommendWait     = "wait"
	RecommendAvoid    = "avoid"
	RecommendHold     = "hold"
	RecommendExitSoon = "exit_soon"
	RecommendExitNow  = "exit_now"
)

// FeatureVector 每个(symbol, 时间点)的固定形状特征向量
// 只有当历史窗口足够时才会产生，禁止用零值填充代替
type FeatureVector struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`

	CurrentAPR     float64   `json:"current_apr"`     // 当前年化费率(%)
	RateWindow     []float64 `json:"rate_window"`     // 最近5期年化费率
	RateMean       float64   `json:"rate_mean"`       // 窗口均值
	RateStd        float64   `json:"rate_std"`        // 窗口标准差
	RateSlope      float64   `json:"rate_slope"`      // 窗口OLS斜率
	RatePercentile float64   `json:"rate_percentile"` // 当前费率的历史百分位(0-100)

	Return1h  float64 `json:"return_1h"`
	Return4h  float64 `json:"return_4h"`
	Return24h float64 `json:"return_24h"`

	RealizedVol   float64 `json:"realized_vol"`   // 24小时已实现波动率
	VolPercentile float64 `json:"vol_percentile"` // 波动率历史百分位(0-100)

	HourOfDay         float64 `json:"hour_of_day"`
	HoursSinceFunding float64 `json:"hours_since_funding"`
}

// ToVector 转换为分类器输入向量，顺序必须与训练时一致
func (f *FeatureVector) ToVector() []float64 {
	return []float64{
		f.CurrentAPR,
		f.RateMean,
		f.RateStd,
		f.RateSlope,
		f.RatePercentile,
		f.Return24h,
		f.RealizedVol,
		f.VolPercentile,
	}
}

// Signal 统一的决策信号，启发式与学习式两个生成器产出相同形状
type Signal struct {
	Symbol         string    `json:"symbol"`
	Timestamp      time.Time `json:"timestamp"`
	Confidence     float64   `json:"confidence"`      // 0-1
	RiskScore      float64   `json:"risk_score"`      // 0-1, 越高风险越大
	ExpectedReturn float64   `json:"expected_return"` // 预期年化收益(%)
	MomentumScore  float64   `json:"momentum_score"`  // <0 下行, 0 平稳, >0 上行
	LowVol         bool      `json:"low_vol"`         // 波动率百分位<75
	Recommendation string    `json:"recommendation"`  // enter|wait|avoid|hold|exit_soon|exit_now
}

// FundingPayment 单次资金费结算
type FundingPayment struct {
	Timestamp time.Time `json:"timestamp"`
	Rate      float64   `json:"rate"`
	Amount    float64   `json:"amount"`
}

// Position 一个中性对冲持仓（现货多头+永续空头）
// 状态机: (无) → OPEN → CLOSED, 关闭后不可再修改
type Position struct {
	Symbol          string           `json:"symbol"`
	EntryTime       time.Time        `json:"entry_time"`
	ExitTime        *time.Time       `json:"exit_time,omitempty"`
	SpotEntryPrice  float64          `json:"spot_entry_price"`
	PerpEntryPrice  float64          `json:"perp_entry_price"`
	SpotExitPrice   *float64         `json:"spot_exit_price,omitempty"`
	PerpExitPrice   *float64         `json:"perp_exit_price,omitempty"`
	Quantity        float64          `json:"quantity"`
	NotionalValue   float64          `json:"notional_value"`
	FundingPayments []FundingPayment `json:"funding_payments"`
	EntryFees       float64          `json:"entry_fees"`
	ExitFees        *float64         `json:"exit_fees,omitempty"`
	RealizedPnL     *float64         `json:"realized_pnl,omitempty"`
	CloseReason     string           `json:"close_reason,omitempty"`
	Status          string           `json:"status"`
}

// TotalFunding 已结算资金费合计
func (p *Position) TotalFunding() float64 {
	var total float64
	for _, fp := range p.FundingPayments {
		total += fp.Amount
	}
	return total
}

// EquityPoint 净值曲线上的一个点，每个资金费tick追加一条
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
}

// Summary 回测汇总统计，所有百分比保留2位小数
type Summary struct {
	InitialCapital     float64 `json:"initial_capital"`
	FinalCapital       float64 `json:"final_capital"`
	TotalReturn        float64 `json:"total_return"`         // %
	TotalReturnDollars float64 `json:"total_return_dollars"`
	NumberOfTrades     int     `json:"number_of_trades"`
	WinRate            float64 `json:"win_rate"`     // %
	MaxDrawdown        float64 `json:"max_drawdown"` // %
	TotalDays          float64 `json:"total_days"`
}

// BacktestResult 一次回测的完整结果，运行结束后不再修改
type BacktestResult struct {
	Summary     Summary       `json:"summary"`
	EquityCurve []EquityPoint `json:"equity_curve"`
	Positions   []*Position   `json:"positions"`
	MLDegraded  bool          `json:"ml_degraded"` // 学习式信号因训练样本不足而降级
}
