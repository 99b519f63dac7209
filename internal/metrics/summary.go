package metrics

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/life2you_mini/backtest/internal/model"
)

// Summarize 从净值曲线和平仓记录计算汇总统计
// 最终资金取净值曲线末位；胜率只统计已平仓位；百分比统一保留2位小数
func Summarize(initialCapital float64, curve []model.EquityPoint, positions []*model.Position, start, end time.Time) model.Summary {
	finalCapital := initialCapital
	if len(curve) > 0 {
		finalCapital = curve[len(curve)-1].Equity
	}

	summary := model.Summary{
		InitialCapital:     initialCapital,
		FinalCapital:       round2(finalCapital),
		TotalReturnDollars: round2(finalCapital - initialCapital),
		TotalDays:          round2(end.Sub(start).Hours() / 24),
	}
	if initialCapital > 0 {
		summary.TotalReturn = round2((finalCapital - initialCapital) / initialCapital * 100)
	}

	wins, closed := 0, 0
	for _, pos := range positions {
		if pos.Status != model.StatusClosed || pos.RealizedPnL == nil {
			continue
		}
		closed++
		if *pos.RealizedPnL > 0 {
			wins++
		}
	}
	summary.NumberOfTrades = closed
	if closed > 0 {
		summary.WinRate = round2(float64(wins) / float64(closed) * 100)
	}

	summary.MaxDrawdown = round2(maxDrawdown(curve))
	return summary
}

// maxDrawdown 净值曲线相对运行峰值的最大回撤(%)
func maxDrawdown(curve []model.EquityPoint) float64 {
	var peak, worst float64
	for _, pt := range curve {
		if pt.Equity > peak {
			peak = pt.Equity
		}
		if peak <= 0 {
			continue
		}
		dd := (peak - pt.Equity) / peak * 100
		if dd > worst {
			worst = dd
		}
	}
	return worst
}

// round2 四舍五入到2位小数
// float64直接乘除会引入尾差，用decimal保证同样输入永远得到同样输出
func round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}
