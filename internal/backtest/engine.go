package backtest

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/life2you_mini/backtest/internal/config"
	"github.com/life2you_mini/backtest/internal/datastore"
	"github.com/life2you_mini/backtest/internal/exchange"
	"github.com/life2you_mini/backtest/internal/feature"
	"github.com/life2you_mini/backtest/internal/metrics"
	"github.com/life2you_mini/backtest/internal/model"
	"github.com/life2you_mini/backtest/internal/signal"
	"github.com/life2you_mini/backtest/internal/trading"
)

// Engine 离线回测引擎
// 按固定顺序处理每个资金费tick：结算→离场→入场→记录净值
// 同样的数据集和配置运行两次必须产出逐字节相同的结果
type Engine struct {
	cfg       *config.BacktestConfig
	store     *datastore.Store
	extractor *feature.Extractor
	generator signal.Generator
	manager   *trading.Manager
	logger    *zap.Logger

	start      time.Time
	end        time.Time
	symbols    []string
	mlDegraded bool
}

// NewEngine 创建回测引擎
// store是覆盖回测区间的完整数据集，区间之前的数据用作特征回看和训练
func NewEngine(cfg *config.BacktestConfig, store *datastore.Store, logger *zap.Logger) (*Engine, error) {
	start, end, err := cfg.Window()
	if err != nil {
		return nil, err
	}

	// 提取回测窗口，同时完成覆盖校验；只有窗口内有数据的symbol参与决策
	window, err := store.ExtractRange(start, end)
	if err != nil {
		return nil, err
	}
	var symbols []string
	for _, symbol := range window.Symbols() {
		if len(window.Dataset().FundingRates[symbol]) > 0 {
			symbols = append(symbols, symbol)
		}
	}

	engineLogger := logger.With(zap.String("component", "backtest_engine"))
	extractor := feature.NewExtractor(store, cfg.PaymentsPerDay(), logger)

	generator, degraded, err := signal.NewGenerator(cfg, store, extractor, start, logger)
	if err != nil {
		return nil, err
	}

	portfolio := trading.NewPortfolio(cfg.InitialCapital)
	manager := trading.NewManager(portfolio, cfg.TakerFeeRate, logger)

	engineLogger.Info("回测引擎已就绪",
		zap.Time("start", start),
		zap.Time("end", end),
		zap.Int("symbols", len(symbols)),
		zap.Bool("use_ml_signals", cfg.UseMLSignals),
		zap.Bool("ml_degraded", degraded))

	return &Engine{
		cfg:        cfg,
		store:      store,
		extractor:  extractor,
		generator:  generator,
		manager:    manager,
		logger:     engineLogger,
		start:      start,
		end:        end,
		symbols:    symbols,
		mlDegraded: degraded,
	}, nil
}

// Run 执行回测
func (e *Engine) Run(ctx context.Context) (*model.BacktestResult, error) {
	interval := e.cfg.FundingInterval()
	ticks := e.store.FundingTimestamps(e.start, e.end, interval)

	var curve []model.EquityPoint
	for i, ts := range ticks {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		final := i == len(ticks)-1

		e.applyFunding(ts, interval)
		if final {
			e.forceCloseAll(ts)
		} else {
			e.evaluateExits(ts, interval)
			e.evaluateEntries(ts, interval)
		}

		curve = append(curve, model.EquityPoint{
			Timestamp: ts,
			Equity:    e.equityAt(ts),
		})
	}

	positions := e.manager.Portfolio().AllPositions()
	result := &model.BacktestResult{
		Summary:     metrics.Summarize(e.cfg.InitialCapital, curve, positions, e.start, e.end),
		EquityCurve: curve,
		Positions:   positions,
		MLDegraded:  e.mlDegraded,
	}

	e.logger.Info("回测完成",
		zap.Int("ticks", len(ticks)),
		zap.Int("trades", result.Summary.NumberOfTrades),
		zap.Float64("total_return", result.Summary.TotalReturn),
		zap.Float64("max_drawdown", result.Summary.MaxDrawdown))
	return result, nil
}

// applyFunding 结算tick开始时刻的资金费
// 本期支付的是上一结算点确定的费率：取ts-interval时刻的as-of费率，
// 记录超过一个结算周期未更新视为过期，跳过本次结算
func (e *Engine) applyFunding(ts time.Time, interval time.Duration) {
	periodStart := ts.Add(-interval)
	for _, symbol := range e.manager.Portfolio().OpenSymbols() {
		rec, ok := e.store.FundingRateAsOf(symbol, periodStart)
		if !ok || periodStart.Sub(rec.Timestamp) > interval {
			e.logger.Warn("费率记录缺失，跳过本次结算",
				zap.String("symbol", symbol),
				zap.Time("time", ts))
			continue
		}
		if _, err := e.manager.ApplyFunding(symbol, ts, rec.Rate); err != nil {
			e.logger.Warn("资金费结算失败",
				zap.String("symbol", symbol),
				zap.Error(err))
		}
	}
}

// evaluateExits 检查每个持仓的离场条件，命中即以当前价格平仓
func (e *Engine) evaluateExits(ts time.Time, interval time.Duration) {
	for _, symbol := range e.manager.Portfolio().OpenSymbols() {
		rec, ok := e.store.FundingRateAsOf(symbol, ts)
		if !ok || ts.Sub(rec.Timestamp) > interval {
			// 当前费率未知时持有，等待数据恢复
			continue
		}

		apr := exchange.CalculateAPR(rec.Rate, e.cfg.PaymentsPerDay())
		switch {
		case rec.Rate < 0:
			e.closePosition(symbol, ts, trading.CloseReasonNegativeFunding)
		case apr < e.cfg.MinAPR/2:
			e.closePosition(symbol, ts, trading.CloseReasonLowAPR)
		case e.cfg.UseMLSignals:
			// 信号离场只在开启ML时生效，基础离场条件仅有负费率和低年化
			fv, err := e.extractor.Extract(symbol, ts)
			if err != nil {
				var insufficient *model.InsufficientHistoryError
				if !errors.As(err, &insufficient) {
					e.logger.Warn("离场特征提取失败",
						zap.String("symbol", symbol),
						zap.Error(err))
				}
				continue
			}
			if e.generator.ExitAdvice(fv).Recommendation == model.RecommendExitNow {
				e.closePosition(symbol, ts, trading.CloseReasonMLExit)
			}
		}
	}
}

// evaluateEntries 收集入场候选并按年化费率降序依次开仓
// 基础入场条件只有年化费率达标且无持仓；ML建议、风险阈值和
// 波动率/动量过滤各自只在对应配置开启时叠加到关卡上
func (e *Engine) evaluateEntries(ts time.Time, interval time.Duration) {
	portfolio := e.manager.Portfolio()
	if portfolio.OpenCount() >= e.cfg.MaxConcurrentPositions || portfolio.Cash <= 0 {
		return
	}

	needSignal := e.cfg.UseMLSignals || e.cfg.VolatilityFilterEnabled || e.cfg.MomentumFilterEnabled

	var candidates []trading.EntryCandidate
	for _, symbol := range e.symbols {
		if portfolio.HasOpen(symbol) {
			continue
		}

		rec, ok := e.store.FundingRateAsOf(symbol, ts)
		if !ok || ts.Sub(rec.Timestamp) > interval || rec.Rate <= 0 {
			continue
		}

		apr := exchange.CalculateAPR(rec.Rate, e.cfg.PaymentsPerDay())
		if apr < e.cfg.MinAPR {
			continue
		}

		var sig *model.Signal
		if needSignal {
			fv, err := e.extractor.Extract(symbol, ts)
			if err != nil {
				var insufficient *model.InsufficientHistoryError
				if !errors.As(err, &insufficient) {
					e.logger.Warn("入场特征提取失败",
						zap.String("symbol", symbol),
						zap.Error(err))
				}
				continue
			}

			sig = e.generator.Score(fv)
			if e.cfg.VolatilityFilterEnabled && !sig.LowVol {
				continue
			}
			if e.cfg.MomentumFilterEnabled && sig.MomentumScore < 0 {
				continue
			}
			if e.cfg.UseMLSignals &&
				(sig.Recommendation != model.RecommendEnter || sig.RiskScore > e.cfg.RiskThreshold) {
				continue
			}
		}

		candidates = append(candidates, trading.EntryCandidate{
			Symbol: symbol,
			APR:    apr,
			Signal: sig,
		})
	}

	trading.RankCandidates(candidates)

	for _, c := range candidates {
		remaining := e.cfg.MaxConcurrentPositions - portfolio.OpenCount()
		if remaining <= 0 || portfolio.Cash <= 0 {
			break
		}

		notional := e.manager.NotionalFor(remaining, e.cfg.PositionSizePercent)
		if notional <= 0 {
			break
		}

		spot, okSpot := e.store.SpotPriceAsOf(c.Symbol, ts)
		perp, okPerp := e.store.PerpPriceAsOf(c.Symbol, ts)
		if !okSpot || !okPerp {
			continue
		}

		if _, err := e.manager.OpenPosition(c.Symbol, ts, spot, perp, notional); err != nil {
			e.logger.Warn("开仓失败",
				zap.String("symbol", c.Symbol),
				zap.Error(err))
		}
	}
}

// forceCloseAll 回测结束，强制平掉所有持仓
func (e *Engine) forceCloseAll(ts time.Time) {
	for _, symbol := range e.manager.Portfolio().OpenSymbols() {
		e.closePosition(symbol, ts, trading.CloseReasonBacktestEnd)
	}
}

// closePosition 以ts时刻的as-of价格平仓，价格缺失时退回开仓价
func (e *Engine) closePosition(symbol string, ts time.Time, reason string) {
	pos, ok := e.manager.Portfolio().Open(symbol)
	if !ok {
		return
	}

	spot, okSpot := e.store.SpotPriceAsOf(symbol, ts)
	if !okSpot {
		spot = pos.SpotEntryPrice
	}
	perp, okPerp := e.store.PerpPriceAsOf(symbol, ts)
	if !okPerp {
		perp = pos.PerpEntryPrice
	}

	if _, err := e.manager.ClosePosition(symbol, ts, spot, perp, reason); err != nil {
		e.logger.Warn("平仓失败",
			zap.String("symbol", symbol),
			zap.Error(err))
	}
}

// equityAt 计算ts时刻的账户净值
func (e *Engine) equityAt(ts time.Time) float64 {
	return e.manager.Equity(func(symbol string) (float64, float64, bool) {
		spot, okSpot := e.store.SpotPriceAsOf(symbol, ts)
		perp, okPerp := e.store.PerpPriceAsOf(symbol, ts)
		return spot, perp, okSpot && okPerp
	})
}
