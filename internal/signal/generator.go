package signal

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/life2you_mini/backtest/internal/config"
	"github.com/life2you_mini/backtest/internal/datastore"
	"github.com/life2you_mini/backtest/internal/feature"
	"github.com/life2you_mini/backtest/internal/model"
)

// Generator 信号生成器
// 启发式与学习式实现产出相同形状的信号，引擎不感知具体实现
type Generator interface {
	// Score 入场决策信号
	Score(fv *model.FeatureVector) *model.Signal

	// ExitAdvice 持仓去留信号
	ExitAdvice(fv *model.FeatureVector) *model.Signal
}

// mlExitNowThreshold 衰减概率超过该值立即建议平仓
const mlExitNowThreshold = 0.7

// MLGenerator 学习式生成器，风险评分来自衰减分类器
type MLGenerator struct {
	classifier *LogisticModel
	logger     *zap.Logger
}

// Score 入场决策信号，风险即分类器给出的衰减概率
// 建议映射与启发式一致，风险阈值等配置项由引擎在入场关卡单独施加
func (g *MLGenerator) Score(fv *model.FeatureVector) *model.Signal {
	risk := g.classifier.Predict(fv.ToVector())
	direction, strength := momentum(fv.RateWindow)
	lowVol := fv.VolPercentile < lowVolPercentileMax

	var recommendation string
	switch {
	case risk < entryRiskMax && lowVol && fv.CurrentAPR > entryAPRMin:
		recommendation = model.RecommendEnter
	case risk < waitRiskMax && fv.CurrentAPR > waitAPRMin:
		recommendation = model.RecommendWait
	default:
		recommendation = model.RecommendAvoid
	}

	return &model.Signal{
		Symbol:         fv.Symbol,
		Timestamp:      fv.Timestamp,
		Confidence:     1 - risk,
		RiskScore:      risk,
		ExpectedReturn: fv.CurrentAPR,
		MomentumScore:  float64(direction) * strength,
		LowVol:         lowVol,
		Recommendation: recommendation,
	}
}

// ExitAdvice 持仓去留信号
func (g *MLGenerator) ExitAdvice(fv *model.FeatureVector) *model.Signal {
	risk := g.classifier.Predict(fv.ToVector())
	direction, strength := momentum(fv.RateWindow)

	var recommendation string
	switch {
	case risk > mlExitNowThreshold:
		recommendation = model.RecommendExitNow
	case risk > waitRiskMax || fv.CurrentAPR < exitAPRMin:
		recommendation = model.RecommendExitSoon
	default:
		recommendation = model.RecommendHold
	}

	return &model.Signal{
		Symbol:         fv.Symbol,
		Timestamp:      fv.Timestamp,
		Confidence:     1 - risk,
		RiskScore:      risk,
		ExpectedReturn: fv.CurrentAPR,
		MomentumScore:  float64(direction) * strength,
		LowVol:         fv.VolPercentile < lowVolPercentileMax,
		Recommendation: recommendation,
	}
}

// NewGenerator 根据配置构建信号生成器
// 返回值degraded为true表示请求了学习式但训练样本不足，已降级为启发式
func NewGenerator(cfg *config.BacktestConfig, store *datastore.Store, extractor *feature.Extractor, trainEnd time.Time, logger *zap.Logger) (Generator, bool, error) {
	if !cfg.UseMLSignals {
		return NewHeuristicGenerator(logger), false, nil
	}

	classifier, err := TrainDeclineClassifier(store, extractor, trainEnd, cfg.FundingInterval(), logger)
	if err != nil {
		var unavailable *model.ModelUnavailableError
		if errors.As(err, &unavailable) {
			logger.Warn("学习式信号降级为启发式",
				zap.Int("samples", unavailable.SampleCount),
				zap.Int("required", unavailable.Required))
			return NewHeuristicGenerator(logger), true, nil
		}
		return nil, false, err
	}

	return &MLGenerator{
		classifier: classifier,
		logger:     logger.With(zap.String("component", "ml_signal")),
	}, false, nil
}
