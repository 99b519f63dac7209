package signal

import (
	"math"

	"go.uber.org/zap"

	"github.com/life2you_mini/backtest/internal/model"
)

// 启发式规则阈值
const (
	lowVolPercentileMax = 75.0 // 波动率百分位低于该值视为低波动
	highAPRPenalty      = 15.0 // 超过该年化视为不可持续，计入风险
	entryRiskMax        = 0.3
	waitRiskMax         = 0.6
	entryAPRMin         = 5.0
	waitAPRMin          = 8.0
	exitAPRMin          = 2.0

	// fullDeclineStep 相邻平均降幅达到窗口均值的该比例时记满幅强度
	fullDeclineStep = 0.1
)

// HeuristicGenerator 基于固定规则的信号生成器
// 不依赖训练数据，是学习式生成器不可用时的保底路径
type HeuristicGenerator struct {
	logger *zap.Logger
}

// NewHeuristicGenerator 创建启发式生成器
func NewHeuristicGenerator(logger *zap.Logger) *HeuristicGenerator {
	return &HeuristicGenerator{
		logger: logger.With(zap.String("component", "heuristic_signal")),
	}
}

// momentum 费率窗口的趋势分类
// 统计相邻下降次数：5期窗口有4个相邻对，>=3次下降为下行，<=1次为上行
// 下行强度同时看下降次数和平均降幅，费率的微小抖动不构成下行动量
func momentum(window []float64) (direction int, strength float64) {
	if len(window) < 2 {
		return 0, 0
	}

	declines := 0
	declineSum := 0.0
	levelSum := 0.0
	for i, v := range window {
		if i > 0 && v < window[i-1] {
			declines++
			declineSum += window[i-1] - v
		}
		levelSum += math.Abs(v)
	}

	pairs := len(window) - 1
	ratio := float64(declines) / float64(pairs)
	switch {
	case declines >= 3:
		level := levelSum / float64(len(window))
		magnitude := 1.0
		if level > 0 {
			magnitude = clamp01(declineSum / float64(declines) / (fullDeclineStep * level))
		}
		return -1, ratio * magnitude
	case declines <= 1:
		return 1, 1 - ratio
	default:
		return 0, 0
	}
}

// riskScore 规则风险评分，范围[0,1]
// 下行动量占主导，波动率次之，极端高费率视为不可持续再加一档
func riskScore(fv *model.FeatureVector, direction int, strength float64) float64 {
	risk := 0.3 * fv.VolPercentile / 100
	if direction < 0 {
		risk += 0.5 * strength
	}
	if fv.CurrentAPR > highAPRPenalty {
		risk += 0.2
	}
	return clamp01(risk)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Score 入场决策信号
func (g *HeuristicGenerator) Score(fv *model.FeatureVector) *model.Signal {
	direction, strength := momentum(fv.RateWindow)
	risk := riskScore(fv, direction, strength)
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
func (g *HeuristicGenerator) ExitAdvice(fv *model.FeatureVector) *model.Signal {
	direction, strength := momentum(fv.RateWindow)
	risk := riskScore(fv, direction, strength)

	var recommendation string
	switch {
	case direction < 0 && strength > 0.5:
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
