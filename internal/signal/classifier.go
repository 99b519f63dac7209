package signal

import (
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/life2you_mini/backtest/internal/datastore"
	"github.com/life2you_mini/backtest/internal/feature"
	"github.com/life2you_mini/backtest/internal/model"
)

const (
	// MinTrainingSamples 低于该样本数不训练，降级为启发式
	MinTrainingSamples = 50

	trainEpochs       = 500
	trainLearningRate = 0.1

	// declineLabelThreshold 标签定义：未来1-2期年化下降超过30%记为正样本
	declineLabelThreshold = 0.30
)

// LogisticModel 逻辑回归费率衰减分类器
// 零初始化加固定轮数梯度下降，同样的样本永远训练出同样的权重
type LogisticModel struct {
	Weights []float64
	Bias    float64

	// 训练集的标准化参数，预测时复用
	Means []float64
	Stds  []float64
}

// sigmoid 标准逻辑函数
func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

// standardize 按训练集均值方差归一化
func (m *LogisticModel) standardize(features []float64) []float64 {
	out := make([]float64, len(features))
	for i, v := range features {
		if m.Stds[i] == 0 {
			out[i] = 0
			continue
		}
		out[i] = (v - m.Means[i]) / m.Stds[i]
	}
	return out
}

// Predict 返回费率即将衰减的概率[0,1]
func (m *LogisticModel) Predict(features []float64) float64 {
	x := m.standardize(features)
	z := m.Bias
	for i, w := range m.Weights {
		z += w * x[i]
	}
	return sigmoid(z)
}

// trainLogistic 全量批梯度下降训练
func trainLogistic(samples [][]float64, labels []float64) *LogisticModel {
	dim := len(samples[0])
	n := float64(len(samples))

	// 计算标准化参数
	means := make([]float64, dim)
	stds := make([]float64, dim)
	for j := 0; j < dim; j++ {
		sum := 0.0
		for _, s := range samples {
			sum += s[j]
		}
		means[j] = sum / n

		varSum := 0.0
		for _, s := range samples {
			d := s[j] - means[j]
			varSum += d * d
		}
		stds[j] = math.Sqrt(varSum / n)
	}

	m := &LogisticModel{
		Weights: make([]float64, dim),
		Means:   means,
		Stds:    stds,
	}

	standardized := make([][]float64, len(samples))
	for i, s := range samples {
		standardized[i] = m.standardize(s)
	}

	for epoch := 0; epoch < trainEpochs; epoch++ {
		gradW := make([]float64, dim)
		gradB := 0.0
		for i, x := range standardized {
			z := m.Bias
			for j, w := range m.Weights {
				z += w * x[j]
			}
			err := sigmoid(z) - labels[i]
			for j := range gradW {
				gradW[j] += err * x[j]
			}
			gradB += err
		}
		for j := range m.Weights {
			m.Weights[j] -= trainLearningRate * gradW[j] / n
		}
		m.Bias -= trainLearningRate * gradB / n
	}

	return m
}

// declineLabel 观察ts之后1-2期的费率是否较当前下降超过阈值
// as-of查询在数据断档时会取回ts自身的记录，这种样本无法打标签，丢弃
func declineLabel(store *datastore.Store, symbol string, ts time.Time, rate float64, interval time.Duration) (float64, bool) {
	next1, ok1 := store.FundingRateAsOf(symbol, ts.Add(interval))
	next2, ok2 := store.FundingRateAsOf(symbol, ts.Add(2*interval))
	if !ok1 || !ok2 || !next1.Timestamp.After(ts) || !next2.Timestamp.After(next1.Timestamp) {
		return 0, false
	}

	threshold := rate * (1 - declineLabelThreshold)
	if next1.Rate < threshold || next2.Rate < threshold {
		return 1, true
	}
	return 0, true
}

// TrainDeclineClassifier 在回测开始日期之前的数据上训练衰减分类器
// 标签的前瞻窗口也必须落在trainEnd之前，保证训练不读取回测区间内的任何数据
func TrainDeclineClassifier(store *datastore.Store, extractor *feature.Extractor, trainEnd time.Time, interval time.Duration, logger *zap.Logger) (*LogisticModel, error) {
	meta := store.Metadata()
	labelEnd := trainEnd.Add(-2 * interval)

	var samples [][]float64
	var labels []float64

	for _, symbol := range store.Symbols() {
		for ts := meta.StartTime; ts.Before(labelEnd); ts = ts.Add(interval) {
			rec, ok := store.FundingRateAsOf(symbol, ts)
			if !ok || !rec.Timestamp.Equal(ts) {
				continue
			}
			if rec.Rate <= 0 {
				// 只学习正费率仓位的衰减，负费率本就不会入场
				continue
			}

			fv, err := extractor.Extract(symbol, ts)
			if err != nil {
				var insufficient *model.InsufficientHistoryError
				if errors.As(err, &insufficient) {
					continue
				}
				return nil, err
			}

			label, ok := declineLabel(store, symbol, ts, rec.Rate, interval)
			if !ok {
				continue
			}

			samples = append(samples, fv.ToVector())
			labels = append(labels, label)
		}
	}

	if len(samples) < MinTrainingSamples {
		return nil, &model.ModelUnavailableError{
			SampleCount: len(samples),
			Required:    MinTrainingSamples,
		}
	}

	positives := 0
	for _, l := range labels {
		if l == 1 {
			positives++
		}
	}
	logger.Info("衰减分类器训练完成",
		zap.Int("samples", len(samples)),
		zap.Int("positives", positives))

	return trainLogistic(samples, labels), nil
}
