package model

import (
	"fmt"
	"time"
)

// ConfigValidationError 配置校验失败，回测开始前抛出，致命错误
type ConfigValidationError struct {
	Field  string
	Reason string
}

func (e *ConfigValidationError) Error() string {
	return fmt.Sprintf("配置校验失败: %s: %s", e.Field, e.Reason)
}

// DataNotFoundError 没有缓存数据集完整覆盖请求区间，加载时抛出，致命错误
type DataNotFoundError struct {
	Start time.Time
	End   time.Time
}

func (e *DataNotFoundError) Error() string {
	return fmt.Sprintf("没有缓存数据集覆盖区间 [%s, %s]",
		e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
}

// InsufficientHistoryError 特征提取缺少足够的回看窗口，非致命，该symbol/tick被跳过
type InsufficientHistoryError struct {
	Symbol    string
	Timestamp time.Time
	Reason    string
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("历史数据不足 %s@%s: %s",
		e.Symbol, e.Timestamp.Format(time.RFC3339), e.Reason)
}

// ModelUnavailableError 训练样本数低于阈值，生成器降级为启发式，运行继续
type ModelUnavailableError struct {
	SampleCount int
	Required    int
}

func (e *ModelUnavailableError) Error() string {
	return fmt.Sprintf("训练样本不足: %d < %d, 降级为启发式信号", e.SampleCount, e.Required)
}
