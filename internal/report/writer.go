package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/life2you_mini/backtest/internal/model"
)

// Write 将回测结果写成格式化JSON
// 序列化是确定的：同样的结果写出的文件逐字节相同
func Write(result *model.BacktestResult, path string, logger *zap.Logger) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("结果序列化失败: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("创建输出目录失败: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("写入结果文件失败: %w", err)
	}

	logger.Info("回测报告已写出",
		zap.String("path", path),
		zap.Int("bytes", len(data)))
	return nil
}
