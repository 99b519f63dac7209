package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/life2you_mini/backtest/internal/backtest"
	"github.com/life2you_mini/backtest/internal/config"
	applog "github.com/life2you_mini/backtest/internal/logger"
	"github.com/life2you_mini/backtest/internal/report"
	"github.com/life2you_mini/backtest/internal/storage"
)

var (
	configFile = flag.String("config", "config/config.yaml", "配置文件路径")
	outputFile = flag.String("output", "", "结果JSON输出路径，默认写到配置的输出目录")
)

func main() {
	// 解析命令行参数
	flag.Parse()

	// 初始化日志
	logger, err := initLogger()
	if err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// 加载配置
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		logger.Fatal("加载配置失败", zap.Error(err))
	}
	logger.Info("加载配置成功", zap.String("配置文件", *configFile))

	// 按配置重建正式日志器，支持写入日志文件
	runLogger, err := applog.NewLogger(cfg.System.LogDir, cfg.System.LogLevel)
	if err != nil {
		logger.Fatal("初始化运行日志失败", zap.Error(err))
	}
	defer runLogger.Sync()
	logger = runLogger.Logger

	// 创建上下文，用于处理信号
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 设置信号处理，中断时取消回测
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-signalChan
		logger.Info("接收到信号，中止回测", zap.String("signal", sig.String()))
		cancel()
	}()

	// 注册存储后端
	factory := storage.NewFactory()
	factory.Register(storage.StorageTypeMemory, storage.NewMemoryStorage())
	if cfg.Data.Source == storage.StorageTypeRedis {
		redisStorage, err := storage.NewRedisStorage(ctx, &cfg.Redis, logger)
		if err != nil {
			logger.Fatal("初始化Redis存储失败", zap.Error(err))
		}
		defer redisStorage.Close()
		factory.Register(storage.StorageTypeRedis, redisStorage)
	}

	// 执行回测
	service := backtest.NewService(cfg, factory, logger)
	result, err := service.Run(ctx)
	if err != nil {
		logger.Fatal("回测执行失败", zap.Error(err))
	}

	// 写出结果
	output := *outputFile
	if output == "" {
		output = filepath.Join(cfg.System.OutputDir, "backtest_result.json")
	}
	if err := report.Write(result, output, logger); err != nil {
		logger.Fatal("写出回测报告失败", zap.Error(err))
	}

	logger.Info("回测结束",
		zap.Float64("total_return", result.Summary.TotalReturn),
		zap.Int("trades", result.Summary.NumberOfTrades),
		zap.String("output", output))
}

// 初始化日志
func initLogger() (*zap.Logger, error) {
	// 使用开发环境配置，输出更易读的格式
	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder        // 保留 ISO8601 时间格式
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder // 使用带颜色的级别显示
	return config.Build()
}
