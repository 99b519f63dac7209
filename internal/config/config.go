package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/life2you_mini/backtest/internal/model"
)

// 日期格式，配置文件中的start_date/end_date按此解析
const DateLayout = "2006-01-02"

// Config 应用配置结构
type Config struct {
	Backtest BacktestConfig `mapstructure:"backtest" yaml:"backtest"`
	Data     DataConfig     `mapstructure:"data" yaml:"data"`
	Redis    RedisConfig    `mapstructure:"redis" yaml:"redis"`
	System   SystemConfig   `mapstructure:"system" yaml:"system"`
}

// BacktestConfig 回测参数
type BacktestConfig struct {
	StartDate               string  `mapstructure:"start_date" yaml:"start_date"`
	EndDate                 string  `mapstructure:"end_date" yaml:"end_date"`
	InitialCapital          float64 `mapstructure:"initial_capital" yaml:"initial_capital"`
	MinAPR                  float64 `mapstructure:"min_apr" yaml:"min_apr"` // 入场最低年化费率(%)
	MaxConcurrentPositions  int     `mapstructure:"max_concurrent_positions" yaml:"max_concurrent_positions"`
	PositionSizePercent     float64 `mapstructure:"position_size_percent" yaml:"position_size_percent"`   // 单仓占可用资金比例(0-1]
	TakerFeeRate            float64 `mapstructure:"taker_fee_rate" yaml:"taker_fee_rate"`                 // 开/平仓手续费率
	FundingIntervalHours    int     `mapstructure:"funding_interval_hours" yaml:"funding_interval_hours"` // 资金费结算间隔，默认8小时
	UseMLSignals            bool    `mapstructure:"use_ml_signals" yaml:"use_ml_signals"`
	RiskThreshold           float64 `mapstructure:"risk_threshold" yaml:"risk_threshold"` // ML入场风险上限[0,1]
	VolatilityFilterEnabled bool    `mapstructure:"volatility_filter_enabled" yaml:"volatility_filter_enabled"`
	MomentumFilterEnabled   bool    `mapstructure:"momentum_filter_enabled" yaml:"momentum_filter_enabled"`
}

// DataConfig 数据集来源配置
type DataConfig struct {
	Source   string   `mapstructure:"source" yaml:"source"` // redis 或 memory
	Exchange string   `mapstructure:"exchange" yaml:"exchange"`
	Symbols  []string `mapstructure:"symbols" yaml:"symbols"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Host      string `mapstructure:"host" yaml:"host"`
	Port      int    `mapstructure:"port" yaml:"port"`
	Password  string `mapstructure:"password" yaml:"password"`
	DB        int    `mapstructure:"db" yaml:"db"`
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix"`
}

// SystemConfig 系统配置
type SystemConfig struct {
	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogDir    string `mapstructure:"log_dir" yaml:"log_dir"`
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir"` // 回测结果JSON输出目录
}

// Window 解析回测时间区间，失败时返回ConfigValidationError
func (b BacktestConfig) Window() (time.Time, time.Time, error) {
	start, err := time.Parse(DateLayout, b.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, &model.ConfigValidationError{
			Field: "backtest.start_date", Reason: fmt.Sprintf("无效日期 %q", b.StartDate)}
	}
	end, err := time.Parse(DateLayout, b.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, &model.ConfigValidationError{
			Field: "backtest.end_date", Reason: fmt.Sprintf("无效日期 %q", b.EndDate)}
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, &model.ConfigValidationError{
			Field: "backtest.end_date", Reason: "结束日期必须晚于开始日期"}
	}
	return start, end, nil
}

// FundingInterval 资金费结算间隔
func (b BacktestConfig) FundingInterval() time.Duration {
	return time.Duration(b.FundingIntervalHours) * time.Hour
}

// PaymentsPerDay 每天结算次数，用于年化换算
func (b BacktestConfig) PaymentsPerDay() int {
	return 24 / b.FundingIntervalHours
}

// LoadConfig 从文件加载配置
func LoadConfig(filePath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(filePath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	// 绑定环境变量，如BACKTEST_REDIS_PASSWORD
	v.AutomaticEnv()
	v.SetEnvPrefix("BACKTEST")

	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		v.Set("redis.password", redisPassword)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyDefaults(&config)

	if err := Validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// LoadConfigFromYAML 保留yaml直接加载方式以备不时之需
func LoadConfigFromYAML(filePath string) (*Config, error) {
	yamlFile, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(yamlFile, &config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	applyDefaults(&config)

	if err := Validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func applyDefaults(config *Config) {
	if config.Backtest.FundingIntervalHours == 0 {
		config.Backtest.FundingIntervalHours = 8
	}
	if config.Backtest.TakerFeeRate == 0 {
		config.Backtest.TakerFeeRate = 0.001
	}
	if config.Data.Source == "" {
		config.Data.Source = "memory"
	}
	if config.System.LogLevel == "" {
		config.System.LogLevel = "INFO"
	}
}

// Validate 验证配置有效性，所有失败都以ConfigValidationError形式返回
func Validate(config *Config) error {
	if _, _, err := config.Backtest.Window(); err != nil {
		return err
	}

	if config.Backtest.InitialCapital <= 0 {
		return &model.ConfigValidationError{
			Field: "backtest.initial_capital", Reason: "初始资金必须大于0"}
	}

	if config.Backtest.MinAPR < 0 {
		return &model.ConfigValidationError{
			Field: "backtest.min_apr", Reason: "最低年化费率不能为负"}
	}

	if config.Backtest.MaxConcurrentPositions <= 0 {
		return &model.ConfigValidationError{
			Field: "backtest.max_concurrent_positions", Reason: "最大并发持仓数必须大于0"}
	}

	if config.Backtest.PositionSizePercent <= 0 || config.Backtest.PositionSizePercent > 1 {
		return &model.ConfigValidationError{
			Field: "backtest.position_size_percent", Reason: "仓位比例必须在0到1之间"}
	}

	if config.Backtest.TakerFeeRate < 0 {
		return &model.ConfigValidationError{
			Field: "backtest.taker_fee_rate", Reason: "手续费率不能为负"}
	}

	if config.Backtest.FundingIntervalHours <= 0 || 24%config.Backtest.FundingIntervalHours != 0 {
		return &model.ConfigValidationError{
			Field: "backtest.funding_interval_hours", Reason: "结算间隔必须整除24小时"}
	}

	if config.Backtest.UseMLSignals {
		if config.Backtest.RiskThreshold < 0 || config.Backtest.RiskThreshold > 1 {
			return &model.ConfigValidationError{
				Field: "backtest.risk_threshold", Reason: "风险阈值必须在0到1之间"}
		}
	}

	if config.Data.Source != "redis" && config.Data.Source != "memory" {
		return &model.ConfigValidationError{
			Field: "data.source", Reason: fmt.Sprintf("不支持的数据来源 %q", config.Data.Source)}
	}

	if config.Data.Source == "redis" {
		if config.Redis.Host == "" {
			return &model.ConfigValidationError{
				Field: "redis.host", Reason: "Redis主机不能为空"}
		}
		if config.Redis.Port <= 0 || config.Redis.Port > 65535 {
			return &model.ConfigValidationError{
				Field: "redis.port", Reason: "无效的Redis端口"}
		}
	}

	return nil
}

// GetDefaultConfig 获取默认配置（用于生成示例配置）
func GetDefaultConfig() *Config {
	return &Config{
		Backtest: BacktestConfig{
			StartDate:               "2024-01-01",
			EndDate:                 "2024-03-01",
			InitialCapital:          10000,
			MinAPR:                  8.0,
			MaxConcurrentPositions:  3,
			PositionSizePercent:     0.3,
			TakerFeeRate:            0.001,
			FundingIntervalHours:    8,
			UseMLSignals:            false,
			RiskThreshold:           0.5,
			VolatilityFilterEnabled: false,
			MomentumFilterEnabled:   false,
		},
		Data: DataConfig{
			Source:   "redis",
			Exchange: "Binance",
			Symbols:  []string{"BTC/USDT", "ETH/USDT", "SOL/USDT"},
		},
		Redis: RedisConfig{
			Host:      "localhost",
			Port:      6379,
			Password:  "",
			DB:        0,
			KeyPrefix: "funding_backtest:",
		},
		System: SystemConfig{
			LogLevel:  "INFO",
			LogDir:    "./logs",
			OutputDir: "./results",
		},
	}
}
