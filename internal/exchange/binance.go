package exchange

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"

	"github.com/life2you_mini/backtest/internal/model"
)

// BinanceClient 币安历史数据客户端
type BinanceClient struct {
	exchange *ccxt.Binance
	logger   *zap.Logger
}

// NewBinanceClient 创建新的币安客户端
// 只读历史接口，无需API密钥
func NewBinanceClient(logger *zap.Logger) *BinanceClient {
	binanceInstance := ccxt.NewBinance(map[string]interface{}{
		"enableRateLimit": true,
	})

	// 加载市场信息
	go func() {
		<-binanceInstance.LoadMarkets()
		logger.Info("Binance市场数据加载完成")
	}()

	return &BinanceClient{
		exchange: binanceInstance,
		logger:   logger.With(zap.String("component", "binance")),
	}
}

// GetName 获取交易所名称
func (b *BinanceClient) GetName() string {
	return "Binance"
}

// FetchFundingRateHistory 获取资金费率历史
func (b *BinanceClient) FetchFundingRateHistory(ctx context.Context, symbol string, start, end time.Time) ([]model.FundingRateRecord, error) {
	formattedSymbol := formatBinanceSymbol(symbol)

	params := map[string]interface{}{
		"since": start.UnixMilli(),
		"until": end.UnixMilli(),
	}
	rows, err := b.exchange.FetchFundingRateHistory(formattedSymbol, params)
	if err != nil {
		b.logger.Error("获取币安资金费率历史失败",
			zap.Error(err),
			zap.String("symbol", symbol))
		return nil, fmt.Errorf("获取币安资金费率历史失败: %w", err)
	}

	records := make([]model.FundingRateRecord, 0, len(*rows))
	for _, row := range *rows {
		rowObj, ok := row.(map[string]interface{})
		if !ok {
			b.logger.Warn("资金费率记录格式错误", zap.String("symbol", symbol))
			continue
		}

		rate, err := strconv.ParseFloat(fmt.Sprintf("%v", rowObj["fundingRate"]), 64)
		if err != nil {
			b.logger.Warn("解析资金费率失败",
				zap.String("symbol", symbol),
				zap.Error(err))
			continue
		}

		tsMs, ok := rowObj["timestamp"].(int64)
		if !ok {
			b.logger.Warn("资金费率时间戳缺失", zap.String("symbol", symbol))
			continue
		}
		ts := time.UnixMilli(tsMs).UTC()

		records = append(records, model.FundingRateRecord{
			Timestamp:   ts,
			Rate:        rate,
			FundingTime: ts,
		})
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
	return records, nil
}

// FetchSpotOHLCV 获取现货1小时K线
func (b *BinanceClient) FetchSpotOHLCV(ctx context.Context, symbol string, start, end time.Time) ([]model.Candle, error) {
	return b.fetchOHLCV(symbol, start, end, map[string]interface{}{"type": "spot"})
}

// FetchPerpOHLCV 获取永续合约1小时K线
func (b *BinanceClient) FetchPerpOHLCV(ctx context.Context, symbol string, start, end time.Time) ([]model.Candle, error) {
	return b.fetchOHLCV(symbol, start, end, map[string]interface{}{"type": "swap"})
}

func (b *BinanceClient) fetchOHLCV(symbol string, start, end time.Time, params map[string]interface{}) ([]model.Candle, error) {
	formattedSymbol := formatBinanceSymbol(symbol)

	params["timeframe"] = "1h"
	params["since"] = start.UnixMilli()
	params["until"] = end.UnixMilli()
	rows, err := b.exchange.FetchOHLCV(formattedSymbol, params)
	if err != nil {
		b.logger.Error("获取币安K线失败",
			zap.Error(err),
			zap.String("symbol", symbol))
		return nil, fmt.Errorf("获取币安K线失败: %w", err)
	}

	candles := make([]model.Candle, 0, len(*rows))
	for _, row := range *rows {
		// CCXT的OHLCV行格式: [timestamp, open, high, low, close, volume]
		fields, ok := row.([]interface{})
		if !ok || len(fields) < 6 {
			b.logger.Warn("K线数据格式错误", zap.String("symbol", symbol))
			continue
		}

		tsMs, ok := fields[0].(int64)
		if !ok {
			continue
		}

		values := make([]float64, 5)
		parseOK := true
		for i := 0; i < 5; i++ {
			v, err := strconv.ParseFloat(fmt.Sprintf("%v", fields[i+1]), 64)
			if err != nil {
				parseOK = false
				break
			}
			values[i] = v
		}
		if !parseOK {
			b.logger.Warn("解析K线数值失败", zap.String("symbol", symbol))
			continue
		}

		candles = append(candles, model.Candle{
			Timestamp: time.UnixMilli(tsMs).UTC(),
			Open:      values[0],
			High:      values[1],
			Low:       values[2],
			Close:     values[3],
			Volume:    values[4],
		})
	}

	sort.Slice(candles, func(i, j int) bool {
		return candles[i].Timestamp.Before(candles[j].Timestamp)
	})
	return candles, nil
}

// ValidPairs 返回同时有现货和永续市场的交易对
func (b *BinanceClient) ValidPairs(ctx context.Context) ([]string, error) {
	markets := b.exchange.Markets
	if markets == nil {
		return nil, fmt.Errorf("Binance市场数据尚未加载")
	}

	var spot, perp []string
	for symbol, marketData := range *markets {
		marketObj, ok := marketData.(map[string]interface{})
		if !ok {
			continue
		}

		standardSymbol := formatStandardBinanceSymbol(symbol)
		if isSpot, _ := marketObj["spot"].(bool); isSpot {
			spot = append(spot, standardSymbol)
		}
		if isSwap, _ := marketObj["swap"].(bool); isSwap {
			perp = append(perp, standardSymbol)
		}
	}

	return IntersectPairs(spot, perp), nil
}

// 辅助函数：将BTC/USDT格式的交易对转换为Binance格式
func formatBinanceSymbol(symbol string) string {
	// 币安现货和合约使用相同格式（不带斜杠）
	return strings.ReplaceAll(symbol, "/", "")
}

// 辅助函数：将Binance格式的交易对转换回标准格式
func formatStandardBinanceSymbol(symbol string) string {
	// 为BTCUSDT格式的交易对添加斜杠
	if strings.HasSuffix(symbol, "USDT") && !strings.Contains(symbol, "/") {
		base := strings.TrimSuffix(symbol, "USDT")
		return fmt.Sprintf("%s/USDT", base)
	}

	return symbol
}
