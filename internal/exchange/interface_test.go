package exchange

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateAPR(t *testing.T) {
	tests := []struct {
		name           string
		rate           float64
		paymentsPerDay int
		want           float64
	}{
		{"典型8小时费率", 0.0001, 3, 10.95},
		{"负费率", -0.0001, 3, -10.95},
		{"零费率", 0, 3, 0},
		{"4小时结算", 0.0001, 6, 21.9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CalculateAPR(tt.rate, tt.paymentsPerDay), 1e-9)
		})
	}
}

func TestIntersectPairs(t *testing.T) {
	spot := []string{"SOL/USDT", "BTC/USDT", "DOGE/USDT", "ETH/USDT"}
	perp := []string{"ETH/USDT", "BTC/USDT", "XRP/USDT"}

	// 交集按名称升序
	assert.Equal(t, []string{"BTC/USDT", "ETH/USDT"}, IntersectPairs(spot, perp))
	assert.Empty(t, IntersectPairs(spot, nil))
}

func TestFactory(t *testing.T) {
	factory := NewFactory()

	_, err := factory.Get("Binance")
	assert.Error(t, err)

	client := &BinanceClient{}
	factory.Register("Binance", client)
	got, err := factory.Get("Binance")
	require.NoError(t, err)
	assert.Same(t, client, got)
}

func TestFormatBinanceSymbol(t *testing.T) {
	assert.Equal(t, "BTCUSDT", formatBinanceSymbol("BTC/USDT"))
	assert.Equal(t, "BTC/USDT", formatStandardBinanceSymbol("BTCUSDT"))
	assert.Equal(t, "BTC/USDT", formatStandardBinanceSymbol("BTC/USDT"))
}
