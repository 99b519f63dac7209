package trading

import (
	"sort"

	"github.com/life2you_mini/backtest/internal/model"
)

// Portfolio 回测账户状态：现金加持仓
// 所有的资金变动都经由Manager，Portfolio本身只保管状态
type Portfolio struct {
	InitialCapital float64
	Cash           float64

	open   map[string]*model.Position
	closed []*model.Position
}

// NewPortfolio 创建初始账户
func NewPortfolio(initialCapital float64) *Portfolio {
	return &Portfolio{
		InitialCapital: initialCapital,
		Cash:           initialCapital,
		open:           make(map[string]*model.Position),
	}
}

// OpenCount 当前持仓数
func (p *Portfolio) OpenCount() int {
	return len(p.open)
}

// HasOpen 该symbol是否已有持仓
func (p *Portfolio) HasOpen(symbol string) bool {
	_, ok := p.open[symbol]
	return ok
}

// Open 返回指定symbol的持仓
func (p *Portfolio) Open(symbol string) (*model.Position, bool) {
	pos, ok := p.open[symbol]
	return pos, ok
}

// OpenSymbols 持仓symbol列表，按名称升序保证遍历确定性
func (p *Portfolio) OpenSymbols() []string {
	symbols := make([]string, 0, len(p.open))
	for symbol := range p.open {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// OpenPositions 所有持仓，按symbol升序
func (p *Portfolio) OpenPositions() []*model.Position {
	positions := make([]*model.Position, 0, len(p.open))
	for _, symbol := range p.OpenSymbols() {
		positions = append(positions, p.open[symbol])
	}
	return positions
}

// ClosedPositions 所有已平仓位，按平仓先后排列
func (p *Portfolio) ClosedPositions() []*model.Position {
	return p.closed
}

// AllPositions 全部仓位：已平的按平仓顺序在前，未平的按symbol升序在后
func (p *Portfolio) AllPositions() []*model.Position {
	out := make([]*model.Position, 0, len(p.closed)+len(p.open))
	out = append(out, p.closed...)
	out = append(out, p.OpenPositions()...)
	return out
}
