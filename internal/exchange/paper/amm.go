package paper

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/betbot/perpsession/internal/domain"
)

// AMM 恒定乘积曲线：mark = quote / base
type AMM struct {
	Symbol       string          `json:"symbol"`
	Index        int             `json:"index"`
	BaseReserve  decimal.Decimal `json:"base_reserve"`
	QuoteReserve decimal.Decimal `json:"quote_reserve"`
}

// NewAMM 以给定价格和报价深度建池
func NewAMM(symbol string, index int, price, quoteDepth decimal.Decimal) *AMM {
	return &AMM{
		Symbol:       symbol,
		Index:        index,
		BaseReserve:  quoteDepth.Div(price),
		QuoteReserve: quoteDepth,
	}
}

// DefaultMarkets 纸交易默认市场（索引与主网一致）
func DefaultMarkets() []*AMM {
	depth := decimal.NewFromInt(20_000_000)
	return []*AMM{
		NewAMM("SOL", 0, decimal.NewFromInt(150), depth),
		NewAMM("BTC", 1, decimal.NewFromInt(65_000), depth),
		NewAMM("ETH", 2, decimal.NewFromInt(3_200), depth),
	}
}

func (a *AMM) k() decimal.Decimal {
	return a.BaseReserve.Mul(a.QuoteReserve)
}

// Mark 当前标记价格
func (a *AMM) Mark() decimal.Decimal {
	return a.QuoteReserve.Div(a.BaseReserve)
}

// Fill 一次按报价金额成交的结果
type Fill struct {
	BaseDelta       decimal.Decimal // 带符号：多为正、空为负
	EntryPrice      decimal.Decimal
	NewBaseReserve  decimal.Decimal
	NewQuoteReserve decimal.Decimal
}

// NewPrice 成交后的标记价格
func (f Fill) NewPrice() decimal.Decimal {
	return f.NewQuoteReserve.Div(f.NewBaseReserve)
}

// Simulate 计算 direction/notional 的成交，不修改池子
func (a *AMM) Simulate(direction domain.Direction, notional decimal.Decimal) (Fill, error) {
	if !notional.IsPositive() {
		return Fill{}, fmt.Errorf("notional must be positive")
	}
	k := a.k()
	var quote decimal.Decimal
	switch direction {
	case domain.DirectionLong:
		quote = a.QuoteReserve.Add(notional)
	case domain.DirectionShort:
		quote = a.QuoteReserve.Sub(notional)
		if !quote.IsPositive() {
			return Fill{}, fmt.Errorf("notional %s exceeds %s pool depth", notional, a.Symbol)
		}
	default:
		return Fill{}, fmt.Errorf("invalid direction %q", direction)
	}
	base := k.Div(quote)
	delta := a.BaseReserve.Sub(base)
	return Fill{
		BaseDelta:       delta,
		EntryPrice:      notional.Div(delta.Abs()),
		NewBaseReserve:  base,
		NewQuoteReserve: quote,
	}, nil
}

// SimulateBase 按基础资产数量反向平仓：base>0 卖出（平多），base<0 买回（平空）。
// 返回带符号的报价变化：平多为正（收到），平空为负（付出）。
func (a *AMM) SimulateBase(base decimal.Decimal) (quoteDelta decimal.Decimal, newBase, newQuote decimal.Decimal, err error) {
	newBase = a.BaseReserve.Add(base)
	if !newBase.IsPositive() {
		return decimal.Zero, decimal.Zero, decimal.Zero, fmt.Errorf("position exceeds %s pool depth", a.Symbol)
	}
	newQuote = a.k().Div(newBase)
	return a.QuoteReserve.Sub(newQuote), newBase, newQuote, nil
}

// Apply 写入成交后的储备
func (a *AMM) Apply(base, quote decimal.Decimal) {
	a.BaseReserve = base
	a.QuoteReserve = quote
}
