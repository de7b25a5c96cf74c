package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeIntent 单次仓位变更意图（临时构造，不持久化）
type TradeIntent struct {
	Direction Direction
	Notional  Quote
	Market    Market
}

// TxResult 交易所确认后的交易结果
type TxResult struct {
	Signature string
}

// SlippageQuote 交易所定价曲线给出的假设成交报价
type SlippageQuote struct {
	MarkPrice  Price // 报价时的标记价格
	EntryPrice Price // 假设成交均价
	NewPrice   Price // 成交后的标记价格
}

// SlippageEstimate 面向展示的滑点估计
type SlippageEstimate struct {
	Intent         TradeIntent
	MarkPrice      Price
	ExecutionPrice Price
	Slippage       Price           // |ExecutionPrice - MarkPrice|
	Pct            decimal.Decimal // Slippage / MarkPrice * 100
}

// AccountSnapshot 账户保证金与单个市场的净仓位
type AccountSnapshot struct {
	Collateral    decimal.Decimal
	PositionBase  decimal.Decimal // 带符号基础资产数量，0 为空仓
	PositionQuote decimal.Decimal // 带符号名义金额
	UpdatedAt     time.Time       // 订阅视图的最后更新时间；本地账本为零值
}
