package domain

import "github.com/shopspring/decimal"

// 清算所定点精度
const (
	MarkPricePrecision int64 = 10_000_000_000 // 1e10
	QuotePrecision     int64 = 1_000_000      // 1e6（USDC）
)

var (
	markPricePrecisionDec = decimal.NewFromInt(MarkPricePrecision)
	quotePrecisionDec     = decimal.NewFromInt(QuotePrecision)
)

// Price 定点价格（Raw = price * 1e10）
type Price struct {
	Raw int64
}

// PriceFromDecimal 从小数创建价格（截断到 1e-10）
func PriceFromDecimal(d decimal.Decimal) Price {
	return Price{Raw: d.Mul(markPricePrecisionDec).Truncate(0).IntPart()}
}

// ToDecimal 转换为人类可读的小数
func (p Price) ToDecimal() decimal.Decimal {
	return decimal.NewFromInt(p.Raw).Div(markPricePrecisionDec)
}

func (p Price) String() string {
	return p.ToDecimal().StringFixed(4)
}

// Sub 价格相减
func (p Price) Sub(other Price) Price {
	return Price{Raw: p.Raw - other.Raw}
}

// Abs 绝对值
func (p Price) Abs() Price {
	if p.Raw < 0 {
		return Price{Raw: -p.Raw}
	}
	return p
}

// IsZero 是否为 0
func (p Price) IsZero() bool {
	return p.Raw == 0
}

// Quote 定点报价币种金额（Raw = amount * 1e6）
type Quote struct {
	Raw int64
}

// NewQuote 由整数金额构造（例如 5000 USDC）
func NewQuote(units int64) Quote {
	return Quote{Raw: units * QuotePrecision}
}

// ToDecimal 转换为小数
func (q Quote) ToDecimal() decimal.Decimal {
	return decimal.NewFromInt(q.Raw).Div(quotePrecisionDec)
}

func (q Quote) String() string {
	return q.ToDecimal().StringFixed(2)
}

// IsPositive 是否大于 0
func (q Quote) IsPositive() bool {
	return q.Raw > 0
}
