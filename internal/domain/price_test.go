package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPrice_Conversions(t *testing.T) {
	p := PriceFromDecimal(decimal.RequireFromString("100.25"))
	assert.EqualValues(t, 1_002_500_000_000, p.Raw)
	assert.Equal(t, "100.2500", p.String())
	assert.True(t, p.ToDecimal().Equal(decimal.RequireFromString("100.25")))

	diff := PriceFromDecimal(decimal.NewFromInt(99)).Sub(p)
	assert.EqualValues(t, -12_500_000_000, diff.Raw)
	assert.EqualValues(t, 12_500_000_000, diff.Abs().Raw)
	assert.False(t, diff.IsZero())
}

func TestQuote(t *testing.T) {
	q := NewQuote(5000)
	assert.EqualValues(t, 5_000_000_000, q.Raw)
	assert.Equal(t, "5000.00", q.String())
	assert.True(t, q.IsPositive())
	assert.False(t, Quote{}.IsPositive())
}

func TestDirection(t *testing.T) {
	assert.Equal(t, DirectionShort, DirectionLong.Opposite())
	assert.Equal(t, DirectionLong, DirectionShort.Opposite())
	assert.EqualValues(t, 1, DirectionLong.Sign())
	assert.EqualValues(t, -1, DirectionShort.Sign())
	assert.False(t, Direction("UP").IsValid())
}

func TestMarket(t *testing.T) {
	m := Market{Symbol: "SOL", Index: 0}
	assert.True(t, m.IsValid())
	assert.Equal(t, "SOL-PERP(#0)", m.String())
	assert.False(t, Market{Index: 1}.IsValid())
}
