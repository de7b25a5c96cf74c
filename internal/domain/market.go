package domain

import (
	"fmt"
	"strings"
)

// Market 市场：符号 + 清算所内部的整数索引（每次运行解析一次，只读）
type Market struct {
	Symbol string
	Index  int
}

// IsValid 验证市场是否有效
func (m Market) IsValid() bool {
	return strings.TrimSpace(m.Symbol) != "" && m.Index >= 0
}

func (m Market) String() string {
	return fmt.Sprintf("%s-PERP(#%d)", m.Symbol, m.Index)
}

// Direction 交易方向
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// IsValid 检查方向是否合法
func (d Direction) IsValid() bool {
	return d == DirectionLong || d == DirectionShort
}

// Opposite 反方向（减仓用）
func (d Direction) Opposite() Direction {
	if d == DirectionLong {
		return DirectionShort
	}
	return DirectionLong
}

// Sign LONG=+1, SHORT=-1
func (d Direction) Sign() int64 {
	if d == DirectionShort {
		return -1
	}
	return 1
}
