package session

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/perpsession/internal/domain"
	"github.com/betbot/perpsession/pkg/config"
)

// Plan 脚本化会话的固定参数
type Plan struct {
	Symbol         string
	Direction      domain.Direction // 开仓方向，reduce 用其反方向
	ProbeNotional  domain.Quote     // 滑点试算名义金额
	OpenNotional   domain.Quote
	ReduceNotional domain.Quote
	Deposit        domain.Quote // 建户时的初始保证金
	StepTimeout    time.Duration
	Policy         SlippagePolicy
}

// PlanFromConfig 由配置生成计划（开多 -> 反向减仓 -> 平仓）
func PlanFromConfig(cfg *config.Config) Plan {
	return Plan{
		Symbol:         cfg.Market.Symbol,
		Direction:      domain.DirectionLong,
		ProbeNotional:  domain.NewQuote(cfg.Session.SlippageProbeNotional),
		OpenNotional:   domain.NewQuote(cfg.Session.OpenNotional),
		ReduceNotional: domain.NewQuote(cfg.Session.ReduceNotional),
		Deposit:        domain.NewQuote(cfg.Session.DepositAmount),
		StepTimeout:    cfg.Session.StepTimeout,
		Policy:         SlippagePolicy{MaxPct: decimal.NewFromFloat(cfg.Session.MaxSlippagePct)},
	}
}

// Validate 计划自检
func (p Plan) Validate() error {
	if p.Symbol == "" {
		return fmt.Errorf("plan: symbol is empty")
	}
	if !p.Direction.IsValid() {
		return fmt.Errorf("plan: invalid direction %q", p.Direction)
	}
	if !p.ProbeNotional.IsPositive() || !p.OpenNotional.IsPositive() || !p.ReduceNotional.IsPositive() || !p.Deposit.IsPositive() {
		return fmt.Errorf("plan: amounts must be positive")
	}
	if p.ReduceNotional.Raw >= p.OpenNotional.Raw {
		return fmt.Errorf("plan: reduce notional %s must be smaller than open notional %s", p.ReduceNotional, p.OpenNotional)
	}
	return nil
}
