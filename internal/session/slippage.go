package session

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/perpsession/internal/domain"
	"github.com/betbot/perpsession/internal/ports"
)

var hundred = decimal.NewFromInt(100)

// SlippagePolicy 滑点策略：MaxPct 为 0 时只展示不拦截
type SlippagePolicy struct {
	MaxPct decimal.Decimal
}

// Enforced 是否启用拦截
func (p SlippagePolicy) Enforced() bool {
	return p.MaxPct.IsPositive()
}

// Estimator 滑点估计
type Estimator struct {
	quoter ports.SlippageQuoter
	policy SlippagePolicy
	log    *logrus.Entry
}

func NewEstimator(quoter ports.SlippageQuoter, policy SlippagePolicy, log *logrus.Entry) *Estimator {
	return &Estimator{quoter: quoter, policy: policy, log: log.WithField("component", "slippage")}
}

// EstimateSlippage 计算给定方向/名义金额的假设成交价（与标记价格同一定点表示）
func (e *Estimator) EstimateSlippage(ctx context.Context, direction domain.Direction, notional domain.Quote, market domain.Market) (domain.SlippageEstimate, error) {
	if !direction.IsValid() {
		return domain.SlippageEstimate{}, fmt.Errorf("invalid direction %q", direction)
	}
	if !notional.IsPositive() {
		return domain.SlippageEstimate{}, fmt.Errorf("notional must be positive, got %s", notional)
	}

	q, err := e.quoter.QuoteSlippage(ctx, direction, notional, market)
	if err != nil {
		return domain.SlippageEstimate{}, classifyMarketErr("estimateSlippage "+market.Symbol, err)
	}

	slip := q.EntryPrice.Sub(q.MarkPrice).Abs()
	pct := decimal.Zero
	if !q.MarkPrice.IsZero() {
		pct = slip.ToDecimal().Div(q.MarkPrice.ToDecimal()).Mul(hundred)
	}
	return domain.SlippageEstimate{
		Intent:         domain.TradeIntent{Direction: direction, Notional: notional, Market: market},
		MarkPrice:      q.MarkPrice,
		ExecutionPrice: q.EntryPrice,
		Slippage:       slip,
		Pct:            pct,
	}, nil
}

// Check 按策略检查估计值；策略关闭时永远通过
func (e *Estimator) Check(est domain.SlippageEstimate) error {
	if !e.policy.Enforced() {
		return nil
	}
	if est.Pct.GreaterThan(e.policy.MaxPct) {
		return newError(KindSlippageExceeded,
			fmt.Sprintf("%s %s on %s", est.Intent.Direction, est.Intent.Notional, est.Intent.Market.Symbol),
			fmt.Errorf("estimated %s%% > max %s%%", est.Pct.StringFixed(4), e.policy.MaxPct.String()))
	}
	return nil
}
