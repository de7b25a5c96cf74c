package session

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/betbot/perpsession/internal/domain"
	"github.com/betbot/perpsession/internal/ports"
)

// accountReadiness 仓位操作的前置条件来源
type accountReadiness interface {
	State() AccountState
}

// Controller 仓位控制：open / reduce / close，每个操作阻塞到交易所确认或失败。
// 不读取当前仓位，reduce 无法校验是否反向穿仓。
type Controller struct {
	positions ports.PositionMutator
	account   accountReadiness
	log       *logrus.Entry
}

func NewController(positions ports.PositionMutator, account accountReadiness, log *logrus.Entry) *Controller {
	return &Controller{positions: positions, account: account, log: log.WithField("component", "position")}
}

func (c *Controller) ensureReady() error {
	if c.account == nil || c.account.State() != AccountReady {
		return ErrAccountNotReady
	}
	return nil
}

// Open 按 direction 增加 notional 的净敞口
func (c *Controller) Open(ctx context.Context, direction domain.Direction, notional domain.Quote, market domain.Market) (domain.TxResult, error) {
	return c.submit(ctx, "open", domain.TradeIntent{Direction: direction, Notional: notional, Market: market})
}

// Reduce 与 Open 同一底层调用，只是调用方传入反方向
func (c *Controller) Reduce(ctx context.Context, oppositeDirection domain.Direction, notional domain.Quote, market domain.Market) (domain.TxResult, error) {
	return c.submit(ctx, "reduce", domain.TradeIntent{Direction: oppositeDirection, Notional: notional, Market: market})
}

func (c *Controller) submit(ctx context.Context, op string, intent domain.TradeIntent) (domain.TxResult, error) {
	if err := c.ensureReady(); err != nil {
		return domain.TxResult{}, err
	}
	if !intent.Direction.IsValid() {
		return domain.TxResult{}, fmt.Errorf("%s: invalid direction %q", op, intent.Direction)
	}
	if !intent.Notional.IsPositive() {
		return domain.TxResult{}, fmt.Errorf("%s: notional must be positive, got %s", op, intent.Notional)
	}

	tx, err := c.positions.OpenPosition(ctx, intent.Direction, intent.Notional, intent.Market.Index)
	if err != nil {
		return domain.TxResult{}, newError(KindPositionOperationFailed,
			fmt.Sprintf("%s %s %s %s", op, intent.Direction, intent.Notional, intent.Market.Symbol), err)
	}
	c.log.WithFields(logrus.Fields{
		"op":        op,
		"direction": intent.Direction,
		"notional":  intent.Notional.String(),
		"market":    intent.Market.String(),
		"tx":        tx.Signature,
	}).Info("仓位变更已确认")
	return tx, nil
}

// Close 交易所原生平仓：无论当前仓位大小/方向都归零；空仓平仓视为成功
func (c *Controller) Close(ctx context.Context, market domain.Market) (domain.TxResult, error) {
	if err := c.ensureReady(); err != nil {
		return domain.TxResult{}, err
	}
	tx, err := c.positions.ClosePosition(ctx, market.Index)
	if err != nil {
		return domain.TxResult{}, newError(KindPositionOperationFailed, "close "+market.Symbol, err)
	}
	c.log.WithFields(logrus.Fields{"market": market.String(), "tx": tx.Signature}).Info("仓位已平")
	return tx, nil
}
