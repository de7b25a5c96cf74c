package session

import (
	"context"

	"github.com/gagliardetto/solana-go"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/perpsession/internal/domain"
	"github.com/betbot/perpsession/internal/ports"
)

// AccountState 保证金账户引导状态
type AccountState int

const (
	AccountUnknown AccountState = iota
	AccountChecked
	AccountReady
	AccountFailed
)

func (s AccountState) String() string {
	switch s {
	case AccountUnknown:
		return "UNKNOWN"
	case AccountChecked:
		return "CHECKED"
	case AccountReady:
		return "READY"
	case AccountFailed:
		return "FAILED"
	}
	return "INVALID"
}

// Bootstrapper 账户引导状态机：UNKNOWN -> CHECKED -> READY。
// 每次运行最多发起一次建户+入金；存在性每次都从交易所重新读取，不缓存跨运行结果。
type Bootstrapper struct {
	accounts  ports.AccountManager
	authority solana.PublicKey
	deposit   domain.Quote
	funding   solana.PublicKey
	log       *logrus.Entry

	state           AccountState
	exists          bool
	createAttempted bool
	createTx        *domain.TxResult
}

func NewBootstrapper(accounts ports.AccountManager, authority solana.PublicKey, deposit domain.Quote, funding solana.PublicKey, log *logrus.Entry) *Bootstrapper {
	return &Bootstrapper{
		accounts:  accounts,
		authority: authority,
		deposit:   deposit,
		funding:   funding,
		log:       log.WithField("component", "bootstrap"),
	}
}

// State 当前状态
func (b *Bootstrapper) State() AccountState {
	return b.state
}

// Created 本次运行是否新建了账户；返回建户交易
func (b *Bootstrapper) Created() (domain.TxResult, bool) {
	if b.createTx == nil {
		return domain.TxResult{}, false
	}
	return *b.createTx, true
}

// Check UNKNOWN -> CHECKED：只读查询账户是否存在
func (b *Bootstrapper) Check(ctx context.Context) error {
	if b.state != AccountUnknown {
		return pkgerrors.Wrapf(ErrInvalidTransition, "check from %s", b.state)
	}
	exists, err := b.accounts.AccountExists(ctx, b.authority)
	if err != nil {
		return pkgerrors.Wrap(err, "accountExists")
	}
	b.exists = exists
	b.state = AccountChecked
	b.log.WithField("exists", exists).Info("保证金账户存在性已检查")
	return nil
}

// Ready CHECKED -> READY：账户不存在时建户+入金（仅一次），然后订阅账户
func (b *Bootstrapper) Ready(ctx context.Context) error {
	if b.state != AccountChecked {
		return pkgerrors.Wrapf(ErrInvalidTransition, "ready from %s", b.state)
	}

	if !b.exists {
		if b.createAttempted {
			b.state = AccountFailed
			return ErrBootstrapAlreadyAttempted
		}
		b.createAttempted = true

		b.log.WithFields(logrus.Fields{
			"deposit": b.deposit.String(),
			"funding": b.funding.String(),
		}).Info("账户不存在，建户并存入初始保证金")
		tx, err := b.accounts.CreateAccountAndDeposit(ctx, b.authority, b.deposit, b.funding)
		if err != nil {
			b.state = AccountFailed
			return newError(KindAccountBootstrapFailed, "unable to initialize user account and deposit collateral", err)
		}
		b.createTx = &tx
		b.exists = true
		b.log.WithField("tx", tx.Signature).Info("建户入金已确认")
	}

	if err := b.accounts.Subscribe(ctx, b.authority); err != nil {
		b.state = AccountFailed
		return newError(KindSubscriptionFailed, "subscribe", err)
	}
	b.state = AccountReady
	return nil
}

// Run Check + Ready
func (b *Bootstrapper) Run(ctx context.Context) error {
	if err := b.Check(ctx); err != nil {
		return err
	}
	return b.Ready(ctx)
}
