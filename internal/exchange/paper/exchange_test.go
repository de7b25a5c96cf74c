package paper

import (
	"context"
	"io"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/perpsession/internal/domain"
	"github.com/betbot/perpsession/internal/ports"
	"github.com/betbot/perpsession/internal/session"
	"github.com/betbot/perpsession/pkg/persistence"
)

var sol = domain.Market{Symbol: "SOL", Index: 0}

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func newKey(t *testing.T) solana.PublicKey {
	t.Helper()
	k, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return k.PublicKey()
}

func mustCollateral(t *testing.T, ex *Exchange, owner solana.PublicKey) decimal.Decimal {
	t.Helper()
	c, ok := ex.Collateral(owner)
	require.True(t, ok)
	return c
}

func newPaper(t *testing.T, svc persistence.Service) *Exchange {
	t.Helper()
	ex, err := New(Options{Env: "devnet", FundingBalance: domain.NewQuote(100_000), Persistence: svc, Log: quietLog()})
	require.NoError(t, err)
	return ex
}

func TestQuoteSlippage_GrowsWithNotional(t *testing.T) {
	ex := newPaper(t, nil)
	ctx := context.Background()

	mark, err := ex.MarkPrice(ctx, sol)
	require.NoError(t, err)
	assert.Equal(t, "150.0000", mark.String())

	prev := int64(0)
	for _, n := range []int64{100, 5_000, 50_000, 500_000} {
		q, err := ex.QuoteSlippage(ctx, domain.DirectionLong, domain.NewQuote(n), sol)
		require.NoError(t, err)
		assert.Greater(t, q.EntryPrice.Raw, q.MarkPrice.Raw)
		assert.Greater(t, q.NewPrice.Raw, q.EntryPrice.Raw)
		slip := q.EntryPrice.Sub(q.MarkPrice).Raw
		assert.Greater(t, slip, prev, "notional %d", n)
		prev = slip
	}

	q, err := ex.QuoteSlippage(ctx, domain.DirectionShort, domain.NewQuote(5_000), sol)
	require.NoError(t, err)
	assert.Less(t, q.EntryPrice.Raw, q.MarkPrice.Raw)

	after, _ := ex.MarkPrice(ctx, sol)
	assert.Equal(t, mark, after, "quoting must not move the pool")
}

func TestResolveMarket(t *testing.T) {
	ex := newPaper(t, nil)
	m, err := ex.ResolveMarket(context.Background(), "eth")
	require.NoError(t, err)
	assert.Equal(t, domain.Market{Symbol: "ETH", Index: 2}, m)

	_, err = ex.ResolveMarket(context.Background(), "DOGE")
	require.ErrorIs(t, err, ports.ErrMarketNotFound)

	_, err = ex.MarkPrice(context.Background(), domain.Market{Symbol: "X", Index: 42})
	require.ErrorIs(t, err, ports.ErrMarketNotFound)
}

func TestAccountLifecycle(t *testing.T) {
	ex := newPaper(t, nil)
	ctx := context.Background()
	owner, funding := newKey(t), newKey(t)

	exists, err := ex.AccountExists(ctx, owner)
	require.NoError(t, err)
	assert.False(t, exists)

	require.ErrorIs(t, ex.Subscribe(ctx, owner), ports.ErrAccountNotFound)
	_, err = ex.OpenPosition(ctx, domain.DirectionLong, domain.NewQuote(5_000), 0)
	require.ErrorIs(t, err, ErrNotSubscribed)

	tx, err := ex.CreateAccountAndDeposit(ctx, owner, domain.NewQuote(10_000), funding)
	require.NoError(t, err)
	assert.NotEmpty(t, tx.Signature)
	_, err = solana.SignatureFromBase58(tx.Signature)
	require.NoError(t, err)

	_, err = ex.CreateAccountAndDeposit(ctx, owner, domain.NewQuote(10_000), funding)
	require.ErrorIs(t, err, ports.ErrAccountExists)

	coll, ok := ex.Collateral(owner)
	require.True(t, ok)
	assert.True(t, coll.Equal(decimal.NewFromInt(10_000)))
	assert.True(t, ex.FundingBalance(funding).Equal(decimal.NewFromInt(90_000)))
	require.NoError(t, ex.Subscribe(ctx, owner))
}

func TestCreateAccount_InsufficientFunds(t *testing.T) {
	ex, err := New(Options{Env: "devnet", FundingBalance: domain.NewQuote(500), Log: quietLog()})
	require.NoError(t, err)
	owner := newKey(t)

	_, err = ex.CreateAccountAndDeposit(context.Background(), owner, domain.NewQuote(10_000), newKey(t))
	require.ErrorIs(t, err, ports.ErrInsufficientFunds)
	exists, _ := ex.AccountExists(context.Background(), owner)
	assert.False(t, exists)
}

func TestOpenReduceClose_NetsPosition(t *testing.T) {
	ex := newPaper(t, nil)
	ctx := context.Background()
	owner := newKey(t)
	_, err := ex.CreateAccountAndDeposit(ctx, owner, domain.NewQuote(10_000), newKey(t))
	require.NoError(t, err)
	require.NoError(t, ex.Subscribe(ctx, owner))

	_, err = ex.OpenPosition(ctx, domain.DirectionLong, domain.NewQuote(5_000), 0)
	require.NoError(t, err)
	_, err = ex.OpenPosition(ctx, domain.DirectionShort, domain.NewQuote(2_000), 0)
	require.NoError(t, err)

	pos := ex.Position(owner, 0)
	assert.True(t, pos.Notional.Equal(decimal.NewFromInt(3_000)), "net notional %s", pos.Notional)
	assert.True(t, pos.Base.IsPositive())

	_, err = ex.ClosePosition(ctx, 0)
	require.NoError(t, err)
	assert.True(t, ex.Position(owner, 0).IsFlat())

	// 恒定乘积曲线无手续费，往返成交只有舍入误差
	coll, _ := ex.Collateral(owner)
	assert.True(t, coll.Sub(decimal.NewFromInt(10_000)).Abs().LessThan(decimal.RequireFromString("0.0001")), "collateral %s", coll)

	mark, _ := ex.MarkPrice(ctx, sol)
	assert.InDelta(t, 150.0, mark.ToDecimal().InexactFloat64(), 1e-6)

	_, err = ex.ClosePosition(ctx, 0)
	require.NoError(t, err, "closing a flat market succeeds")
}

func TestOpenPosition_LeverageLimit(t *testing.T) {
	ex := newPaper(t, nil)
	ctx := context.Background()
	owner := newKey(t)
	_, err := ex.CreateAccountAndDeposit(ctx, owner, domain.NewQuote(100), newKey(t))
	require.NoError(t, err)
	require.NoError(t, ex.Subscribe(ctx, owner))

	_, err = ex.OpenPosition(ctx, domain.DirectionLong, domain.NewQuote(5_000), 0)
	require.ErrorIs(t, err, ports.ErrInsufficientFunds)
	assert.True(t, ex.Position(owner, 0).IsFlat())

	mark, _ := ex.MarkPrice(ctx, sol)
	assert.Equal(t, "150.0000", mark.String(), "rejected trade must not move the pool")
}

func TestOpenPosition_RejectedLeavesNoEntry(t *testing.T) {
	svc := persistence.NewJSONFileService(t.TempDir())
	ctx := context.Background()
	owner := newKey(t)

	first := newPaper(t, svc)
	_, err := first.CreateAccountAndDeposit(ctx, owner, domain.NewQuote(100), newKey(t))
	require.NoError(t, err)
	require.NoError(t, first.Subscribe(ctx, owner))

	_, err = first.OpenPosition(ctx, domain.DirectionLong, domain.NewQuote(5_000), 0)
	require.ErrorIs(t, err, ports.ErrInsufficientFunds)
	assert.NotContains(t, first.st.Accounts[owner.String()].Positions, 0)

	// 后续成功交易会落盘，被拒的市场不能跟着写进去
	_, err = first.OpenPosition(ctx, domain.DirectionLong, domain.NewQuote(500), 1)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := newPaper(t, svc)
	positions := second.st.Accounts[owner.String()].Positions
	assert.NotContains(t, positions, 0)
	assert.Contains(t, positions, 1)

	// 平掉空仓市场同样不写入条目
	require.NoError(t, second.Subscribe(ctx, owner))
	_, err = second.ClosePosition(ctx, 2)
	require.NoError(t, err)
	assert.NotContains(t, second.st.Accounts[owner.String()].Positions, 2)
}

func TestAccountSnapshot(t *testing.T) {
	ex := newPaper(t, nil)
	ctx := context.Background()
	owner := newKey(t)

	_, err := ex.AccountSnapshot(ctx, owner, 0)
	require.ErrorIs(t, err, ports.ErrAccountNotFound)

	_, err = ex.CreateAccountAndDeposit(ctx, owner, domain.NewQuote(10_000), newKey(t))
	require.NoError(t, err)
	require.NoError(t, ex.Subscribe(ctx, owner))
	_, err = ex.OpenPosition(ctx, domain.DirectionShort, domain.NewQuote(2_000), 0)
	require.NoError(t, err)

	snap, err := ex.AccountSnapshot(ctx, owner, 0)
	require.NoError(t, err)
	assert.True(t, snap.Collateral.Equal(decimal.NewFromInt(10_000)))
	assert.True(t, snap.PositionQuote.Equal(decimal.NewFromInt(-2_000)), "quote %s", snap.PositionQuote)
	assert.True(t, snap.PositionBase.IsNegative())

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = ex.AccountSnapshot(cancelled, owner, 0)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSnapshotSurvivesRestart(t *testing.T) {
	svc := persistence.NewJSONFileService(t.TempDir())
	ctx := context.Background()
	owner, funding := newKey(t), newKey(t)

	first := newPaper(t, svc)
	_, err := first.CreateAccountAndDeposit(ctx, owner, domain.NewQuote(10_000), funding)
	require.NoError(t, err)
	require.NoError(t, first.Subscribe(ctx, owner))
	_, err = first.OpenPosition(ctx, domain.DirectionLong, domain.NewQuote(1_000), 0)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := newPaper(t, svc)
	exists, err := second.AccountExists(ctx, owner)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.True(t, second.Position(owner, 0).Notional.Equal(decimal.NewFromInt(1_000)))
	assert.True(t, second.FundingBalance(funding).Equal(decimal.NewFromInt(90_000)))

	m1, _ := first.MarkPrice(ctx, sol)
	m2, _ := second.MarkPrice(ctx, sol)
	assert.Equal(t, m1, m2)
}

func TestSessionAgainstPaper(t *testing.T) {
	ex := newPaper(t, persistence.NewMemoryService())
	ctx := context.Background()
	owner, funding := newKey(t), newKey(t)

	plan := session.Plan{
		Symbol:         "SOL",
		Direction:      domain.DirectionLong,
		ProbeNotional:  domain.NewQuote(5_000),
		OpenNotional:   domain.NewQuote(5_000),
		ReduceNotional: domain.NewQuote(2_000),
		Deposit:        domain.NewQuote(10_000),
	}
	run := func() session.Report {
		o, err := session.New(domain.Session{RunID: "paper", Wallet: owner}, plan, session.Dependencies{Exchange: ex, Funding: funding, Log: quietLog()})
		require.NoError(t, err)
		report, err := o.Run(ctx)
		require.NoError(t, err)
		return report
	}

	first := run()
	assert.True(t, first.AccountCreated)
	assert.Equal(t, session.StateClosed, first.FinalState)
	assert.True(t, first.Slippage.Slippage.Raw > 0)
	assert.True(t, ex.Position(owner, 0).IsFlat())

	require.NotNil(t, first.Account)
	assert.True(t, first.Account.PositionBase.IsZero())
	assert.True(t, first.Account.Collateral.Equal(mustCollateral(t, ex, owner)))

	second := run()
	assert.False(t, second.AccountCreated, "second run reuses the account")
	assert.True(t, ex.FundingBalance(funding).Equal(decimal.NewFromInt(90_000)), "deposit happened once")
}
