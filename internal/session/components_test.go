package session

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/perpsession/internal/domain"
	"github.com/betbot/perpsession/internal/ports"
	"github.com/betbot/perpsession/pkg/config"
)

var sol = domain.Market{Symbol: "SOL", Index: 0}

func TestController_RequiresReadyAccount(t *testing.T) {
	ex := newExchange()
	b := NewBootstrapper(ex, testAuthority, domain.NewQuote(10000), testFunding, quietLog())
	c := NewController(ex, b, quietLog())
	ctx := context.Background()

	_, err := c.Open(ctx, domain.DirectionLong, domain.NewQuote(5000), sol)
	require.ErrorIs(t, err, ErrAccountNotReady)
	_, err = c.Close(ctx, sol)
	require.ErrorIs(t, err, ErrAccountNotReady)
	assert.Empty(t, ex.CallNames())

	require.NoError(t, b.Run(ctx))
	_, err = c.Reduce(ctx, domain.DirectionShort, domain.NewQuote(2000), sol)
	require.NoError(t, err)

	_, err = c.Open(ctx, domain.DirectionLong, domain.Quote{}, sol)
	require.Error(t, err)
	assert.Equal(t, 1, ex.Count("OpenPosition"))
}

func TestBootstrapper_Transitions(t *testing.T) {
	ex := newExchange()
	b := NewBootstrapper(ex, testAuthority, domain.NewQuote(10000), testFunding, quietLog())
	ctx := context.Background()

	assert.Equal(t, AccountUnknown, b.State())
	require.ErrorIs(t, b.Ready(ctx), ErrInvalidTransition)

	require.NoError(t, b.Check(ctx))
	assert.Equal(t, AccountChecked, b.State())
	require.ErrorIs(t, b.Check(ctx), ErrInvalidTransition)

	require.NoError(t, b.Ready(ctx))
	assert.Equal(t, AccountReady, b.State())
	tx, created := b.Created()
	assert.True(t, created)
	assert.NotEmpty(t, tx.Signature)

	require.ErrorIs(t, b.Ready(ctx), ErrInvalidTransition)
	assert.Equal(t, 1, ex.Count("CreateAccountAndDeposit"))
}

func TestBootstrapper_CheckErrorKeepsUnknown(t *testing.T) {
	ex := newExchange()
	ex.ErrorOnNext["AccountExists"] = assert.AnError
	b := NewBootstrapper(ex, testAuthority, domain.NewQuote(10000), testFunding, quietLog())

	err := b.Run(context.Background())
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, AccountUnknown, b.State())
	assert.Zero(t, ex.Count("CreateAccountAndDeposit"))
}

func TestEstimator(t *testing.T) {
	ex := newExchange()
	ex.Quote = domain.SlippageQuote{MarkPrice: price("100"), EntryPrice: price("99.5")}
	e := NewEstimator(ex, SlippagePolicy{}, quietLog())
	ctx := context.Background()

	est, err := e.EstimateSlippage(ctx, domain.DirectionShort, domain.NewQuote(5000), sol)
	require.NoError(t, err)
	assert.Equal(t, "0.5000", est.Slippage.String())
	assert.True(t, est.Pct.Equal(decimal.RequireFromString("0.5")))
	assert.Equal(t, "99.5000", est.ExecutionPrice.String())
	require.NoError(t, e.Check(est))

	_, err = e.EstimateSlippage(ctx, "SIDEWAYS", domain.NewQuote(5000), sol)
	require.Error(t, err)
	_, err = e.EstimateSlippage(ctx, domain.DirectionLong, domain.Quote{}, sol)
	require.Error(t, err)
	assert.Equal(t, 1, ex.Count("QuoteSlippage"))

	ex.ErrorOnNext["QuoteSlippage"] = ports.ErrMarketNotFound
	_, err = e.EstimateSlippage(ctx, domain.DirectionLong, domain.NewQuote(5000), sol)
	require.ErrorIs(t, err, ErrMarketUnavailable)
}

func TestReader_ResolveMarketNormalisesSymbol(t *testing.T) {
	ex := newExchange()
	r := NewReader(ex, quietLog())
	m, err := r.ResolveMarket(context.Background(), " eth ")
	require.NoError(t, err)
	assert.Equal(t, domain.Market{Symbol: "ETH", Index: 2}, m)
}

func TestPlanFromConfig(t *testing.T) {
	cfg := &config.Config{
		Market: config.MarketConfig{Symbol: "BTC"},
		Session: config.SessionConfig{
			DepositAmount:         10000,
			SlippageProbeNotional: 5000,
			OpenNotional:          5000,
			ReduceNotional:        2000,
			MaxSlippagePct:        0.5,
			StepTimeout:           30 * time.Second,
		},
	}
	p := PlanFromConfig(cfg)
	require.NoError(t, p.Validate())
	assert.Equal(t, "BTC", p.Symbol)
	assert.Equal(t, domain.DirectionLong, p.Direction)
	assert.EqualValues(t, 2_000_000_000, p.ReduceNotional.Raw)
	assert.EqualValues(t, 10_000_000_000, p.Deposit.Raw)
	assert.True(t, p.Policy.Enforced())
	assert.Equal(t, 30*time.Second, p.StepTimeout)

	p.Direction = ""
	require.Error(t, p.Validate())
}

func TestErrorKinds(t *testing.T) {
	err := newError(KindSubscriptionFailed, "subscribe", assert.AnError)
	assert.ErrorIs(t, err, ErrSubscriptionFailed)
	assert.NotErrorIs(t, err, ErrPositionOperationFailed)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, "SubscriptionFailed: subscribe: "+assert.AnError.Error(), err.Error())
	assert.Equal(t, "MarketUnavailable", ErrMarketUnavailable.Error())
}
