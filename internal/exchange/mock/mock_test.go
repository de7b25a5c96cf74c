package mock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/perpsession/internal/domain"
	"github.com/betbot/perpsession/internal/ports"
)

func TestExchange_ErrorOnNextIsConsumedOnce(t *testing.T) {
	m := NewExchange()
	ctx := context.Background()
	boom := errors.New("boom")
	m.ErrorOnNext["OpenPosition"] = boom

	_, err := m.OpenPosition(ctx, domain.DirectionLong, domain.NewQuote(1), 0)
	require.ErrorIs(t, err, boom)

	tx, err := m.OpenPosition(ctx, domain.DirectionLong, domain.NewQuote(1), 0)
	require.NoError(t, err)
	assert.NotEmpty(t, tx.Signature)
	assert.Equal(t, 2, m.Count("OpenPosition"))
}

func TestExchange_RecordsHistory(t *testing.T) {
	m := NewExchange()
	ctx := context.Background()

	_, err := m.ResolveMarket(ctx, "doge")
	require.ErrorIs(t, err, ports.ErrMarketNotFound)

	exists, err := m.AccountExists(ctx, solana.PublicKey{})
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = m.CreateAccountAndDeposit(ctx, solana.PublicKey{}, domain.NewQuote(10000), solana.PublicKey{})
	require.NoError(t, err)
	exists, _ = m.AccountExists(ctx, solana.PublicKey{})
	assert.True(t, exists)

	assert.Equal(t, []string{"ResolveMarket", "AccountExists", "CreateAccountAndDeposit", "AccountExists"}, m.CallNames())
	assert.Equal(t, "ResolveMarket(doge)", m.History()[0])
}

func TestExchange_BlockHonoursContext(t *testing.T) {
	m := NewExchange()
	m.Block["MarkPrice"] = true

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := m.MarkPrice(ctx, domain.Market{Symbol: "SOL"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
