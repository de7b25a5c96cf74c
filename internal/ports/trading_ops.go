package ports

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"github.com/betbot/perpsession/internal/domain"
)

// Small capability interfaces over the clearing house. The session core depends
// on these only; gateway and paper exchanges implement all of them.

type MarketReader interface {
	// ResolveMarket maps a base asset symbol (e.g. "SOL") to the exchange's market index.
	ResolveMarket(ctx context.Context, symbol string) (domain.Market, error)
	MarkPrice(ctx context.Context, market domain.Market) (domain.Price, error)
}

type SlippageQuoter interface {
	// QuoteSlippage prices a hypothetical trade on the exchange's curve without executing it.
	QuoteSlippage(ctx context.Context, direction domain.Direction, notional domain.Quote, market domain.Market) (domain.SlippageQuote, error)
}

type AccountManager interface {
	AccountExists(ctx context.Context, authority solana.PublicKey) (bool, error)
	CreateAccountAndDeposit(ctx context.Context, authority solana.PublicKey, amount domain.Quote, fundingAddress solana.PublicKey) (domain.TxResult, error)
	// Subscribe establishes the live account view position operations rely on.
	Subscribe(ctx context.Context, authority solana.PublicKey) error
}

type PositionMutator interface {
	OpenPosition(ctx context.Context, direction domain.Direction, notional domain.Quote, marketIndex int) (domain.TxResult, error)
	// ClosePosition flattens the market regardless of current size or sign.
	ClosePosition(ctx context.Context, marketIndex int) (domain.TxResult, error)
}

// AccountViewer is optional: exchanges that keep a view of the subscribed
// account expose collateral and one market's net position for reporting.
type AccountViewer interface {
	AccountSnapshot(ctx context.Context, authority solana.PublicKey, marketIndex int) (domain.AccountSnapshot, error)
}

// Exchange is the full collaborator surface consumed by one session run.
type Exchange interface {
	MarketReader
	SlippageQuoter
	AccountManager
	PositionMutator
	Close() error
}
