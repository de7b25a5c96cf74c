package chain

import (
	"context"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// LamportsPerSOL 1 SOL = 1e9 lamports
const LamportsPerSOL int64 = 1_000_000_000

// Client 集群 JSON-RPC 只读客户端
type Client struct {
	rpc        *rpc.Client
	commitment string
}

// Dial 连接集群 RPC 端点
func Dial(ctx context.Context, endpoint string) (*Client, error) {
	c, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "dial rpc %s", endpoint)
	}
	return &Client{rpc: c, commitment: "confirmed"}, nil
}

type balanceResult struct {
	Context struct {
		Slot uint64 `json:"slot"`
	} `json:"context"`
	Value uint64 `json:"value"`
}

// Balance 账户余额（lamports）
func (c *Client) Balance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	var res balanceResult
	if err := c.rpc.CallContext(ctx, &res, "getBalance", account.String(), map[string]string{"commitment": c.commitment}); err != nil {
		return 0, errors.Wrapf(err, "getBalance %s", account)
	}
	return res.Value, nil
}

// BalanceSOL 余额换算为 SOL
func (c *Client) BalanceSOL(ctx context.Context, account solana.PublicKey) (decimal.Decimal, error) {
	lamports, err := c.Balance(ctx, account)
	if err != nil {
		return decimal.Zero, err
	}
	return LamportsToSOL(lamports), nil
}

// LamportsToSOL lamports / 1e9
func LamportsToSOL(lamports uint64) decimal.Decimal {
	return decimal.NewFromUint64(lamports).Div(decimal.NewFromInt(LamportsPerSOL))
}

func (c *Client) Close() {
	c.rpc.Close()
}
