package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/betbot/perpsession/internal/domain"
	"github.com/betbot/perpsession/internal/ports"
)

// Call 一次调用记录（按发生顺序）
type Call struct {
	Name string
	Args string
}

func (c Call) String() string {
	if c.Args == "" {
		return c.Name
	}
	return c.Name + "(" + c.Args + ")"
}

// Exchange is a recording ports.Exchange for tests.
type Exchange struct {
	mu sync.Mutex

	// Response data
	Markets    map[string]int
	Mark       domain.Price
	Quote      domain.SlippageQuote
	HasAccount bool

	// Call tracking
	Calls map[string]int
	Log   []Call

	// Error injection
	ErrorOnNext map[string]error
	// Block 中的调用会阻塞到 ctx 结束（超时测试）
	Block map[string]bool

	seq int
}

// NewExchange creates a mock exchange with SOL/BTC/ETH markets.
func NewExchange() *Exchange {
	return &Exchange{
		Markets:     map[string]int{"SOL": 0, "BTC": 1, "ETH": 2},
		Calls:       make(map[string]int),
		ErrorOnNext: make(map[string]error),
		Block:       make(map[string]bool),
	}
}

var _ ports.Exchange = (*Exchange)(nil)

func (m *Exchange) trackCall(ctx context.Context, name, args string) error {
	m.mu.Lock()
	m.Calls[name]++
	m.Log = append(m.Log, Call{Name: name, Args: args})
	block := m.Block[name]
	err, ok := m.ErrorOnNext[name]
	if ok {
		delete(m.ErrorOnNext, name)
	}
	m.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if ok {
		return err
	}
	return nil
}

func (m *Exchange) nextTx(prefix string) domain.TxResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	return domain.TxResult{Signature: fmt.Sprintf("%s-%d", prefix, m.seq)}
}

// CallNames 按顺序返回调用名
func (m *Exchange) CallNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.Log))
	for _, c := range m.Log {
		out = append(out, c.Name)
	}
	return out
}

// History 按顺序返回带参数的调用
func (m *Exchange) History() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.Log))
	for _, c := range m.Log {
		out = append(out, c.String())
	}
	return out
}

// Count 某调用的次数
func (m *Exchange) Count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls[name]
}

func (m *Exchange) ResolveMarket(ctx context.Context, symbol string) (domain.Market, error) {
	if err := m.trackCall(ctx, "ResolveMarket", symbol); err != nil {
		return domain.Market{}, err
	}
	idx, ok := m.Markets[strings.ToUpper(symbol)]
	if !ok {
		return domain.Market{}, ports.ErrMarketNotFound
	}
	return domain.Market{Symbol: strings.ToUpper(symbol), Index: idx}, nil
}

func (m *Exchange) MarkPrice(ctx context.Context, market domain.Market) (domain.Price, error) {
	if err := m.trackCall(ctx, "MarkPrice", market.Symbol); err != nil {
		return domain.Price{}, err
	}
	return m.Mark, nil
}

func (m *Exchange) QuoteSlippage(ctx context.Context, direction domain.Direction, notional domain.Quote, market domain.Market) (domain.SlippageQuote, error) {
	if err := m.trackCall(ctx, "QuoteSlippage", fmt.Sprintf("%s,%s,%d", direction, notional.ToDecimal().StringFixed(0), market.Index)); err != nil {
		return domain.SlippageQuote{}, err
	}
	return m.Quote, nil
}

func (m *Exchange) AccountExists(ctx context.Context, authority solana.PublicKey) (bool, error) {
	if err := m.trackCall(ctx, "AccountExists", ""); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.HasAccount, nil
}

func (m *Exchange) CreateAccountAndDeposit(ctx context.Context, authority solana.PublicKey, amount domain.Quote, fundingAddress solana.PublicKey) (domain.TxResult, error) {
	if err := m.trackCall(ctx, "CreateAccountAndDeposit", fmt.Sprintf("%s,%s", amount.ToDecimal().StringFixed(0), fundingAddress)); err != nil {
		return domain.TxResult{}, err
	}
	m.mu.Lock()
	m.HasAccount = true
	m.mu.Unlock()
	return m.nextTx("init"), nil
}

func (m *Exchange) Subscribe(ctx context.Context, authority solana.PublicKey) error {
	return m.trackCall(ctx, "Subscribe", "")
}

func (m *Exchange) OpenPosition(ctx context.Context, direction domain.Direction, notional domain.Quote, marketIndex int) (domain.TxResult, error) {
	if err := m.trackCall(ctx, "OpenPosition", fmt.Sprintf("%s,%s,%d", direction, notional.ToDecimal().StringFixed(0), marketIndex)); err != nil {
		return domain.TxResult{}, err
	}
	return m.nextTx("open"), nil
}

func (m *Exchange) ClosePosition(ctx context.Context, marketIndex int) (domain.TxResult, error) {
	if err := m.trackCall(ctx, "ClosePosition", fmt.Sprint(marketIndex)); err != nil {
		return domain.TxResult{}, err
	}
	return m.nextTx("close"), nil
}

func (m *Exchange) Close() error {
	return nil
}
