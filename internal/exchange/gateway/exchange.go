package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/perpsession/internal/domain"
	"github.com/betbot/perpsession/internal/ports"
	"github.com/betbot/perpsession/pkg/cache"
	"github.com/betbot/perpsession/pkg/ratelimit"
)

const (
	marketTypePerp = "perp"
	marketsKey     = "perp"
	marketsTTL     = 5 * time.Minute
)

// Options 网关连接参数
type Options struct {
	BaseURL           string
	WSURL             string
	HTTPTimeout       time.Duration
	RequestsPerSecond int
	Signer            Signer
	Log               *logrus.Entry
}

// Exchange 通过清算所网关（REST + WS）接入真实链上清算所
type Exchange struct {
	http   *Client
	stream *AccountStream
	log    *logrus.Entry

	mu      sync.Mutex // 串行化市场目录加载
	markets *cache.InMemoryCache[string, map[string]domain.Market]

	sentMu   sync.Mutex
	lastSent time.Time // 最近一次交易提交的发起时间
}

var (
	_ ports.Exchange      = (*Exchange)(nil)
	_ ports.AccountViewer = (*Exchange)(nil)
)

func New(opts Options) (*Exchange, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, errors.New("gateway: base url is required")
	}
	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("exchange", "gateway")

	wsURL := opts.WSURL
	if wsURL == "" {
		wsURL = deriveWSURL(opts.BaseURL)
	}
	header := http.Header{}
	header.Set("User-Agent", "perpsession/1.0")
	if opts.Signer != nil {
		header.Set(headerAuthority, opts.Signer.PublicKey().String())
	}

	return &Exchange{
		http:    NewClient(opts.BaseURL, opts.HTTPTimeout, opts.Signer, ratelimit.NewManager(opts.RequestsPerSecond)),
		stream:  NewAccountStream(wsURL, header, log),
		log:     log,
		markets: cache.NewInMemoryCache[string, map[string]domain.Market](marketsTTL),
	}, nil
}

// deriveWSURL http(s)://host[:port]/... -> ws(s)://host[:port]/ws
func deriveWSURL(base string) string {
	base = strings.TrimSuffix(base, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws"
}

func (e *Exchange) loadMarkets(ctx context.Context) (map[string]domain.Market, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if markets, ok := e.markets.Get(marketsKey); ok {
		return markets, nil
	}
	var resp marketsResponse
	if err := e.http.Get(ctx, "/v2/markets", nil, &resp); err != nil {
		return nil, err
	}
	markets := make(map[string]domain.Market, len(resp.Markets))
	for _, m := range resp.Markets {
		if m.MarketType != "" && m.MarketType != marketTypePerp {
			continue
		}
		sym := strings.ToUpper(strings.TrimSuffix(m.Symbol, "-PERP"))
		markets[sym] = domain.Market{Symbol: sym, Index: m.MarketIndex}
	}
	e.markets.Set(marketsKey, markets, 0)
	return markets, nil
}

func (e *Exchange) ResolveMarket(ctx context.Context, symbol string) (domain.Market, error) {
	markets, err := e.loadMarkets(ctx)
	if err != nil {
		return domain.Market{}, err
	}
	m, ok := markets[strings.ToUpper(symbol)]
	if !ok {
		return domain.Market{}, errors.Wrapf(ports.ErrMarketNotFound, "symbol %s", symbol)
	}
	return m, nil
}

func (e *Exchange) MarkPrice(ctx context.Context, market domain.Market) (domain.Price, error) {
	var resp priceResponse
	if err := e.http.Get(ctx, fmt.Sprintf("/v2/markets/%d/price", market.Index), nil, &resp); err != nil {
		return domain.Price{}, err
	}
	return parsePrice("markPrice", resp.MarkPrice)
}

func (e *Exchange) QuoteSlippage(ctx context.Context, direction domain.Direction, notional domain.Quote, market domain.Market) (domain.SlippageQuote, error) {
	params := map[string]string{
		"direction": strings.ToLower(string(direction)),
		"notional":  notional.ToDecimal().String(),
	}
	var resp slippageResponse
	if err := e.http.Get(ctx, fmt.Sprintf("/v2/markets/%d/slippage", market.Index), params, &resp); err != nil {
		return domain.SlippageQuote{}, err
	}
	mark, err := parsePrice("markPrice", resp.MarkPrice)
	if err != nil {
		return domain.SlippageQuote{}, err
	}
	entry, err := parsePrice("entryPrice", resp.EntryPrice)
	if err != nil {
		return domain.SlippageQuote{}, err
	}
	next, err := parsePrice("newPrice", resp.NewPrice)
	if err != nil {
		return domain.SlippageQuote{}, err
	}
	return domain.SlippageQuote{MarkPrice: mark, EntryPrice: entry, NewPrice: next}, nil
}

func (e *Exchange) AccountExists(ctx context.Context, authority solana.PublicKey) (bool, error) {
	var resp userResponse
	err := e.http.Get(ctx, "/v2/user/"+authority.String(), nil, &resp)
	if err == nil {
		return true, nil
	}
	var he *HTTPError
	if errors.As(err, &he) && (he.Status == http.StatusNotFound || errors.Is(he, ports.ErrAccountNotFound)) {
		return false, nil
	}
	return false, err
}

func (e *Exchange) CreateAccountAndDeposit(ctx context.Context, authority solana.PublicKey, amount domain.Quote, fundingAddress solana.PublicKey) (domain.TxResult, error) {
	req := initUserRequest{
		Authority:      authority.String(),
		DepositAmount:  amount.ToDecimal().String(),
		FundingAccount: fundingAddress.String(),
	}
	return e.submit(ctx, "/v2/user", req)
}

func (e *Exchange) Subscribe(ctx context.Context, authority solana.PublicKey) error {
	return e.stream.Subscribe(ctx, authority)
}

func (e *Exchange) OpenPosition(ctx context.Context, direction domain.Direction, notional domain.Quote, marketIndex int) (domain.TxResult, error) {
	req := orderRequest{
		MarketIndex: marketIndex,
		MarketType:  marketTypePerp,
		Direction:   strings.ToLower(string(direction)),
		QuoteAmount: notional.ToDecimal().String(),
	}
	return e.submit(ctx, "/v2/orders", req)
}

func (e *Exchange) ClosePosition(ctx context.Context, marketIndex int) (domain.TxResult, error) {
	return e.submit(ctx, "/v2/positions/close", closeRequest{MarketIndex: marketIndex, MarketType: marketTypePerp})
}

// AccountSnapshot 读取订阅视图。视图须在最近一次交易提交之后更新过，否则等待推送直到 ctx 结束。
func (e *Exchange) AccountSnapshot(ctx context.Context, authority solana.PublicKey, marketIndex int) (domain.AccountSnapshot, error) {
	if !e.stream.Subscribed() {
		return domain.AccountSnapshot{}, errors.Errorf("gateway: account %s not subscribed", authority)
	}
	e.sentMu.Lock()
	since := e.lastSent
	e.sentMu.Unlock()

	view, err := e.stream.ViewSince(ctx, since)
	if err != nil {
		return domain.AccountSnapshot{}, errors.Wrap(err, "await account update")
	}
	pos := view.Positions[marketIndex]
	return domain.AccountSnapshot{
		Collateral:    view.Collateral,
		PositionBase:  pos.Base,
		PositionQuote: pos.Quote,
		UpdatedAt:     view.UpdatedAt,
	}, nil
}

func (e *Exchange) Close() error {
	return e.stream.Close()
}

func (e *Exchange) submit(ctx context.Context, path string, req any) (domain.TxResult, error) {
	e.sentMu.Lock()
	e.lastSent = time.Now()
	e.sentMu.Unlock()

	var resp txResponse
	if err := e.http.Post(ctx, path, req, &resp); err != nil {
		return domain.TxResult{}, err
	}
	if resp.Tx == "" {
		return domain.TxResult{}, errors.Errorf("%s: empty transaction signature", path)
	}
	e.log.WithFields(logrus.Fields{"path": path, "tx": resp.Tx}).Debug("交易已确认")
	return domain.TxResult{Signature: resp.Tx}, nil
}

func parsePrice(field, raw string) (domain.Price, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return domain.Price{}, errors.Wrapf(err, "parse %s %s", field, strconv.Quote(raw))
	}
	return domain.PriceFromDecimal(d), nil
}
