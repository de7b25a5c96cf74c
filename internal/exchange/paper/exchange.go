package paper

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/perpsession/internal/domain"
	"github.com/betbot/perpsession/internal/ports"
	"github.com/betbot/perpsession/pkg/persistence"
)

// 最大杠杆（名义敞口 / 保证金）
var maxLeverage = decimal.NewFromInt(10)

// ErrNotSubscribed 仓位操作前未订阅账户
var ErrNotSubscribed = errors.New("paper: account not subscribed")

// Position 某市场的净仓位
type Position struct {
	Base     decimal.Decimal `json:"base"`     // 带符号基础资产数量
	Notional decimal.Decimal `json:"notional"` // 带符号名义金额（多为正）
}

// IsFlat 是否空仓
func (p Position) IsFlat() bool {
	return p.Base.IsZero()
}

// Account 保证金账户
type Account struct {
	Collateral decimal.Decimal   `json:"collateral"`
	Positions  map[int]*Position `json:"positions"`
}

type state struct {
	Markets  []*AMM                     `json:"markets"`
	Accounts map[string]*Account        `json:"accounts"`
	Funding  map[string]decimal.Decimal `json:"funding"`
}

// Options 纸交易清算所参数
type Options struct {
	Env            string
	FundingBalance domain.Quote        // 首次见到的资金账户初始余额
	Persistence    persistence.Service // nil 则不保存快照
	Markets        []*AMM              // nil 则使用 DefaultMarkets
	Log            *logrus.Entry
}

// Exchange 进程内清算所：AMM 定价、保证金账户、净仓位。
// 状态在每次变更后写入快照，下次运行可以看到上次建的账户。
type Exchange struct {
	mu             sync.Mutex
	st             state
	bySymbol       map[string]*AMM
	byIndex        map[int]*AMM
	subscribed     map[string]bool
	fundingBalance decimal.Decimal
	store          persistence.Store
	log            *logrus.Entry
}

var (
	_ ports.Exchange      = (*Exchange)(nil)
	_ ports.AccountViewer = (*Exchange)(nil)
)

// New 创建并加载快照
func New(opts Options) (*Exchange, error) {
	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	e := &Exchange{
		subscribed:     make(map[string]bool),
		fundingBalance: opts.FundingBalance.ToDecimal(),
		log:            log.WithField("exchange", "paper"),
	}
	if opts.Persistence != nil {
		e.store = opts.Persistence.NewStore("paper", opts.Env)
	}

	loaded := false
	if e.store != nil {
		err := e.store.Load(&e.st)
		switch {
		case err == nil:
			loaded = true
		case errors.Is(err, persistence.ErrNotExists):
		default:
			return nil, errors.Wrap(err, "load paper state")
		}
	}
	if !loaded || len(e.st.Markets) == 0 {
		e.st.Markets = opts.Markets
		if e.st.Markets == nil {
			e.st.Markets = DefaultMarkets()
		}
	}
	if e.st.Accounts == nil {
		e.st.Accounts = make(map[string]*Account)
	}
	if e.st.Funding == nil {
		e.st.Funding = make(map[string]decimal.Decimal)
	}

	e.bySymbol = make(map[string]*AMM, len(e.st.Markets))
	e.byIndex = make(map[int]*AMM, len(e.st.Markets))
	for _, m := range e.st.Markets {
		e.bySymbol[strings.ToUpper(m.Symbol)] = m
		e.byIndex[m.Index] = m
	}
	e.log.WithFields(logrus.Fields{"loaded": loaded, "accounts": len(e.st.Accounts)}).Debug("纸交易清算所已初始化")
	return e, nil
}

func (e *Exchange) ResolveMarket(_ context.Context, symbol string) (domain.Market, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.bySymbol[strings.ToUpper(symbol)]
	if !ok {
		return domain.Market{}, errors.Wrapf(ports.ErrMarketNotFound, "symbol %s", symbol)
	}
	return domain.Market{Symbol: m.Symbol, Index: m.Index}, nil
}

func (e *Exchange) MarkPrice(_ context.Context, market domain.Market) (domain.Price, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, err := e.market(market.Index)
	if err != nil {
		return domain.Price{}, err
	}
	return domain.PriceFromDecimal(m.Mark()), nil
}

func (e *Exchange) QuoteSlippage(_ context.Context, direction domain.Direction, notional domain.Quote, market domain.Market) (domain.SlippageQuote, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, err := e.market(market.Index)
	if err != nil {
		return domain.SlippageQuote{}, err
	}
	fill, err := m.Simulate(direction, notional.ToDecimal())
	if err != nil {
		return domain.SlippageQuote{}, err
	}
	return domain.SlippageQuote{
		MarkPrice:  domain.PriceFromDecimal(m.Mark()),
		EntryPrice: domain.PriceFromDecimal(fill.EntryPrice),
		NewPrice:   domain.PriceFromDecimal(fill.NewPrice()),
	}, nil
}

func (e *Exchange) AccountExists(_ context.Context, authority solana.PublicKey) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.st.Accounts[authority.String()]
	return ok, nil
}

func (e *Exchange) CreateAccountAndDeposit(ctx context.Context, authority solana.PublicKey, amount domain.Quote, fundingAddress solana.PublicKey) (domain.TxResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.TxResult{}, err
	}
	if !amount.IsPositive() {
		return domain.TxResult{}, errors.Errorf("deposit must be positive, got %s", amount)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	key := authority.String()
	if _, ok := e.st.Accounts[key]; ok {
		return domain.TxResult{}, errors.Wrapf(ports.ErrAccountExists, "authority %s", key)
	}
	balance := e.fundingLocked(fundingAddress)
	deposit := amount.ToDecimal()
	if balance.LessThan(deposit) {
		return domain.TxResult{}, errors.Wrapf(ports.ErrInsufficientFunds, "funding %s has %s, need %s", fundingAddress, balance.StringFixed(2), deposit.StringFixed(2))
	}

	e.st.Funding[fundingAddress.String()] = balance.Sub(deposit)
	e.st.Accounts[key] = &Account{Collateral: deposit, Positions: make(map[int]*Position)}
	if err := e.saveLocked(); err != nil {
		return domain.TxResult{}, err
	}
	return newTx()
}

func (e *Exchange) Subscribe(ctx context.Context, authority solana.PublicKey) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	key := authority.String()
	if _, ok := e.st.Accounts[key]; !ok {
		return errors.Wrapf(ports.ErrAccountNotFound, "authority %s", key)
	}
	e.subscribed[key] = true
	return nil
}

// OpenPosition 作用于当前已订阅的账户
func (e *Exchange) OpenPosition(ctx context.Context, direction domain.Direction, notional domain.Quote, marketIndex int) (domain.TxResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.TxResult{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	acct, err := e.subscribedAccountLocked()
	if err != nil {
		return domain.TxResult{}, err
	}
	m, err := e.market(marketIndex)
	if err != nil {
		return domain.TxResult{}, err
	}
	n := notional.ToDecimal()
	fill, err := m.Simulate(direction, n)
	if err != nil {
		return domain.TxResult{}, err
	}

	pos := acct.lookup(marketIndex)
	nextNotional := pos.Notional.Add(n.Mul(decimal.NewFromInt(direction.Sign())))
	if nextNotional.Abs().GreaterThan(acct.Collateral.Mul(maxLeverage)) {
		return domain.TxResult{}, errors.Wrapf(ports.ErrInsufficientFunds, "exposure %s exceeds %sx collateral %s",
			nextNotional.Abs().StringFixed(2), maxLeverage, acct.Collateral.StringFixed(2))
	}

	m.Apply(fill.NewBaseReserve, fill.NewQuoteReserve)
	pos.Base = pos.Base.Add(fill.BaseDelta)
	pos.Notional = nextNotional
	acct.store(marketIndex, pos)
	if err := e.saveLocked(); err != nil {
		return domain.TxResult{}, err
	}
	e.log.WithFields(logrus.Fields{
		"market":    m.Symbol,
		"direction": direction,
		"notional":  n.StringFixed(2),
		"entry":     fill.EntryPrice.StringFixed(4),
		"base":      pos.Base.StringFixed(6),
	}).Debug("纸交易成交")
	return newTx()
}

// ClosePosition 按基础资产数量反向成交归零；空仓视为成功
func (e *Exchange) ClosePosition(ctx context.Context, marketIndex int) (domain.TxResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.TxResult{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	acct, err := e.subscribedAccountLocked()
	if err != nil {
		return domain.TxResult{}, err
	}
	m, err := e.market(marketIndex)
	if err != nil {
		return domain.TxResult{}, err
	}
	pos := acct.lookup(marketIndex)
	if pos.IsFlat() {
		return newTx()
	}

	quoteDelta, base, quote, err := m.SimulateBase(pos.Base)
	if err != nil {
		return domain.TxResult{}, err
	}
	// 平多收到 quoteDelta，建仓付出 Notional；平空同理符号相反
	pnl := quoteDelta.Sub(pos.Notional)
	m.Apply(base, quote)
	acct.Collateral = acct.Collateral.Add(pnl)
	delete(acct.Positions, marketIndex)
	if err := e.saveLocked(); err != nil {
		return domain.TxResult{}, err
	}
	e.log.WithFields(logrus.Fields{"market": m.Symbol, "pnl": pnl.StringFixed(6)}).Debug("纸交易平仓")
	return newTx()
}

// Close 写入最终快照
func (e *Exchange) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.saveLocked()
}

// Position 查询仓位副本（空仓返回零值）
func (e *Exchange) Position(authority solana.PublicKey, marketIndex int) Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	acct, ok := e.st.Accounts[authority.String()]
	if !ok {
		return Position{}
	}
	return acct.lookup(marketIndex)
}

// AccountSnapshot 账户保证金与单市场仓位；账户不存在返回 ErrAccountNotFound
func (e *Exchange) AccountSnapshot(ctx context.Context, authority solana.PublicKey, marketIndex int) (domain.AccountSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.AccountSnapshot{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	acct, ok := e.st.Accounts[authority.String()]
	if !ok {
		return domain.AccountSnapshot{}, errors.Wrapf(ports.ErrAccountNotFound, "authority %s", authority)
	}
	pos := acct.lookup(marketIndex)
	return domain.AccountSnapshot{
		Collateral:    acct.Collateral,
		PositionBase:  pos.Base,
		PositionQuote: pos.Notional,
	}, nil
}

// Collateral 账户保证金
func (e *Exchange) Collateral(authority solana.PublicKey) (decimal.Decimal, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	acct, ok := e.st.Accounts[authority.String()]
	if !ok {
		return decimal.Zero, false
	}
	return acct.Collateral, true
}

// FundingBalance 资金账户余额
func (e *Exchange) FundingBalance(fundingAddress solana.PublicKey) decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fundingLocked(fundingAddress)
}

func (e *Exchange) fundingLocked(addr solana.PublicKey) decimal.Decimal {
	if b, ok := e.st.Funding[addr.String()]; ok {
		return b
	}
	return e.fundingBalance
}

func (e *Exchange) market(index int) (*AMM, error) {
	m, ok := e.byIndex[index]
	if !ok {
		return nil, errors.Wrapf(ports.ErrMarketNotFound, "market index %d", index)
	}
	return m, nil
}

func (e *Exchange) subscribedAccountLocked() (*Account, error) {
	for key := range e.subscribed {
		if acct, ok := e.st.Accounts[key]; ok {
			return acct, nil
		}
	}
	return nil, ErrNotSubscribed
}

// lookup 返回仓位副本，不存在时为零值且不写入账户
func (a *Account) lookup(marketIndex int) Position {
	if p, ok := a.Positions[marketIndex]; ok {
		return *p
	}
	return Position{}
}

func (a *Account) store(marketIndex int, p Position) {
	if a.Positions == nil {
		a.Positions = make(map[int]*Position)
	}
	a.Positions[marketIndex] = &p
}

func (e *Exchange) saveLocked() error {
	if e.store == nil {
		return nil
	}
	return errors.Wrap(e.store.Save(&e.st), "save paper state")
}

func newTx() (domain.TxResult, error) {
	var b [64]byte
	if _, err := rand.Read(b[:]); err != nil {
		return domain.TxResult{}, fmt.Errorf("generate signature: %w", err)
	}
	return domain.TxResult{Signature: solana.Signature(b).String()}, nil
}
