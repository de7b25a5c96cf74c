package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"

	"github.com/betbot/perpsession/internal/domain"
	"github.com/betbot/perpsession/internal/ports"
)

// State 会话编排状态
type State string

const (
	StateInit              State = "INIT"
	StateMarketResolved    State = "MARKET_RESOLVED"
	StatePriceRead         State = "PRICE_READ"
	StateSlippageEstimated State = "SLIPPAGE_ESTIMATED"
	StateAccountReady      State = "ACCOUNT_READY"
	StateOpened            State = "OPENED"
	StateReduced           State = "REDUCED"
	StateClosed            State = "CLOSED"
	StateFailed            State = "FAILED"
)

// 每个状态出发的步骤名（日志/指标用）
var stepNames = map[State]string{
	StateInit:              "resolve_market",
	StateMarketResolved:    "read_price",
	StatePriceRead:         "estimate_slippage",
	StateSlippageEstimated: "bootstrap_account",
	StateAccountReady:      "open",
	StateOpened:            "reduce",
	StateReduced:           "close",
}

// StepObserver 步骤耗时/结果观察者（指标）
type StepObserver interface {
	ObserveStep(step string, elapsed time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveStep(string, time.Duration, error) {}

// Dependencies 编排器依赖（全部显式注入）
type Dependencies struct {
	Exchange ports.Exchange
	Funding  solana.PublicKey // 抵押币种的关联代币地址
	Reporter Reporter
	Observer StepObserver
	Log      *logrus.Entry
}

type transition func(ctx context.Context) (State, error)

// Orchestrator 固定线性流程：解析市场 -> 读价 -> 估滑点 -> 引导账户 -> 开仓 -> 减仓 -> 平仓。
// 严格串行；无循环、无断点续跑，失败后重跑可能重复开/平仓。
type Orchestrator struct {
	session  domain.Session
	plan     Plan
	reader   *Reader
	slippage *Estimator
	account  *Bootstrapper
	position *Controller
	reporter Reporter
	observer StepObserver
	viewer   ports.AccountViewer // 可选；交易所不提供账户视图时为 nil
	log      *logrus.Entry

	state  State
	market domain.Market
	report Report
	steps  map[State]transition
}

// New 组装编排器
func New(sess domain.Session, plan Plan, deps Dependencies) (*Orchestrator, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	if deps.Exchange == nil {
		return nil, errors.New("session: exchange is required")
	}
	log := deps.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithFields(logrus.Fields{"run_id": sess.RunID, "market": plan.Symbol})

	reporter := deps.Reporter
	if reporter == nil {
		reporter = NewLogReporter(log)
	}
	observer := deps.Observer
	if observer == nil {
		observer = nopObserver{}
	}

	account := NewBootstrapper(deps.Exchange, sess.Wallet, plan.Deposit, deps.Funding, log)
	o := &Orchestrator{
		session:  sess,
		plan:     plan,
		reader:   NewReader(deps.Exchange, log),
		slippage: NewEstimator(deps.Exchange, plan.Policy, log),
		account:  account,
		position: NewController(deps.Exchange, account, log),
		reporter: reporter,
		observer: observer,
		log:      log,
		state:    StateInit,
		report: Report{
			RunID:      sess.RunID,
			Wallet:     sess.Wallet.String(),
			FinalState: StateInit,
		},
	}
	if v, ok := deps.Exchange.(ports.AccountViewer); ok {
		o.viewer = v
	}
	o.steps = map[State]transition{
		StateInit:              o.resolveMarket,
		StateMarketResolved:    o.readPrice,
		StatePriceRead:         o.estimateSlippage,
		StateSlippageEstimated: o.bootstrapAccount,
		StateAccountReady:      o.open,
		StateOpened:            o.reduce,
		StateReduced:           o.close,
	}
	return o, nil
}

// State 当前状态
func (o *Orchestrator) State() State {
	return o.state
}

// Report 当前报告快照
func (o *Orchestrator) Report() Report {
	r := o.report
	r.Transactions = append([]StepTx(nil), o.report.Transactions...)
	if o.report.Account != nil {
		acct := *o.report.Account
		r.Account = &acct
	}
	return r
}

// Step 执行当前状态的一次迁移（单步超时由 plan.StepTimeout 约束）
func (o *Orchestrator) Step(ctx context.Context) (State, error) {
	fn, ok := o.steps[o.state]
	if !ok {
		return o.state, fmt.Errorf("%w: no transition from %s", ErrInvalidTransition, o.state)
	}
	step := stepNames[o.state]

	// 已取消的 ctx 不再触达交易所
	if err := ctx.Err(); err != nil {
		o.observer.ObserveStep(step, 0, err)
		o.fail(step, err)
		return o.state, err
	}

	stepCtx, cancel := o.stepContext(ctx)
	defer cancel()

	started := time.Now()
	next, err := fn(stepCtx)
	o.observer.ObserveStep(step, time.Since(started), err)
	if err != nil {
		o.fail(step, err)
		return o.state, err
	}
	o.state = next
	o.report.FinalState = next
	return next, nil
}

// Run 从当前状态跑到 CLOSED 或第一个失败
func (o *Orchestrator) Run(ctx context.Context) (Report, error) {
	o.report.StartedAt = time.Now()

	for o.state != StateClosed {
		if _, err := o.Step(ctx); err != nil {
			o.report.FinishedAt = time.Now()
			return o.Report(), err
		}
	}
	o.snapshotAccount(ctx)
	o.report.FinishedAt = time.Now()
	return o.Report(), nil
}

func (o *Orchestrator) fail(step string, err error) {
	o.log.WithField("step", step).WithError(err).Error("会话步骤失败")
	o.report.FailedStep = step
	o.report.Err = err
	o.state = StateFailed
	o.report.FinalState = StateFailed
}

// snapshotAccount 平仓后读取账户保证金与仓位写入报告；失败只告警，不影响运行结果
func (o *Orchestrator) snapshotAccount(ctx context.Context) {
	if o.viewer == nil || ctx.Err() != nil {
		return
	}
	viewCtx, cancel := o.stepContext(ctx)
	defer cancel()
	snap, err := o.viewer.AccountSnapshot(viewCtx, o.session.Wallet, o.market.Index)
	if err != nil {
		o.log.WithError(err).Warn("读取账户视图失败")
		return
	}
	o.report.Account = &snap
	o.log.WithFields(logrus.Fields{
		"collateral": snap.Collateral.String(),
		"base":       snap.PositionBase.String(),
	}).Info("账户视图")
}

func (o *Orchestrator) stepContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.plan.StepTimeout > 0 {
		return context.WithTimeout(ctx, o.plan.StepTimeout)
	}
	return context.WithCancel(ctx)
}

func (o *Orchestrator) resolveMarket(ctx context.Context) (State, error) {
	m, err := o.reader.ResolveMarket(ctx, o.plan.Symbol)
	if err != nil {
		return StateFailed, err
	}
	o.market = m
	o.report.Market = m
	return StateMarketResolved, nil
}

func (o *Orchestrator) readPrice(ctx context.Context) (State, error) {
	p, err := o.reader.CurrentPrice(ctx, o.market)
	if err != nil {
		return StateFailed, err
	}
	o.report.MarkPrice = p
	o.reporter.MarkPrice(o.market, p)
	return StatePriceRead, nil
}

func (o *Orchestrator) estimateSlippage(ctx context.Context) (State, error) {
	est, err := o.slippage.EstimateSlippage(ctx, o.plan.Direction, o.plan.ProbeNotional, o.market)
	if err != nil {
		return StateFailed, err
	}
	o.report.Slippage = est
	o.reporter.Slippage(est)
	if err := o.slippage.Check(est); err != nil {
		return StateFailed, err
	}
	return StateSlippageEstimated, nil
}

func (o *Orchestrator) bootstrapAccount(ctx context.Context) (State, error) {
	if err := o.account.Run(ctx); err != nil {
		return StateFailed, err
	}
	tx, created := o.account.Created()
	o.report.AccountCreated = created
	if created {
		o.report.Transactions = append(o.report.Transactions, StepTx{Step: "deposit", Signature: tx.Signature})
	}
	o.reporter.AccountReady(created, tx)
	return StateAccountReady, nil
}

func (o *Orchestrator) open(ctx context.Context) (State, error) {
	tx, err := o.position.Open(ctx, o.plan.Direction, o.plan.OpenNotional, o.market)
	if err != nil {
		return StateFailed, err
	}
	o.recordTrade("open", domain.TradeIntent{Direction: o.plan.Direction, Notional: o.plan.OpenNotional, Market: o.market}, tx)
	return StateOpened, nil
}

func (o *Orchestrator) reduce(ctx context.Context) (State, error) {
	dir := o.plan.Direction.Opposite()
	tx, err := o.position.Reduce(ctx, dir, o.plan.ReduceNotional, o.market)
	if err != nil {
		return StateFailed, err
	}
	o.recordTrade("reduce", domain.TradeIntent{Direction: dir, Notional: o.plan.ReduceNotional, Market: o.market}, tx)
	return StateReduced, nil
}

func (o *Orchestrator) close(ctx context.Context) (State, error) {
	tx, err := o.position.Close(ctx, o.market)
	if err != nil {
		return StateFailed, err
	}
	o.report.Transactions = append(o.report.Transactions, StepTx{Step: "close", Signature: tx.Signature})
	o.reporter.PositionClosed(o.market, tx)
	return StateClosed, nil
}

func (o *Orchestrator) recordTrade(op string, intent domain.TradeIntent, tx domain.TxResult) {
	o.report.Transactions = append(o.report.Transactions, StepTx{Step: op, Signature: tx.Signature})
	o.reporter.PositionChanged(op, intent, tx)
}
