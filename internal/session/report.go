package session

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"

	"github.com/betbot/perpsession/internal/domain"
)

// StepTx 某一步确认的交易
type StepTx struct {
	Step      string
	Signature string
}

// Report 一次运行的结果
type Report struct {
	RunID          string
	Wallet         string
	Market         domain.Market
	MarkPrice      domain.Price
	Slippage       domain.SlippageEstimate
	AccountCreated bool
	Account        *domain.AccountSnapshot // 平仓后的账户视图；交易所不提供时为 nil
	Transactions   []StepTx
	FinalState     State
	FailedStep     string
	Err            error
	StartedAt      time.Time
	FinishedAt     time.Time
}

// Duration 运行耗时
func (r Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Reporter 人类可读状态输出
type Reporter interface {
	MarkPrice(market domain.Market, price domain.Price)
	Slippage(est domain.SlippageEstimate)
	AccountReady(created bool, tx domain.TxResult)
	PositionChanged(op string, intent domain.TradeIntent, tx domain.TxResult)
	PositionClosed(market domain.Market, tx domain.TxResult)
}

// LogReporter 通过 logrus 输出
type LogReporter struct {
	log *logrus.Entry
}

func NewLogReporter(log *logrus.Entry) *LogReporter {
	return &LogReporter{log: log}
}

func (r *LogReporter) MarkPrice(market domain.Market, price domain.Price) {
	r.log.Infof("Current Market Price is $%s", price)
}

func (r *LogReporter) Slippage(est domain.SlippageEstimate) {
	r.log.Infof("Slippage for a $%s %s on the %s market would be $%s (%s%%)",
		est.Intent.Notional.ToDecimal().StringFixed(0), est.Intent.Direction, est.Intent.Market.Symbol,
		est.Slippage, est.Pct.StringFixed(4))
}

func (r *LogReporter) AccountReady(created bool, tx domain.TxResult) {
	if created {
		r.log.WithField("tx", tx.Signature).Info("Initialized user account and deposited collateral")
		return
	}
	r.log.Info("User account already exists")
}

// PositionChanged 开仓输出 "LONGED $5000 worth of SOL"，反向减仓输出 "SHORTED ..."
func (r *LogReporter) PositionChanged(op string, intent domain.TradeIntent, tx domain.TxResult) {
	r.log.WithFields(logrus.Fields{"op": op, "tx": tx.Signature}).Infof("%sED $%s worth of %s",
		intent.Direction, intent.Notional.ToDecimal().StringFixed(0), intent.Market.Symbol)
}

func (r *LogReporter) PositionClosed(market domain.Market, tx domain.TxResult) {
	r.log.WithField("tx", tx.Signature).Infof("Closed %s position", market.Symbol)
}

var (
	summaryBox   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	summaryTitle = lipgloss.NewStyle().Bold(true)
	summaryOK    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	summaryFail  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// RenderSummary 运行结束后的汇总框
func RenderSummary(w io.Writer, r Report) error {
	status := summaryOK.Render(string(r.FinalState))
	if r.Err != nil {
		status = summaryFail.Render(fmt.Sprintf("%s @ %s", r.FinalState, r.FailedStep))
	}

	lines := []string{
		summaryTitle.Render("perp session " + r.RunID),
		fmt.Sprintf("wallet    %s", r.Wallet),
		fmt.Sprintf("market    %s", r.Market),
		fmt.Sprintf("mark      $%s", r.MarkPrice),
		fmt.Sprintf("slippage  $%s (%s%%)", r.Slippage.Slippage, r.Slippage.Pct.StringFixed(4)),
		fmt.Sprintf("created   %v", r.AccountCreated),
	}
	for _, tx := range r.Transactions {
		lines = append(lines, fmt.Sprintf("%-9s %s", tx.Step, tx.Signature))
	}
	if a := r.Account; a != nil {
		lines = append(lines,
			fmt.Sprintf("margin    $%s", a.Collateral.StringFixed(2)),
			fmt.Sprintf("position  %s (%s)", a.PositionBase.StringFixed(4), a.PositionQuote.StringFixed(2)))
	}
	lines = append(lines, fmt.Sprintf("state     %s", status), fmt.Sprintf("elapsed   %s", r.Duration().Round(time.Millisecond)))
	if r.Err != nil {
		lines = append(lines, fmt.Sprintf("error     %v", r.Err))
	}

	_, err := fmt.Fprintln(w, summaryBox.Render(strings.Join(lines, "\n")))
	return err
}
