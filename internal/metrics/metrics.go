package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/sirupsen/logrus"

	"github.com/betbot/perpsession/internal/session"
)

// Recorder 会话指标（私有 registry，不污染全局）：
//   - perpsession_steps_total{step,result}     每个步骤的结果计数
//   - perpsession_step_duration_seconds{step}  步骤耗时
//   - perpsession_slippage_pct{market}         最近一次滑点估计
//   - perpsession_account_created_total        建户次数
//   - perpsession_run_success                  最近一次运行是否到达 CLOSED
type Recorder struct {
	registry *prometheus.Registry

	steps          *prometheus.CounterVec
	stepDuration   *prometheus.HistogramVec
	slippagePct    *prometheus.GaugeVec
	accountCreated prometheus.Counter
	runSuccess     prometheus.Gauge
}

var _ session.StepObserver = (*Recorder)(nil)

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		steps: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "perpsession_steps_total", Help: "Session steps by result"},
			[]string{"step", "result"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "perpsession_step_duration_seconds",
				Help:    "Wall time of each session step",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"step"},
		),
		slippagePct: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "perpsession_slippage_pct", Help: "Estimated slippage of the probe trade in percent"},
			[]string{"market"},
		),
		accountCreated: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "perpsession_account_created_total", Help: "Margin accounts created"},
		),
		runSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "perpsession_run_success", Help: "1 if the last run reached CLOSED"},
		),
	}
	r.registry.MustRegister(r.steps, r.stepDuration, r.slippagePct, r.accountCreated, r.runSuccess)
	return r
}

// Registry 供 HTTP 暴露或测试读取
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveStep 实现 session.StepObserver
func (r *Recorder) ObserveStep(step string, elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.steps.WithLabelValues(step, result).Inc()
	r.stepDuration.WithLabelValues(step).Observe(elapsed.Seconds())
}

// ObserveReport 运行结束后记录汇总值
func (r *Recorder) ObserveReport(rep session.Report) {
	if !rep.Slippage.MarkPrice.IsZero() {
		r.slippagePct.WithLabelValues(rep.Market.Symbol).Set(rep.Slippage.Pct.InexactFloat64())
	}
	if rep.AccountCreated {
		r.accountCreated.Inc()
	}
	if rep.FinalState == session.StateClosed {
		r.runSuccess.Set(1)
	} else {
		r.runSuccess.Set(0)
	}
}

// Push 推送到 Pushgateway；url 为空时不做任何事
func (r *Recorder) Push(url, job string, log *logrus.Entry) error {
	if url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(r.registry).Push(); err != nil {
		return err
	}
	if log != nil {
		log.WithField("pushgateway", url).Debug("指标已推送")
	}
	return nil
}
