package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/perpsession/internal/domain"
	"github.com/betbot/perpsession/internal/session"
)

func TestRecorder_Steps(t *testing.T) {
	r := NewRecorder()
	r.ObserveStep("open", 120*time.Millisecond, nil)
	r.ObserveStep("open", 80*time.Millisecond, nil)
	r.ObserveStep("close", time.Second, errors.New("rejected"))

	assert.Equal(t, 2.0, testutil.ToFloat64(r.steps.WithLabelValues("open", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.steps.WithLabelValues("close", "error")))
	assert.Equal(t, 2, testutil.CollectAndCount(r.stepDuration))
}

func TestRecorder_Report(t *testing.T) {
	r := NewRecorder()
	r.ObserveReport(session.Report{
		Market:         domain.Market{Symbol: "SOL"},
		Slippage:       domain.SlippageEstimate{MarkPrice: domain.Price{Raw: 1}, Pct: decimal.RequireFromString("0.25")},
		AccountCreated: true,
		FinalState:     session.StateClosed,
	})
	assert.Equal(t, 0.25, testutil.ToFloat64(r.slippagePct.WithLabelValues("SOL")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.accountCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runSuccess))

	r.ObserveReport(session.Report{FinalState: session.StateFailed})
	assert.Equal(t, 0.0, testutil.ToFloat64(r.runSuccess))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.accountCreated))
}

func TestRecorder_Push(t *testing.T) {
	r := NewRecorder()
	require.NoError(t, r.Push("", "job", nil))

	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotPath = req.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r.ObserveStep("open", time.Millisecond, nil)
	require.NoError(t, r.Push(srv.URL, "perpsession", nil))
	assert.Equal(t, "/metrics/job/perpsession", gotPath)
}

func TestStartAsync_ServesMetrics(t *testing.T) {
	r := NewRecorder()
	r.ObserveStep("read_price", time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, addr, err := StartAsync(ctx, "127.0.0.1:0", r.Registry())
	require.NoError(t, err)

	resp, err := http.Get("http://" + addr.String() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `perpsession_steps_total{result="ok",step="read_price"} 1`), string(body))
}
