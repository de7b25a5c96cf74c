package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/perpsession/internal/chain"
	"github.com/betbot/perpsession/internal/domain"
	"github.com/betbot/perpsession/internal/exchange/gateway"
	"github.com/betbot/perpsession/internal/exchange/paper"
	"github.com/betbot/perpsession/internal/metrics"
	"github.com/betbot/perpsession/internal/ports"
	"github.com/betbot/perpsession/internal/session"
	"github.com/betbot/perpsession/pkg/config"
	"github.com/betbot/perpsession/pkg/logger"
	"github.com/betbot/perpsession/pkg/persistence"
	"github.com/betbot/perpsession/pkg/shutdown"
	"github.com/betbot/perpsession/pkg/wallet"
)

const (
	balanceTimeout         = 10 * time.Second
	gracefulShutdownPeriod = 10 * time.Second
)

type options struct {
	configPath string
	envFile    string
	out        io.Writer
}

func run(ctx context.Context, opts options) error {
	if err := config.LoadEnvFile(opts.envFile); err != nil {
		return err
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.LoggerConfig()); err != nil {
		return errors.Wrap(err, "初始化日志失败")
	}

	w, err := wallet.Load(cfg.Wallet)
	if err != nil {
		return errors.Wrap(err, "加载钱包失败")
	}
	programID, err := solana.PublicKeyFromBase58(cfg.Exchange.ProgramID)
	if err != nil {
		return errors.Wrapf(err, "program_id 无效: %s", cfg.Exchange.ProgramID)
	}
	mint, err := solana.PublicKeyFromBase58(cfg.Session.CollateralMint)
	if err != nil {
		return errors.Wrapf(err, "collateral_mint 无效: %s", cfg.Session.CollateralMint)
	}
	funding, err := wallet.FundingAddress(w.PublicKey(), mint)
	if err != nil {
		return err
	}

	sess := domain.NewSession(cfg.Network.Env, w.PublicKey(), cfg.Network.RPCURL, programID)
	log := logger.WithFields(logrus.Fields{"run_id": sess.RunID, "env": sess.Env})
	log.WithFields(logrus.Fields{
		"wallet":  sess.Wallet.String(),
		"program": sess.ProgramID.String(),
		"mode":    cfg.Exchange.Mode,
		"funding": funding.String(),
	}).Info("会话已初始化")

	closer := shutdown.NewManager()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulShutdownPeriod)
		defer cancel()
		if err := closer.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("收尾未全部完成")
		}
	}()

	printBalance(ctx, cfg.Network.RPCURL, sess.Wallet, log, closer)

	ex, err := newExchange(cfg, w, log)
	if err != nil {
		return err
	}
	closer.OnShutdown("exchange", func(context.Context) error { return ex.Close() })

	recorder := metrics.NewRecorder()
	if cfg.Metrics.ListenAddr != "" {
		metricsCtx, cancel := context.WithCancel(context.Background())
		_, addr, err := metrics.StartAsync(metricsCtx, cfg.Metrics.ListenAddr, recorder.Registry())
		if err != nil {
			cancel()
			return errors.Wrap(err, "启动 metrics 服务失败")
		}
		closer.OnShutdown("metrics_server", func(context.Context) error { cancel(); return nil })
		log.WithField("addr", addr.String()).Info("metrics 服务已启动")
	}

	orch, err := session.New(sess, session.PlanFromConfig(cfg), session.Dependencies{
		Exchange: ex,
		Funding:  funding,
		Observer: recorder,
		Log:      log,
	})
	if err != nil {
		return err
	}

	report, runErr := orch.Run(ctx)

	recorder.ObserveReport(report)
	closer.OnShutdown("metrics_push", func(context.Context) error {
		return recorder.Push(cfg.Metrics.PushgatewayURL, cfg.Metrics.Job, log)
	})
	if err := session.RenderSummary(opts.out, report); err != nil {
		log.WithError(err).Warn("输出汇总失败")
	}
	if runErr != nil {
		return fmt.Errorf("会话失败于 %s: %w", report.FailedStep, runErr)
	}
	log.Info("会话完成")
	return nil
}

// printBalance 交易前打印钱包 SOL 余额；读取失败只告警，不影响会话
func printBalance(ctx context.Context, endpoint string, owner solana.PublicKey, log *logrus.Entry, closer *shutdown.Manager) {
	ctx, cancel := context.WithTimeout(ctx, balanceTimeout)
	defer cancel()

	client, err := chain.Dial(ctx, endpoint)
	if err != nil {
		log.WithError(err).Warn("无法连接 RPC，跳过余额查询")
		return
	}
	closer.OnShutdown("rpc", func(context.Context) error { client.Close(); return nil })

	sol, err := client.BalanceSOL(ctx, owner)
	if err != nil {
		log.WithError(err).Warn("查询 SOL 余额失败")
		return
	}
	log.Infof("Wallet %s has %s SOL", owner, sol.String())
}

func newExchange(cfg *config.Config, w *wallet.Wallet, log *logrus.Entry) (ports.Exchange, error) {
	switch cfg.Exchange.Mode {
	case config.ModeGateway:
		return gateway.New(gateway.Options{
			BaseURL:           cfg.Exchange.GatewayURL,
			WSURL:             cfg.Exchange.WSURL,
			HTTPTimeout:       cfg.Exchange.HTTPTimeout,
			RequestsPerSecond: cfg.Exchange.RequestsPerSecond,
			Signer:            w,
			Log:               log,
		})
	case config.ModePaper:
		var store persistence.Service = persistence.NewMemoryService()
		if cfg.Paper.StateDir != "" {
			store = persistence.NewJSONFileService(cfg.Paper.StateDir)
		}
		return paper.New(paper.Options{
			Env:            cfg.Network.Env,
			FundingBalance: domain.NewQuote(cfg.Paper.FundingBalance),
			Persistence:    store,
			Log:            log,
		})
	}
	return nil, fmt.Errorf("未知的交易所模式: %s", cfg.Exchange.Mode)
}
