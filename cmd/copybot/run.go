package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/betbot/copybot/clob/rtds"
	"github.com/betbot/copybot/internal/api"
	"github.com/betbot/copybot/internal/metrics"
	"github.com/betbot/copybot/internal/monitor"
	"github.com/betbot/copybot/pkg/clock"
	"github.com/betbot/copybot/pkg/logger"
	"github.com/betbot/copybot/pkg/shutdown"
	"github.com/betbot/copybot/pkg/syncgroup"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Monitor tracked traders and mirror their trades",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context(), opts)
		},
	}
}

func runBot(parent context.Context, opts *rootOptions) error {
	cfg := opts.cfg
	log := logger.Component("main")

	m := metrics.New()
	ts, err := newTradingStack(parent, cfg, m)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	mgr := shutdown.NewManager(logger.Component("shutdown"))
	mgr.OnShutdown("storage", func(context.Context) error { return ts.Close() })

	srv := api.New(api.Deps{
		Breaker: ts.breaker,
		Window:  ts.limiter,
		Proxies: ts.rotator,
		Store:   ts.store,
		Metrics: m,
		Log:     logger.Component("api"),
	})
	if cfg.MetricsAddr != "" {
		httpSrv, err := srv.StartAsync(ctx, cfg.MetricsAddr)
		if err != nil {
			_ = ts.Close()
			return err
		}
		mgr.OnShutdown("api", httpSrv.Shutdown)
	}

	mon := monitor.New(monitor.Config{
		Traders:      cfg.Traders,
		PollInterval: cfg.Monitor.PollInterval(),
		TooOld:       cfg.Monitor.TooOld(),
		Limit:        100,
	}, monitor.NewActivityClient(cfg.DataAPI, ts.reads), ts.store, clock.Real{}, logger.Component("monitor"))
	worker := monitor.NewWorker(ts.store, ts.engine, ts.positions, ts.wallet, logger.Component("worker"))

	group := syncgroup.NewSyncGroup(log)
	group.Add("monitor", mon.Run)
	group.Add("worker", func(ctx context.Context) error {
		return worker.Run(ctx, mon.Inserted(), cfg.Monitor.PollInterval())
	})
	if cfg.Monitor.RTDS {
		rcfg := rtds.DefaultClientConfig()
		if cfg.Evasion.Enabled {
			if id := ts.rotator.Peek(); id != nil {
				rcfg.ProxyURL = id.URL().String()
			}
		}
		rc := rtds.NewClient(rcfg, mon.HandleRTDS, logger.Component("rtds"))
		// 尚未连接时只记录订阅，不会出错
		_ = rc.Subscribe(rtds.Subscription{Topic: rtds.TopicActivity, Type: rtds.TypeTrades})
		group.Add("rtds", rc.Run)
	}

	go func() {
		if sig := shutdown.WaitForSignal(ctx); sig != nil {
			log.Infof("收到信号 %v，准备退出", sig)
		}
		cancel()
	}()

	log.Infof("🚀 copybot 启动，跟踪 %d 个交易员", len(cfg.Traders))
	group.Run(ctx)
	runErr := group.Wait()
	cancel()

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if failed := mgr.Shutdown(shutdownCtx); failed > 0 {
		log.Warnf("%d 个关闭回调失败", failed)
	}
	return runErr
}
