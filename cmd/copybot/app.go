package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/copybot/clob/client"
	"github.com/betbot/copybot/clob/types"
	"github.com/betbot/copybot/internal/executor"
	"github.com/betbot/copybot/internal/ledger"
	"github.com/betbot/copybot/internal/metrics"
	"github.com/betbot/copybot/internal/positions"
	"github.com/betbot/copybot/internal/risk"
	"github.com/betbot/copybot/internal/storage"
	"github.com/betbot/copybot/pkg/config"
	"github.com/betbot/copybot/pkg/fetch"
	"github.com/betbot/copybot/pkg/logger"
	"github.com/betbot/copybot/pkg/pacing"
	"github.com/betbot/copybot/pkg/proxy"
	"github.com/betbot/copybot/pkg/ratelimit"
)

// readStack 所有读请求共用的限流、延迟、代理与重试
type readStack struct {
	limiter *ratelimit.SlidingWindow
	rotator *proxy.Rotator
	pacer   *pacing.Pacer
	reads   *fetch.Client
}

func newReadStack(cfg *config.Config, m *metrics.Metrics) (*readStack, error) {
	pool, err := proxy.ParseList(cfg.Evasion.Proxies)
	if err != nil {
		return nil, err
	}
	rs := &readStack{
		limiter: ratelimit.NewSlidingWindow(cfg.Evasion.RateLimit, cfg.Evasion.Window(),
			ratelimit.WithLogger(logger.Component("ratelimit"))),
		rotator: proxy.NewRotator(pool,
			proxy.WithRotationInterval(minutes(cfg.Evasion.RotationMinutes)),
			proxy.WithReuseCooldown(minutes(cfg.Evasion.CooldownMinutes)),
			proxy.WithLogger(logger.Component("proxy"))),
		pacer: pacing.New(pacing.WithLogger(logger.Component("pacing"))),
	}
	fcfg := fetch.DefaultConfig()
	fcfg.Evasion = cfg.Evasion.Enabled
	fcfg.MaxAttempts = cfg.NetworkRetryLimit
	fcfg.Timeout = cfg.RequestTimeout()

	var opts []fetch.Option
	opts = append(opts, fetch.WithLogger(logger.Component("fetch")))
	if m != nil {
		opts = append(opts, fetch.WithRetryHook(m.FetchRetry))
	}
	rs.reads = fetch.New(fcfg, rs.limiter, rs.rotator, rs.pacer, opts...)
	return rs, nil
}

// tradingStack 下单所需的全部组件
type tradingStack struct {
	*readStack
	clob      *client.Client
	store     storage.TradeStore
	eth       *ethclient.Client
	positions *positions.Service
	ledger    *ledger.Ledger
	breaker   *risk.CircuitBreaker
	engine    *executor.Engine
	wallet    common.Address
}

func newTradingStack(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (_ *tradingStack, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "配置无效")
	}
	log := logger.Component("app")

	rs, err := newReadStack(cfg, m)
	if err != nil {
		return nil, err
	}
	ts := &tradingStack{readStack: rs, wallet: common.HexToAddress(cfg.Wallet.FunderAddress)}
	defer func() {
		if err != nil {
			ts.Close()
		}
	}()

	pk, err := cfg.Wallet.ResolvePrivateKey()
	if err != nil {
		return nil, err
	}
	chain := types.Chain(cfg.Clob.ChainID)
	ts.clob = client.NewClient(client.Config{
		Host:          cfg.Clob.Host,
		ChainID:       chain,
		SignatureType: types.SignatureType(cfg.Wallet.SignatureType),
		FunderAddress: cfg.Wallet.FunderAddress,
		Timeout:       cfg.RequestTimeout(),
	}, pk, cfg.Clob.Creds(), rs.reads, client.WithLogger(logger.Component("clob")))
	if ts.clob.Creds() == nil {
		creds, err := ts.clob.DeriveAPIKey(ctx, 0)
		if err != nil {
			return nil, errors.Wrap(err, "派生 API 密钥失败")
		}
		ts.clob.SetCreds(creds)
		log.Info("✅ 已派生 CLOB API 密钥")
	}

	collateral, err := client.CollateralAddress(chain)
	if err != nil {
		return nil, err
	}
	ts.eth, err = ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, errors.Wrapf(err, "连接 RPC 失败 %s", cfg.RPCURL)
	}
	ts.positions, err = positions.New(cfg.DataAPI, rs.reads, ts.eth, collateral, logger.Component("positions"))
	if err != nil {
		return nil, err
	}

	ts.store, err = storage.Open(ctx, storage.Options{
		Driver:        storage.Driver(cfg.Storage.Driver),
		DSN:           cfg.Storage.DSN,
		EncryptionKey: cfg.Storage.EncryptionKey,
	})
	if err != nil {
		return nil, errors.Wrap(err, "打开存储失败")
	}
	ts.ledger = ledger.New(ts.store, logger.Component("ledger"))

	breakerOpts := []risk.Option{risk.WithLogger(logger.Component("risk"))}
	if m != nil {
		breakerOpts = append(breakerOpts, risk.WithPauseHook(func(until time.Time) { m.SetPaused(true) }))
	}
	ts.breaker = risk.NewCircuitBreaker(risk.CircuitBreakerConfig{
		Threshold:     cfg.CircuitBreaker.Threshold,
		PauseDuration: minutes(cfg.CircuitBreaker.PauseMinutes),
	}, breakerOpts...)

	ecfg := executor.DefaultConfig()
	ecfg.RetryLimit = cfg.RetryLimit
	ecfg.Strategy = cfg.CopyStrategy
	engineOpts := []executor.Option{executor.WithLogger(logger.Component("executor"))}
	if m != nil {
		engineOpts = append(engineOpts, executor.WithObserver(m))
	}
	ts.engine = executor.New(ecfg, ts.clob, ts.store, ts.ledger, ts.breaker, rs.pacer, engineOpts...)

	log.WithFields(logrus.Fields{
		"wallet":  ts.wallet.Hex(),
		"signer":  ts.clob.Address().Hex(),
		"storage": cfg.Storage.Driver,
		"proxies": rs.rotator.Len(),
		"evasion": cfg.Evasion.Enabled,
	}).Info("组件初始化完成")
	return ts, nil
}

// Close 释放存储与 RPC 连接
func (ts *tradingStack) Close() error {
	if ts.eth != nil {
		ts.eth.Close()
	}
	if ts.store != nil {
		if err := ts.store.Close(); err != nil {
			return fmt.Errorf("关闭存储失败: %w", err)
		}
	}
	return nil
}

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}
