// Package executor 是单条跟单事件的执行状态机（merge / buy / sell）。
//
// 每条事件无论结果如何都只 MarkHandled 一次；连续拦截由断路器接管并进入全局冷却，
// 余额/授权不足立即放弃，其余拒单消耗有限的重试预算。
package executor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/copybot/clob/types"
	"github.com/betbot/copybot/internal/domain"
	"github.com/betbot/copybot/internal/ledger"
	"github.com/betbot/copybot/internal/risk"
	"github.com/betbot/copybot/internal/sizing"
	"github.com/betbot/copybot/internal/storage"
	"github.com/betbot/copybot/pkg/pacing"
)

// Exchange 交易所下单能力（签名在内部完成）
type Exchange interface {
	GetOrderBook(ctx context.Context, tokenID string) (*types.OrderBookSummary, error)
	CreateMarketOrder(ctx context.Context, args types.MarketOrderArgs) (*types.SignedOrder, error)
	PostOrder(ctx context.Context, order *types.SignedOrder, orderType types.OrderType) (*types.OrderResponse, error)
}

// RecordStore 事件记录的终态写入
type RecordStore interface {
	MarkHandled(ctx context.Context, id string, upd storage.HandledUpdate) error
}

// Observer 执行过程的统计回调
type Observer interface {
	OrderResult(side types.Side, result string)
	EventFinished(cond domain.Condition, status domain.Status)
	BlockSignal()
}

type nopObserver struct{}

func (nopObserver) OrderResult(types.Side, string)                {}
func (nopObserver) EventFinished(domain.Condition, domain.Status) {}
func (nopObserver) BlockSignal()                                  {}

// Config 执行参数
type Config struct {
	// RetryLimit 单条事件的重试预算
	RetryLimit int
	Strategy   sizing.StrategyConfig
	// SlippageTolerance 最优卖价高出跟单价格超过该值则放弃
	SlippageTolerance float64
	MinOrderUSD       float64
	MinOrderTokens    float64
	// RetryDelay/RetryJitter 重新拉取订单簿及下单前的随机等待
	RetryDelay  time.Duration
	RetryJitter time.Duration
	// SellAllSpacing/SellAllJitter 一键清仓时订单之间的间隔
	SellAllSpacing time.Duration
	SellAllJitter  time.Duration
}

// DefaultConfig 默认参数
func DefaultConfig() Config {
	return Config{
		RetryLimit:        3,
		Strategy:          sizing.DefaultStrategyConfig(),
		SlippageTolerance: 0.05,
		MinOrderUSD:       1,
		MinOrderTokens:    1,
		RetryDelay:        time.Second,
		RetryJitter:       500 * time.Millisecond,
		SellAllSpacing:    2 * time.Second,
		SellAllJitter:     time.Second,
	}
}

// Request 一次执行的输入
type Request struct {
	Condition domain.Condition
	Event     domain.TradeEvent
	// OwnPosition 自己在该标的上的持仓，nil 表示没有
	OwnPosition *domain.OwnPosition
	// TraderPosition 交易员卖出后的剩余持仓，nil 表示已全部平仓
	TraderPosition *domain.OwnPosition
	OwnBalance     float64
}

// Result 终态
type Result struct {
	RunID      string
	Status     domain.Status
	Reason     string
	RetryCount int
	// Filled BUY 为买入 token 数，SELL/MERGE 为卖出 token 数
	Filled float64
	Orders int
}

// Engine 执行引擎
type Engine struct {
	cfg        Config
	exchange   Exchange
	store      RecordStore
	ledger     *ledger.Ledger
	breaker    *risk.CircuitBreaker
	classifier risk.Classifier
	pacer      *pacing.Pacer
	observer   Observer
	log        *logrus.Entry
}

type Option func(*Engine)

func WithClassifier(c risk.Classifier) Option {
	return func(e *Engine) { e.classifier = c }
}

func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

func WithLogger(l *logrus.Entry) Option {
	return func(e *Engine) { e.log = l }
}

// New 创建执行引擎
func New(cfg Config, exchange Exchange, store RecordStore, l *ledger.Ledger, breaker *risk.CircuitBreaker, pacer *pacing.Pacer, opts ...Option) *Engine {
	def := DefaultConfig()
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = def.RetryLimit
	}
	if cfg.SlippageTolerance <= 0 {
		cfg.SlippageTolerance = def.SlippageTolerance
	}
	if cfg.MinOrderUSD <= 0 {
		cfg.MinOrderUSD = def.MinOrderUSD
	}
	if cfg.MinOrderTokens <= 0 {
		cfg.MinOrderTokens = def.MinOrderTokens
	}
	if pacer == nil {
		pacer = pacing.New()
	}
	e := &Engine{
		cfg:        cfg,
		exchange:   exchange,
		store:      store,
		ledger:     l,
		breaker:    breaker,
		classifier: risk.DefaultClassifier,
		pacer:      pacer,
		observer:   nopObserver{},
		log:        logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, o := range opts {
		o(e)
	}
	e.log = e.log.WithField("component", "executor")
	return e
}

// Breaker 返回引擎使用的断路器
func (e *Engine) Breaker() *risk.CircuitBreaker {
	return e.breaker
}

// Execute 执行一条事件并写入终态。ctx 取消时不写入任何状态，直接返回 ctx.Err()。
func (e *Engine) Execute(ctx context.Context, req Request) (Result, error) {
	log := e.log.WithFields(logrus.Fields{
		"event":     req.Event.ID,
		"condition": req.Condition,
		"asset":     req.Event.Asset,
	})
	runID := uuid.NewString()

	var (
		res       Result
		ownBought *float64
		err       error
	)
	if err := e.breaker.AllowTrading(); err != nil {
		log.Warnf("⏸️ 冷却中，剩余 %v，跳过事件", e.breaker.PauseRemaining().Round(time.Second))
		res = Result{Status: domain.StatusPaused, Reason: err.Error()}
	} else {
		switch req.Condition {
		case domain.ConditionMerge:
			res, err = e.merge(ctx, log, req)
		case domain.ConditionBuy:
			res, ownBought, err = e.buy(ctx, log, req)
		case domain.ConditionSell:
			res, err = e.sell(ctx, log, req)
		default:
			res = Result{Status: domain.StatusSkipped, Reason: "unsupported condition " + string(req.Condition)}
		}
	}
	if err != nil {
		return Result{RunID: runID}, err
	}
	res.RunID = runID

	upd := storage.HandledUpdate{
		Status:          res.Status,
		Reason:          res.Reason,
		OwnBoughtTokens: ownBought,
	}
	if res.RetryCount > 0 {
		rc := res.RetryCount
		upd.RetryCount = &rc
	}
	if err := e.store.MarkHandled(ctx, req.Event.ID, upd); err != nil {
		return res, errors.Wrapf(err, "mark handled %s", req.Event.ID)
	}
	e.observer.EventFinished(req.Condition, res.Status)
	log.WithField("run", runID).Infof("事件结束: status=%s reason=%q filled=%.4f orders=%d retries=%d",
		res.Status, res.Reason, res.Filled, res.Orders, res.RetryCount)
	return res, nil
}

// delay 重试/下单前的随机等待
func (e *Engine) delay(ctx context.Context) error {
	return e.pacer.Jitter(ctx, e.cfg.RetryDelay, e.cfg.RetryJitter)
}
