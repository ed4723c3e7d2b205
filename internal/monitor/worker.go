package monitor

import (
	"context"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/betbot/copybot/internal/domain"
	"github.com/betbot/copybot/internal/executor"
	"github.com/betbot/copybot/internal/storage"
)

// Executor 执行引擎
type Executor interface {
	Execute(ctx context.Context, req executor.Request) (executor.Result, error)
}

// Positions 持仓与余额
type Positions interface {
	Positions(ctx context.Context, user string) ([]domain.OwnPosition, error)
	Balance(ctx context.Context, wallet common.Address) (float64, error)
}

// QueueStore worker 需要的存储能力
type QueueStore interface {
	ListUnhandled(ctx context.Context, limit int) ([]domain.TradeRecord, error)
	MarkHandled(ctx context.Context, id string, upd storage.HandledUpdate) error
}

// Worker 串行消费未处理事件
type Worker struct {
	store     QueueStore
	exec      Executor
	positions Positions
	wallet    common.Address
	batch     int
	log       *logrus.Entry
}

// NewWorker wallet 为自己的（代理）钱包地址
func NewWorker(store QueueStore, exec Executor, positions Positions, wallet common.Address, log *logrus.Entry) *Worker {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Worker{
		store:     store,
		exec:      exec,
		positions: positions,
		wallet:    wallet,
		batch:     50,
		log:       log.WithField("component", "worker"),
	}
}

// DrainOnce 按时间顺序处理一批事件，返回已处理数量
func (w *Worker) DrainOnce(ctx context.Context) (int, error) {
	recs, err := w.store.ListUnhandled(ctx, w.batch)
	if err != nil {
		return 0, err
	}
	if len(recs) == 0 {
		return 0, nil
	}

	own, err := w.positions.Positions(ctx, w.wallet.Hex())
	if err != nil {
		return 0, err
	}
	balance, err := w.positions.Balance(ctx, w.wallet)
	if err != nil {
		return 0, err
	}
	traderPositions := make(map[string][]domain.OwnPosition)

	done := 0
	for _, rec := range recs {
		cond, ok := domain.ConditionFor(rec.TradeEvent)
		if !ok {
			if err := w.store.MarkHandled(ctx, rec.ID, storage.HandledUpdate{
				Status: domain.StatusSkipped,
				Reason: "unsupported activity " + string(rec.Type),
			}); err != nil {
				return done, err
			}
			done++
			continue
		}

		trader := strings.ToLower(rec.Trader)
		tp, ok := traderPositions[trader]
		if !ok && trader != "" {
			tp, err = w.positions.Positions(ctx, trader)
			if err != nil {
				return done, err
			}
			traderPositions[trader] = tp
		}

		inst := rec.Instrument()
		req := executor.Request{
			Condition:      cond,
			Event:          rec.TradeEvent,
			OwnPosition:    domain.FindPosition(own, inst),
			TraderPosition: domain.FindPosition(tp, inst),
			OwnBalance:     balance,
		}
		res, err := w.exec.Execute(ctx, req)
		if err != nil {
			return done, err
		}
		done++
		if res.Filled > 0 {
			// 成交后持仓和余额已变化，下一条重新拉取
			if own, err = w.positions.Positions(ctx, w.wallet.Hex()); err != nil {
				return done, err
			}
			if balance, err = w.positions.Balance(ctx, w.wallet); err != nil {
				return done, err
			}
		}
	}
	return done, nil
}

// Run 收到唤醒或每隔 interval 处理一次
func (w *Worker) Run(ctx context.Context, wake <-chan struct{}, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if n, err := w.DrainOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.log.Errorf("处理事件失败: %v", err)
		} else if n > 0 {
			w.log.Debugf("本轮处理 %d 条事件", n)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-wake:
		case <-ticker.C:
		}
	}
}
