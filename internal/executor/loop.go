package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/copybot/clob/types"
	"github.com/betbot/copybot/internal/domain"
	"github.com/betbot/copybot/internal/risk"
	"github.com/betbot/copybot/pkg/fetch"
)

// loopState 一次下单循环的重试状态
type loopState struct {
	retry      int
	abortFunds bool
	paused     bool
	lastReason string
}

func (st *loopState) done() bool {
	return st.abortFunds || st.paused
}

// rejectionFromError 把读/写失败转成分类器输入
func rejectionFromError(err error) risk.Rejection {
	var he *fetch.HTTPError
	if errors.As(err, &he) {
		return risk.Rejection{
			Status:     he.Status,
			StatusText: he.StatusText,
			Message:    string(he.Body),
			Body:       string(he.Body),
		}
	}
	return risk.Rejection{Err: err}
}

func rejectionFromResponse(resp *types.OrderResponse) risk.Rejection {
	return risk.Rejection{
		Status:     resp.Status,
		StatusText: resp.StatusText,
		Message:    resp.ErrorMsg,
		Body:       resp.Body,
	}
}

// handleRejection 拦截交给断路器并退避；余额不足直接放弃；其余消耗一次重试
func (e *Engine) handleRejection(ctx context.Context, log *logrus.Entry, st *loopState, rej risk.Rejection) error {
	cls := e.classifier(rej)
	if cls.Kind == risk.KindVenueBlock {
		e.observer.BlockSignal()
		paused, _ := e.breaker.RecordBlock()
		if paused {
			st.paused = true
			st.lastReason = "venue block"
			return nil
		}
		d := e.breaker.Backoff(st.retry)
		log.Warnf("拦截退避 %v 后重试", d.Round(100*time.Millisecond))
		if err := e.pacer.Clock().Sleep(ctx, d); err != nil {
			return err
		}
		st.retry++
		st.lastReason = "venue block"
		return nil
	}

	e.breaker.RecordNonBlock()
	if cls.InsufficientFunds {
		st.abortFunds = true
		st.lastReason = cls.Reason
		log.Warnf("下单被拒（余额或授权不足）: %s，放弃剩余尝试", cls.Reason)
		return nil
	}
	st.retry++
	st.lastReason = cls.Reason
	log.Warnf("下单失败 (第 %d/%d 次) [%s]: %s", st.retry, e.cfg.RetryLimit, cls.Kind, cls.Reason)
	return nil
}

// book 拉取订单簿；失败时按拒单处理并返回 nil
func (e *Engine) book(ctx context.Context, log *logrus.Entry, st *loopState, tokenID string) (*types.OrderBookSummary, error) {
	book, err := e.exchange.GetOrderBook(ctx, tokenID)
	if err == nil {
		return book, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	log.Warnf("获取订单簿失败: %v", err)
	return nil, e.handleRejection(ctx, log, st, rejectionFromError(err))
}

// place 创建并以 FOK 提交一笔订单，返回是否成交
func (e *Engine) place(ctx context.Context, log *logrus.Entry, st *loopState, args types.MarketOrderArgs) (bool, error) {
	order, err := e.exchange.CreateMarketOrder(ctx, args)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		e.observer.OrderResult(args.Side, "error")
		st.retry++
		st.lastReason = err.Error()
		log.Warnf("创建订单失败 (第 %d/%d 次): %v", st.retry, e.cfg.RetryLimit, err)
		return false, nil
	}

	if err := e.delay(ctx); err != nil {
		return false, err
	}

	resp, err := e.exchange.PostOrder(ctx, order, types.OrderTypeFOK)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		e.observer.OrderResult(args.Side, "error")
		return false, e.handleRejection(ctx, log, st, rejectionFromError(err))
	}
	if resp.Success {
		st.retry = 0
		e.breaker.OnSuccess()
		e.observer.OrderResult(args.Side, "success")
		return true, nil
	}
	e.observer.OrderResult(args.Side, "rejected")
	return false, e.handleRejection(ctx, log, st, rejectionFromResponse(resp))
}

// sellLoop 按最优买价分批卖出 amount 个 token
func (e *Engine) sellLoop(ctx context.Context, log *logrus.Entry, tokenID string, amount float64) (sold float64, orders int, st *loopState, stop string, err error) {
	st = &loopState{}
	remaining := amount
	for remaining > 0 && st.retry < e.cfg.RetryLimit {
		if e.breaker.IsPaused() {
			st.paused = true
			break
		}
		if st.retry > 0 {
			if err := e.delay(ctx); err != nil {
				return sold, orders, st, "", err
			}
		}

		book, err := e.book(ctx, log, st, tokenID)
		if err != nil {
			return sold, orders, st, "", err
		}
		if book == nil {
			if st.done() {
				break
			}
			continue
		}
		bid, ok := book.BestBid()
		if !ok {
			stop = "no bids available"
			log.Warn("订单簿没有买单")
			break
		}
		if remaining < e.cfg.MinOrderTokens {
			stop = fmt.Sprintf("remaining %.2f tokens below minimum order size", remaining)
			log.Infof("剩余 %.2f token 低于最小下单量，结束", remaining)
			break
		}
		size := remaining
		if bid.Size < size {
			size = bid.Size
		}
		if size < e.cfg.MinOrderTokens {
			stop = fmt.Sprintf("best bid %.2f tokens below minimum order size", size)
			log.Infof("最优买单仅 %.2f token，低于最小下单量，结束", size)
			break
		}

		log.Infof("最优买价: %.2f @ $%.4f", bid.Size, bid.Price)
		filled, err := e.place(ctx, log, st, types.MarketOrderArgs{
			TokenID:  tokenID,
			Side:     types.SideSell,
			Amount:   size,
			Price:    bid.Price,
			TickSize: book.Tick(),
			NegRisk:  book.NegRisk,
		})
		if err != nil {
			return sold, orders, st, "", err
		}
		if filled {
			sold += size
			remaining -= size
			orders++
			log.Infof("✅ 卖出 %.2f token @ $%.4f", size, bid.Price)
			if remaining > 0 {
				if err := e.delay(ctx); err != nil {
					return sold, orders, st, "", err
				}
			}
			continue
		}
		if st.done() {
			break
		}
	}
	return sold, orders, st, stop, nil
}

// finish 汇总终态
func (e *Engine) finish(st *loopState, filled float64, orders int, stop string) Result {
	res := Result{Filled: filled, Orders: orders}
	switch {
	case st.paused:
		res.Status = domain.StatusPaused
		res.Reason = "circuit breaker paused after consecutive venue blocks"
		return res
	case st.abortFunds:
		res.RetryCount = e.cfg.RetryLimit
		res.Reason = "insufficient balance or allowance: " + st.lastReason
	case st.retry >= e.cfg.RetryLimit:
		res.RetryCount = st.retry
		res.Reason = fmt.Sprintf("retry budget exhausted after %d attempts: %s", st.retry, st.lastReason)
	case stop != "":
		res.Reason = stop
	}
	// 没有任何成交不算执行
	if filled > 0 {
		res.Status = domain.StatusExecuted
		return res
	}
	res.Status = domain.StatusSkipped
	if res.Reason == "" {
		res.Reason = "no orders filled"
	}
	return res
}
