package executor

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/betbot/copybot/clob/types"
	"github.com/betbot/copybot/internal/domain"
	"github.com/betbot/copybot/internal/sizing"
)

// buy 跟随买入：按 sizing 计算金额，按最优卖价分批买入，并把累计买入数量写回记录
func (e *Engine) buy(ctx context.Context, log *logrus.Entry, req Request) (Result, *float64, error) {
	ev := req.Event
	unlock := e.ledger.Lock(ev.Instrument())
	defer unlock()

	log.Infof("余额 $%.2f，交易员买入 $%.2f", req.OwnBalance, ev.USDCSize)
	calc := sizing.Calculate(e.cfg.Strategy, ev.USDCSize, req.OwnBalance, req.OwnPosition.Value())
	log.Infof("📊 %s", calc.Reasoning)
	if calc.FinalAmount == 0 {
		return Result{Status: domain.StatusSkipped, Reason: calc.Reasoning}, nil, nil
	}

	var (
		remaining = calc.FinalAmount
		bought    float64
		orders    int
		stop      string
		st        = &loopState{}
	)
	for remaining > 0 && st.retry < e.cfg.RetryLimit {
		if e.breaker.IsPaused() {
			st.paused = true
			break
		}
		if st.retry > 0 {
			if err := e.delay(ctx); err != nil {
				return Result{}, nil, err
			}
		}

		book, err := e.book(ctx, log, st, ev.Asset)
		if err != nil {
			return Result{}, nil, err
		}
		if book == nil {
			if st.done() {
				break
			}
			continue
		}
		ask, ok := book.BestAsk()
		if !ok {
			stop = "no asks available"
			log.Warn("订单簿没有卖单")
			break
		}
		log.Infof("最优卖价: %.2f @ $%.4f", ask.Size, ask.Price)
		if ask.Price-e.cfg.SlippageTolerance > ev.Price {
			stop = fmt.Sprintf("price slippage too high: best ask %.4f vs copied %.4f", ask.Price, ev.Price)
			log.Warn(stop)
			break
		}
		if remaining < e.cfg.MinOrderUSD {
			stop = fmt.Sprintf("remaining $%.2f below minimum order size", remaining)
			log.Infof("剩余 $%.2f 低于最小下单金额，结束", remaining)
			break
		}

		size := remaining
		if depth := ask.Size * ask.Price; depth < size {
			size = depth
		}
		filled, err := e.place(ctx, log, st, types.MarketOrderArgs{
			TokenID:  ev.Asset,
			Side:     types.SideBuy,
			Amount:   size,
			Price:    ask.Price,
			TickSize: book.Tick(),
			NegRisk:  book.NegRisk,
		})
		if err != nil {
			return Result{}, nil, err
		}
		if filled {
			tokens := size / ask.Price
			bought += tokens
			remaining -= size
			orders++
			log.Infof("✅ 买入 $%.2f @ $%.4f (%.2f token)", size, ask.Price, tokens)
			if remaining > 0 {
				if err := e.delay(ctx); err != nil {
					return Result{}, nil, err
				}
			}
			continue
		}
		if st.done() {
			break
		}
	}

	if bought > 0 {
		log.Infof("📝 记录买入 %.2f token，供后续卖出计算", bought)
	}
	return e.finish(st, bought, orders, stop), &bought, nil
}
