package executor

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/betbot/copybot/clob/types"
	"github.com/betbot/copybot/internal/domain"
)

// PositionOutcome 一键清仓中单个持仓的结果
type PositionOutcome struct {
	Asset  string  `json:"asset"`
	Title  string  `json:"title,omitempty"`
	Size   float64 `json:"size"`
	Sold   float64 `json:"sold"`
	Price  float64 `json:"price"`
	Reason string  `json:"reason,omitempty"`
}

// SellAllReport 一键清仓汇总
type SellAllReport struct {
	Open     int               `json:"open"`
	Sold     int               `json:"sold"`
	Skipped  int               `json:"skipped"`
	Failed   int               `json:"failed"`
	Outcomes []PositionOutcome `json:"outcomes"`
}

// SellAll 把每个持仓按最优买价以一笔 FOK 卖出，订单之间间隔 2-3 秒
func (e *Engine) SellAll(ctx context.Context, positions []domain.OwnPosition) (SellAllReport, error) {
	var rep SellAllReport
	for i, pos := range positions {
		if pos.Size <= 0 {
			continue
		}
		rep.Open++
		if rep.Open > 1 {
			if err := e.pacer.Jitter(ctx, e.cfg.SellAllSpacing, e.cfg.SellAllJitter); err != nil {
				return rep, err
			}
		}
		out, err := e.sellPosition(ctx, pos)
		if err != nil {
			return rep, err
		}
		switch {
		case out.Sold > 0:
			rep.Sold++
		case out.Reason == "no bids available" || out.Reason == "circuit breaker paused":
			rep.Skipped++
		default:
			rep.Failed++
		}
		rep.Outcomes = append(rep.Outcomes, out)
		e.log.Infof("[%d/%d] %s: sold=%.2f reason=%q", i+1, len(positions), pos.Asset, out.Sold, out.Reason)
	}
	e.log.Infof("清仓完成: 持仓 %d，成功 %d，跳过 %d，失败 %d", rep.Open, rep.Sold, rep.Skipped, rep.Failed)
	return rep, nil
}

func (e *Engine) sellPosition(ctx context.Context, pos domain.OwnPosition) (PositionOutcome, error) {
	out := PositionOutcome{Asset: pos.Asset, Title: pos.Title, Size: pos.Size}
	if e.breaker.IsPaused() {
		out.Reason = "circuit breaker paused"
		return out, nil
	}
	log := e.log.WithFields(logrus.Fields{"asset": pos.Asset, "mode": "sell_all"})
	st := &loopState{}
	book, err := e.book(ctx, log, st, pos.Asset)
	if err != nil {
		return out, err
	}
	if book == nil {
		out.Reason = st.lastReason
		return out, nil
	}
	bid, ok := book.BestBid()
	if !ok {
		out.Reason = "no bids available"
		return out, nil
	}
	size := pos.Size
	if bid.Size < size {
		size = bid.Size
	}
	out.Price = bid.Price

	inst := domain.Instrument{Asset: pos.Asset, ConditionID: pos.ConditionID}
	unlock := e.ledger.Lock(inst)
	defer unlock()

	filled, err := e.place(ctx, log, st, types.MarketOrderArgs{
		TokenID:  pos.Asset,
		Side:     types.SideSell,
		Amount:   size,
		Price:    bid.Price,
		TickSize: book.Tick(),
		NegRisk:  book.NegRisk,
	})
	if err != nil {
		return out, err
	}
	if !filled {
		out.Reason = st.lastReason
		return out, nil
	}
	out.Sold = size

	entries, err := e.ledger.Entries(ctx, inst)
	if err == nil {
		err = e.ledger.ApplySell(ctx, entries, size/pos.Size)
	}
	if err != nil {
		log.Errorf("更新台账失败: %v", err)
	}
	return out, nil
}
