package executor

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/betbot/copybot/internal/domain"
	"github.com/betbot/copybot/internal/ledger"
	"github.com/betbot/copybot/internal/sizing"
)

// SellPlan 卖出数量的计算结果
type SellPlan struct {
	Amount float64
	// Fraction 交易员卖出的仓位比例，全部平仓为 1
	Fraction  float64
	FullExit  bool
	Tracked   bool
	Reasoning string
}

// PlanSell 计算跟随卖出的 token 数量（未做最小值与持仓上限处理）。
// traderPos 为交易员卖出后的剩余持仓，nil 或 0 视为全部平仓。
func PlanSell(cfg sizing.StrategyConfig, ev domain.TradeEvent, ownSize float64, traderPos *domain.OwnPosition, tracked float64) SellPlan {
	base := ownSize
	p := SellPlan{Tracked: tracked > 0}
	if p.Tracked {
		base = tracked
	}

	if traderPos == nil || traderPos.Size <= 0 {
		p.FullExit = true
		p.Fraction = 1
		p.Amount = base
		p.Reasoning = fmt.Sprintf("交易员已全部平仓 → 卖出 %.2f token", base)
		return p
	}

	p.Fraction = ev.Size / (traderPos.Size + ev.Size)
	p.Amount = base * p.Fraction
	p.Reasoning = fmt.Sprintf("%.2f × %.2f%%", base, p.Fraction*100)
	if !p.Tracked {
		p.Reasoning += "（无买入记录，按当前持仓）"
	}
	if m := sizing.Multiplier(cfg, ev.USDCSize); m != 1 {
		p.Amount *= m
		p.Reasoning += fmt.Sprintf(" × %.2fx", m)
	}
	p.Reasoning += fmt.Sprintf(" = %.2f token", p.Amount)
	return p
}

// sell 跟随卖出，完成后按卖出比例更新购买台账
func (e *Engine) sell(ctx context.Context, log *logrus.Entry, req Request) (Result, error) {
	own := req.OwnPosition
	if own == nil || own.Size <= 0 {
		log.Warn("没有可卖持仓")
		return Result{Status: domain.StatusSkipped, Reason: "no position to sell"}, nil
	}
	ev := req.Event
	inst := ev.Instrument()
	unlock := e.ledger.Lock(inst)
	defer unlock()

	entries, err := e.ledger.Entries(ctx, inst)
	if err != nil {
		return Result{}, err
	}
	tracked := ledger.TrackedQuantity(entries)
	plan := PlanSell(e.cfg.Strategy, ev, own.Size, req.TraderPosition, tracked)
	if plan.Tracked {
		log.Infof("📊 %d 条买入记录，共 %.2f token", len(entries), tracked)
	}
	log.Info(plan.Reasoning)

	amount := plan.Amount
	if amount < e.cfg.MinOrderTokens {
		reason := fmt.Sprintf("sell amount %.2f tokens below minimum %.0f", amount, e.cfg.MinOrderTokens)
		log.Warn(reason)
		return Result{Status: domain.StatusSkipped, Reason: reason}, nil
	}
	if amount > own.Size {
		log.Warnf("计算卖出 %.2f > 持仓 %.2f，按持仓卖出", amount, own.Size)
		amount = own.Size
	}

	sold, orders, st, stop, err := e.sellLoop(ctx, log, ev.Asset, amount)
	if err != nil {
		return Result{}, err
	}

	if sold > 0 && tracked > 0 {
		if err := e.ledger.ApplySell(ctx, entries, sold/tracked); err != nil {
			// 订单已成交，台账更新失败不能让事件被重复执行
			log.Errorf("更新台账失败: %v", err)
		}
	}
	return e.finish(st, sold, orders, stop), nil
}

// merge 卖出自己在该标的上的全部持仓
func (e *Engine) merge(ctx context.Context, log *logrus.Entry, req Request) (Result, error) {
	own := req.OwnPosition
	if own == nil {
		log.Warn("没有可合并的持仓")
		return Result{Status: domain.StatusSkipped, Reason: "no position to merge"}, nil
	}
	if own.Size < e.cfg.MinOrderTokens {
		reason := fmt.Sprintf("position %.2f tokens too small to merge", own.Size)
		log.Warn(reason)
		return Result{Status: domain.StatusSkipped, Reason: reason}, nil
	}
	sold, orders, st, stop, err := e.sellLoop(ctx, log, own.Asset, own.Size)
	if err != nil {
		return Result{}, err
	}
	return e.finish(st, sold, orders, stop), nil
}
