package domain

import (
	"testing"

	"github.com/betbot/copybot/clob/types"
)

func TestConditionFor(t *testing.T) {
	cases := []struct {
		ev   TradeEvent
		want Condition
		ok   bool
	}{
		{TradeEvent{Type: ActivityTrade, Side: types.SideBuy}, ConditionBuy, true},
		{TradeEvent{Type: ActivityTrade, Side: types.SideSell}, ConditionSell, true},
		{TradeEvent{Side: types.SideBuy}, ConditionBuy, true},
		{TradeEvent{Type: ActivityMerge}, ConditionMerge, true},
		{TradeEvent{Type: ActivityRedeem}, "", false},
	}
	for _, tc := range cases {
		got, ok := ConditionFor(tc.ev)
		if got != tc.want || ok != tc.ok {
			t.Errorf("ConditionFor(%+v) = %q,%v 期望 %q,%v", tc.ev, got, ok, tc.want, tc.ok)
		}
	}
}

func TestFindPosition(t *testing.T) {
	ps := []OwnPosition{{Asset: "a", ConditionID: "c1", Size: 3, AvgPrice: 0.5}, {Asset: "b", ConditionID: "c2"}}
	p := FindPosition(ps, Instrument{Asset: "a", ConditionID: "c1"})
	if p == nil || p.Value() != 1.5 {
		t.Fatalf("应找到 a 持仓，价值 1.5，实际 %+v", p)
	}
	if FindPosition(ps, Instrument{Asset: "a", ConditionID: "c2"}) != nil {
		t.Fatal("conditionId 不匹配不应返回")
	}
	var nilPos *OwnPosition
	if nilPos.Value() != 0 {
		t.Fatal("nil 持仓价值应为 0")
	}
}
