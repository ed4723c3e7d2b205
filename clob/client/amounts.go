package client

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/betbot/copybot/clob/types"
)

// RoundConfig 各 tick size 下价格/数量/金额的小数位数
type RoundConfig struct {
	Price  int32
	Size   int32
	Amount int32
}

// RoundingConfig tick size → 舍入配置
var RoundingConfig = map[types.TickSize]RoundConfig{
	types.TickSize01:    {Price: 1, Size: 2, Amount: 3},
	types.TickSize001:   {Price: 2, Size: 2, Amount: 4},
	types.TickSize0001:  {Price: 3, Size: 2, Amount: 5},
	types.TickSize00001: {Price: 4, Size: 2, Amount: 6},
}

// decimalPlaces 小数位数（忽略末尾 0）
func decimalPlaces(d decimal.Decimal) int32 {
	s := d.String()
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return int32(len(s) - i - 1)
	}
	return 0
}

// marketOrderAmounts 市价单 maker/taker 金额。
// BUY：maker 付出 amount 美元，taker 得到 amount/price 个 token；
// SELL：maker 付出 amount 个 token，taker 得到 amount×price 美元。
func marketOrderAmounts(side types.Side, amount, price float64, rc RoundConfig) (maker, taker decimal.Decimal) {
	rawPrice := decimal.NewFromFloat(price).Round(rc.Price)
	maker = decimal.NewFromFloat(amount).RoundDown(rc.Size)
	if rawPrice.IsZero() {
		return maker, decimal.Zero
	}
	if side == types.SideBuy {
		taker = maker.Div(rawPrice)
	} else {
		taker = maker.Mul(rawPrice)
	}
	if decimalPlaces(taker) > rc.Amount {
		taker = taker.RoundUp(rc.Amount + 4)
		if decimalPlaces(taker) > rc.Amount {
			taker = taker.RoundDown(rc.Amount)
		}
	}
	return maker, taker
}

// toUnits 转为链上最小单位（6 位小数，向下取整）
func toUnits(d decimal.Decimal) *big.Int {
	return d.Shift(CollateralTokenDecimals).Truncate(0).BigInt()
}
