package types

import "strconv"

// OrderBookSummary 订单簿摘要
type OrderBookSummary struct {
	Market       string         `json:"market"`
	AssetID      string         `json:"asset_id"`
	Timestamp    string         `json:"timestamp"`
	Bids         []OrderSummary `json:"bids"`
	Asks         []OrderSummary `json:"asks"`
	MinOrderSize string         `json:"min_order_size"`
	TickSize     string         `json:"tick_size"`
	NegRisk      bool           `json:"neg_risk"`
	Hash         string         `json:"hash"`
}

// OrderSummary 一档报价
type OrderSummary struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// Level 解析后的一档报价
type Level struct {
	Price float64
	Size  float64
}

func (o OrderSummary) parse() (Level, bool) {
	p, err1 := strconv.ParseFloat(o.Price, 64)
	s, err2 := strconv.ParseFloat(o.Size, 64)
	if err1 != nil || err2 != nil {
		return Level{}, false
	}
	return Level{Price: p, Size: s}, true
}

// BestBid 价格最高的买单；无买单时返回 false
func (b *OrderBookSummary) BestBid() (Level, bool) {
	if b == nil {
		return Level{}, false
	}
	var (
		best  Level
		found bool
	)
	for _, o := range b.Bids {
		lv, ok := o.parse()
		if !ok {
			continue
		}
		if !found || lv.Price > best.Price {
			best, found = lv, true
		}
	}
	return best, found
}

// BestAsk 价格最低的卖单；无卖单时返回 false
func (b *OrderBookSummary) BestAsk() (Level, bool) {
	if b == nil {
		return Level{}, false
	}
	var (
		best  Level
		found bool
	)
	for _, o := range b.Asks {
		lv, ok := o.parse()
		if !ok {
			continue
		}
		if !found || lv.Price < best.Price {
			best, found = lv, true
		}
	}
	return best, found
}

// Tick 订单簿的价格精度，缺省 0.01
func (b *OrderBookSummary) Tick() TickSize {
	if b == nil || b.TickSize == "" {
		return TickSize001
	}
	return TickSize(b.TickSize)
}
