package types

// MarketOrderArgs 市价单参数
type MarketOrderArgs struct {
	TokenID string
	Side    Side
	// Amount BUY 为美元金额，SELL 为 token 数量
	Amount float64
	// Price 成交价（取自订单簿最优档）
	Price    float64
	TickSize TickSize
	NegRisk  bool
	// FeeRateBps 手续费率（基点）
	FeeRateBps int
}

// SignedOrder 已签名的订单
type SignedOrder struct {
	Salt          int64  `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          Side   `json:"side"`
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
}

// NewOrder POST /order 的请求体
type NewOrder struct {
	Order     SignedOrder `json:"order"`
	Owner     string      `json:"owner"`
	OrderType OrderType   `json:"orderType"`
	DeferExec bool        `json:"deferExec"`
}

// OrderResponse 下单响应。HTTP 非 2xx 时 Success=false，
// Status/StatusText/Body 保留原始信息供拒单分类使用。
type OrderResponse struct {
	Success           bool     `json:"success"`
	ErrorMsg          string   `json:"errorMsg"`
	OrderID           string   `json:"orderID"`
	TransactionHashes []string `json:"transactionsHashes"`
	OrderStatus       string   `json:"status"`
	TakingAmount      string   `json:"takingAmount"`
	MakingAmount      string   `json:"makingAmount"`

	Status     int    `json:"-"`
	StatusText string `json:"-"`
	Body       string `json:"-"`
}
