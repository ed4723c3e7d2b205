package client

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/betbot/copybot/clob/signing"
	"github.com/betbot/copybot/clob/types"
	"github.com/betbot/copybot/pkg/fetch"
)

var zeroAddress = common.Address{}.Hex()

// CreateMarketOrder 按订单簿最优价构建并签名市价单
func (c *Client) CreateMarketOrder(ctx context.Context, args types.MarketOrderArgs) (*types.SignedOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tick := args.TickSize
	if tick == "" {
		tick = types.TickSize001
	}
	rc, ok := RoundingConfig[tick]
	if !ok {
		return nil, errors.Errorf("不支持的 tick size: %s", tick)
	}
	makerAmt, takerAmt := marketOrderAmounts(args.Side, args.Amount, args.Price, rc)
	if !makerAmt.IsPositive() || !takerAmt.IsPositive() {
		return nil, errors.Errorf("下单金额过小: amount=%v price=%v", args.Amount, args.Price)
	}

	tokenID, ok := new(big.Int).SetString(args.TokenID, 10)
	if !ok {
		return nil, errors.Errorf("无效的 tokenID: %s", args.TokenID)
	}
	exchange, err := ExchangeAddress(c.cfg.ChainID, args.NegRisk)
	if err != nil {
		return nil, err
	}

	signer := c.Address().Hex()
	maker := c.Funder().Hex()
	data := &signing.OrderData{
		Salt:          c.clock.Now().UnixNano(),
		Maker:         maker,
		Signer:        signer,
		Taker:         zeroAddress,
		TokenID:       tokenID,
		MakerAmount:   toUnits(makerAmt),
		TakerAmount:   toUnits(takerAmt),
		Expiration:    big.NewInt(0),
		Nonce:         big.NewInt(0),
		FeeRateBps:    big.NewInt(int64(args.FeeRateBps)),
		Side:          args.Side,
		SignatureType: c.cfg.SignatureType,
	}
	sig, err := signing.BuildOrderSignature(c.privateKey, c.cfg.ChainID, exchange, data)
	if err != nil {
		return nil, errors.Wrap(err, "签名订单失败")
	}

	return &types.SignedOrder{
		Salt:          data.Salt,
		Maker:         maker,
		Signer:        signer,
		Taker:         zeroAddress,
		TokenID:       args.TokenID,
		MakerAmount:   data.MakerAmount.String(),
		TakerAmount:   data.TakerAmount.String(),
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    strconv.Itoa(args.FeeRateBps),
		Side:          args.Side,
		SignatureType: int(c.cfg.SignatureType),
		Signature:     sig,
	}, nil
}

// PostOrder 提交订单。HTTP 非 2xx 不作为 error 返回，而是放进
// OrderResponse{Success:false, Status, StatusText, Body}；只有传输失败才返回 error。
func (c *Client) PostOrder(ctx context.Context, order *types.SignedOrder, orderType types.OrderType) (*types.OrderResponse, error) {
	creds := c.Creds()
	if !creds.Valid() {
		return nil, errors.New("L2 认证不可用: API 凭证未配置")
	}

	payload := types.NewOrder{
		Order:     *order,
		Owner:     creds.Key,
		OrderType: orderType,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "序列化订单载荷失败")
	}
	bodyStr := string(body)
	headers, err := signing.CreateL2Headers(c.privateKey, creds, types.L2HeaderArgs{
		Method:      http.MethodPost,
		RequestPath: EndpointPostOrder,
		Body:        &bodyStr,
	}, c.clock.Now())
	if err != nil {
		return nil, err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers.Map()).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(c.host + EndpointPostOrder)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fetch.AsNetworkError(err, 1)
	}

	out := &types.OrderResponse{
		Status:     resp.StatusCode(),
		StatusText: http.StatusText(resp.StatusCode()),
		Body:       string(resp.Body()),
	}
	if resp.IsError() {
		var errResp struct {
			Error    string `json:"error"`
			ErrorMsg string `json:"errorMsg"`
		}
		if json.Unmarshal(resp.Body(), &errResp) == nil {
			out.ErrorMsg = errResp.Error
			if out.ErrorMsg == "" {
				out.ErrorMsg = errResp.ErrorMsg
			}
		}
		c.log.Debugf("下单被拒: HTTP %d %s", out.Status, out.ErrorMsg)
		return out, nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return nil, errors.Wrap(err, "解析订单响应失败")
	}
	return out, nil
}
