package client

import (
	"context"
	"net/url"

	"github.com/pkg/errors"

	"github.com/betbot/copybot/clob/types"
	"github.com/betbot/copybot/pkg/pacing"
)

// GetOrderBook 获取订单簿
func (c *Client) GetOrderBook(ctx context.Context, tokenID string) (*types.OrderBookSummary, error) {
	u := c.host + EndpointGetOrderBook + "?token_id=" + url.QueryEscape(tokenID)
	var book types.OrderBookSummary
	if err := c.reads.GetJSON(ctx, u, pacing.ClassPage, &book); err != nil {
		return nil, errors.Wrapf(err, "获取订单簿失败 %s", tokenID)
	}
	return &book, nil
}
