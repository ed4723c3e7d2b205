package client

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	"github.com/betbot/copybot/clob/signing"
	"github.com/betbot/copybot/clob/types"
	"github.com/betbot/copybot/pkg/fetch"
)

// DeriveAPIKey 用 L1 签名派生 API 密钥；账户尚无密钥（400）时创建新密钥
func (c *Client) DeriveAPIKey(ctx context.Context, nonce int64) (*types.ApiKeyCreds, error) {
	headers, err := signing.CreateL1Headers(c.privateKey, c.cfg.ChainID, nonce, c.clock.Now())
	if err != nil {
		return nil, errors.Wrap(err, "创建 L1 认证头失败")
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers.Map()).
		Get(c.host + EndpointDeriveAPIKey)
	if err != nil {
		return nil, fetch.AsNetworkError(err, 1)
	}
	switch resp.StatusCode() {
	case http.StatusOK:
		return decodeCreds(resp.Body())
	case http.StatusBadRequest, http.StatusNotFound:
		c.log.Infof("账户尚无 API 密钥，创建新密钥")
	default:
		return nil, &fetch.HTTPError{
			URL:        c.host + EndpointDeriveAPIKey,
			Status:     resp.StatusCode(),
			StatusText: http.StatusText(resp.StatusCode()),
			Body:       resp.Body(),
		}
	}

	resp, err = c.http.R().
		SetContext(ctx).
		SetHeaders(headers.Map()).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]interface{}{}).
		Post(c.host + EndpointCreateAPIKey)
	if err != nil {
		return nil, fetch.AsNetworkError(err, 1)
	}
	if resp.IsError() {
		return nil, &fetch.HTTPError{
			URL:        c.host + EndpointCreateAPIKey,
			Status:     resp.StatusCode(),
			StatusText: http.StatusText(resp.StatusCode()),
			Body:       resp.Body(),
		}
	}
	return decodeCreds(resp.Body())
}

func decodeCreds(body []byte) (*types.ApiKeyCreds, error) {
	var raw types.ApiKeyRaw
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, errors.Wrap(err, "解析 API 密钥响应失败")
	}
	creds := &types.ApiKeyCreds{Key: raw.ApiKey, Secret: raw.Secret, Passphrase: raw.Passphrase}
	if !creds.Valid() {
		return nil, errors.New("API 密钥响应不完整")
	}
	return creds, nil
}
