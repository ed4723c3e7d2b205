// Package client 是交易所 CLOB 的最小适配层：读订单簿、构建并签名市价单、
// 以 L2 认证提交 FOK 订单、派生 API 密钥。
package client

import (
	"crypto/ecdsa"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/betbot/copybot/clob/signing"
	"github.com/betbot/copybot/clob/types"
	"github.com/betbot/copybot/pkg/clock"
	"github.com/betbot/copybot/pkg/fetch"
)

// DefaultHost CLOB 主机
const DefaultHost = "https://clob.polymarket.com"

// Config 客户端配置
type Config struct {
	Host    string
	ChainID types.Chain
	// SignatureType 0=EOA 1=Magic 2=GnosisSafe
	SignatureType types.SignatureType
	// FunderAddress 代理钱包地址，为空时使用签名者地址
	FunderAddress string
	Timeout       time.Duration
}

// Client CLOB 客户端
type Client struct {
	cfg        Config
	host       string
	privateKey *ecdsa.PrivateKey

	credsMu sync.RWMutex
	creds   *types.ApiKeyCreds

	reads fetch.Fetcher
	http  *resty.Client
	clock clock.Clock
	log   logrus.FieldLogger
}

// Option 客户端选项
type Option func(*Client)

func WithClock(c clock.Clock) Option {
	return func(cl *Client) { cl.clock = c }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(cl *Client) { cl.log = l }
}

// WithHTTPClient 替换写请求使用的 resty 客户端
func WithHTTPClient(rc *resty.Client) Option {
	return func(cl *Client) { cl.http = rc }
}

// NewClient 创建客户端。reads 负责所有读请求（限流/代理/重试）。
func NewClient(cfg Config, privateKey *ecdsa.PrivateKey, creds *types.ApiKeyCreds, reads fetch.Fetcher, opts ...Option) *Client {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.ChainID == 0 {
		cfg.ChainID = types.ChainPolygon
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	c := &Client{
		cfg:        cfg,
		host:       strings.TrimSuffix(cfg.Host, "/"),
		privateKey: privateKey,
		creds:      creds,
		reads:      reads,
		clock:      clock.Real{},
		log:        logrus.StandardLogger().WithField("component", "clob"),
	}
	for _, o := range opts {
		o(c)
	}
	if c.http == nil {
		c.http = resty.New().
			SetTransport(fetch.NewTransport(cfg.Timeout, nil)).
			SetTimeout(cfg.Timeout).
			SetRetryCount(0)
	}
	return c
}

// Host 主机地址
func (c *Client) Host() string { return c.host }

// ChainID 链 ID
func (c *Client) ChainID() types.Chain { return c.cfg.ChainID }

// Address 签名者地址
func (c *Client) Address() common.Address {
	return signing.GetAddressFromPrivateKey(c.privateKey)
}

// Funder 下单 maker 地址（代理钱包或签名者）
func (c *Client) Funder() common.Address {
	if c.cfg.FunderAddress != "" {
		return common.HexToAddress(c.cfg.FunderAddress)
	}
	return c.Address()
}

// Creds 当前 API 凭证
func (c *Client) Creds() *types.ApiKeyCreds {
	c.credsMu.RLock()
	defer c.credsMu.RUnlock()
	return c.creds
}

// SetCreds 设置 API 凭证
func (c *Client) SetCreds(creds *types.ApiKeyCreds) {
	c.credsMu.Lock()
	c.creds = creds
	c.credsMu.Unlock()
}
