// Package fetch 对外读请求的弹性封装：限流、类人延迟、代理轮换、网络错误指数退避。
package fetch

import (
	"context"
	"encoding/json"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/copybot/pkg/clock"
	"github.com/betbot/copybot/pkg/pacing"
	"github.com/betbot/copybot/pkg/proxy"
	"github.com/betbot/copybot/pkg/ratelimit"
)

// Config 弹性请求配置
type Config struct {
	Evasion       bool          // 开启限流/延迟/代理
	MaxAttempts   int           // 网络错误最多尝试次数
	Timeout       time.Duration // 连接+响应超时
	BaseBackoff   time.Duration // 指数退避基数
	LogSampleRate float64       // 成功请求的代理日志采样率
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		Evasion:       true,
		MaxAttempts:   3,
		Timeout:       10 * time.Second,
		BaseBackoff:   time.Second,
		LogSampleRate: 0.1,
	}
}

// Fetcher 读接口，供上层依赖
type Fetcher interface {
	Get(ctx context.Context, url string, class pacing.Class) ([]byte, error)
	GetJSON(ctx context.Context, url string, class pacing.Class, out interface{}) error
}

// Client 弹性读客户端
type Client struct {
	cfg     Config
	limiter ratelimit.Limiter
	rotator *proxy.Rotator
	pacer   *pacing.Pacer
	clock   clock.Clock
	log     logrus.FieldLogger
	onRetry func(code string)

	randMu sync.Mutex
	rand   func() float64

	clientsMu sync.Mutex
	clients   map[string]*resty.Client // key: 代理 URL，"" 为直连
}

type Option func(*Client)

func WithClock(c clock.Clock) Option {
	return func(cl *Client) { cl.clock = c }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(cl *Client) { cl.log = l }
}

func WithRand(r func() float64) Option {
	return func(cl *Client) { cl.rand = r }
}

// WithRetryHook 每次网络错误重试前回调
func WithRetryHook(fn func(code string)) Option {
	return func(cl *Client) { cl.onRetry = fn }
}

// New 创建弹性读客户端。limiter/rotator/pacer 在 Evasion 关闭时可为 nil。
func New(cfg Config, limiter ratelimit.Limiter, rotator *proxy.Rotator, pacer *pacing.Pacer, opts ...Option) *Client {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = def.BaseBackoff
	}
	if cfg.LogSampleRate < 0 {
		cfg.LogSampleRate = 0
	}
	c := &Client{
		cfg:     cfg,
		limiter: limiter,
		rotator: rotator,
		pacer:   pacer,
		clock:   clock.Real{},
		log:     logrus.StandardLogger().WithField("component", "fetch"),
		rand:    rand.Float64,
		clients: make(map[string]*resty.Client),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) random() float64 {
	c.randMu.Lock()
	defer c.randMu.Unlock()
	return c.rand()
}

// clientFor 每个出口复用一个 resty 客户端，强制 IPv4
func (c *Client) clientFor(id *proxy.Identity) *resty.Client {
	key := ""
	if id != nil {
		key = id.URL().String()
	}
	c.clientsMu.Lock()
	defer c.clientsMu.Unlock()
	if rc, ok := c.clients[key]; ok {
		return rc
	}

	var proxyURL *url.URL
	if id != nil {
		proxyURL = id.URL()
	}
	rc := resty.New().
		SetTransport(NewTransport(c.cfg.Timeout, proxyURL)).
		SetTimeout(c.cfg.Timeout).
		SetRetryCount(0)
	c.clients[key] = rc
	return rc
}

// NewTransport 强制 IPv4 的 http.Transport，proxyURL 为 nil 时直连
func NewTransport(timeout time.Duration, proxyURL *url.URL) *http.Transport {
	dialer := &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
	tr := &http.Transport{
		DialContext: func(ctx context.Context, _, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, "tcp4", addr)
		},
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   timeout,
		ExpectContinueTimeout: time.Second,
	}
	if proxyURL != nil {
		tr.Proxy = http.ProxyURL(proxyURL)
	}
	return tr
}

// Get 发起 GET，返回响应体
func (c *Client) Get(ctx context.Context, url string, class pacing.Class) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if c.cfg.Evasion {
			if c.limiter != nil {
				if err := c.limiter.Admit(ctx); err != nil {
					return nil, err
				}
			}
			if c.pacer != nil {
				if err := c.pacer.Delay(ctx, class); err != nil {
					return nil, err
				}
			}
		}

		var id *proxy.Identity
		headers := proxy.PlainHeaders()
		if c.cfg.Evasion {
			if c.rotator != nil {
				id = c.rotator.Current()
			}
			headers = proxy.Headers(id)
		}

		resp, err := c.clientFor(id).R().
			SetContext(ctx).
			SetHeaders(headers).
			Get(url)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			ne := AsNetworkError(err, attempt)
			code := ne.Code
			lastErr = ne
			if attempt < c.cfg.MaxAttempts {
				delay := c.cfg.BaseBackoff * time.Duration(1<<uint(attempt-1))
				c.log.Warnf("⚠️ 网络错误 %s (第 %d/%d 次)，%v 后重试", code, attempt, c.cfg.MaxAttempts, delay)
				if c.onRetry != nil {
					c.onRetry(code)
				}
				if err := c.clock.Sleep(ctx, delay); err != nil {
					return nil, err
				}
				continue
			}
			c.log.Errorf("❌ 网络请求 %d 次后仍失败 - %s", c.cfg.MaxAttempts, code)
			return nil, lastErr
		}

		if resp.IsError() {
			return nil, &HTTPError{
				URL:        url,
				Status:     resp.StatusCode(),
				StatusText: http.StatusText(resp.StatusCode()),
				Body:       resp.Body(),
			}
		}

		if c.cfg.Evasion && id != nil && c.random() < c.cfg.LogSampleRate {
			c.log.Infof("✅ 请求经代理成功: %s", id.Label())
		}
		return resp.Body(), nil
	}
	return nil, lastErr
}

// GetJSON 发起 GET 并解码 JSON
func (c *Client) GetJSON(ctx context.Context, url string, class pacing.Class, out interface{}) error {
	body, err := c.Get(ctx, url, class)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrapf(err, "解析响应失败 %s", url)
	}
	return nil
}
