// Package rtds 是实时数据推送（websocket）的精简客户端，断线自动重连并重新订阅。
package rtds

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// MessageHandler 消息回调，在读协程中同步执行
type MessageHandler func(msg *Message)

// ClientConfig 客户端配置
type ClientConfig struct {
	URL            string
	ProxyURL       string
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	ReconnectDelay time.Duration
	// MaxReconnect 连续重连失败次数上限，<=0 不限
	MaxReconnect int
}

// DefaultClientConfig 默认配置
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		URL:            RTDSWebSocketURL,
		PingInterval:   5 * time.Second,
		WriteTimeout:   10 * time.Second,
		ReadTimeout:    60 * time.Second,
		ReconnectDelay: 5 * time.Second,
	}
}

// Client RTDS 客户端
type Client struct {
	cfg     ClientConfig
	log     logrus.FieldLogger
	handler MessageHandler

	mu   sync.Mutex
	conn *websocket.Conn
	subs []Subscription

	lastMessageAt time.Time
}

// NewClient 创建客户端
func NewClient(cfg ClientConfig, handler MessageHandler, log logrus.FieldLogger) *Client {
	def := DefaultClientConfig()
	if cfg.URL == "" {
		cfg.URL = def.URL
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = def.ReconnectDelay
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{
		cfg:     cfg,
		handler: handler,
		log:     log.WithField("component", "rtds"),
	}
}

// Subscribe 记录订阅，已连接时立即发送
func (c *Client) Subscribe(subs ...Subscription) error {
	c.mu.Lock()
	c.subs = append(c.subs, subs...)
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return c.write(conn, SubscriptionRequest{Action: ActionSubscribe, Subscriptions: subs})
}

// LastMessageAt 最近一次收到消息的时间
func (c *Client) LastMessageAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastMessageAt
}

// Run 连接并读取消息直到 ctx 结束；断线后按 ReconnectDelay 重连
func (c *Client) Run(ctx context.Context) error {
	failures := 0
	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			failures++
			c.log.Warnf("RTDS 连接断开 (%d): %v", failures, err)
		} else {
			failures = 0
		}
		if c.cfg.MaxReconnect > 0 && failures >= c.cfg.MaxReconnect {
			return errors.Wrapf(err, "RTDS 重连 %d 次仍失败", failures)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.cfg.ReconnectDelay):
		}
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 30 * time.Second}
	if c.cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(c.cfg.ProxyURL)
		if err != nil {
			return nil, errors.Wrap(err, "invalid proxy URL")
		}
		dialer.Proxy = http.ProxyURL(proxyURL)
	}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to RTDS")
	}
	return conn, nil
}

// session 单次连接的生命周期；收到过消息则返回 nil 表示可立即重置失败计数
func (c *Client) session(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.conn = conn
	subs := append([]Subscription(nil), c.subs...)
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		_ = conn.Close()
	}()
	c.log.Infof("RTDS 已连接: %s", c.cfg.URL)

	if len(subs) > 0 {
		if err := c.write(conn, SubscriptionRequest{Action: ActionSubscribe, Subscriptions: subs}); err != nil {
			return err
		}
	}

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go c.ping(sessCtx, conn)
	go func() {
		<-sessCtx.Done()
		_ = conn.Close()
	}()

	received := false
	for {
		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if received {
				c.log.Debugf("RTDS 读取结束: %v", err)
				return nil
			}
			return err
		}
		c.mu.Lock()
		c.lastMessageAt = time.Now()
		c.mu.Unlock()

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil || msg.Topic == "" {
			// 心跳回包或非 JSON 消息
			continue
		}
		received = true
		if c.handler != nil {
			c.handler(&msg)
		}
	}
}

func (c *Client) ping(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			err := conn.WriteMessage(websocket.TextMessage, []byte("ping"))
			c.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *Client) write(conn *websocket.Conn, v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := conn.WriteJSON(v); err != nil {
		return errors.Wrap(err, "failed to send message")
	}
	return nil
}
