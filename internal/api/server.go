// Package api 提供只读状态接口：健康检查、断路器/限流/代理状态、Prometheus 指标。
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/betbot/copybot/internal/metrics"
	"github.com/betbot/copybot/internal/risk"
	"github.com/betbot/copybot/internal/storage"
	"github.com/betbot/copybot/pkg/proxy"
)

// Breaker 断路器状态
type Breaker interface {
	Snapshot() risk.Snapshot
	Resume()
}

// Window 限流窗口
type Window interface {
	Count() int
	Limit() int
	GetRemaining() int
	GetResetTime() time.Time
	Waiting() int
}

// Proxies 当前出口
type Proxies interface {
	Peek() *proxy.Identity
	Len() int
}

// Counter 事件计数
type Counter interface {
	Counts(ctx context.Context) (storage.Counts, error)
}

// Deps 状态接口依赖，除 Breaker 外均可为 nil
type Deps struct {
	Breaker Breaker
	Window  Window
	Proxies Proxies
	Store   Counter
	Metrics *metrics.Metrics
	Log     logrus.FieldLogger
}

// Status GET /status 响应
type Status struct {
	Breaker     risk.Snapshot   `json:"breaker"`
	RateWindow  int             `json:"rate_window"`
	RateLimit   int             `json:"rate_limit"`
	RateLeft    int             `json:"rate_remaining"`
	RateResetAt time.Time       `json:"rate_reset_at"`
	RateQueued  int             `json:"rate_queued"`
	Proxy       string          `json:"proxy,omitempty"`
	ProxyPool   int             `json:"proxy_pool"`
	Events      *storage.Counts `json:"events,omitempty"`
	GeneratedAt time.Time       `json:"generated_at"`
}

type Server struct {
	deps Deps
}

func New(deps Deps) *Server {
	if deps.Log == nil {
		deps.Log = logrus.StandardLogger()
	}
	deps.Log = deps.Log.WithField("component", "api")
	return &Server{deps: deps}
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/status", s.handleStatus)
	r.POST("/resume", s.handleResume)
	if s.deps.Metrics != nil {
		h := s.deps.Metrics.Handler()
		r.GET("/metrics", func(c *gin.Context) {
			// 抓取前刷新暂停状态与窗口计数
			if _, err := s.status(c.Request.Context()); err != nil {
				s.deps.Log.Debugf("刷新状态指标失败: %v", err)
			}
			h.ServeHTTP(c.Writer, c.Request)
		})
	}
	return r
}

func (s *Server) status(ctx context.Context) (Status, error) {
	st := Status{Breaker: s.deps.Breaker.Snapshot(), GeneratedAt: time.Now().UTC()}
	if s.deps.Window != nil {
		st.RateWindow = s.deps.Window.Count()
		st.RateLimit = s.deps.Window.Limit()
		st.RateLeft = s.deps.Window.GetRemaining()
		st.RateResetAt = s.deps.Window.GetResetTime().UTC()
		st.RateQueued = s.deps.Window.Waiting()
	}
	if s.deps.Proxies != nil {
		st.ProxyPool = s.deps.Proxies.Len()
		if id := s.deps.Proxies.Peek(); id != nil {
			st.Proxy = id.Label()
		}
	}
	if s.deps.Store != nil {
		counts, err := s.deps.Store.Counts(ctx)
		if err != nil {
			return st, err
		}
		st.Events = &counts
	}
	if m := s.deps.Metrics; m != nil {
		m.SetPaused(st.Breaker.State == risk.StatePaused)
		m.RateWindow.Set(float64(st.RateWindow))
		if st.Events != nil {
			m.Unhandled.Set(float64(st.Events.Unhandled))
		}
	}
	return st, nil
}

func (s *Server) handleStatus(c *gin.Context) {
	st, err := s.status(c.Request.Context())
	if err != nil {
		s.deps.Log.Warnf("读取事件计数失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load counts"})
		return
	}
	c.JSON(http.StatusOK, st)
}

// handleResume 手动解除冷却
func (s *Server) handleResume(c *gin.Context) {
	s.deps.Breaker.Resume()
	s.deps.Log.Warn("冷却已被手动解除")
	c.JSON(http.StatusOK, s.deps.Breaker.Snapshot())
}

// StartAsync 非阻塞启动，ctx 结束时优雅关闭
func (s *Server) StartAsync(ctx context.Context, listenAddr string) (*http.Server, error) {
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.deps.Log.Errorf("状态服务退出: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	s.deps.Log.Infof("状态服务监听 %s", ln.Addr())
	return srv, nil
}
