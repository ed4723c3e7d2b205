package fetch

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/copybot/pkg/clock"
	"github.com/betbot/copybot/pkg/pacing"
	"github.com/betbot/copybot/pkg/proxy"
	"github.com/betbot/copybot/pkg/ratelimit"
)

func directClient(fc *clock.Fake, attempts int) *Client {
	cfg := DefaultConfig()
	cfg.Evasion = false
	cfg.MaxAttempts = attempts
	cfg.Timeout = 2 * time.Second
	return New(cfg, nil, nil, nil, WithClock(fc))
}

func TestGetJSON_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"n":3}`))
	}))
	defer srv.Close()

	c := directClient(clock.NewFake(time.Unix(0, 0)), 3)
	var out struct {
		OK bool `json:"ok"`
		N  int  `json:"n"`
	}
	require.NoError(t, c.GetJSON(context.Background(), srv.URL, pacing.ClassRead, &out))
	assert.True(t, out.OK)
	assert.Equal(t, 3, out.N)
}

func TestGet_HTTPErrorNotRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("<!DOCTYPE html><title>Attention Required! | Cloudflare</title>"))
	}))
	defer srv.Close()

	fc := clock.NewFake(time.Unix(0, 0))
	c := directClient(fc, 3)
	_, err := c.Get(context.Background(), srv.URL, pacing.ClassRead)

	var he *HTTPError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusForbidden, he.Status)
	assert.Equal(t, "Forbidden", he.StatusText)
	assert.Contains(t, string(he.Body), "Cloudflare")
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "有响应的错误不应重试")
	assert.Empty(t, fc.Slept())
	assert.False(t, IsNetworkError(err))
}

func TestGet_NetworkErrorRetriedWithBackoff(t *testing.T) {
	// 监听后立即关闭，得到一个会被拒绝连接的端口
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	fc := clock.NewFake(time.Unix(0, 0))
	var retries []string
	cfg := DefaultConfig()
	cfg.Evasion = false
	cfg.MaxAttempts = 4
	cfg.Timeout = time.Second
	c := New(cfg, nil, nil, nil, WithClock(fc), WithRetryHook(func(code string) { retries = append(retries, code) }))

	_, err = c.Get(context.Background(), "http://"+addr+"/x", pacing.ClassRead)
	var ne *NetworkError
	require.True(t, errors.As(err, &ne), "应返回网络错误: %v", err)
	assert.Equal(t, CodeRefused, ne.Code)
	assert.Equal(t, 4, ne.Attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, fc.Slept())
	assert.Len(t, retries, 3)
}

func TestGet_RecoversAfterDroppedConnection(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Errorf("不支持 hijack")
				return
			}
			conn, _, _ := hj.Hijack()
			_ = conn.Close()
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	fc := clock.NewFake(time.Unix(0, 0))
	c := directClient(fc, 3)
	body, err := c.Get(context.Background(), srv.URL, pacing.ClassRead)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(body))
	assert.Equal(t, []time.Duration{time.Second}, fc.Slept())
}

func TestGet_EvasionAppliesLimiterPacingAndHeaders(t *testing.T) {
	var gotUA, gotXFF atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA.Store(r.Header.Get("User-Agent"))
		gotXFF.Store(r.Header.Get("X-Forwarded-For"))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	fc := clock.NewFake(time.Unix(1700000000, 0))
	limiter := ratelimit.NewSlidingWindow(1, time.Minute, ratelimit.WithClock(fc))
	pacer := pacing.New(pacing.WithClock(fc), pacing.WithRand(func() float64 { return 0 }))
	rot := proxy.NewRotator(nil, proxy.WithClock(fc))

	cfg := DefaultConfig()
	cfg.Timeout = time.Second
	c := New(cfg, limiter, rot, pacer, WithClock(fc))

	_, err := c.Get(context.Background(), srv.URL, pacing.ClassGeneric)
	require.NoError(t, err)
	_, err = c.Get(context.Background(), srv.URL, pacing.ClassGeneric)
	require.NoError(t, err)

	// 第一次：只有 1s 的通用延迟；第二次：先等窗口（60s-1s+100ms），再 1s 延迟
	assert.Equal(t, []time.Duration{
		time.Second,
		59*time.Second + ratelimit.SafetyBuffer,
		time.Second,
	}, fc.Slept())
	assert.Contains(t, gotUA.Load().(string), "Chrome/120")
	assert.Equal(t, "", gotXFF.Load().(string), "没有代理时不设置 X-Forwarded-For")
}

func TestGet_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fc := clock.NewFake(time.Unix(0, 0))
	limiter := ratelimit.NewSlidingWindow(5, time.Minute, ratelimit.WithClock(fc))
	c := New(DefaultConfig(), limiter, nil, pacing.New(pacing.WithClock(fc)), WithClock(fc))
	_, err := c.Get(ctx, "http://127.0.0.1:1", pacing.ClassRead)
	assert.ErrorIs(t, err, context.Canceled)
}
