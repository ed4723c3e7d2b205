package ratelimit

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/copybot/pkg/clock"
)

const (
	// DefaultLimit 窗口内最多放行的请求数
	DefaultLimit = 5
	// DefaultWindow 滑动窗口宽度
	DefaultWindow = 60 * time.Second
	// SafetyBuffer 等待最老请求过期时额外多等的时间
	SafetyBuffer = 100 * time.Millisecond
)

// Limiter 速率限制器接口
type Limiter interface {
	Admit(ctx context.Context) error
	Count() int
}

// SlidingWindow 滑动窗口速率限制器。
// 调用方按调用 Admit 的先后顺序依次获得放行，任何 W 时间内放行数不超过 limit。
type SlidingWindow struct {
	limit      int
	windowSize time.Duration
	clock      clock.Clock
	log        logrus.FieldLogger

	// turn 容量为 1 的令牌：持有者才能检查/写入窗口。阻塞在 channel 上的接收者按 FIFO 唤醒。
	turn    chan struct{}
	waiting atomic.Int32

	mu       sync.Mutex
	requests []time.Time // 已放行请求时间戳（升序）
}

type Option func(*SlidingWindow)

func WithClock(c clock.Clock) Option {
	return func(sw *SlidingWindow) { sw.clock = c }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(sw *SlidingWindow) { sw.log = l }
}

// NewSlidingWindow 创建新的滑动窗口速率限制器
func NewSlidingWindow(limit int, windowSize time.Duration, opts ...Option) *SlidingWindow {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if windowSize <= 0 {
		windowSize = DefaultWindow
	}
	sw := &SlidingWindow{
		limit:      limit,
		windowSize: windowSize,
		clock:      clock.Real{},
		log:        logrus.StandardLogger().WithField("component", "ratelimit"),
		turn:       make(chan struct{}, 1),
		requests:   make([]time.Time, 0, limit),
	}
	sw.turn <- struct{}{}
	for _, o := range opts {
		o(sw)
	}
	return sw
}

// prune 移除窗口外的请求，调用方需持有 mu
func (sw *SlidingWindow) prune(now time.Time) {
	i := 0
	for ; i < len(sw.requests); i++ {
		if now.Sub(sw.requests[i]) < sw.windowSize {
			break
		}
	}
	if i > 0 {
		sw.requests = append(sw.requests[:0], sw.requests[i:]...)
	}
}

// Admit 阻塞直到允许发出请求，并记录本次请求。
func (sw *SlidingWindow) Admit(ctx context.Context) error {
	sw.waiting.Add(1)
	select {
	case <-sw.turn:
		sw.waiting.Add(-1)
	case <-ctx.Done():
		sw.waiting.Add(-1)
		return ctx.Err()
	}
	defer func() { sw.turn <- struct{}{} }()

	for {
		now := sw.clock.Now()
		sw.mu.Lock()
		sw.prune(now)
		if len(sw.requests) < sw.limit {
			sw.requests = append(sw.requests, now)
			sw.mu.Unlock()
			return nil
		}
		count := len(sw.requests)
		wait := sw.windowSize - now.Sub(sw.requests[0]) + SafetyBuffer
		sw.mu.Unlock()

		sw.log.Infof("⏳ 达到速率限制 (%d/%d)，等待 %ds", count, sw.limit, int(math.Ceil(wait.Seconds())))
		if err := sw.clock.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Count 当前窗口内的请求数
func (sw *SlidingWindow) Count() int {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.prune(sw.clock.Now())
	return len(sw.requests)
}

// GetRemaining 获取剩余请求数
func (sw *SlidingWindow) GetRemaining() int {
	return max(0, sw.limit-sw.Count())
}

// GetResetTime 最老请求离开窗口的时间
func (sw *SlidingWindow) GetResetTime() time.Time {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if len(sw.requests) == 0 {
		return sw.clock.Now()
	}
	return sw.requests[0].Add(sw.windowSize)
}

// Waiting 排队等待轮次的调用方数量（不含正在等待窗口释放的那一个）
func (sw *SlidingWindow) Waiting() int {
	return int(sw.waiting.Load())
}

// Snapshot 返回窗口内时间戳副本
func (sw *SlidingWindow) Snapshot() []time.Time {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	out := make([]time.Time, len(sw.requests))
	copy(out, sw.requests)
	return out
}

// Reset 清空窗口
func (sw *SlidingWindow) Reset() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.requests = sw.requests[:0]
}

// Limit 窗口上限
func (sw *SlidingWindow) Limit() int {
	return sw.limit
}
