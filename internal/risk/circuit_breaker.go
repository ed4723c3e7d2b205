package risk

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/copybot/pkg/clock"
)

// ErrPaused 表示处于全局冷却期，禁止继续下单。
var ErrPaused = fmt.Errorf("circuit breaker paused")

// CircuitBreakerConfig 断路器配置。
type CircuitBreakerConfig struct {
	// Threshold 连续拦截次数达到该值即进入冷却
	Threshold int
	// PauseDuration 冷却时长
	PauseDuration time.Duration
	// BackoffBase/BackoffMax 拦截后重试的指数退避
	BackoffBase time.Duration
	BackoffMax  time.Duration
	// BackoffJitter 退避上下浮动比例（0.2 = ±20%）
	BackoffJitter float64
}

// DefaultCircuitBreakerConfig 默认：3 次 / 15 分钟 / 10s 起步封顶 60s
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Threshold:     3,
		PauseDuration: 15 * time.Minute,
		BackoffBase:   10 * time.Second,
		BackoffMax:    60 * time.Second,
		BackoffJitter: 0.2,
	}
}

// State 断路器状态
type State string

const (
	StateArmed  State = "armed"
	StatePaused State = "paused"
)

// Snapshot 状态快照
type Snapshot struct {
	State                   State     `json:"state"`
	ConsecutiveBlockSignals int       `json:"consecutive_block_signals"`
	PausedUntil             time.Time `json:"paused_until"`
}

// CircuitBreaker 进程级的拦截检测与冷却控制。
// Armed -> Paused：连续拦截达到阈值；Paused -> Armed：now >= pausedUntil 时自动恢复。
type CircuitBreaker struct {
	cfg   CircuitBreakerConfig
	clock clock.Clock
	log   logrus.FieldLogger

	mu          sync.Mutex
	consecutive int
	pausedUntil time.Time
	rand        func() float64
	onPause     func(until time.Time)
}

type Option func(*CircuitBreaker)

func WithClock(c clock.Clock) Option {
	return func(cb *CircuitBreaker) { cb.clock = c }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(cb *CircuitBreaker) { cb.log = l }
}

func WithRand(r func() float64) Option {
	return func(cb *CircuitBreaker) { cb.rand = r }
}

// WithPauseHook 进入冷却时回调
func WithPauseHook(fn func(until time.Time)) Option {
	return func(cb *CircuitBreaker) { cb.onPause = fn }
}

func NewCircuitBreaker(cfg CircuitBreakerConfig, opts ...Option) *CircuitBreaker {
	def := DefaultCircuitBreakerConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.PauseDuration <= 0 {
		cfg.PauseDuration = def.PauseDuration
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = def.BackoffBase
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = def.BackoffMax
	}
	if cfg.BackoffJitter < 0 {
		cfg.BackoffJitter = 0
	}
	cb := &CircuitBreaker{
		cfg:   cfg,
		clock: clock.Real{},
		log:   logrus.StandardLogger().WithField("component", "risk"),
		rand:  rand.Float64,
	}
	for _, o := range opts {
		o(cb)
	}
	return cb
}

// IsPaused 是否处于冷却期
func (cb *CircuitBreaker) IsPaused() bool {
	if cb == nil {
		return false
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.clock.Now().Before(cb.pausedUntil)
}

// PauseRemaining 冷却剩余时间
func (cb *CircuitBreaker) PauseRemaining() time.Duration {
	if cb == nil {
		return 0
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if d := cb.pausedUntil.Sub(cb.clock.Now()); d > 0 {
		return d
	}
	return 0
}

// AllowTrading 快路径检查是否允许交易。
func (cb *CircuitBreaker) AllowTrading() error {
	if cb.IsPaused() {
		return ErrPaused
	}
	return nil
}

// RecordBlock 记录一次拦截信号，返回是否因此进入冷却以及当前连续次数。
func (cb *CircuitBreaker) RecordBlock() (paused bool, count int) {
	if cb == nil {
		return false, 0
	}
	cb.mu.Lock()
	cb.consecutive++
	count = cb.consecutive
	var until time.Time
	if cb.consecutive >= cb.cfg.Threshold {
		until = cb.clock.Now().Add(cb.cfg.PauseDuration)
		cb.pausedUntil = until
		// 冷却结束后重新计数
		cb.consecutive = 0
		paused = true
	}
	hook := cb.onPause
	cb.mu.Unlock()

	if paused {
		cb.log.Errorf("🚨 连续 %d 次被拦截，暂停 %v，预计 %s 恢复", count, cb.cfg.PauseDuration, until.Format("15:04:05"))
		if hook != nil {
			hook(until)
		}
	} else {
		cb.log.Warnf("⚠️ 检测到拦截 (%d/%d)", count, cb.cfg.Threshold)
	}
	return paused, count
}

// RecordNonBlock 非拦截类拒单：计数清零
func (cb *CircuitBreaker) RecordNonBlock() {
	cb.reset()
}

// OnSuccess 成功下单：计数清零
func (cb *CircuitBreaker) OnSuccess() {
	cb.reset()
}

func (cb *CircuitBreaker) reset() {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	cb.consecutive = 0
	cb.mu.Unlock()
}

// Resume 手动恢复
func (cb *CircuitBreaker) Resume() {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	cb.consecutive = 0
	cb.pausedUntil = time.Time{}
	cb.mu.Unlock()
}

// Backoff 拦截后的重试等待：min(base*2^retry, max)，再上下浮动 jitter 比例
func (cb *CircuitBreaker) Backoff(retry int) time.Duration {
	if cb == nil {
		return 0
	}
	if retry < 0 {
		retry = 0
	}
	d := float64(cb.cfg.BackoffBase) * math.Pow(2, float64(retry))
	if d > float64(cb.cfg.BackoffMax) {
		d = float64(cb.cfg.BackoffMax)
	}
	cb.mu.Lock()
	r := cb.rand()
	cb.mu.Unlock()
	return time.Duration(d + d*cb.cfg.BackoffJitter*(2*r-1))
}

// Snapshot 返回当前状态
func (cb *CircuitBreaker) Snapshot() Snapshot {
	if cb == nil {
		return Snapshot{State: StateArmed}
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	s := Snapshot{ConsecutiveBlockSignals: cb.consecutive, PausedUntil: cb.pausedUntil, State: StateArmed}
	if cb.clock.Now().Before(cb.pausedUntil) {
		s.State = StatePaused
	}
	return s
}
