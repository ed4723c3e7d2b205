// Package pacing 生成类人请求节奏的随机延迟。
package pacing

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/copybot/pkg/clock"
)

// Class 请求类型，决定延迟区间
type Class string

const (
	ClassRead    Class = "read"    // 读取数据：5-15s
	ClassAuth    Class = "auth"    // 认证相关：10-20s
	ClassPage    Class = "page"    // 类页面加载：0-2s
	ClassGeneric Class = "generic" // 通用：1-3s
)

// Profile 一个均匀分布区间
type Profile struct {
	Min time.Duration
	Max time.Duration
}

// DefaultProfiles 默认延迟区间
var DefaultProfiles = map[Class]Profile{
	ClassRead:    {Min: 5 * time.Second, Max: 15 * time.Second},
	ClassAuth:    {Min: 10 * time.Second, Max: 20 * time.Second},
	ClassPage:    {Min: 0, Max: 2 * time.Second},
	ClassGeneric: {Min: time.Second, Max: 3 * time.Second},
}

// Pacer 延迟生成器（并发安全）
type Pacer struct {
	clock    clock.Clock
	profiles map[Class]Profile
	log      logrus.FieldLogger

	mu   sync.Mutex
	rand func() float64
}

type Option func(*Pacer)

func WithClock(c clock.Clock) Option {
	return func(p *Pacer) { p.clock = c }
}

// WithRand 注入 [0,1) 随机源
func WithRand(r func() float64) Option {
	return func(p *Pacer) { p.rand = r }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(p *Pacer) { p.log = l }
}

// WithProfile 覆盖某一类请求的区间
func WithProfile(c Class, prof Profile) Option {
	return func(p *Pacer) { p.profiles[c] = prof }
}

func New(opts ...Option) *Pacer {
	p := &Pacer{
		clock:    clock.Real{},
		profiles: make(map[Class]Profile, len(DefaultProfiles)),
		log:      logrus.StandardLogger().WithField("component", "pacing"),
		rand:     rand.Float64,
	}
	for k, v := range DefaultProfiles {
		p.profiles[k] = v
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Pacer) random() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rand()
}

// Duration 按请求类型抽取一次延迟（毫秒粒度）
func (p *Pacer) Duration(c Class) time.Duration {
	prof, ok := p.profiles[c]
	if !ok {
		prof = p.profiles[ClassGeneric]
	}
	return uniform(prof, p.random())
}

func uniform(prof Profile, r float64) time.Duration {
	if prof.Max <= prof.Min {
		return prof.Min
	}
	spanMs := float64((prof.Max - prof.Min) / time.Millisecond)
	ms := math.Floor(r * (spanMs + 1))
	if ms > spanMs {
		ms = spanMs
	}
	return prof.Min + time.Duration(ms)*time.Millisecond
}

// Delay 按请求类型等待
func (p *Pacer) Delay(ctx context.Context, c Class) error {
	d := p.Duration(c)
	switch c {
	case ClassAuth:
		p.log.Infof("认证延迟 %ds", int(math.Ceil(d.Seconds())))
	case ClassRead:
		// 只采样记录，避免刷屏
		if p.random() < 0.1 {
			p.log.Infof("类人延迟 %ds 后请求", int(math.Ceil(d.Seconds())))
		}
	}
	return p.clock.Sleep(ctx, d)
}

// JitterDuration 返回 base + rand*jitter
func (p *Pacer) JitterDuration(base, jitter time.Duration) time.Duration {
	if jitter <= 0 {
		return base
	}
	return base + time.Duration(p.random()*float64(jitter))
}

// Jitter 等待 base + rand*jitter
func (p *Pacer) Jitter(ctx context.Context, base, jitter time.Duration) error {
	return p.clock.Sleep(ctx, p.JitterDuration(base, jitter))
}

// Clock 返回内部时钟
func (p *Pacer) Clock() clock.Clock {
	return p.clock
}
