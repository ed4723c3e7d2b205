package pacing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/copybot/pkg/clock"
)

func TestDurationBounds(t *testing.T) {
	cases := []struct {
		class    Class
		min, max time.Duration
	}{
		{ClassRead, 5 * time.Second, 15 * time.Second},
		{ClassAuth, 10 * time.Second, 20 * time.Second},
		{ClassPage, 0, 2 * time.Second},
		{ClassGeneric, time.Second, 3 * time.Second},
	}
	for _, tc := range cases {
		t.Run(string(tc.class), func(t *testing.T) {
			for _, r := range []float64{0, 0.25, 0.5, 0.999999} {
				p := New(WithRand(func() float64 { return r }))
				d := p.Duration(tc.class)
				if d < tc.min || d > tc.max {
					t.Fatalf("延迟越界: r=%v d=%v 区间=[%v,%v]", r, d, tc.min, tc.max)
				}
			}
		})
	}
}

func TestDurationEndpoints(t *testing.T) {
	p := New(WithRand(func() float64 { return 0 }))
	assert.Equal(t, 5*time.Second, p.Duration(ClassRead))

	p = New(WithRand(func() float64 { return 0.9999999 }))
	assert.Equal(t, 15*time.Second, p.Duration(ClassRead))
}

func TestUnknownClassFallsBackToGeneric(t *testing.T) {
	p := New(WithRand(func() float64 { return 0 }))
	assert.Equal(t, time.Second, p.Duration(Class("whatever")))
}

func TestDelayUsesClock(t *testing.T) {
	fc := clock.NewFake(time.Unix(1700000000, 0))
	p := New(WithClock(fc), WithRand(func() float64 { return 0.5 }))

	require.NoError(t, p.Delay(context.Background(), ClassPage))
	slept := fc.Slept()
	require.Len(t, slept, 1)
	assert.Equal(t, time.Second, slept[0])
}

func TestJitter(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	p := New(WithClock(fc), WithRand(func() float64 { return 0.5 }))

	require.NoError(t, p.Jitter(context.Background(), time.Second, 500*time.Millisecond))
	assert.Equal(t, []time.Duration{1250 * time.Millisecond}, fc.Slept())
	assert.Equal(t, 2*time.Second, p.JitterDuration(2*time.Second, 0))
}

func TestDelayCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := New(WithClock(clock.NewFake(time.Unix(0, 0))))
	if err := p.Delay(ctx, ClassRead); err == nil {
		t.Fatal("ctx 已取消，应该返回错误")
	}
}
