package syncgroup

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWaitReturnsFirstErrorAndCancelsOthers(t *testing.T) {
	g := NewSyncGroup(nil)
	boom := errors.New("boom")
	cancelled := make(chan struct{})

	g.Add("failing", func(ctx context.Context) error { return boom })
	g.Add("blocking", func(ctx context.Context) error {
		<-ctx.Done()
		close(cancelled)
		return nil
	})
	g.Run(context.Background())

	err := g.Wait()
	if !errors.Is(err, boom) {
		t.Fatalf("期望 boom，得到 %v", err)
	}
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("其余 goroutine 未被取消")
	}
}

func TestParentCancelIsNotAnError(t *testing.T) {
	g := NewSyncGroup(nil)
	ctx, cancel := context.WithCancel(context.Background())
	g.Add("loop", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	g.Run(ctx)
	cancel()
	if err := g.Wait(); err != nil {
		t.Fatalf("父 ctx 取消不应返回错误: %v", err)
	}
}

func TestAddAfterRunIgnored(t *testing.T) {
	g := NewSyncGroup(nil)
	g.Run(context.Background())
	ran := false
	g.Add("late", func(ctx context.Context) error { ran = true; return nil })
	g.Run(context.Background())
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if ran {
		t.Fatal("Run 之后添加的函数不应执行")
	}
}
