package sigchan

import "testing"

func TestEmitCoalesces(t *testing.T) {
	c := New(0)
	if !c.Emit() {
		t.Fatal("首次 Emit 应成功")
	}
	if c.Emit() {
		t.Fatal("缓冲已满时 Emit 应返回 false")
	}
	select {
	case <-c.C():
	default:
		t.Fatal("应能读到信号")
	}
	select {
	case <-c.C():
		t.Fatal("多次 Emit 只应保留一个信号")
	default:
	}
}
