// Package sigchan 提供可合并的唤醒信号：多次 Emit 在被消费前只保留一次。
package sigchan

// Chan 非阻塞信号 channel，只通知不传数据
type Chan struct {
	c chan struct{}
}

// New 创建信号 channel，bufferSize<=0 时按 1 处理
func New(bufferSize int) *Chan {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &Chan{c: make(chan struct{}, bufferSize)}
}

// Emit 发送信号（非阻塞）。缓冲已满时丢弃并返回 false。
func (c *Chan) Emit() bool {
	select {
	case c.c <- struct{}{}:
		return true
	default:
		return false
	}
}

// C 用于 select
func (c *Chan) C() <-chan struct{} {
	return c.c
}
