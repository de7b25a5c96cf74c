// Package sigchan 无数据的合并式通知：多次 Emit 在消费前只保留 buffer 个信号。
package sigchan

import "context"

type Chan struct {
	c chan struct{}
}

// New bufferSize 至少为 1
func New(bufferSize int) *Chan {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Chan{c: make(chan struct{}, bufferSize)}
}

// Emit 非阻塞发送；缓冲已满则丢弃
func (c *Chan) Emit() {
	select {
	case c.c <- struct{}{}:
	default:
	}
}

// Wait 阻塞到下一个信号或 ctx 结束
func (c *Chan) Wait(ctx context.Context) error {
	select {
	case <-c.c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
