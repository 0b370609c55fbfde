// Package sigchan 进程信号转为非阻塞通知与 context 取消
package sigchan

import (
	"context"
	"os"
	"os/signal"
	"sync"
)

// Chan 是一个非阻塞的信号 channel
// 用于通知事件发生，但不传递数据
type Chan struct {
	c chan struct{}
}

// New 创建新的信号 channel
func New(bufferSize int) *Chan {
	return &Chan{
		c: make(chan struct{}, bufferSize),
	}
}

// Emit 发送信号（非阻塞）
func (c *Chan) Emit() {
	select {
	case c.c <- struct{}{}:
	default:
	}
}

// C 返回内部的 channel（用于 select）
func (c *Chan) C() <-chan struct{} {
	return c.c
}

// Notify 每收到一个进程信号 Emit 一次；stop 后不再转发
func Notify(sigs ...os.Signal) (ch *Chan, stop func()) {
	ch = New(1)
	osCh := make(chan os.Signal, 1)
	signal.Notify(osCh, sigs...)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-osCh:
				ch.Emit()
			case <-done:
				return
			}
		}
	}()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			signal.Stop(osCh)
			close(done)
		})
	}
}

// WithCancel 第一次收到信号时取消 ctx，并调用 onSignal（可为 nil）；
// 步骤驱动在步骤之间检查 ctx，已发出的交易不会被中断
func WithCancel(parent context.Context, onSignal func(), sigs ...os.Signal) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	ch, stop := Notify(sigs...)
	go func() {
		select {
		case <-ch.C():
			if onSignal != nil {
				onSignal()
			}
			cancel()
		case <-ctx.Done():
		}
		stop()
	}()
	return ctx, func() {
		cancel()
		stop()
	}
}
