// Package syncgroup 管理一组后台 goroutine 的生命周期：先登记，再统一启动，最后等待全部退出。
package syncgroup

import (
	"sync"
	"time"
)

// SyncGroup sync.WaitGroup 的包装，自动配对 Add/Done
type SyncGroup struct {
	wg sync.WaitGroup

	mu      sync.Mutex
	pending []func()
	running int
}

func NewSyncGroup() *SyncGroup {
	return &SyncGroup{}
}

// Add 登记一个待启动的函数；Run 之前调用
func (g *SyncGroup) Add(fn func()) {
	if fn == nil {
		return
	}
	g.mu.Lock()
	g.pending = append(g.pending, fn)
	g.mu.Unlock()
}

// Run 启动所有已登记的函数并清空登记表
func (g *SyncGroup) Run() {
	g.mu.Lock()
	fns := g.pending
	g.pending = nil
	g.running += len(fns)
	g.wg.Add(len(fns))
	g.mu.Unlock()

	for _, fn := range fns {
		go func(fn func()) {
			defer func() {
				g.mu.Lock()
				g.running--
				g.mu.Unlock()
				g.wg.Done()
			}()
			fn()
		}(fn)
	}
}

// Running 仍在运行的 goroutine 数
func (g *SyncGroup) Running() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

func (g *SyncGroup) Wait() {
	g.wg.Wait()
}

// WaitTimeout 等待全部退出；超时返回 false（goroutine 仍在后台运行）
func (g *SyncGroup) WaitTimeout(d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
