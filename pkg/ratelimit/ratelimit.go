package ratelimit

import (
	"context"
	"sync"
	"time"
)

// TokenBucket 令牌桶：按时间连续补充，容量即突发上限
type TokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	tokens     float64
	perSecond  float64
	lastRefill time.Time
	now        func() time.Time
}

// NewTokenBucket capacity 为突发上限，perSecond 为每秒补充数
func NewTokenBucket(capacity int, perSecond float64) *TokenBucket {
	if capacity < 1 {
		capacity = 1
	}
	tb := &TokenBucket{
		capacity:  float64(capacity),
		tokens:    float64(capacity),
		perSecond: perSecond,
		now:       time.Now,
	}
	tb.lastRefill = tb.now()
	return tb
}

func (tb *TokenBucket) refill() {
	now := tb.now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	tb.tokens += elapsed * tb.perSecond
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now
}

// Allow 有令牌则消耗一个
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()
	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

// Wait 阻塞到拿到令牌或 ctx 结束
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		wait, ok := tb.reserve()
		if ok {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// reserve 尝试取令牌；失败时返回距下一个令牌的时间
func (tb *TokenBucket) reserve() (time.Duration, bool) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()
	if tb.tokens >= 1 {
		tb.tokens--
		return 0, true
	}
	if tb.perSecond <= 0 {
		return time.Second, false
	}
	missing := 1 - tb.tokens
	return time.Duration(missing / tb.perSecond * float64(time.Second)), false
}

// Remaining 当前可用令牌数（向下取整）
func (tb *TokenBucket) Remaining() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()
	return int(tb.tokens)
}

// 网关端点分组
const (
	EndpointRead = "gateway:read" // 行情/账户查询
	EndpointTx   = "gateway:tx"   // 需要签名确认的交易
)

// Manager 按端点分组限速
type Manager struct {
	limiters map[string]*TokenBucket
}

// NewManager 读请求：容量 perSecond 的令牌桶；交易请求：突发为 1 的令牌桶
func NewManager(perSecond int) *Manager {
	if perSecond < 1 {
		perSecond = 1
	}
	return &Manager{limiters: map[string]*TokenBucket{
		EndpointRead: NewTokenBucket(perSecond, float64(perSecond)),
		EndpointTx:   NewTokenBucket(1, float64(perSecond)),
	}}
}

// Wait 未知端点按读请求限速
func (m *Manager) Wait(ctx context.Context, endpoint string) error {
	tb, ok := m.limiters[endpoint]
	if !ok {
		tb = m.limiters[EndpointRead]
	}
	return tb.Wait(ctx)
}
