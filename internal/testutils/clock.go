package testutils

import (
	"sync"
	"time"
)

// ManualClock 手动推进的虚拟时钟，用于 TTL 相关测试
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock 创建虚拟时钟
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now 返回当前虚拟时间，可直接作为 func() time.Time 注入
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance 推进虚拟时间
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set 设置虚拟时间
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
