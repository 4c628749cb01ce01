package chat

import (
	"context"
	"sync"
)

// sessionLocks 按会话串行化回合
// 同一会话同时只允许一个回合；后到的回合等待前一个发出 end 或被取消
type sessionLocks struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{slots: make(map[string]chan struct{})}
}

// slot 取或建会话的信号槽（容量 1）
func (l *sessionLocks) slot(sessionID string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[sessionID]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[sessionID] = ch
	}
	return ch
}

// Acquire 获取会话锁；等待期间 ctx 取消则放弃
// 返回释放函数，必须恰好调用一次
func (l *sessionLocks) Acquire(ctx context.Context, sessionID string) (release func(), err error) {
	ch := l.slot(sessionID)
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
