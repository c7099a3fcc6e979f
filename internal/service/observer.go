// Package service 包含了客户端的状态核心。
// 每个 store 由进程显式持有、按引用传给使用方，
// 状态变更通过显式的订阅接口通知，而不是环境式的响应性。
package service

import "sync"

// notifier 维护一组变更回调，供各 store 内嵌使用。
type notifier struct {
	mu   sync.Mutex
	subs map[int]func()
	next int
}

// Subscribe 注册一个变更回调，返回取消函数。
// 回调在状态变更后被调用，不携带具体内容，订阅方自行读取最新状态。
func (n *notifier) Subscribe(fn func()) (cancel func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.subs == nil {
		n.subs = make(map[int]func())
	}
	id := n.next
	n.next++
	n.subs[id] = fn
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subs, id)
	}
}

// notify 调用所有已注册的回调。
// 回调在锁外执行，允许回调中再次读取 store。
func (n *notifier) notify() {
	n.mu.Lock()
	fns := make([]func(), 0, len(n.subs))
	for _, fn := range n.subs {
		fns = append(fns, fn)
	}
	n.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
