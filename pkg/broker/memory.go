package broker

import (
	"context"
	"sync"
)

// Memory is an in-process PubSub for single-node deployments and tests.
// Publish invokes handlers synchronously in subscription order.
type Memory struct {
	mu     sync.RWMutex
	subs   map[string][]*memorySub
	closed bool
}

type memorySub struct {
	ctx     context.Context
	handler Handler
}

func NewMemory() *Memory {
	return &Memory{subs: make(map[string][]*memorySub)}
}

func (m *Memory) Publish(ctx context.Context, topic string, payload []byte) error {
	m.mu.RLock()
	subs := append([]*memorySub(nil), m.subs[topic]...)
	m.mu.RUnlock()

	for _, s := range subs {
		if s.ctx.Err() != nil {
			continue
		}
		cp := append([]byte(nil), payload...)
		s.handler(cp)
	}
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, topic string, handler Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return context.Canceled
	}
	s := &memorySub{ctx: ctx, handler: handler}
	m.subs[topic] = append(m.subs[topic], s)

	if done := ctx.Done(); done != nil {
		go func() {
			<-done
			m.remove(topic, s)
		}()
	}
	return nil
}

func (m *Memory) remove(topic string, target *memorySub) {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subs[topic]
	for i, s := range subs {
		if s == target {
			m.subs[topic] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.subs = make(map[string][]*memorySub)
	m.mu.Unlock()
	return nil
}
