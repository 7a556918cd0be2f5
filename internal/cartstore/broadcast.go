package cartstore

import "sync"

// MemoryBus is an in-process Bus connecting replicas of the same user,
// standing in for a same-origin broadcast channel.
type MemoryBus struct {
	mu   sync.Mutex
	subs map[int]func(Message)
	next int
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[int]func(Message))}
}

func (b *MemoryBus) Publish(msg Message) {
	b.mu.Lock()
	fns := make([]func(Message), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(msg)
	}
}

func (b *MemoryBus) Subscribe(fn func(Message)) (cancel func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}
