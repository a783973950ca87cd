// Package events provides the in-process fan-out channel for committed
// server events. Publication order follows commit order; subscribers run on
// their own goroutines with no cross-subscriber ordering guarantee.
package events

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"mcpreg/internal/domain"
)

const (
	defaultBufferSize = 32
	// backlog length past which a slow subscriber's queue is squashed to the
	// newest event per server
	queueCompactAt = 128
)

type Bus struct {
	logger *zap.Logger
	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
}

type subscriber struct {
	ch   chan domain.ServerEvent
	done chan struct{}
	once sync.Once

	qmu   sync.Mutex
	queue []domain.ServerEvent
	wake  chan struct{}
}

var _ domain.EventBus = (*Bus)(nil)

func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		logger: logger.Named("events"),
		subs:   make(map[*subscriber]struct{}),
	}
}

// Publish delivers event to every live subscriber without blocking the
// publisher. A slow subscriber's backlog is coalesced to the newest event per
// server rather than dropped; the persisted event log stays complete either
// way.
func (b *Bus) Publish(event domain.ServerEvent) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	subs := make([]*subscriber, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		if squashed := sub.enqueue(event); squashed > 0 {
			b.logger.Warn("slow subscriber, coalesced backlog",
				zap.Int("squashed", squashed),
				zap.String("type", string(event.Type)),
			)
		}
	}
}

// Subscribe returns a channel that closes when ctx is done.
func (b *Bus) Subscribe(ctx context.Context) <-chan domain.ServerEvent {
	sub := &subscriber{
		ch:   make(chan domain.ServerEvent, defaultBufferSize),
		done: make(chan struct{}),
		wake: make(chan struct{}, 1),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.ch)
		return sub.ch
	}
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	go sub.pump()
	go func() {
		<-ctx.Done()
		b.remove(sub)
	}()

	return sub.ch
}

func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*subscriber, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
		delete(b.subs, sub)
	}
	b.mu.Unlock()
	for _, sub := range subs {
		sub.stop()
	}
}

func (b *Bus) remove(sub *subscriber) {
	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()
	sub.stop()
}

func (sub *subscriber) stop() {
	sub.once.Do(func() { close(sub.done) })
}

// enqueue never blocks; it reports how many backlog entries a compaction
// squashed, zero when none was needed.
func (sub *subscriber) enqueue(event domain.ServerEvent) int {
	squashed := 0
	sub.qmu.Lock()
	sub.queue = append(sub.queue, event)
	if len(sub.queue) > queueCompactAt {
		before := len(sub.queue)
		sub.queue = compactEvents(sub.queue)
		squashed = before - len(sub.queue)
	}
	sub.qmu.Unlock()
	select {
	case sub.wake <- struct{}{}:
	default:
	}
	return squashed
}

// pump owns sub.ch: it drains the backlog in publish order and closes the
// channel when the subscription ends.
func (sub *subscriber) pump() {
	defer close(sub.ch)
	for {
		select {
		case <-sub.done:
			return
		case <-sub.wake:
		}
		for {
			sub.qmu.Lock()
			if len(sub.queue) == 0 {
				sub.qmu.Unlock()
				break
			}
			next := sub.queue[0]
			sub.queue = sub.queue[1:]
			sub.qmu.Unlock()
			select {
			case sub.ch <- next:
			case <-sub.done:
				return
			}
		}
	}
}

// compactEvents keeps the newest event per server, preserving publish order
// among the survivors.
func compactEvents(queue []domain.ServerEvent) []domain.ServerEvent {
	seen := make(map[domain.ServerID]struct{}, len(queue))
	out := make([]domain.ServerEvent, 0, len(queue))
	for i := len(queue) - 1; i >= 0; i-- {
		if _, dup := seen[queue[i].ServerID]; dup {
			continue
		}
		seen[queue[i].ServerID] = struct{}{}
		out = append(out, queue[i])
	}
	for left, right := 0, len(out)-1; left < right; left, right = left+1, right-1 {
		out[left], out[right] = out[right], out[left]
	}
	return out
}
