package store

import (
	"context"
	"sync"

	"mcpreg/internal/domain"
)

const (
	watchBufferSize = 16
	// backlog length past which a slow subscriber's queue is squashed to the
	// newest notification per server
	watchQueueCompact = 64
)

// watchHub fans commit notifications out to subscribers. Delivery is
// at-least-once per matching commit; a slow subscriber's backlog is coalesced
// per server instead of dropped, so the commit that last touched a row always
// reaches the watcher.
type watchHub struct {
	mu   sync.Mutex
	subs map[*watchSub]struct{}
}

type watchSub struct {
	ch     chan domain.Notification
	match  func(domain.Notification) bool
	cancel func()
	done   chan struct{}
	once   sync.Once

	qmu   sync.Mutex
	queue []domain.Notification
	wake  chan struct{}
}

func newWatchHub() *watchHub {
	return &watchHub{subs: make(map[*watchSub]struct{})}
}

func (h *watchHub) subscribe(ctx context.Context, match func(domain.Notification) bool) *domain.Subscription {
	sub := &watchSub{
		ch:    make(chan domain.Notification, watchBufferSize),
		match: match,
		done:  make(chan struct{}),
		wake:  make(chan struct{}, 1),
	}
	sub.cancel = func() {
		sub.once.Do(func() {
			h.mu.Lock()
			delete(h.subs, sub)
			h.mu.Unlock()
			close(sub.done)
		})
	}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	go sub.pump()
	if ctx != nil {
		go func() {
			<-ctx.Done()
			sub.cancel()
		}()
	}
	return &domain.Subscription{C: sub.ch, Cancel: sub.cancel}
}

func (h *watchHub) notify(notification domain.Notification) {
	h.mu.Lock()
	subs := make([]*watchSub, 0, len(h.subs))
	for sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.Unlock()
	for _, sub := range subs {
		if sub.match != nil && !sub.match(notification) {
			continue
		}
		sub.enqueue(notification)
	}
}

func (h *watchHub) closeAll() {
	h.mu.Lock()
	subs := make([]*watchSub, 0, len(h.subs))
	for sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.Unlock()
	for _, sub := range subs {
		sub.cancel()
	}
}

// enqueue never blocks the committer. Watchers re-read on notification, so
// compacting a long backlog to the newest entry per server preserves the
// at-least-once guarantee.
func (sub *watchSub) enqueue(n domain.Notification) {
	sub.qmu.Lock()
	sub.queue = append(sub.queue, n)
	if len(sub.queue) > watchQueueCompact {
		sub.queue = compactNotifications(sub.queue)
	}
	sub.qmu.Unlock()
	select {
	case sub.wake <- struct{}{}:
	default:
	}
}

// pump owns sub.ch: it drains the backlog in commit order and closes the
// channel once the subscription is cancelled.
func (sub *watchSub) pump() {
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

// compactNotifications keeps the newest notification per server, preserving
// commit order among the survivors.
func compactNotifications(queue []domain.Notification) []domain.Notification {
	seen := make(map[domain.ServerID]struct{}, len(queue))
	out := make([]domain.Notification, 0, len(queue))
	for i := len(queue) - 1; i >= 0; i-- {
		if _, dup := seen[queue[i].Server.ID]; dup {
			continue
		}
		seen[queue[i].Server.ID] = struct{}{}
		out = append(out, queue[i])
	}
	for left, right := 0, len(out)-1; left < right; left, right = left+1, right-1 {
		out[left], out[right] = out[right], out[left]
	}
	return out
}

func (s *Store) WatchByID(ctx context.Context, id domain.ServerID) (*domain.Subscription, error) {
	if s.watch == nil {
		return nil, domain.ErrWatchersOff
	}
	return s.watch.subscribe(ctx, func(n domain.Notification) bool {
		return n.Server.ID == id
	}), nil
}

// WatchMany notifies on any commit that could affect the filtered result set:
// the committed row matches, or the pre-commit row did. Matching either side
// covers rows entering the set, rows leaving it, and matching deletions.
func (s *Store) WatchMany(ctx context.Context, filter domain.ListFilter) (*domain.Subscription, error) {
	if s.watch == nil {
		return nil, domain.ErrWatchersOff
	}
	return s.watch.subscribe(ctx, func(n domain.Notification) bool {
		if matchesFilter(n.Server, filter) {
			return true
		}
		return n.Previous != nil && matchesFilter(*n.Previous, filter)
	}), nil
}
