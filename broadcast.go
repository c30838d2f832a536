package goSession

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Subscription delivers AuthState snapshots. A slow subscriber only ever
// misses intermediate states; the most recent snapshot is always delivered.
type Subscription struct {
	ID uuid.UUID
	ch chan AuthState

	closeOnce sync.Once
}

// C returns the channel snapshots are delivered on. It is closed by
// Unsubscribe or Manager.Close.
func (s *Subscription) C() <-chan AuthState {
	return s.ch
}

func (s *Subscription) close() {
	s.closeOnce.Do(func() { close(s.ch) })
}

// broadcaster fans snapshots out to subscribers without blocking the publisher.
type broadcaster struct {
	mu        sync.Mutex
	subs      map[uuid.UUID]*Subscription
	closed    bool
	coalesced atomic.Uint64
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[uuid.UUID]*Subscription)}
}

// subscribe registers a subscriber and primes it with initial.
func (b *broadcaster) subscribe(buffer int, initial AuthState) *Subscription {
	if buffer <= 0 {
		buffer = 1
	}
	sub := &Subscription{ID: uuid.New(), ch: make(chan AuthState, buffer)}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.close()
		return sub
	}
	b.subs[sub.ID] = sub
	sub.ch <- initial
	return sub
}

func (b *broadcaster) unsubscribe(id uuid.UUID) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	delete(b.subs, id)
	b.mu.Unlock()
	if ok {
		sub.close()
	}
}

// publish offers state to every subscriber. A full channel has its oldest
// snapshot replaced.
func (b *broadcaster) publish(state AuthState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	for _, sub := range b.subs {
		snap := state.clone()
		select {
		case sub.ch <- snap:
			continue
		default:
		}
		select {
		case <-sub.ch:
			b.coalesced.Add(1)
		default:
		}
		select {
		case sub.ch <- snap:
		default:
			b.coalesced.Add(1)
		}
	}
}

func (b *broadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *broadcaster) close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = map[uuid.UUID]*Subscription{}
	b.closed = true
	b.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}
