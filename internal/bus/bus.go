package bus

import "sync"

const defaultBuffer = 64

// Bus fans events out to independent subscribers. Publishing never blocks:
// each subscriber owns a bounded delivery queue, and when a slow subscriber's
// queue fills, its oldest undelivered event is dropped to make room. Events
// are delivered to every subscriber in publish order.
type Bus[T any] struct {
	mu     sync.Mutex
	closed bool
	buffer int
	subs   map[*Subscription[T]]struct{}
}

// Subscription is one subscriber's view of the bus. Events arrive on the
// channel returned by Events from the point of subscription onward.
type Subscription[T any] struct {
	bus     *Bus[T]
	ch      chan T
	filter  func(T) bool
	once    sync.Once
	dropped int
}

// New constructs a bus whose subscribers buffer up to bufferSize undelivered
// events each.
func New[T any](bufferSize int) *Bus[T] {
	if bufferSize <= 0 {
		bufferSize = defaultBuffer
	}
	return &Bus[T]{
		buffer: bufferSize,
		subs:   make(map[*Subscription[T]]struct{}),
	}
}

// Subscribe registers a subscriber that receives every published event.
func (b *Bus[T]) Subscribe() *Subscription[T] {
	return b.SubscribeFunc(nil)
}

// SubscribeFunc registers a subscriber that receives events matching the
// filter. A nil filter matches everything.
func (b *Bus[T]) SubscribeFunc(filter func(T) bool) *Subscription[T] {
	sub := &Subscription[T]{
		bus:    b,
		ch:     make(chan T, b.buffer),
		filter: filter,
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Publish delivers evt to every active subscriber without blocking. Holding
// the bus lock for the full delivery keeps the relative order of events
// identical across subscribers.
func (b *Bus[T]) Publish(evt T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for sub := range b.subs {
		if sub.filter != nil && !sub.filter(evt) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			// Queue full: shed the oldest event so newer state wins.
			select {
			case <-sub.ch:
				sub.dropped++
			default:
			}
			select {
			case sub.ch <- evt:
			default:
			}
		}
	}
}

// Close terminates the bus. All subscriber channels are closed after any
// already-queued events are drained by their receivers.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		close(sub.ch)
	}
	b.subs = make(map[*Subscription[T]]struct{})
}

// Events exposes the subscriber's delivery channel.
func (s *Subscription[T]) Events() <-chan T {
	return s.ch
}

// Cancel removes the subscription and closes its channel. Safe to call more
// than once.
func (s *Subscription[T]) Cancel() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		if _, ok := s.bus.subs[s]; ok {
			delete(s.bus.subs, s)
			close(s.ch)
		}
	})
}

// Dropped reports how many events were shed because the subscriber fell
// behind. Diagnostic only.
func (s *Subscription[T]) Dropped() int {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	return s.dropped
}
