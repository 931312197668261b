// Package pubsub fans values out to buffered subscriber channels.
package pubsub

import "sync"

// Hub broadcasts a stream of values that ends with exactly one final value.
//
// Publish is non-blocking: a subscriber whose buffer is full misses the value.
// Close always delivers the final value, evicting the oldest buffered values
// of a lagging subscriber if needed, then closes every channel. A channel
// obtained after Close holds just the final value.
type Hub[T any] struct {
	mu     sync.Mutex
	subs   map[chan T]struct{}
	buffer int
	closed bool
	final  T
}

// NewHub creates a hub whose subscriber channels hold buffer values.
func NewHub[T any](buffer int) *Hub[T] {
	if buffer < 1 {
		buffer = 1
	}
	return &Hub[T]{
		subs:   make(map[chan T]struct{}),
		buffer: buffer,
	}
}

// Subscribe returns a channel that receives published values until Close.
func (h *Hub[T]) Subscribe() <-chan T {
	return h.SubscribeBuffered(h.buffer)
}

// SubscribeBuffered is Subscribe with a buffer of n values. A subscriber
// whose buffer can hold every value the hub will ever carry, final included,
// never misses one.
func (h *Hub[T]) SubscribeBuffered(n int) <-chan T {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n < 1 {
		n = 1
	}
	ch := make(chan T, n)
	if h.closed {
		ch <- h.final
		close(ch)
		return ch
	}
	h.subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
// Safe to call multiple times or with an unknown channel.
func (h *Hub[T]) Unsubscribe(ch <-chan T) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs {
		if sub == ch {
			delete(h.subs, sub)
			close(sub)
			return
		}
	}
}

// Publish sends v to every subscriber that has room and returns how many
// subscribers missed it. Publishing after Close is a no-op.
func (h *Hub[T]) Publish(v T) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return 0
	}
	dropped := 0
	for ch := range h.subs {
		select {
		case ch <- v:
		default:
			dropped++
		}
	}
	return dropped
}

// Close delivers final to every subscriber and closes all channels.
// It returns false if the hub was already closed.
func (h *Hub[T]) Close(final T) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	h.closed = true
	h.final = final
	for ch := range h.subs {
		forceSend(ch, final)
		close(ch)
	}
	h.subs = nil
	return true
}

// Closed reports whether Close has been called.
func (h *Hub[T]) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// forceSend makes room in ch by discarding its oldest values until v fits.
// Only the hub sends on ch, so a freed slot cannot be taken by another sender.
func forceSend[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
