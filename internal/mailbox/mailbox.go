// Package mailbox provides an unbounded single-consumer FIFO channel.
//
// Actors communicate exclusively through mailboxes: senders never block, the
// owning actor drains Out(). Closing a mailbox makes further sends fail with
// ErrClosed instead of panicking, which is how a game actor observes that a
// user's writer is gone while still holding their outbox.
package mailbox

import (
	"errors"
	"sync"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("mailbox closed")

// Mailbox is an unbounded FIFO. Send may be called from any goroutine;
// Out must have a single consumer.
type Mailbox[T any] struct {
	mu     sync.Mutex
	queue  []T
	wake   chan struct{}
	closed bool
	out    chan T
}

// New creates a mailbox and starts its pump goroutine. The pump exits when
// the mailbox is closed and the backlog is drained, closing Out.
func New[T any]() *Mailbox[T] {
	m := &Mailbox[T]{
		wake: make(chan struct{}, 1),
		out:  make(chan T),
	}
	go m.pump()
	return m
}

// Send enqueues v, preserving per-sender order. Never blocks.
func (m *Mailbox[T]) Send(v T) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.queue = append(m.queue, v)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
	return nil
}

// Out returns the receive side. It is closed once the mailbox is closed and
// every queued value has been delivered.
func (m *Mailbox[T]) Out() <-chan T {
	return m.out
}

// Close stops further sends. Idempotent. Queued values are still delivered.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	already := m.closed
	m.closed = true
	m.mu.Unlock()
	if already {
		return
	}
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Mailbox[T]) pump() {
	defer close(m.out)
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			if m.closed {
				m.mu.Unlock()
				return
			}
			m.mu.Unlock()
			<-m.wake
			continue
		}
		v := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()
		m.out <- v
	}
}
