package capture

import (
	"context"
	"fmt"
	"sync"
)

// mailbox is the FIFO task queue behind an actor. Posting never blocks,
// including from the actor's own goroutine.
type mailbox struct {
	name   string
	mu     sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}
}

func newMailbox(name string) *mailbox {
	return &mailbox{name: name, wake: make(chan struct{}, 1)}
}

// post enqueues fn. It returns false once the mailbox is closed.
func (m *mailbox) post(fn func()) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.queue = append(m.queue, fn)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
	return true
}

func (m *mailbox) take() []func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	tasks := m.queue
	m.queue = nil
	return tasks
}

// close rejects further posts and returns the tasks still queued.
func (m *mailbox) close() []func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	tasks := m.queue
	m.queue = nil
	return tasks
}

// run executes tasks in order until ctx is cancelled.
func (m *mailbox) run(ctx context.Context, logger Logger) {
	for {
		for _, fn := range m.take() {
			m.exec(fn, logger)
		}
		select {
		case <-ctx.Done():
			return
		case <-m.wake:
		}
	}
}

// exec runs one task, keeping the actor alive if it panics.
func (m *mailbox) exec(fn func(), logger Logger) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("actor task panicked",
				"actor", m.name,
				"panic", fmt.Sprint(rec),
			)
		}
	}()
	fn()
}
