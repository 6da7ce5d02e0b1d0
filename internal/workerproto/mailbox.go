package workerproto

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

var ErrMailboxClosed = errors.New("mailbox closed")

// Mailbox resolves waits by correlation id. A delivered message resolves
// the oldest waiter for its id; with no waiter it is held until one
// arrives. Each message resolves exactly one wait. Replies to abandoned
// requests are discarded.
type Mailbox struct {
	mu        sync.Mutex
	waiters   map[string][]chan Message
	pending   map[string][]Message
	abandoned map[string]struct{}
	closed    bool
}

func NewMailbox() *Mailbox {
	return &Mailbox{
		waiters:   make(map[string][]chan Message),
		pending:   make(map[string][]Message),
		abandoned: make(map[string]struct{}),
	}
}

// Deliver routes msg to a waiter or holds it.
func (m *Mailbox) Deliver(msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrMailboxClosed
	}
	if queue := m.waiters[msg.ID]; len(queue) > 0 {
		ch := queue[0]
		m.dropWaiter(msg.ID, 0)
		ch <- msg
		return nil
	}
	if _, ok := m.abandoned[msg.ID]; ok {
		delete(m.abandoned, msg.ID)
		return nil
	}
	m.pending[msg.ID] = append(m.pending[msg.ID], msg)
	return nil
}

// Post implements Port.
func (m *Mailbox) Post(msg Message) error { return m.Deliver(msg) }

// Wait blocks until a message with id arrives, ctx is done or the mailbox
// is closed.
func (m *Mailbox) Wait(ctx context.Context, id string) (Message, error) {
	ch, err := m.expect(id)
	if err != nil {
		return Message{}, err
	}
	return m.await(ctx, id, ch)
}

// expect registers a wait for id. A held message is handed over at once.
func (m *Mailbox) expect(id string) (chan Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrMailboxClosed
	}
	ch := make(chan Message, 1)
	if held := m.pending[id]; len(held) > 0 {
		ch <- held[0]
		if len(held) == 1 {
			delete(m.pending, id)
		} else {
			m.pending[id] = held[1:]
		}
		return ch, nil
	}
	m.waiters[id] = append(m.waiters[id], ch)
	return ch, nil
}

func (m *Mailbox) await(ctx context.Context, id string, ch chan Message) (Message, error) {
	select {
	case msg, ok := <-ch:
		if !ok {
			return Message{}, ErrMailboxClosed
		}
		return msg, nil
	case <-ctx.Done():
		if m.withdraw(id, ch) {
			return Message{}, ctx.Err()
		}
		// Delivered or closed while we were cancelling
		if msg, ok := <-ch; ok {
			return msg, nil
		}
		return Message{}, ErrMailboxClosed
	}
}

// withdraw removes the waiter ch for id. It reports false when ch was
// already resolved.
func (m *Mailbox) withdraw(id string, ch chan Message) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, w := range m.waiters[id] {
		if w == ch {
			m.dropWaiter(id, i)
			return true
		}
	}
	return false
}

// abandon discards the next unclaimed delivery for id.
func (m *Mailbox) abandon(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if held := m.pending[id]; len(held) > 0 {
		delete(m.pending, id)
		return
	}
	m.abandoned[id] = struct{}{}
}

func (m *Mailbox) dropWaiter(id string, i int) {
	queue := m.waiters[id]
	queue = append(queue[:i], queue[i+1:]...)
	if len(queue) == 0 {
		delete(m.waiters, id)
		return
	}
	m.waiters[id] = queue
}

// Close fails all current and future waits with ErrMailboxClosed.
func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for id, queue := range m.waiters {
		for _, ch := range queue {
			close(ch)
		}
		delete(m.waiters, id)
	}
	m.pending = make(map[string][]Message)
	m.abandoned = make(map[string]struct{})
}

// Pending returns the number of held messages.
func (m *Mailbox) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, held := range m.pending {
		n += len(held)
	}
	return n
}

// Request registers a wait on replies, posts msg to port and returns the
// answer. An empty msg.ID is replaced with a fresh correlation id. A reply
// carrying Err is returned together with that error. When ctx ends first,
// a late reply is discarded.
func Request(ctx context.Context, port Port, replies *Mailbox, msg Message) (Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Type == "" {
		msg.Type = TypeRequest
	}
	ch, err := replies.expect(msg.ID)
	if err != nil {
		return Message{}, err
	}
	if err := port.Post(msg); err != nil {
		replies.withdraw(msg.ID, ch)
		return Message{}, err
	}
	reply, err := replies.await(ctx, msg.ID, ch)
	if err != nil {
		if ctx.Err() != nil && !errors.Is(err, ErrMailboxClosed) {
			replies.abandon(msg.ID)
		}
		return Message{}, err
	}
	return reply, reply.Err
}
