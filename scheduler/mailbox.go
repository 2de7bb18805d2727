package scheduler

import (
	"sync"
	"time"

	"neutron/types"
)

// Message is one mailbox entry: the sender's pid (0 when unknown/host-
// sent), the delivered value (already deep-copied per spec.md §4.3's
// data discipline), and a monotonic send timestamp used only for
// diagnostics — delivery order, not the timestamp value, is what the
// FIFO-and-causal guarantee (spec.md §5) actually relies on.
type Message struct {
	SenderPID int64
	Data      types.Value
	SentAt    time.Time
}

// Mailbox is a per-Process FIFO guarded by a mutex and condition
// variable, per spec.md §5. Enqueue is called by any sender's goroutine;
// TryDequeue is called only by the scheduler worker currently running
// this process, matching the single-reader discipline spec.md §5's
// "Shared resources" paragraph requires.
type Mailbox struct {
	mu    sync.Mutex
	cond  *sync.Cond
	queue []Message
}

func NewMailbox() *Mailbox {
	m := &Mailbox{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Enqueue appends msg and broadcasts on cond. Nothing waits on cond: a
// receiver parked on an empty mailbox is woken by the scheduler instead.
func (m *Mailbox) Enqueue(msg Message) {
	m.mu.Lock()
	m.queue = append(m.queue, msg)
	m.mu.Unlock()
	m.cond.Broadcast()
}

// TryDequeue pops the oldest message without blocking.
func (m *Mailbox) TryDequeue() (Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return Message{}, false
	}
	msg := m.queue[0]
	m.queue = m.queue[1:]
	return msg, true
}

// Len reports the number of queued, undelivered messages.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}
