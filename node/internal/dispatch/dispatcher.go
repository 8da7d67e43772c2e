package dispatch

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/freshwatch/freshwatch/node/internal/executor"
	"github.com/freshwatch/freshwatch/pkg/types"
)

// Dispatcher fans updates out to subscribers. All methods are safe for
// concurrent use.
type Dispatcher struct {
	exec executor.Executor

	mu    sync.Mutex
	boxes map[types.Subscriber]*mailbox

	pending   sync.WaitGroup
	delivered atomic.Int64
}

// mailbox is one subscriber's queue. running is set while a drain task owns
// the queue.
type mailbox struct {
	queue   []types.Update
	running bool
}

// NewDispatcher returns a Dispatcher running drains on exec.
func NewDispatcher(exec executor.Executor) *Dispatcher {
	return &Dispatcher{
		exec:  exec,
		boxes: make(map[types.Subscriber]*mailbox),
	}
}

// Enqueue appends u to sub's mailbox. It never blocks on subscriber code and
// may be called with other locks held. When it returns true the caller must
// call Start(sub) after releasing those locks.
func (d *Dispatcher) Enqueue(sub types.Subscriber, u types.Update) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	mb, ok := d.boxes[sub]
	if !ok {
		mb = &mailbox{}
		d.boxes[sub] = mb
	}
	mb.queue = append(mb.queue, u)
	if mb.running {
		return false
	}
	mb.running = true
	d.pending.Add(1)
	return true
}

// EnqueueAll enqueues u for every subscriber in subs and returns the ones
// that need Start.
func (d *Dispatcher) EnqueueAll(subs []types.Subscriber, u types.Update) []types.Subscriber {
	var start []types.Subscriber
	for _, sub := range subs {
		if d.Enqueue(sub, u) {
			start = append(start, sub)
		}
	}
	return start
}

// Start schedules the drain of sub's mailbox on the executor.
func (d *Dispatcher) Start(sub types.Subscriber) {
	d.exec.Execute(func() { d.drain(sub) }, "dispatch: notify subscriber")
}

// StartAll calls Start for each subscriber.
func (d *Dispatcher) StartAll(subs []types.Subscriber) {
	for _, sub := range subs {
		d.Start(sub)
	}
}

// Wait blocks until every mailbox started so far is empty.
func (d *Dispatcher) Wait() { d.pending.Wait() }

// Delivered returns the number of updates handed to subscribers.
func (d *Dispatcher) Delivered() int64 { return d.delivered.Load() }

// Backlog returns the number of queued, undelivered updates.
func (d *Dispatcher) Backlog() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, mb := range d.boxes {
		n += len(mb.queue)
	}
	return n
}

func (d *Dispatcher) drain(sub types.Subscriber) {
	defer d.pending.Done()
	for {
		d.mu.Lock()
		mb := d.boxes[sub]
		if len(mb.queue) == 0 {
			mb.running = false
			delete(d.boxes, sub)
			d.mu.Unlock()
			return
		}
		u := mb.queue[0]
		mb.queue[0] = types.Update{}
		mb.queue = mb.queue[1:]
		d.mu.Unlock()

		d.deliver(sub, u)
	}
}

func (d *Dispatcher) deliver(sub types.Subscriber, u types.Update) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("dispatch: subscriber panicked",
				"key", u.Key.ID(), "edition", u.Edition, "panic", r)
		}
	}()
	sub.OnFoundEdition(u)
	d.delivered.Add(1)
}
