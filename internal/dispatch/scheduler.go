package dispatch

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"orderbot/internal/clock"
	"orderbot/internal/eventbus"
	logx "orderbot/pkg/logx"
)

// DefaultProcessingTime is how long a worker spends on one order.
const DefaultProcessingTime = 10 * time.Second

// Event types published on the bus.
const (
	EventOrderSubmitted  = "order.submitted"
	EventOrderDispatched = "order.dispatched"
	EventOrderCompleted  = "order.completed"
	EventOrderRequeued   = "order.requeued"
	EventWorkerAdded     = "worker.added"
	EventWorkerRemoved   = "worker.removed"
	EventCallbackStale   = "callback.stale"
)

// Config controls the scheduler.
type Config struct {
	// ProcessingTime is the fixed duration of every order.
	// Changes apply to dispatches made after Apply.
	ProcessingTime time.Duration

	// EagerMatch runs a matching pass right after every submit, add-worker,
	// completion and recovery, in addition to the periodic Tick.
	EagerMatch bool
}

func (c Config) withDefaults() Config {
	if c.ProcessingTime <= 0 {
		c.ProcessingTime = DefaultProcessingTime
	}
	return c
}

// Scheduler matches idle workers to pending orders and owns every state
// transition. All mutations happen under mu: commands, the matching tick,
// completion callbacks and recovery never interleave.
type Scheduler struct {
	mu  sync.Mutex
	cfg Config
	clk clock.Clock
	log logx.Logger
	bus eventbus.Bus

	queue orderQueue
	pool  workerPool

	orders   []*Order // every order, creation order
	done     []*Order // completion order
	nextID   int
	tokenSeq uint64

	stats Stats

	staleWarn rate.Sometimes
}

func New(cfg Config, clk clock.Clock, log logx.Logger, bus eventbus.Bus) *Scheduler {
	if clk == nil {
		clk = clock.Real()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{
		cfg:       cfg.withDefaults(),
		clk:       clk,
		log:       log,
		bus:       bus,
		staleWarn: rate.Sometimes{First: 1, Interval: 5 * time.Second},
	}
}

// Apply swaps the runtime config. In-flight orders keep the duration they
// were dispatched with.
func (s *Scheduler) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg.withDefaults()
	if s.cfg.EagerMatch {
		s.matchLocked()
	}
}

// SubmitOrder creates a pending order of the given class and queues it.
func (s *Scheduler) SubmitOrder(class Class) (int, error) {
	if !class.valid() {
		return 0, fmt.Errorf("%w: unknown order class %d", ErrInvalidCommand, int(class))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	o := &Order{
		ID:          s.nextID,
		Class:       class,
		Status:      OrderPending,
		SubmittedAt: s.clk.Now(),
	}
	s.orders = append(s.orders, o)
	s.queue.Enqueue(o)
	s.stats.Submitted++

	s.log.Debug("order submitted", logx.Order(o.ID), logx.Class(class), logx.Int("queue_len", s.queue.Len()))
	s.publishLocked(EventOrderSubmitted, OrderEvent{OrderID: o.ID, Class: class.String(), Status: o.Status.String()})

	if s.cfg.EagerMatch {
		s.matchLocked()
	}
	return o.ID, nil
}

// AddWorker creates an idle worker and returns its id.
func (s *Scheduler) AddWorker() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.pool.Add()
	s.stats.WorkersAdded++
	s.log.Info("worker added", logx.Worker(w.ID), logx.Int("workers", s.pool.Len()))
	s.publishLocked(EventWorkerAdded, OrderEvent{WorkerID: w.ID})

	if s.cfg.EagerMatch {
		s.matchLocked()
	}
	return w.ID
}

// RemoveWorker removes the most recently added worker. A busy worker's timer
// is cancelled and its order goes back to the queue before the worker is
// dropped. It returns ErrEmptyPool when there is nothing to remove.
func (s *Scheduler) RemoveWorker() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.pool.Last()
	if !ok {
		return 0, ErrEmptyPool
	}
	if w.Status == WorkerBusy {
		s.recoverLocked(w)
	}
	s.pool.RemoveLast()
	s.stats.WorkersRemoved++

	s.log.Info("worker removed", logx.Worker(w.ID), logx.Int("workers", s.pool.Len()))
	s.publishLocked(EventWorkerRemoved, OrderEvent{WorkerID: w.ID})

	if s.cfg.EagerMatch {
		s.matchLocked()
	}
	return w.ID, nil
}

// Tick runs one matching pass and returns the number of dispatches made.
// With no idle worker or no pending order it changes nothing but the tick counter.
func (s *Scheduler) Tick() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Ticks++
	return s.matchLocked()
}

// matchLocked binds idle workers (id order) to pending orders (queue order)
// until either runs out. Call with s.mu held.
func (s *Scheduler) matchLocked() int {
	if s.queue.Len() == 0 {
		return 0
	}
	n := 0
	for w := range s.pool.Idle() {
		o, ok := s.queue.PopNext()
		if !ok {
			break
		}
		s.dispatchLocked(o, w)
		n++
	}
	return n
}

// dispatchLocked moves o to PROCESSING and w to BUSY together and schedules
// the completion callback. Call with s.mu held.
func (s *Scheduler) dispatchLocked(o *Order, w *Worker) {
	now := s.clk.Now()
	s.tokenSeq++
	token := s.tokenSeq

	o.Status = OrderProcessing
	o.WorkerID = w.ID
	o.Attempts++
	o.StartedAt = now

	w.Status = WorkerBusy
	w.order = o
	w.OrderID = o.ID
	w.token = token

	workerID, orderID, d := w.ID, o.ID, s.cfg.ProcessingTime
	w.timer = s.clk.AfterFunc(d, func() { s.complete(workerID, orderID, token) })

	s.stats.Dispatched++
	s.log.Debug("order dispatched", logx.Order(orderID), logx.Worker(workerID), logx.Int("attempt", o.Attempts), logx.Duration("processing_time", d))
	s.publishLocked(EventOrderDispatched, OrderEvent{OrderID: orderID, Class: o.Class.String(), Status: o.Status.String(), WorkerID: workerID, Attempts: o.Attempts})
}

// complete is the timer callback for one dispatch. The ids and token were
// captured when the timer was scheduled; if the worker is gone or has moved
// on, the callback is discarded.
func (s *Scheduler) complete(workerID, orderID int, token uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.pool.Get(workerID)
	switch {
	case !ok:
		s.staleLocked(workerID, orderID, "worker_removed")
		return
	case w.Status != WorkerBusy || w.order == nil || w.order.ID != orderID || w.token != token:
		s.staleLocked(workerID, orderID, "assignment_changed")
		return
	}

	o := w.order
	o.Status = OrderComplete
	o.WorkerID = 0
	o.CompletedAt = s.clk.Now()

	w.Status = WorkerIdle
	w.order = nil
	w.OrderID = 0
	w.timer = nil
	w.token = 0

	s.done = append(s.done, o)
	s.stats.Completed++
	s.log.Debug("order completed", logx.Order(orderID), logx.Worker(workerID), logx.Duration("took", o.CompletedAt.Sub(o.StartedAt)))
	s.publishLocked(EventOrderCompleted, OrderEvent{OrderID: orderID, Class: o.Class.String(), Status: o.Status.String(), WorkerID: workerID, Attempts: o.Attempts})

	if s.cfg.EagerMatch {
		s.matchLocked()
	}
}

// recoverLocked unwinds a busy worker's assignment: the timer is stopped
// first, then the order returns to the queue as PENDING. Call with s.mu held.
func (s *Scheduler) recoverLocked(w *Worker) {
	if w.timer != nil {
		// A callback that already fired is blocked on s.mu and will find the
		// token cleared below.
		w.timer.Stop()
	}
	o := w.order

	w.Status = WorkerIdle
	w.order = nil
	w.OrderID = 0
	w.timer = nil
	w.token = 0

	if o == nil {
		return
	}
	o.Status = OrderPending
	o.WorkerID = 0
	s.queue.RequeueFront(o)
	s.stats.Requeued++

	s.log.Info("order requeued", logx.Order(o.ID), logx.Worker(w.ID), logx.Class(o.Class))
	s.publishLocked(EventOrderRequeued, OrderEvent{OrderID: o.ID, Class: o.Class.String(), Status: o.Status.String(), WorkerID: w.ID, Attempts: o.Attempts, Reason: "worker_removed"})
}

func (s *Scheduler) staleLocked(workerID, orderID int, reason string) {
	s.stats.StaleCallbacks++
	total := s.stats.StaleCallbacks
	s.staleWarn.Do(func() {
		s.log.Warn("completion callback discarded", logx.Err(ErrStaleCallback), logx.Order(orderID), logx.Worker(workerID), logx.String("reason", reason), logx.Uint64("stale_total", total))
	})
	s.publishLocked(EventCallbackStale, OrderEvent{OrderID: orderID, WorkerID: workerID, Reason: reason})
}

// publishLocked is safe under s.mu: Bus.Publish never blocks.
func (s *Scheduler) publishLocked(typ string, data OrderEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: s.clk.Now(), Data: data})
}

// Stats returns the cumulative counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Snapshot returns a copy of the current state, consistent as of the last
// completed mutation.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Now:            s.clk.Now(),
		ProcessingTime: s.cfg.ProcessingTime,
		Pending:        s.queue.Orders(),
		Processing:     make([]Order, 0, s.pool.Len()),
		Complete:       make([]Order, 0, len(s.done)),
		Workers:        s.pool.Workers(),
		Stats:          s.stats,
	}
	for _, w := range s.pool.workers {
		if w.Status == WorkerBusy && w.order != nil {
			snap.Processing = append(snap.Processing, *w.order)
		}
	}
	for _, o := range s.done {
		snap.Complete = append(snap.Complete, *o)
	}
	return snap
}

// Verify checks the order/worker invariants and returns the first violation.
func (s *Scheduler) Verify() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verifyLocked()
}

func (s *Scheduler) verifyLocked() error {
	queued := make(map[int]int, s.queue.Len())
	for _, o := range s.queue.items {
		if o.Status != OrderPending {
			return fmt.Errorf("order %d is queued with status %s", o.ID, o.Status)
		}
		queued[o.ID]++
	}

	heldBy := make(map[int]int, s.pool.Len())
	for _, w := range s.pool.workers {
		switch w.Status {
		case WorkerBusy:
			o := w.order
			if o == nil || w.timer == nil || w.OrderID != o.ID {
				return fmt.Errorf("busy worker %d has no order or timer", w.ID)
			}
			if o.Status != OrderProcessing || o.WorkerID != w.ID {
				return fmt.Errorf("worker %d holds order %d (%s, worker %d)", w.ID, o.ID, o.Status, o.WorkerID)
			}
			if prev, dup := heldBy[o.ID]; dup {
				return fmt.Errorf("order %d held by workers %d and %d", o.ID, prev, w.ID)
			}
			heldBy[o.ID] = w.ID
		case WorkerIdle:
			if w.order != nil || w.timer != nil || w.OrderID != 0 {
				return fmt.Errorf("idle worker %d still holds an assignment", w.ID)
			}
		}
	}

	for _, o := range s.orders {
		inQueue := queued[o.ID]
		_, held := heldBy[o.ID]
		switch o.Status {
		case OrderPending:
			if inQueue != 1 || held || o.WorkerID != 0 {
				return fmt.Errorf("pending order %d: queued=%d held=%v worker=%d", o.ID, inQueue, held, o.WorkerID)
			}
		case OrderProcessing:
			if inQueue != 0 || !held {
				return fmt.Errorf("processing order %d: queued=%d held=%v", o.ID, inQueue, held)
			}
		case OrderComplete:
			if inQueue != 0 || held || o.WorkerID != 0 {
				return fmt.Errorf("complete order %d still tracked: queued=%d held=%v", o.ID, inQueue, held)
			}
		}
	}
	return nil
}
