package dispatch

import (
	"fmt"
	"strings"
	"time"

	"orderbot/internal/clock"
)

// Class is an order's priority class.
type Class int

const (
	ClassNormal Class = iota
	ClassVIP
)

func (c Class) String() string {
	switch c {
	case ClassNormal:
		return "NORMAL"
	case ClassVIP:
		return "VIP"
	default:
		return "UNKNOWN"
	}
}

func (c Class) valid() bool { return c == ClassNormal || c == ClassVIP }

// ParseClass accepts "normal" or "vip" in any case.
func ParseClass(s string) (Class, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "NORMAL", "N":
		return ClassNormal, nil
	case "VIP", "V":
		return ClassVIP, nil
	default:
		return 0, fmt.Errorf("%w: unknown order class %q", ErrInvalidCommand, s)
	}
}

// OrderStatus is the lifecycle state of an order.
type OrderStatus int

const (
	OrderPending    OrderStatus = iota // waiting in the queue
	OrderProcessing                    // bound to a busy worker
	OrderComplete                      // terminal
)

func (s OrderStatus) String() string {
	switch s {
	case OrderPending:
		return "PENDING"
	case OrderProcessing:
		return "PROCESSING"
	case OrderComplete:
		return "COMPLETE"
	default:
		return "UNKNOWN"
	}
}

// WorkerStatus is the availability of a worker.
type WorkerStatus int

const (
	WorkerIdle WorkerStatus = iota
	WorkerBusy
)

func (s WorkerStatus) String() string {
	switch s {
	case WorkerIdle:
		return "IDLE"
	case WorkerBusy:
		return "BUSY"
	default:
		return "UNKNOWN"
	}
}

// Order is a unit of work. Orders are owned by the Scheduler; outer layers
// only ever see copies inside a Snapshot.
type Order struct {
	ID       int
	Class    Class
	Status   OrderStatus
	WorkerID int // 0 unless Status == OrderProcessing

	Attempts    int // number of dispatches; >1 after recovery
	SubmittedAt time.Time
	StartedAt   time.Time // last dispatch
	CompletedAt time.Time
}

// Worker is a bot that processes one order at a time.
type Worker struct {
	ID      int
	Status  WorkerStatus
	OrderID int // 0 unless Status == WorkerBusy

	order *Order
	timer clock.Timer
	token uint64 // dispatch generation captured by the completion callback
}

// Stats are cumulative counters since the scheduler was created.
type Stats struct {
	Submitted      uint64
	Dispatched     uint64
	Completed      uint64
	Requeued       uint64
	StaleCallbacks uint64
	Ticks          uint64
	WorkersAdded   uint64
	WorkersRemoved uint64
}

// Snapshot is a consistent, read-only view of the scheduler.
type Snapshot struct {
	Now            time.Time
	ProcessingTime time.Duration

	Pending    []Order // dispatch order
	Processing []Order // by worker id
	Complete   []Order // completion order

	Workers []Worker
	Stats   Stats
}

// OrderEvent is published on the event bus for order and worker lifecycle changes.
type OrderEvent struct {
	OrderID  int    `json:"order_id,omitempty"`
	Class    string `json:"class,omitempty"`
	Status   string `json:"status,omitempty"`
	WorkerID int    `json:"worker_id,omitempty"`
	Attempts int    `json:"attempts,omitempty"`
	Reason   string `json:"reason,omitempty"`
}
