package clock

import (
	"container/heap"
	"sync"
	"time"
)

// Manual is a simulated clock. Time only moves forward through Advance, and
// due callbacks run synchronously on the goroutine calling Advance, ordered
// by due time and then by scheduling order.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	seq     uint64
	pending timerHeap
}

// NewManual returns a Manual clock starting at start.
// A zero start is replaced by the Unix epoch so Now() never reports the zero time.
func NewManual(start time.Time) *Manual {
	if start.IsZero() {
		start = time.Unix(0, 0).UTC()
	}
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) AfterFunc(d time.Duration, fn func()) Timer {
	if d < 0 {
		d = 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{m: m, when: m.now.Add(d), seq: m.seq, fn: fn, index: -1}
	heap.Push(&m.pending, t)
	return t
}

// Advance moves the clock forward by d and fires every callback that becomes
// due, including callbacks scheduled by callbacks fired during this call.
// Now() reports each timer's due time while its callback runs.
// It returns the number of callbacks fired.
func (m *Manual) Advance(d time.Duration) int {
	if d < 0 {
		d = 0
	}
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	fired := 0
	for {
		m.mu.Lock()
		if m.pending.Len() == 0 || m.pending[0].when.After(target) {
			m.now = target
			m.mu.Unlock()
			return fired
		}
		t := heap.Pop(&m.pending).(*manualTimer)
		if t.when.After(m.now) {
			m.now = t.when
		}
		fn := t.fn
		m.mu.Unlock()

		// Run without holding m.mu: callbacks may call Now/AfterFunc/Stop.
		if fn != nil {
			fn()
		}
		fired++
	}
}

// Pending returns the number of scheduled callbacks that have not fired or been stopped.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending.Len()
}

type manualTimer struct {
	m     *Manual
	when  time.Time
	seq   uint64
	fn    func()
	index int // position in the heap; -1 once popped or stopped
}

func (t *manualTimer) Stop() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if t.index < 0 {
		return false
	}
	heap.Remove(&t.m.pending, t.index)
	return true
}

// timerHeap implements heap.Interface ordered by (when, seq).
type timerHeap []*manualTimer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if !h[i].when.Equal(h[j].when) {
		return h[i].when.Before(h[j].when)
	}
	return h[i].seq < h[j].seq
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*manualTimer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil // avoid memory leak
	t.index = -1
	*h = old[:n-1]
	return t
}
