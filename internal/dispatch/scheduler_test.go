package dispatch

import (
	"bytes"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"orderbot/internal/clock"
	"orderbot/internal/eventbus"
	logx "orderbot/pkg/logx"
)

const testProcessing = 10 * time.Second

func newTestScheduler(t *testing.T, cfg Config) (*Scheduler, *clock.Manual) {
	t.Helper()
	if cfg.ProcessingTime == 0 {
		cfg.ProcessingTime = testProcessing
	}
	clk := clock.NewManual(time.Time{})
	return New(cfg, clk, logx.Nop(), nil), clk
}

// step advances one second and runs a matching tick, like the production ticker.
func step(t *testing.T, s *Scheduler, clk *clock.Manual) {
	t.Helper()
	clk.Advance(time.Second)
	s.Tick()
	mustVerify(t, s)
}

func mustVerify(t *testing.T, s *Scheduler) {
	t.Helper()
	if err := s.Verify(); err != nil {
		t.Fatalf("invariant violated: %v", err)
	}
}

func orderStatus(t *testing.T, snap Snapshot, id int) OrderStatus {
	t.Helper()
	for _, group := range [][]Order{snap.Pending, snap.Processing, snap.Complete} {
		for _, o := range group {
			if o.ID == id {
				return o.Status
			}
		}
	}
	t.Fatalf("order %d not found in snapshot", id)
	return 0
}

func pendingIDs(snap Snapshot) []int {
	ids := make([]int, 0, len(snap.Pending))
	for _, o := range snap.Pending {
		ids = append(ids, o.ID)
	}
	return ids
}

func TestScenarioSingleOrderLifecycle(t *testing.T) {
	s, clk := newTestScheduler(t, Config{})
	id, err := s.SubmitOrder(ClassNormal)
	if err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}
	s.AddWorker()

	step(t, s, clk) // tick 1
	snap := s.Snapshot()
	if got := orderStatus(t, snap, id); got != OrderProcessing {
		t.Fatalf("after tick 1 status = %s, want PROCESSING", got)
	}
	if snap.Workers[0].Status != WorkerBusy || snap.Workers[0].OrderID != id {
		t.Fatalf("worker = %+v, want busy with order %d", snap.Workers[0], id)
	}

	ticks := int(testProcessing / time.Second)
	for i := 2; i <= ticks; i++ {
		step(t, s, clk)
		if got := orderStatus(t, s.Snapshot(), id); got != OrderProcessing {
			t.Fatalf("tick %d: status = %s, want PROCESSING", i, got)
		}
	}

	step(t, s, clk) // tick 1 + duration
	snap = s.Snapshot()
	if got := orderStatus(t, snap, id); got != OrderComplete {
		t.Fatalf("tick %d: status = %s, want COMPLETE", ticks+1, got)
	}
	if snap.Workers[0].Status != WorkerIdle {
		t.Fatalf("worker should be idle after completion, got %s", snap.Workers[0].Status)
	}
	c := snap.Complete[0]
	if d := c.CompletedAt.Sub(c.StartedAt); d != testProcessing {
		t.Fatalf("processing took %s, want %s", d, testProcessing)
	}
}

func TestScenarioVIPPriority(t *testing.T) {
	s, _ := newTestScheduler(t, Config{})
	n1, _ := s.SubmitOrder(ClassNormal)
	n2, _ := s.SubmitOrder(ClassNormal)
	v, _ := s.SubmitOrder(ClassVIP)

	want := []int{v, n1, n2}
	if got := pendingIDs(s.Snapshot()); !sameInts(got, want) {
		t.Fatalf("pending = %v, want %v", got, want)
	}
	mustVerify(t, s)
}

func TestVIPQueuesBehindEarlierVIP(t *testing.T) {
	s, _ := newTestScheduler(t, Config{})
	v1, _ := s.SubmitOrder(ClassVIP)
	n1, _ := s.SubmitOrder(ClassNormal)
	v2, _ := s.SubmitOrder(ClassVIP)

	want := []int{v1, v2, n1}
	if got := pendingIDs(s.Snapshot()); !sameInts(got, want) {
		t.Fatalf("pending = %v, want %v", got, want)
	}
}

func TestScenarioRemoveBusyWorker(t *testing.T) {
	s, clk := newTestScheduler(t, Config{})
	s.AddWorker()
	id, _ := s.SubmitOrder(ClassNormal)
	step(t, s, clk)
	if got := orderStatus(t, s.Snapshot(), id); got != OrderProcessing {
		t.Fatalf("status = %s, want PROCESSING", got)
	}

	clk.Advance(3 * time.Second)
	if _, err := s.RemoveWorker(); err != nil {
		t.Fatalf("RemoveWorker: %v", err)
	}
	mustVerify(t, s)

	snap := s.Snapshot()
	if len(snap.Workers) != 0 {
		t.Fatalf("workers = %d, want 0", len(snap.Workers))
	}
	if len(snap.Pending) != 1 || snap.Pending[0].ID != id || snap.Pending[0].WorkerID != 0 {
		t.Fatalf("pending = %+v, want order %d unassigned", snap.Pending, id)
	}
	if snap.Stats.Requeued != 1 {
		t.Fatalf("requeued = %d, want 1", snap.Stats.Requeued)
	}

	// The first completion time passes without any late mutation.
	if n := clk.Advance(testProcessing); n != 0 {
		t.Fatalf("%d timers fired after recovery, want 0", n)
	}
	snap = s.Snapshot()
	if got := orderStatus(t, snap, id); got != OrderPending {
		t.Fatalf("status after first deadline = %s, want PENDING", got)
	}
	if snap.Stats.Completed != 0 || snap.Stats.StaleCallbacks != 0 {
		t.Fatalf("stats = %+v, want no completion", snap.Stats)
	}
}

func TestRecoveredOrderIsRedispatched(t *testing.T) {
	s, clk := newTestScheduler(t, Config{})
	s.AddWorker()
	id, _ := s.SubmitOrder(ClassNormal)
	step(t, s, clk)
	if _, err := s.RemoveWorker(); err != nil {
		t.Fatal(err)
	}

	s.AddWorker()
	step(t, s, clk)
	snap := s.Snapshot()
	if len(snap.Processing) != 1 || snap.Processing[0].ID != id {
		t.Fatalf("processing = %+v, want order %d", snap.Processing, id)
	}
	if snap.Processing[0].Attempts != 2 {
		t.Fatalf("attempts = %d, want 2", snap.Processing[0].Attempts)
	}
	if snap.Processing[0].WorkerID != 2 {
		t.Fatalf("worker id = %d, want 2", snap.Processing[0].WorkerID)
	}
}

// A recovered NORMAL order is re-inserted by class, so a VIP that arrived
// while it was in flight stays ahead of it.
func TestRequeueLetsLaterVIPStayAhead(t *testing.T) {
	s, clk := newTestScheduler(t, Config{})
	s.AddWorker()
	n1, _ := s.SubmitOrder(ClassNormal)
	step(t, s, clk)
	v1, _ := s.SubmitOrder(ClassVIP)

	if _, err := s.RemoveWorker(); err != nil {
		t.Fatal(err)
	}
	want := []int{v1, n1}
	if got := pendingIDs(s.Snapshot()); !sameInts(got, want) {
		t.Fatalf("pending = %v, want %v", got, want)
	}
	mustVerify(t, s)
}

func TestRemoveWorkerEmptyPool(t *testing.T) {
	s, _ := newTestScheduler(t, Config{})
	before := s.Snapshot()

	_, err := s.RemoveWorker()
	if !errors.Is(err, ErrEmptyPool) || !errors.Is(err, ErrInvalidCommand) {
		t.Fatalf("err = %v, want ErrEmptyPool wrapping ErrInvalidCommand", err)
	}
	after := s.Snapshot()
	if after.Stats != before.Stats || len(after.Workers) != 0 {
		t.Fatalf("state changed on rejected command: %+v", after.Stats)
	}
}

func TestRemoveWorkerPicksMostRecent(t *testing.T) {
	s, _ := newTestScheduler(t, Config{})
	s.AddWorker()
	s.AddWorker()
	id, err := s.RemoveWorker()
	if err != nil || id != 2 {
		t.Fatalf("RemoveWorker = %d, %v; want 2", id, err)
	}
	if got := s.AddWorker(); got != 3 {
		t.Fatalf("AddWorker = %d, want 3", got)
	}
}

func TestIdleTickChangesNothing(t *testing.T) {
	t.Run("no workers", func(t *testing.T) {
		s, _ := newTestScheduler(t, Config{})
		s.SubmitOrder(ClassNormal)
		before := s.Snapshot()
		if n := s.Tick(); n != 0 {
			t.Fatalf("dispatched %d, want 0", n)
		}
		assertSameState(t, before, s.Snapshot())
	})
	t.Run("no orders", func(t *testing.T) {
		s, _ := newTestScheduler(t, Config{})
		s.AddWorker()
		before := s.Snapshot()
		if n := s.Tick(); n != 0 {
			t.Fatalf("dispatched %d, want 0", n)
		}
		assertSameState(t, before, s.Snapshot())
	})
	t.Run("all busy", func(t *testing.T) {
		s, _ := newTestScheduler(t, Config{})
		s.AddWorker()
		s.SubmitOrder(ClassNormal)
		s.SubmitOrder(ClassNormal)
		s.Tick()
		before := s.Snapshot()
		if n := s.Tick(); n != 0 {
			t.Fatalf("dispatched %d, want 0", n)
		}
		assertSameState(t, before, s.Snapshot())
	})
}

func assertSameState(t *testing.T, a, b Snapshot) {
	t.Helper()
	if !sameInts(pendingIDs(a), pendingIDs(b)) || len(a.Processing) != len(b.Processing) || len(a.Complete) != len(b.Complete) {
		t.Fatalf("orders changed: %+v -> %+v", a, b)
	}
	for i := range a.Workers {
		if a.Workers[i] != b.Workers[i] {
			t.Fatalf("worker changed: %+v -> %+v", a.Workers[i], b.Workers[i])
		}
	}
	as, bs := a.Stats, b.Stats
	as.Ticks, bs.Ticks = 0, 0
	if as != bs {
		t.Fatalf("stats changed: %+v -> %+v", a.Stats, b.Stats)
	}
}

func TestTickFillsWorkersInIDOrder(t *testing.T) {
	s, clk := newTestScheduler(t, Config{})
	for range 3 {
		s.AddWorker()
	}
	n1, _ := s.SubmitOrder(ClassNormal)
	v1, _ := s.SubmitOrder(ClassVIP)

	clk.Advance(time.Second)
	if n := s.Tick(); n != 2 {
		t.Fatalf("dispatched %d, want 2", n)
	}
	snap := s.Snapshot()
	if snap.Workers[0].OrderID != v1 || snap.Workers[1].OrderID != n1 || snap.Workers[2].Status != WorkerIdle {
		t.Fatalf("workers = %+v", snap.Workers)
	}
	mustVerify(t, s)
}

func TestCompletionNeverEarly(t *testing.T) {
	s, clk := newTestScheduler(t, Config{ProcessingTime: 4 * time.Second})
	s.AddWorker()
	id, _ := s.SubmitOrder(ClassVIP)
	s.Tick()

	clk.Advance(4*time.Second - time.Nanosecond)
	if got := orderStatus(t, s.Snapshot(), id); got != OrderProcessing {
		t.Fatalf("status = %s before deadline, want PROCESSING", got)
	}
	clk.Advance(time.Nanosecond)
	if got := orderStatus(t, s.Snapshot(), id); got != OrderComplete {
		t.Fatalf("status = %s at deadline, want COMPLETE", got)
	}
}

// leakyClock hands out timers whose Stop never cancels, the way a real timer
// behaves once its callback is already running.
type leakyClock struct{ *clock.Manual }

type noStopTimer struct{}

func (noStopTimer) Stop() bool { return false }

func (c leakyClock) AfterFunc(d time.Duration, fn func()) clock.Timer {
	c.Manual.AfterFunc(d, fn)
	return noStopTimer{}
}

func TestStaleCallbackIsDiscarded(t *testing.T) {
	clk := leakyClock{clock.NewManual(time.Time{})}
	var buf bytes.Buffer
	s := New(Config{ProcessingTime: testProcessing}, clk, logx.NewWriter(&buf, "debug"), nil)

	s.AddWorker()
	id, _ := s.SubmitOrder(ClassNormal)
	s.Tick()
	if _, err := s.RemoveWorker(); err != nil {
		t.Fatal(err)
	}

	if n := clk.Advance(testProcessing); n != 1 {
		t.Fatalf("fired %d, want the leaked callback", n)
	}
	mustVerify(t, s)
	snap := s.Snapshot()
	if got := orderStatus(t, snap, id); got != OrderPending {
		t.Fatalf("status = %s, want PENDING", got)
	}
	if snap.Stats.StaleCallbacks != 1 || snap.Stats.Completed != 0 {
		t.Fatalf("stats = %+v, want one stale callback and no completion", snap.Stats)
	}
	if !strings.Contains(buf.String(), "completion callback discarded") {
		t.Fatalf("expected stale warning in log, got %q", buf.String())
	}
}

func TestStaleCallbackAfterReassignment(t *testing.T) {
	clk := leakyClock{clock.NewManual(time.Time{})}
	s := New(Config{ProcessingTime: testProcessing}, clk, logx.Nop(), nil)

	s.AddWorker()
	s.AddWorker()
	first, _ := s.SubmitOrder(ClassNormal)
	// Worker 1 takes the order, then idle worker 2 is removed.
	s.Tick()
	if _, err := s.RemoveWorker(); err != nil {
		t.Fatal(err)
	}

	// Simulate the in-flight worker being recovered and handed a new order
	// while its old timer is still pending.
	s.mu.Lock()
	w, _ := s.pool.Get(1)
	s.recoverLocked(w)
	s.mu.Unlock()
	clk.Advance(time.Second)
	s.Tick()

	snap := s.Snapshot()
	if len(snap.Processing) != 1 || snap.Processing[0].ID != first || snap.Processing[0].Attempts != 2 {
		t.Fatalf("processing = %+v", snap.Processing)
	}

	// The first timer fires at 10s, the second at 11s.
	clk.Advance(testProcessing - time.Second)
	snap = s.Snapshot()
	if snap.Stats.StaleCallbacks != 1 || orderStatus(t, snap, first) != OrderProcessing {
		t.Fatalf("after first deadline: %+v", snap.Stats)
	}
	clk.Advance(time.Second)
	if got := orderStatus(t, s.Snapshot(), first); got != OrderComplete {
		t.Fatalf("status = %s, want COMPLETE", got)
	}
	mustVerify(t, s)
}

func TestEagerMatchDispatchesWithoutTick(t *testing.T) {
	s, clk := newTestScheduler(t, Config{EagerMatch: true})
	s.AddWorker()
	a, _ := s.SubmitOrder(ClassNormal)
	b, _ := s.SubmitOrder(ClassNormal)

	snap := s.Snapshot()
	if orderStatus(t, snap, a) != OrderProcessing || orderStatus(t, snap, b) != OrderPending {
		t.Fatalf("unexpected state: %+v", snap)
	}
	clk.Advance(testProcessing)
	snap = s.Snapshot()
	if orderStatus(t, snap, a) != OrderComplete || orderStatus(t, snap, b) != OrderProcessing {
		t.Fatalf("completion should hand the worker the next order: %+v", snap)
	}
	if snap.Stats.Ticks != 0 {
		t.Fatalf("ticks = %d, want 0", snap.Stats.Ticks)
	}
	mustVerify(t, s)
}

func TestApplyChangesFutureDispatchesOnly(t *testing.T) {
	s, clk := newTestScheduler(t, Config{})
	s.AddWorker()
	s.AddWorker()
	a, _ := s.SubmitOrder(ClassNormal)
	s.Tick()

	s.Apply(Config{ProcessingTime: 2 * time.Second})
	b, _ := s.SubmitOrder(ClassNormal)
	s.Tick()

	clk.Advance(2 * time.Second)
	snap := s.Snapshot()
	if orderStatus(t, snap, b) != OrderComplete || orderStatus(t, snap, a) != OrderProcessing {
		t.Fatalf("unexpected state after 2s: %+v", snap)
	}
	if snap.ProcessingTime != 2*time.Second {
		t.Fatalf("processing time = %s", snap.ProcessingTime)
	}
}

func TestSubmitRejectsUnknownClass(t *testing.T) {
	s, _ := newTestScheduler(t, Config{})
	if _, err := s.SubmitOrder(Class(9)); !errors.Is(err, ErrInvalidCommand) {
		t.Fatalf("err = %v, want ErrInvalidCommand", err)
	}
	if s.Stats().Submitted != 0 {
		t.Fatal("rejected submit was counted")
	}
}

func TestParseClass(t *testing.T) {
	cases := map[string]Class{"vip": ClassVIP, " V ": ClassVIP, "Normal": ClassNormal, "n": ClassNormal}
	for in, want := range cases {
		got, err := ParseClass(in)
		if err != nil || got != want {
			t.Fatalf("ParseClass(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseClass("gold"); !errors.Is(err, ErrInvalidCommand) {
		t.Fatalf("ParseClass(gold) err = %v", err)
	}
}

func TestEventsPublished(t *testing.T) {
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(32)
	defer unsub()

	clk := clock.NewManual(time.Time{})
	s := New(Config{ProcessingTime: time.Second}, clk, logx.Nop(), bus)
	s.AddWorker()
	s.SubmitOrder(ClassVIP)
	s.Tick()
	clk.Advance(time.Second)
	s.RemoveWorker()

	want := []string{EventWorkerAdded, EventOrderSubmitted, EventOrderDispatched, EventOrderCompleted, EventWorkerRemoved}
	for i, typ := range want {
		select {
		case e := <-ch:
			if e.Type != typ {
				t.Fatalf("event %d = %s, want %s", i, e.Type, typ)
			}
			if _, ok := e.Data.(OrderEvent); !ok {
				t.Fatalf("event %d data is %T", i, e.Data)
			}
		default:
			t.Fatalf("missing event %d (%s)", i, typ)
		}
	}
}

func TestRandomizedInvariants(t *testing.T) {
	s, clk := newTestScheduler(t, Config{ProcessingTime: 3 * time.Second})
	// Deterministic command mix; every prefix must keep the invariants.
	script := "nnv+n+v-+nn--v+++nvv-n-+-n+nn-v"
	for i, c := range script {
		switch c {
		case 'n':
			s.SubmitOrder(ClassNormal)
		case 'v':
			s.SubmitOrder(ClassVIP)
		case '+':
			s.AddWorker()
		case '-':
			s.RemoveWorker()
		}
		step(t, s, clk)
		if i%4 == 0 {
			clk.Advance(2 * time.Second)
			mustVerify(t, s)
		}
	}
	st := s.Stats()
	if st.Dispatched != st.Completed+st.Requeued+uint64(len(s.Snapshot().Processing)) {
		t.Fatalf("dispatch accounting off: %+v", st)
	}
}

func TestConcurrentCommandsKeepInvariants(t *testing.T) {
	const (
		goroutines = 8
		commands   = 400
	)
	s := New(Config{ProcessingTime: time.Millisecond, EagerMatch: true}, clock.Real(), logx.Nop(), nil)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		fail error
	)
	for g := range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(uint64(g), 42))
			for range commands {
				switch rng.IntN(6) {
				case 0, 1:
					s.SubmitOrder(ClassNormal)
				case 2:
					s.SubmitOrder(ClassVIP)
				case 3:
					s.AddWorker()
				case 4:
					s.RemoveWorker()
				case 5:
					s.Tick()
					_ = s.Snapshot()
				}
				if err := s.Verify(); err != nil {
					mu.Lock()
					if fail == nil {
						fail = err
					}
					mu.Unlock()
					return
				}
			}
		}()
	}
	wg.Wait()
	if fail != nil {
		t.Fatalf("invariant violated under concurrency: %v", fail)
	}

	// Drain: make sure at least one bot exists and let timers finish.
	s.AddWorker()
	deadline := time.Now().Add(10 * time.Second)
	for {
		s.Tick()
		mustVerify(t, s)
		st := s.Stats()
		if st.Completed == st.Submitted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("orders not drained: %+v", st)
		}
		time.Sleep(5 * time.Millisecond)
	}

	st := s.Stats()
	snap := s.Snapshot()
	if len(snap.Pending) != 0 || len(snap.Processing) != 0 || uint64(len(snap.Complete)) != st.Submitted {
		t.Fatalf("pending=%d processing=%d complete=%d stats=%+v", len(snap.Pending), len(snap.Processing), len(snap.Complete), st)
	}
}
