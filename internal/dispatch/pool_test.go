package dispatch

import "testing"

func TestPoolIDsAreNeverReused(t *testing.T) {
	var p workerPool
	p.Add()
	p.Add()
	if _, ok := p.RemoveLast(); !ok {
		t.Fatal("RemoveLast on non-empty pool failed")
	}
	w := p.Add()
	if w.ID != 3 {
		t.Fatalf("new worker id = %d, want 3", w.ID)
	}
}

func TestPoolRemoveLastIsLIFO(t *testing.T) {
	var p workerPool
	p.Add()
	p.Add()
	w, ok := p.RemoveLast()
	if !ok || w.ID != 2 {
		t.Fatalf("RemoveLast = %v, %v; want worker 2", w, ok)
	}
	w, ok = p.RemoveLast()
	if !ok || w.ID != 1 {
		t.Fatalf("RemoveLast = %v, %v; want worker 1", w, ok)
	}
	if _, ok := p.RemoveLast(); ok {
		t.Fatal("RemoveLast on empty pool should fail")
	}
}

func TestPoolIdleSeesLiveState(t *testing.T) {
	var p workerPool
	p.Add()
	p.Add()
	p.Add()
	p.workers[1].Status = WorkerBusy

	var got []int
	for w := range p.Idle() {
		got = append(got, w.ID)
		w.Status = WorkerBusy
	}
	if !sameInts(got, []int{1, 3}) {
		t.Fatalf("idle = %v, want [1 3]", got)
	}
	for range p.Idle() {
		t.Fatal("no worker should be idle")
	}
}

func TestPoolGet(t *testing.T) {
	var p workerPool
	p.Add()
	p.Add()
	if w, ok := p.Get(2); !ok || w.ID != 2 {
		t.Fatalf("Get(2) = %v, %v", w, ok)
	}
	if _, ok := p.Get(5); ok {
		t.Fatal("Get(5) should miss")
	}
}
