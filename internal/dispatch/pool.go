package dispatch

import "iter"

// workerPool tracks workers in creation order. Removal is stack-like: only the
// most recently added worker can be removed.
type workerPool struct {
	workers []*Worker
	nextID  int
}

// Add appends a new idle worker. Ids come from a counter and are never reused,
// even after remove/add cycles.
func (p *workerPool) Add() *Worker {
	p.nextID++
	w := &Worker{ID: p.nextID, Status: WorkerIdle}
	p.workers = append(p.workers, w)
	return w
}

// Last returns the most recently added worker without removing it.
func (p *workerPool) Last() (*Worker, bool) {
	if len(p.workers) == 0 {
		return nil, false
	}
	return p.workers[len(p.workers)-1], true
}

// RemoveLast removes and returns the most recently added worker. Callers must
// unwind a busy worker's assignment first.
func (p *workerPool) RemoveLast() (*Worker, bool) {
	w, ok := p.Last()
	if !ok {
		return nil, false
	}
	p.workers[len(p.workers)-1] = nil
	p.workers = p.workers[:len(p.workers)-1]
	return w, true
}

// Idle yields idle workers in id order. The sequence reads live state, so each
// call (and each step of a range loop) sees workers dispatched earlier in the
// same pass as busy.
func (p *workerPool) Idle() iter.Seq[*Worker] {
	return func(yield func(*Worker) bool) {
		for _, w := range p.workers {
			if w.Status != WorkerIdle {
				continue
			}
			if !yield(w) {
				return
			}
		}
	}
}

// Get looks a worker up by id.
func (p *workerPool) Get(id int) (*Worker, bool) {
	for _, w := range p.workers {
		if w.ID == id {
			return w, true
		}
	}
	return nil, false
}

func (p *workerPool) Len() int { return len(p.workers) }

// Workers returns a copy of every worker in id order.
func (p *workerPool) Workers() []Worker {
	out := make([]Worker, 0, len(p.workers))
	for _, w := range p.workers {
		out = append(out, Worker{ID: w.ID, Status: w.Status, OrderID: w.OrderID})
	}
	return out
}
