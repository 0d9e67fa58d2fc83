package dispatch

// orderQueue holds pending orders in dispatch order.
//
// VIP orders are inserted immediately before the first NORMAL order, so they
// overtake every queued NORMAL order but never an earlier VIP.
type orderQueue struct {
	items []*Order
}

// Enqueue inserts o by class. On an empty queue, or when no NORMAL order is
// queued, it appends.
func (q *orderQueue) Enqueue(o *Order) {
	if o.Class == ClassVIP {
		for i, it := range q.items {
			if it.Class == ClassNormal {
				q.items = append(q.items, nil)
				copy(q.items[i+1:], q.items[i:])
				q.items[i] = o
				return
			}
		}
	}
	q.items = append(q.items, o)
}

// RequeueFront re-inserts an order returned by recovery. It goes through the
// same class-based insertion as Enqueue, so a returned NORMAL order lands
// behind VIPs that arrived after it was first dispatched.
func (q *orderQueue) RequeueFront(o *Order) {
	q.Enqueue(o)
}

// PopNext removes and returns the first pending, unassigned order.
func (q *orderQueue) PopNext() (*Order, bool) {
	for i, it := range q.items {
		if it.Status != OrderPending || it.WorkerID != 0 {
			continue
		}
		copy(q.items[i:], q.items[i+1:])
		q.items[len(q.items)-1] = nil
		q.items = q.items[:len(q.items)-1]
		return it, true
	}
	return nil, false
}

func (q *orderQueue) Len() int { return len(q.items) }

// Orders returns a copy of the queued orders in dispatch order.
func (q *orderQueue) Orders() []Order {
	out := make([]Order, 0, len(q.items))
	for _, it := range q.items {
		out = append(out, *it)
	}
	return out
}
