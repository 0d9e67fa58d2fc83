package dispatch

import "testing"

func queueIDs(q *orderQueue) []int {
	ids := make([]int, 0, q.Len())
	for _, o := range q.items {
		ids = append(ids, o.ID)
	}
	return ids
}

func sameInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestQueueVIPOvertakesNormalOnly(t *testing.T) {
	var q orderQueue
	q.Enqueue(&Order{ID: 1, Class: ClassNormal})
	q.Enqueue(&Order{ID: 2, Class: ClassNormal})
	q.Enqueue(&Order{ID: 3, Class: ClassVIP})
	q.Enqueue(&Order{ID: 4, Class: ClassVIP})
	q.Enqueue(&Order{ID: 5, Class: ClassNormal})

	want := []int{3, 4, 1, 2, 5}
	if got := queueIDs(&q); !sameInts(got, want) {
		t.Fatalf("queue = %v, want %v", got, want)
	}
}

func TestQueueVIPOnlyAppends(t *testing.T) {
	var q orderQueue
	q.Enqueue(&Order{ID: 1, Class: ClassVIP})
	q.Enqueue(&Order{ID: 2, Class: ClassVIP})

	if got := queueIDs(&q); !sameInts(got, []int{1, 2}) {
		t.Fatalf("queue = %v, want [1 2]", got)
	}
}

func TestQueuePopNextSkipsAssigned(t *testing.T) {
	var q orderQueue
	q.Enqueue(&Order{ID: 1, Class: ClassNormal, Status: OrderProcessing, WorkerID: 7})
	q.Enqueue(&Order{ID: 2, Class: ClassNormal})

	o, ok := q.PopNext()
	if !ok || o.ID != 2 {
		t.Fatalf("PopNext = %v, %v; want order 2", o, ok)
	}
	if _, ok := q.PopNext(); ok {
		t.Fatal("expected no further eligible order")
	}
	if q.Len() != 1 {
		t.Fatalf("len = %d, want 1", q.Len())
	}
}

func TestQueueRequeueFrontReappliesClassOrder(t *testing.T) {
	var q orderQueue
	q.Enqueue(&Order{ID: 2, Class: ClassVIP})
	q.Enqueue(&Order{ID: 3, Class: ClassNormal})

	q.RequeueFront(&Order{ID: 1, Class: ClassNormal})
	if got := queueIDs(&q); !sameInts(got, []int{2, 3, 1}) {
		t.Fatalf("queue = %v, want [2 3 1]", got)
	}

	q.RequeueFront(&Order{ID: 4, Class: ClassVIP})
	if got := queueIDs(&q); !sameInts(got, []int{2, 4, 3, 1}) {
		t.Fatalf("queue = %v, want [2 4 3 1]", got)
	}
}

func TestQueueOrdersIsCopy(t *testing.T) {
	var q orderQueue
	q.Enqueue(&Order{ID: 1})
	out := q.Orders()
	out[0].ID = 99
	if q.items[0].ID != 1 {
		t.Fatal("Orders leaked internal state")
	}
}
