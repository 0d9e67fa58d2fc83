package clock

import (
	"testing"
	"time"
)

func TestManualFiresInDueOrder(t *testing.T) {
	m := NewManual(time.Time{})
	start := m.Now()

	var got []string
	m.AfterFunc(3*time.Second, func() { got = append(got, "c") })
	m.AfterFunc(1*time.Second, func() { got = append(got, "a") })
	m.AfterFunc(1*time.Second, func() { got = append(got, "b") })

	if n := m.Advance(500 * time.Millisecond); n != 0 {
		t.Fatalf("fired %d callbacks before due, want 0", n)
	}
	if n := m.Advance(time.Second); n != 2 {
		t.Fatalf("fired %d callbacks, want 2", n)
	}
	if n := m.Advance(2 * time.Second); n != 1 {
		t.Fatalf("fired %d callbacks, want 1", n)
	}
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	if elapsed := m.Now().Sub(start); elapsed != 3500*time.Millisecond {
		t.Fatalf("elapsed = %s, want 3.5s", elapsed)
	}
}

func TestManualNowDuringCallback(t *testing.T) {
	m := NewManual(time.Time{})
	start := m.Now()

	var at time.Duration
	m.AfterFunc(2*time.Second, func() { at = m.Now().Sub(start) })
	m.Advance(10 * time.Second)

	if at != 2*time.Second {
		t.Fatalf("callback saw now=%s, want 2s", at)
	}
}

func TestManualStop(t *testing.T) {
	m := NewManual(time.Time{})
	fired := false
	tm := m.AfterFunc(time.Second, func() { fired = true })

	if !tm.Stop() {
		t.Fatal("expected first Stop to report true")
	}
	if tm.Stop() {
		t.Fatal("expected second Stop to report false")
	}
	m.Advance(5 * time.Second)
	if fired {
		t.Fatal("stopped timer fired")
	}
	if p := m.Pending(); p != 0 {
		t.Fatalf("pending = %d, want 0", p)
	}
}

func TestManualStopAfterFire(t *testing.T) {
	m := NewManual(time.Time{})
	tm := m.AfterFunc(time.Second, func() {})
	m.Advance(time.Second)
	if tm.Stop() {
		t.Fatal("Stop after fire should report false")
	}
}

func TestManualCallbackSchedulesFollowUp(t *testing.T) {
	m := NewManual(time.Time{})
	count := 0
	var tick func()
	tick = func() {
		count++
		if count < 3 {
			m.AfterFunc(time.Second, tick)
		}
	}
	m.AfterFunc(time.Second, tick)

	if n := m.Advance(10 * time.Second); n != 3 {
		t.Fatalf("fired %d, want 3", n)
	}
	if count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}
}
