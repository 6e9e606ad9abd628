package debounce

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGeneration(t *testing.T) {
	var g Generation
	a := g.Next()
	if !g.Current(a) {
		t.Error("fresh token should be current")
	}
	b := g.Next()
	if g.Current(a) {
		t.Error("older token should be stale")
	}
	if !g.Current(b) {
		t.Error("newest token should be current")
	}
}

func TestDebouncerRunsLatestOnly(t *testing.T) {
	d := New(20 * time.Millisecond)
	var calls atomic.Int32
	var last atomic.Int32

	for i := 1; i <= 3; i++ {
		i := i
		d.Schedule(func(uint64) {
			calls.Add(1)
			last.Store(int32(i))
		})
	}
	if !d.Pending() {
		t.Error("Pending should be true before the delay")
	}

	time.Sleep(80 * time.Millisecond)

	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
	if got := last.Load(); got != 3 {
		t.Errorf("ran schedule %d, want 3", got)
	}
	if d.Pending() {
		t.Error("Pending should be false after running")
	}
}

func TestDebouncerCancel(t *testing.T) {
	d := New(10 * time.Millisecond)
	var calls atomic.Int32
	d.Schedule(func(uint64) { calls.Add(1) })
	d.Cancel()

	time.Sleep(40 * time.Millisecond)
	if calls.Load() != 0 {
		t.Error("cancelled function should not run")
	}
}

func TestMutationDeliversLatest(t *testing.T) {
	var calls atomic.Int32
	m := NewMutation(20*time.Millisecond, func(_ context.Context, v string) (int, error) {
		calls.Add(1)
		return len(v), nil
	})

	first := m.Submit(context.Background(), "g")
	second := m.Submit(context.Background(), "goo")

	select {
	case r := <-second:
		if r.Err != nil || r.Value != 3 {
			t.Errorf("result = %+v, want 3", r)
		}
	case <-time.After(time.Second):
		t.Fatal("latest submission never resolved")
	}

	select {
	case r, ok := <-first:
		t.Errorf("ghosted submission received %+v (open=%v)", r, ok)
	case <-time.After(30 * time.Millisecond):
	}

	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestMutationGhostsInFlightCall(t *testing.T) {
	release := make(chan struct{})
	m := NewMutation(5*time.Millisecond, func(_ context.Context, v string) (string, error) {
		if v == "slow" {
			<-release
		}
		return v, nil
	})

	slow := m.Submit(context.Background(), "slow")
	time.Sleep(30 * time.Millisecond)
	if !m.Pending() {
		t.Error("running call should count as pending")
	}

	fast := m.Submit(context.Background(), "fast")
	close(release)

	select {
	case r := <-fast:
		if r.Value != "fast" {
			t.Errorf("got %q, want fast", r.Value)
		}
	case <-time.After(time.Second):
		t.Fatal("latest submission never resolved")
	}

	select {
	case r := <-slow:
		t.Errorf("superseded in-flight call delivered %+v", r)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestMutationSubmitFunc(t *testing.T) {
	m := NewMutation(10*time.Millisecond, func(_ context.Context, v int) (int, error) {
		return v * 2, nil
	})

	var mu sync.Mutex
	var got []int
	record := func(r Result[int]) {
		mu.Lock()
		got = append(got, r.Value)
		mu.Unlock()
	}
	m.SubmitFunc(context.Background(), 1, record)
	m.SubmitFunc(context.Background(), 2, record)
	m.SubmitFunc(context.Background(), 3, record)

	time.Sleep(60 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != 6 {
		t.Errorf("callbacks = %v, want [6]", got)
	}
}

func TestMutationError(t *testing.T) {
	boom := errors.New("boom")
	m := NewMutation(time.Millisecond, func(context.Context, int) (int, error) { return 0, boom })

	r := <-m.Submit(context.Background(), 1)
	if !errors.Is(r.Err, boom) {
		t.Errorf("Err = %v, want boom", r.Err)
	}
}
