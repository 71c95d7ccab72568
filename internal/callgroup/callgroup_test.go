package callgroup

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDeduplication(t *testing.T) {
	var g Group[int, int]
	var calls atomic.Int32
	started := make(chan struct{})

	fn := func() (int, error) {
		calls.Add(1)
		close(started)
		time.Sleep(50 * time.Millisecond)
		return 7, nil
	}

	const n = 10
	var wg sync.WaitGroup
	results := make([]Result[int], n)

	// First caller starts the work.
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0] = <-g.DoChan(1, fn)
	}()

	// Wait for fn to start, then pile on.
	<-started
	for i := 1; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = <-g.DoChan(1, fn)
		}()
	}

	wg.Wait()

	for i, r := range results {
		if r.Err != nil {
			t.Errorf("caller %d got error: %v", i, r.Err)
		}
		if r.Val != 7 {
			t.Errorf("caller %d got value %d, want 7", i, r.Val)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("fn called %d times, want 1", got)
	}
}

func TestIndependentKeys(t *testing.T) {
	var g Group[int, int]
	var calls atomic.Int32

	fn := func() (int, error) {
		calls.Add(1)
		return 1, nil
	}

	var wg sync.WaitGroup
	for _, key := range []int{1, 2, 3} {
		key := key
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-g.DoChan(key, fn)
		}()
	}

	wg.Wait()

	if got := calls.Load(); got != 3 {
		t.Errorf("fn called %d times, want 3", got)
	}
}

func TestWaiterReceivesResult(t *testing.T) {
	var g Group[int, string]
	started := make(chan struct{})

	fn := func() (string, error) {
		close(started)
		time.Sleep(50 * time.Millisecond)
		return "first", nil
	}

	// First caller.
	ch1 := g.DoChan(1, fn)
	<-started

	// Second caller joins.
	ch2 := g.DoChan(1, func() (string, error) {
		t.Error("second fn should not execute")
		return "", errors.New("unexpected")
	})

	r1 := <-ch1
	r2 := <-ch2

	if r1.Err != nil || r1.Val != "first" {
		t.Errorf("caller 1: got (%q, %v)", r1.Val, r1.Err)
	}
	if r2.Err != nil || r2.Val != "first" {
		t.Errorf("caller 2: got (%q, %v), want shared result from caller 1", r2.Val, r2.Err)
	}
}

func TestErrorPropagation(t *testing.T) {
	var g Group[int, string]
	sentinel := errors.New("failed")
	started := make(chan struct{})

	ch1 := g.DoChan(1, func() (string, error) {
		close(started)
		time.Sleep(50 * time.Millisecond)
		return "", sentinel
	})
	<-started

	ch2 := g.DoChan(1, func() (string, error) {
		t.Error("should not execute")
		return "", nil
	})

	r1 := <-ch1
	r2 := <-ch2

	if !errors.Is(r1.Err, sentinel) {
		t.Errorf("caller 1: got %v, want %v", r1.Err, sentinel)
	}
	if !errors.Is(r2.Err, sentinel) {
		t.Errorf("caller 2: got %v, want %v", r2.Err, sentinel)
	}
}

func TestReuseAfterCompletion(t *testing.T) {
	var g Group[int, int]
	var calls atomic.Int32

	fn := func() (int, error) {
		calls.Add(1)
		return int(calls.Load()), nil
	}

	// First call completes.
	r1 := <-g.DoChan(1, fn)
	if r1.Err != nil {
		t.Fatalf("first call: %v", r1.Err)
	}

	// Second call for same key should trigger a new execution.
	r2 := <-g.DoChan(1, fn)
	if r2.Err != nil {
		t.Fatalf("second call: %v", r2.Err)
	}

	if got := calls.Load(); got != 2 {
		t.Errorf("fn called %d times, want 2", got)
	}
	if r1.Val == r2.Val {
		t.Errorf("expected distinct executions to observe distinct call counts, got %d twice", r1.Val)
	}
}
