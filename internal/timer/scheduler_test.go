package timer

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedulerRunsJobAtScheduledTime(t *testing.T) {
	s := NewScheduler()
	s.Start()
	defer s.Stop()

	fired := make(chan time.Time, 1)
	start := time.Now()

	err := s.Schedule("job-1", start.Add(30*time.Millisecond), func() {
		fired <- time.Now()
	})
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	select {
	case at := <-fired:
		elapsed := at.Sub(start)
		if elapsed < 20*time.Millisecond {
			t.Errorf("job fired too early: %v", elapsed)
		}
	case <-time.After(time.Second):
		t.Fatal("job never fired")
	}
}

func TestSchedulerRunsJobsInOrder(t *testing.T) {
	s := NewScheduler()
	s.Start()
	defer s.Stop()

	var mu sync.Mutex
	var order []string
	done := make(chan struct{}, 3)

	record := func(id string) func() {
		return func() {
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			done <- struct{}{}
		}
	}

	now := time.Now()
	// Schedule out of order; the heap should run them by time
	s.Schedule("third", now.Add(90*time.Millisecond), record("third"))
	s.Schedule("first", now.Add(30*time.Millisecond), record("first"))
	s.Schedule("second", now.Add(60*time.Millisecond), record("second"))

	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("only %d of 3 jobs fired", i)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	expected := []string{"first", "second", "third"}
	for i, id := range expected {
		if order[i] != id {
			t.Errorf("position %d: expected %q, got %q", i, id, order[i])
		}
	}
}

func TestSchedulerReplacesJobWithSameID(t *testing.T) {
	s := NewScheduler()
	s.Start()
	defer s.Stop()

	var count int32
	fired := make(chan struct{}, 2)

	now := time.Now()
	s.Schedule("rollup", now.Add(200*time.Millisecond), func() {
		atomic.AddInt32(&count, 1)
		fired <- struct{}{}
	})
	s.Schedule("rollup", now.Add(30*time.Millisecond), func() {
		atomic.AddInt32(&count, 1)
		fired <- struct{}{}
	})

	if s.Pending() != 1 {
		t.Errorf("expected 1 pending job after replace, got %d", s.Pending())
	}

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("replacement job never fired")
	}

	// The original should not fire as well
	time.Sleep(300 * time.Millisecond)
	if n := atomic.LoadInt32(&count); n != 1 {
		t.Errorf("expected exactly 1 execution, got %d", n)
	}
}

func TestSchedulerCancel(t *testing.T) {
	s := NewScheduler()
	s.Start()
	defer s.Stop()

	fired := make(chan struct{}, 1)
	s.Schedule("doomed", time.Now().Add(50*time.Millisecond), func() {
		fired <- struct{}{}
	})

	if !s.Cancel("doomed") {
		t.Fatal("Cancel returned false for pending job")
	}
	if s.Cancel("doomed") {
		t.Error("Cancel returned true for already-cancelled job")
	}

	select {
	case <-fired:
		t.Error("cancelled job fired")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestSchedulerRejectsAfterStop(t *testing.T) {
	s := NewScheduler()
	s.Start()
	s.Stop()

	err := s.Schedule("late", time.Now().Add(time.Millisecond), func() {})
	if err != ErrSchedulerStopped {
		t.Errorf("expected ErrSchedulerStopped, got %v", err)
	}
}

func TestSchedulerWakesForEarlierJob(t *testing.T) {
	s := NewScheduler()
	s.Start()
	defer s.Stop()

	fired := make(chan string, 2)

	now := time.Now()
	s.Schedule("far", now.Add(10*time.Second), func() { fired <- "far" })
	// The loop is now sleeping until "far"; an earlier job must wake it
	s.Schedule("near", now.Add(30*time.Millisecond), func() { fired <- "near" })

	select {
	case id := <-fired:
		if id != "near" {
			t.Errorf("expected near job first, got %q", id)
		}
	case <-time.After(time.Second):
		t.Fatal("earlier job did not preempt the sleeping loop")
	}
}
