package timer

import (
	"container/heap"
	"sync"
	"time"
)

var ErrSchedulerStopped = &SchedulerError{"scheduler is stopped"}

// SchedulerError represents a scheduler error
type SchedulerError struct {
	msg string
}

func (e *SchedulerError) Error() string {
	return e.msg
}

// job is a callback scheduled for future execution.
type job struct {
	id    string
	runAt time.Time
	fn    func()
	index int // index in the heap (for heap.Interface)
}

// jobHeap is a min-heap of jobs ordered by runAt
type jobHeap []*job

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	return h[i].runAt.Before(h[j].runAt)
}

func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *jobHeap) Push(x interface{}) {
	n := len(*h)
	j := x.(*job)
	j.index = n
	*h = append(*h, j)
}

func (h *jobHeap) Pop() interface{} {
	old := *h
	n := len(old)
	j := old[n-1]
	old[n-1] = nil
	j.index = -1
	*h = old[0 : n-1]
	return j
}

// Scheduler runs callbacks at scheduled wall-clock times using a min-heap.
// Re-scheduling an id replaces the pending job with that id.
type Scheduler struct {
	heap    jobHeap
	jobs    map[string]*job // for O(1) lookup by id
	mu      sync.Mutex
	wakeup  chan struct{}
	stopCh  chan struct{}
	stopped bool
}

// NewScheduler creates a stopped scheduler; call Start to run it.
func NewScheduler() *Scheduler {
	s := &Scheduler{
		heap:   make(jobHeap, 0),
		jobs:   make(map[string]*job),
		wakeup: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
	}
	heap.Init(&s.heap)
	return s
}

// Start launches the scheduling loop.
func (s *Scheduler) Start() {
	go s.run()
}

// Stop stops the scheduler. Pending jobs are discarded.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.stopCh)
	s.mu.Unlock()
}

// Schedule adds or replaces a job to run at the given time.
func (s *Scheduler) Schedule(id string, runAt time.Time, fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrSchedulerStopped
	}

	if existing, ok := s.jobs[id]; ok {
		heap.Remove(&s.heap, existing.index)
		delete(s.jobs, id)
	}

	j := &job{id: id, runAt: runAt, fn: fn}
	heap.Push(&s.heap, j)
	s.jobs[id] = j

	// Wake the loop if this job became the earliest
	if s.heap[0] == j {
		select {
		case s.wakeup <- struct{}{}:
		default:
		}
	}

	return nil
}

// Cancel removes a pending job. Returns false if no job has the id.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return false
	}

	heap.Remove(&s.heap, j.index)
	delete(s.jobs, id)
	return true
}

// Pending returns the number of scheduled jobs.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *Scheduler) run() {
	for {
		s.mu.Lock()

		if s.stopped {
			s.mu.Unlock()
			return
		}

		var waitDuration time.Duration
		if s.heap.Len() == 0 {
			waitDuration = 24 * time.Hour
		} else {
			next := s.heap[0]
			waitDuration = time.Until(next.runAt)

			if waitDuration <= 0 {
				j := heap.Pop(&s.heap).(*job)
				delete(s.jobs, j.id)

				go j.fn()

				s.mu.Unlock()
				continue
			}
		}

		s.mu.Unlock()

		t := time.NewTimer(waitDuration)
		select {
		case <-t.C:
			// Check for due jobs
		case <-s.wakeup:
			t.Stop()
		case <-s.stopCh:
			t.Stop()
			return
		}
	}
}
