package orchestrator

import (
	"container/heap"
	"sync"
	"time"

	"github.com/droverdev/drover/internal/task"
)

// Priority orders tasks in the scheduler queue.
type Priority int

const (
	PriorityBackground Priority = 10
	PriorityDefault    Priority = 100
	PriorityUrgent     Priority = 1000
)

// PriorityForTask derives a queue priority from task attributes.
// Automation tasks run behind interactive work; bug fixes jump ahead.
func PriorityForTask(t *task.Task) Priority {
	if t.IsAutomation {
		return PriorityBackground
	}
	if t.Category == task.CategoryBug {
		return PriorityUrgent
	}
	return PriorityDefault
}

// queuedTask is a scheduler queue entry.
type queuedTask struct {
	TaskID     string
	Priority   Priority
	DependsOn  []string
	EnqueuedAt time.Time

	index int // heap bookkeeping
}

type taskQueue []*queuedTask

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	// Higher priority first, then FIFO.
	if q[i].Priority != q[j].Priority {
		return q[i].Priority > q[j].Priority
	}
	return q[i].EnqueuedAt.Before(q[j].EnqueuedAt)
}

func (q taskQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *taskQueue) Push(x any) {
	item := x.(*queuedTask)
	item.index = len(*q)
	*q = append(*q, item)
}

func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*q = old[:n-1]
	return item
}

// Scheduler hands out tasks in priority order, holding back any whose
// dependencies have not completed.
type Scheduler struct {
	mu        sync.RWMutex
	queue     taskQueue
	running   map[string]bool
	completed map[string]bool
	deps      map[string][]string
}

// NewScheduler creates an empty scheduler.
func NewScheduler() *Scheduler {
	s := &Scheduler{
		queue:     make(taskQueue, 0),
		running:   make(map[string]bool),
		completed: make(map[string]bool),
		deps:      make(map[string][]string),
	}
	heap.Init(&s.queue)
	return s
}

// Add enqueues a task.
func (s *Scheduler) Add(taskID string, priority Priority, dependsOn []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deps[taskID] = dependsOn
	heap.Push(&s.queue, &queuedTask{
		TaskID:     taskID,
		Priority:   priority,
		DependsOn:  dependsOn,
		EnqueuedAt: time.Now(),
	})
}

// Next pops the highest-priority ready task, or "" when nothing is
// ready. Tasks with unsatisfied dependencies go back on the queue.
func (s *Scheduler) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var held []*queuedTask
	var picked string
	for s.queue.Len() > 0 {
		qt := heap.Pop(&s.queue).(*queuedTask)
		if s.depsSatisfied(qt) {
			picked = qt.TaskID
			s.running[qt.TaskID] = true
			break
		}
		held = append(held, qt)
	}
	for _, qt := range held {
		heap.Push(&s.queue, qt)
	}
	return picked
}

func (s *Scheduler) depsSatisfied(qt *queuedTask) bool {
	for _, dep := range qt.DependsOn {
		if !s.completed[dep] {
			return false
		}
	}
	return true
}

// MarkCompleted records a finished task, releasing its dependents.
func (s *Scheduler) MarkCompleted(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, taskID)
	s.completed[taskID] = true
}

// MarkStopped removes a task that blocked or failed without completing.
// Its dependents stay held.
func (s *Scheduler) MarkStopped(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, taskID)
}

// Pending reports how many tasks are queued or running.
func (s *Scheduler) Pending() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queue.Len() + len(s.running)
}

// Stalled reports whether queued tasks remain that can never become
// ready because every runnable task has stopped.
func (s *Scheduler) Stalled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.running) > 0 || s.queue.Len() == 0 {
		return false
	}
	for _, qt := range s.queue {
		ok := true
		for _, dep := range qt.DependsOn {
			if !s.completed[dep] {
				ok = false
				break
			}
		}
		if ok {
			return false
		}
	}
	return true
}
