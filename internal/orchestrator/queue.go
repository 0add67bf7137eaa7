package orchestrator

import (
	"container/heap"
	"context"
	"errors"
	"sync"

	"github.com/lintagent/lintagent/internal/metrics"
	"github.com/lintagent/lintagent/models"
)

// ErrQueueFull is returned when the submission queue is at capacity.
var ErrQueueFull = errors.New("submission queue is full")

// Task is one queued analysis job together with its in-memory submission.
type Task struct {
	JobID      int64
	Submission *models.Submission
	Attempt    int

	seq uint64 // FIFO tie-break within a priority
}

// taskHeap orders by priority (high first), then submission order.
type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].Submission.Priority != h[j].Submission.Priority {
		return h[i].Submission.Priority > h[j].Submission.Priority
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) { *h = append(*h, x.(*Task)) }

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// Queue is a bounded priority queue feeding the worker pool. Enqueue never
// blocks; a full queue rejects so the transport can push back on callers.
type Queue struct {
	mu       sync.Mutex
	heap     taskHeap
	capacity int
	seq      uint64
	wake     chan struct{}
}

// NewQueue creates a queue holding at most capacity tasks.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 100
	}
	return &Queue{
		capacity: capacity,
		wake:     make(chan struct{}, 1),
	}
}

// TryEnqueue adds t or returns ErrQueueFull.
func (q *Queue) TryEnqueue(t *Task) error {
	q.mu.Lock()
	if len(q.heap) >= q.capacity {
		q.mu.Unlock()
		return ErrQueueFull
	}
	q.seq++
	t.seq = q.seq
	heap.Push(&q.heap, t)
	depth := len(q.heap)
	q.mu.Unlock()

	metrics.QueueDepth.Set(float64(depth))
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// Dequeue blocks until a task is available or ctx is done.
func (q *Queue) Dequeue(ctx context.Context) (*Task, error) {
	for {
		q.mu.Lock()
		if len(q.heap) > 0 {
			t := heap.Pop(&q.heap).(*Task)
			depth := len(q.heap)
			q.mu.Unlock()
			metrics.QueueDepth.Set(float64(depth))
			if depth > 0 {
				// Other workers may still be waiting.
				select {
				case q.wake <- struct{}{}:
				default:
				}
			}
			return t, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.wake:
		}
	}
}

// Len returns the number of queued tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}

// Full reports whether the queue is at capacity.
func (q *Queue) Full() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap) >= q.capacity
}
