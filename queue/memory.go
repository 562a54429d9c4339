package queue

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// MemoryQueue is an in-process queue for the memory dialect and for tests.
// It honors delayed delivery and, like SQS, guarantees at-least-once only:
// a nacked delivery goes back to the front immediately.
type MemoryQueue struct {
	mu    sync.Mutex
	items scheduledTasks
	wake  chan struct{}
}

type scheduledTask struct {
	task    Task
	readyAt time.Time
}

type scheduledTasks []scheduledTask

func (h scheduledTasks) Len() int            { return len(h) }
func (h scheduledTasks) Less(i, j int) bool  { return h[i].readyAt.Before(h[j].readyAt) }
func (h scheduledTasks) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *scheduledTasks) Push(x interface{}) { *h = append(*h, x.(scheduledTask)) }
func (h *scheduledTasks) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func NewMemoryQueue() *MemoryQueue {
	q := &MemoryQueue{
		wake: make(chan struct{}, 1),
	}
	heap.Init(&q.items)
	return q
}

func (q *MemoryQueue) Send(ctx context.Context, task Task, delay time.Duration) error {
	q.mu.Lock()
	heap.Push(&q.items, scheduledTask{task: task, readyAt: time.Now().Add(delay)})
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

func (q *MemoryQueue) Receive(ctx context.Context) (*Delivery, error) {
	for {
		q.mu.Lock()
		if q.items.Len() > 0 {
			next := q.items[0]
			now := time.Now()
			if !next.readyAt.After(now) {
				item := heap.Pop(&q.items).(scheduledTask)
				q.mu.Unlock()
				task := item.task
				return &Delivery{
					Task: task,
					ack:  func() error { return nil },
					nack: func() error { return q.Send(context.Background(), task, 0) },
				}, nil
			}
			wait := next.readyAt.Sub(now)
			q.mu.Unlock()
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-q.wake:
				timer.Stop()
			case <-timer.C:
			}
			continue
		}
		q.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.wake:
		}
	}
}

// Len reports the number of queued tasks, ready or not.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}
