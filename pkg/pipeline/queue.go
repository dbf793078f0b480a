// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package pipeline

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// QueuedMessage is one admission-path request waiting to drive an
// AgentLoop.Run/RunStream call.
type QueuedMessage struct {
	SessionID   string
	UserMessage string
	Priority    int // higher runs first
	EnqueuedAt  time.Time
	seq         int64 // tie-breaker for FIFO within a priority
}

// Backend is the pluggable storage behind PriorityQueue: in-memory, a
// Redis sorted-set, or a Kafka-keyed topic can all satisfy this as long as
// they preserve priority-then-FIFO order for a single dequeuer.
type Backend interface {
	Push(msg QueuedMessage)
	Pop() (QueuedMessage, bool)
	Len() int
}

// heapBackend is the default in-memory Backend: a binary heap ordered by
// descending priority, FIFO within a priority via the monotonic seq
// tie-breaker.
type heapBackend struct {
	mu   sync.Mutex
	h    messageHeap
	next int64
}

// NewMemoryBackend returns the default in-memory PriorityQueue backend.
func NewMemoryBackend() Backend {
	return &heapBackend{}
}

func (b *heapBackend) Push(msg QueuedMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	msg.seq = b.next
	b.next++
	heap.Push(&b.h, msg)
}

func (b *heapBackend) Pop() (QueuedMessage, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.h.Len() == 0 {
		return QueuedMessage{}, false
	}
	return heap.Pop(&b.h).(QueuedMessage), true
}

func (b *heapBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.h.Len()
}

type messageHeap []QueuedMessage

func (h messageHeap) Len() int { return len(h) }
func (h messageHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority // higher priority first
	}
	return h[i].seq < h[j].seq // FIFO within a priority
}
func (h messageHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *messageHeap) Push(x interface{}) {
	*h = append(*h, x.(QueuedMessage))
}
func (h *messageHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// PriorityQueue is the in-process admission path feeding AgentLoop calls
// under load: descending priority, FIFO within a priority, for a single
// dequeuer. Multi-dequeuer configurations only guarantee priority ordering.
type PriorityQueue struct {
	backend Backend
	notify  chan struct{}
}

// NewPriorityQueue wraps a Backend (nil uses the in-memory default).
func NewPriorityQueue(backend Backend) *PriorityQueue {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	return &PriorityQueue{backend: backend, notify: make(chan struct{}, 1)}
}

// Enqueue adds a message and wakes one waiting Dequeue call.
func (q *PriorityQueue) Enqueue(msg QueuedMessage) {
	if msg.EnqueuedAt.IsZero() {
		msg.EnqueuedAt = time.Now()
	}
	q.backend.Push(msg)
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Dequeue blocks until a message is available or ctx is cancelled.
func (q *PriorityQueue) Dequeue(ctx context.Context) (QueuedMessage, error) {
	for {
		if msg, ok := q.backend.Pop(); ok {
			return msg, nil
		}
		select {
		case <-q.notify:
			continue
		case <-ctx.Done():
			return QueuedMessage{}, ctx.Err()
		}
	}
}

// Len reports the number of messages currently queued.
func (q *PriorityQueue) Len() int {
	return q.backend.Len()
}
