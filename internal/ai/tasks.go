package ai

import (
	"container/heap"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// scheduledTask is a deferred or recurring function keyed by id.
// Zero fireAt means "next tick".
type scheduledTask struct {
	id        uint64
	fn        func()
	fireAt    time.Time
	interval  time.Duration
	recurring bool
	cancelled atomic.Bool
}

// adhocTask is one unit of work for the worker pool.
type adhocTask struct {
	fn       func()
	priority int
	seq      uint64
}

type adhocHeap []adhocTask

func (h adhocHeap) Len() int { return len(h) }
func (h adhocHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h adhocHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *adhocHeap) Push(x any)   { *h = append(*h, x.(adhocTask)) }
func (h *adhocHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = adhocTask{}
	*h = old[:n-1]
	return t
}

// taskPool runs ad-hoc tasks on worker goroutines pulled from a
// priority heap. With zero workers Drain executes tasks inline on
// the tick thread.
type taskPool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending adhocHeap
	stop    bool
	inline  bool
	workers int
	nextSeq atomic.Uint64
	wg      sync.WaitGroup

	executed atomic.Uint64
	panics   atomic.Uint64
}

func newTaskPool(workers int) *taskPool {
	p := &taskPool{workers: workers}
	p.cond = sync.NewCond(&p.mu)
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

// Submit queues a task. Higher priority runs first. While the pool
// is inline the workers stay parked and only Drain consumes the queue.
func (p *taskPool) Submit(priority int, fn func()) {
	t := adhocTask{fn: fn, priority: priority, seq: p.nextSeq.Add(1)}
	p.mu.Lock()
	heap.Push(&p.pending, t)
	wake := !p.inline
	p.mu.Unlock()
	if wake {
		p.cond.Signal()
	}
}

// SetInline parks or releases the worker goroutines. Inline pools
// execute everything on the tick thread via Drain.
func (p *taskPool) SetInline(v bool) {
	p.mu.Lock()
	p.inline = v
	p.mu.Unlock()
	if !v {
		p.cond.Broadcast()
	}
}

// Drain runs all currently queued tasks inline. Used in
// single-threaded mode where no workers exist.
func (p *taskPool) Drain() {
	for {
		p.mu.Lock()
		if p.pending.Len() == 0 {
			p.mu.Unlock()
			return
		}
		t := heap.Pop(&p.pending).(adhocTask)
		p.mu.Unlock()
		p.run(t)
	}
}

func (p *taskPool) worker() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for (p.pending.Len() == 0 || p.inline) && !p.stop {
			p.cond.Wait()
		}
		if p.stop {
			p.mu.Unlock()
			return
		}
		t := heap.Pop(&p.pending).(adhocTask)
		p.mu.Unlock()
		p.run(t)
	}
}

// run isolates panics: a task failure is logged and counted, never
// propagated.
func (p *taskPool) run(t adhocTask) {
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			slog.Error("task panicked", "panic", r, "priority", t.priority)
		}
	}()
	t.fn()
	p.executed.Add(1)
}

func (p *taskPool) Shutdown() {
	p.mu.Lock()
	p.stop = true
	p.mu.Unlock()
	p.cond.Broadcast()
	p.wg.Wait()
}
