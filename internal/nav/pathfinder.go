package nav

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/voxelforge/mobai/internal/mathx"
)

// Options tunes the pathfinder.
type Options struct {
	Workers            int           // async worker goroutines (0 = 2)
	CacheSize          int           // path cache capacity
	CacheTTL           time.Duration // path cache entry lifetime
	ResultTTL          time.Duration // unpolled result retention
	FlowFieldThreshold int           // pending same-goal requests before switching to a shared field
	MaxSyncSearches    int64         // concurrent FindPathSync cap
}

// DefaultOptions mirror the tuning the demo config ships with.
func DefaultOptions() Options {
	return Options{
		Workers:            2,
		CacheSize:          512,
		CacheTTL:           10 * time.Second,
		ResultTTL:          30 * time.Second,
		FlowFieldThreshold: 8,
		MaxSyncSearches:    4,
	}
}

// queued pairs a request with its id and submission order.
type queued struct {
	req       Request
	id        uint64
	seq       uint64
	cancelled *atomic.Bool
	heapIndex int
}

// requestHeap orders by priority (higher first), then submission.
type requestHeap []*queued

func (h requestHeap) Len() int { return len(h) }
func (h requestHeap) Less(i, j int) bool {
	if h[i].req.Priority != h[j].req.Priority {
		return h[i].req.Priority > h[j].req.Priority
	}
	return h[i].seq < h[j].seq
}
func (h requestHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}
func (h *requestHeap) Push(x any) {
	q := x.(*queued)
	q.heapIndex = len(*h)
	*h = append(*h, q)
}
func (h *requestHeap) Pop() any {
	old := *h
	n := len(old)
	q := old[n-1]
	old[n-1] = nil
	q.heapIndex = -1
	*h = old[:n-1]
	return q
}

type storedResult struct {
	res      Result
	storedAt time.Time
}

// Stats are pathfinder counters exported to the coordinator metrics.
type Stats struct {
	Submitted   uint64
	Completed   uint64
	Cancelled   uint64
	CacheHits   uint64
	FlowFielded uint64
}

// Pathfinder owns the navigation grid and serves path requests
// asynchronously from a worker pool, or synchronously under a
// concurrency cap. Workers only read the grid; scratch state is
// per-request, so any number of searches may run on one grid.
type Pathfinder struct {
	grid  *Grid
	cache *pathCache
	opts  Options

	mu       sync.Mutex
	cond     *sync.Cond
	pending  requestHeap
	inFlight map[uint64]*atomic.Bool
	results  map[uint64]storedResult
	goalLoad map[Cell]int // pending request count per goal cell
	fields   map[Cell]*FlowField

	nextID  atomic.Uint64
	nextSeq atomic.Uint64
	stop    atomic.Bool
	wg      sync.WaitGroup

	syncSem *semaphore.Weighted

	stats struct {
		submitted   atomic.Uint64
		completed   atomic.Uint64
		cancelled   atomic.Uint64
		cacheHits   atomic.Uint64
		flowFielded atomic.Uint64
	}
}

// NewPathfinder creates the engine and starts its workers.
func NewPathfinder(grid *Grid, opts Options) *Pathfinder {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.ResultTTL <= 0 {
		opts.ResultTTL = 30 * time.Second
	}
	if opts.FlowFieldThreshold <= 0 {
		opts.FlowFieldThreshold = 8
	}
	if opts.MaxSyncSearches <= 0 {
		opts.MaxSyncSearches = 4
	}
	p := &Pathfinder{
		grid:     grid,
		cache:    newPathCache(opts.CacheSize, opts.CacheTTL),
		opts:     opts,
		inFlight: make(map[uint64]*atomic.Bool),
		results:  make(map[uint64]storedResult),
		goalLoad: make(map[Cell]int),
		fields:   make(map[Cell]*FlowField),
		syncSem:  semaphore.NewWeighted(opts.MaxSyncSearches),
	}
	p.cond = sync.NewCond(&p.mu)

	p.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go p.worker(i)
	}
	return p
}

// Grid returns the navigation grid.
func (p *Pathfinder) Grid() *Grid { return p.grid }

// Request submits an async request. Returns a non-zero request id.
// A cache hit completes immediately: the result is stored for Poll
// before Request returns.
func (p *Pathfinder) Request(req Request) uint64 {
	id := p.nextID.Add(1)
	p.stats.submitted.Add(1)

	now := time.Now()
	key := makeCacheKey(p.grid, req)
	if wp, ok := p.cache.get(key, p.grid.Version(), now); ok {
		p.stats.cacheHits.Add(1)
		p.mu.Lock()
		p.results[id] = storedResult{
			res: Result{
				RequestID:       id,
				Status:          StatusSuccess,
				Waypoints:       wp,
				PartialProgress: 1,
				GridVersion:     p.grid.Version(),
				FromCache:       true,
			},
			storedAt: now,
		}
		p.mu.Unlock()
		return id
	}

	q := &queued{
		req:       req,
		id:        id,
		seq:       p.nextSeq.Add(1),
		cancelled: &atomic.Bool{},
	}

	p.mu.Lock()
	heap.Push(&p.pending, q)
	p.goalLoad[p.grid.CellOf(req.Goal)]++
	p.mu.Unlock()
	p.cond.Signal()
	return id
}

// Cancel removes a queued request or flags an in-flight one. The
// result map will carry a Cancelled result either way.
func (p *Pathfinder) Cancel(id uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, q := range p.pending {
		if q.id == id {
			q.cancelled.Store(true)
			return
		}
	}
	if flag, ok := p.inFlight[id]; ok {
		flag.Store(true)
	}
}

// Poll returns and removes the result for a request id.
func (p *Pathfinder) Poll(id uint64) (Result, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sr, ok := p.results[id]
	if !ok {
		return Result{}, false
	}
	delete(p.results, id)
	return sr.res, true
}

// FindPathSync runs the search on the caller's goroutine, capped by
// the sync-search semaphore so a burst of blocking callers cannot
// starve the machine.
func (p *Pathfinder) FindPathSync(ctx context.Context, req Request) Result {
	if err := p.syncSem.Acquire(ctx, 1); err != nil {
		return Result{Status: StatusCancelled, FailureReason: "context cancelled before search"}
	}
	defer p.syncSem.Release(1)

	now := time.Now()
	key := makeCacheKey(p.grid, req)
	if wp, ok := p.cache.get(key, p.grid.Version(), now); ok {
		p.stats.cacheHits.Add(1)
		return Result{
			Status:          StatusSuccess,
			Waypoints:       wp,
			PartialProgress: 1,
			GridVersion:     p.grid.Version(),
			FromCache:       true,
		}
	}

	res := p.execute(req, nil)
	if res.Status == StatusSuccess {
		p.cache.put(key, res.Waypoints, res.GridVersion, time.Now())
	}
	return res
}

// Update performs per-tick maintenance: expiring unpolled results
// and dropping flow fields built against stale grid versions.
func (p *Pathfinder) Update(_ float64) {
	now := time.Now()
	version := p.grid.Version()

	p.mu.Lock()
	for id, sr := range p.results {
		if now.Sub(sr.storedAt) > p.opts.ResultTTL {
			delete(p.results, id)
		}
	}
	for goal, f := range p.fields {
		if f.version != version {
			delete(p.fields, goal)
		}
	}
	p.mu.Unlock()
}

// Shutdown stops the workers. In-flight searches observe the stop
// flag at their next budget check.
func (p *Pathfinder) Shutdown() {
	p.stop.Store(true)
	p.cond.Broadcast()
	p.wg.Wait()
}

// Stats returns a snapshot of the counters.
func (p *Pathfinder) Stats() Stats {
	return Stats{
		Submitted:   p.stats.submitted.Load(),
		Completed:   p.stats.completed.Load(),
		Cancelled:   p.stats.cancelled.Load(),
		CacheHits:   p.stats.cacheHits.Load(),
		FlowFielded: p.stats.flowFielded.Load(),
	}
}

// CacheStats returns path cache counters.
func (p *Pathfinder) CacheStats() CacheStats { return p.cache.stats() }

// PendingCount returns queued (not in-flight) requests.
func (p *Pathfinder) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending.Len()
}

// worker pulls the highest-priority request, executes it and
// re-blocks on the condition variable.
func (p *Pathfinder) worker(n int) {
	defer p.wg.Done()

	for {
		p.mu.Lock()
		for p.pending.Len() == 0 && !p.stop.Load() {
			p.cond.Wait()
		}
		if p.stop.Load() {
			p.mu.Unlock()
			return
		}
		q := heap.Pop(&p.pending).(*queued)
		goal := p.grid.CellOf(q.req.Goal)
		p.goalLoad[goal]--
		if p.goalLoad[goal] <= 0 {
			delete(p.goalLoad, goal)
		}

		if q.cancelled.Load() {
			p.results[q.id] = storedResult{
				res:      Result{RequestID: q.id, Status: StatusCancelled, FailureReason: "cancelled"},
				storedAt: time.Now(),
			}
			p.stats.cancelled.Add(1)
			p.mu.Unlock()
			continue
		}

		// Heavy same-goal load: serve from a shared flow field.
		var field *FlowField
		useField := q.req.Algorithm == AlgoFlowField
		if !useField && p.goalLoad[goal]+1 >= p.opts.FlowFieldThreshold {
			useField = true
		}
		if useField {
			field = p.fields[goal]
		}
		p.inFlight[q.id] = q.cancelled
		p.mu.Unlock()

		req := q.req
		if useField {
			req.Algorithm = AlgoFlowField
			p.stats.flowFielded.Add(1)
		}
		res := p.executeWithField(req, q.cancelled, field, useField, goal)
		res.RequestID = q.id

		now := time.Now()
		if res.Status == StatusSuccess && !res.FromCache {
			p.cache.put(makeCacheKey(p.grid, q.req), res.Waypoints, res.GridVersion, now)
		}

		p.mu.Lock()
		delete(p.inFlight, q.id)
		p.results[q.id] = storedResult{res: res, storedAt: now}
		p.mu.Unlock()
		p.stats.completed.Add(1)

		if res.Status == StatusFailed {
			slog.Debug("path request failed",
				"worker", n,
				"request", q.id,
				"agent", q.req.AgentID,
				"reason", res.FailureReason)
		}
	}
}

// execute runs one search to completion on the calling goroutine.
func (p *Pathfinder) execute(req Request, cancelled *atomic.Bool) Result {
	return p.executeWithField(req, cancelled, nil, false, Cell{})
}

func (p *Pathfinder) executeWithField(req Request, cancelled *atomic.Bool, field *FlowField, shareField bool, goal Cell) Result {
	s := newSearch(p.grid, req, &p.stop, cancelled)

	var res Result
	switch req.Algorithm {
	case AlgoThetaStar:
		res = s.runThetaStar()
	case AlgoLazyThetaStar:
		res = s.runLazyThetaStar()
	case AlgoJPS:
		res = s.runJPS()
	case AlgoFlowField:
		res = s.runFlowField(field)
		if shareField && res.Status == StatusSuccess && field == nil {
			// Rebuilt inside the search; rebuild a shareable copy
			// for subsequent same-goal requests.
			fresh := s.buildFlowField(goal, s.maxNodes)
			p.mu.Lock()
			p.fields[goal] = fresh
			p.mu.Unlock()
		}
	default:
		res = s.runAStar()
	}
	return res
}

// WaypointDistance sums the segment lengths of a waypoint path.
func WaypointDistance(path []mathx.Vec3) float64 {
	total := 0.0
	for i := 1; i < len(path); i++ {
		total += path[i].Dist(path[i-1])
	}
	return total
}
