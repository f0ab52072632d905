// Package events runs derived, out-of-band work (card reconciliation,
// unread counters) after a mutation commits.
//
// Jobs are sharded by key, normally the affected user id, so that all work
// for one user executes in submission order on a single worker. That gives
// per-user ordering of the subscription events the jobs publish.
package events

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/oggyb/muzz-social/internal/metrics"
)

// Job is a unit of derived work. It must be idempotent: it may run more
// than once when a previous attempt failed.
type Job func(ctx context.Context) error

type task struct {
	key  string
	name string
	fn   Job
}

// Dispatcher is a sharded worker pool with bounded retries.
type Dispatcher struct {
	shards     []chan task
	quit       chan struct{} // closed once Stop has drained the queue
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger

	workers sync.WaitGroup

	mu       sync.Mutex
	pending  int
	idle     chan struct{} // closed whenever pending is zero
	started  bool
	stopping bool
	stopped  bool
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewDispatcher creates a dispatcher with the given number of shards.
func NewDispatcher(workers, maxRetries int, backoff time.Duration, logger *slog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	d := &Dispatcher{
		shards:     make([]chan task, workers),
		quit:       make(chan struct{}),
		maxRetries: maxRetries,
		backoff:    backoff,
		logger:     logger,
		idle:       make(chan struct{}),
	}
	close(d.idle)
	for i := range d.shards {
		d.shards[i] = make(chan task, 1024)
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d
}

// Start launches one goroutine per shard. Calling it twice is a no-op.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.stopped {
		return
	}
	d.started = true
	for _, ch := range d.shards {
		d.workers.Add(1)
		go d.run(ch)
	}
}

// Stop runs every queued job, including jobs queued before Start was ever
// called, then stops the workers. Jobs enqueued after Stop are dropped.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopping {
		d.mu.Unlock()
		return
	}
	d.stopping = true
	d.mu.Unlock()

	d.Start()
	_ = d.Flush(context.Background())

	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
	close(d.quit)
	d.workers.Wait()
	d.cancel()
}

// Enqueue schedules fn on the shard owning key. Jobs enqueued after Stop
// are dropped with a warning.
func (d *Dispatcher) Enqueue(key, name string, fn Job) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		d.logger.Warn("dispatcher stopped, dropping job", "job", name, "key", key)
		return
	}
	if d.pending == 0 {
		d.idle = make(chan struct{})
	}
	d.pending++
	d.mu.Unlock()

	select {
	case d.shards[d.shardFor(key)] <- task{key: key, name: name, fn: fn}:
	case <-d.quit:
		d.logger.Warn("dispatcher stopped, dropping job", "job", name, "key", key)
		d.done()
	}
}

// Flush blocks until every job enqueued so far (and any job those jobs
// enqueue) has finished, or ctx is done.
func (d *Dispatcher) Flush(ctx context.Context) error {
	d.mu.Lock()
	idle := d.idle
	d.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) done() {
	d.mu.Lock()
	d.pending--
	if d.pending == 0 {
		close(d.idle)
	}
	d.mu.Unlock()
}

func (d *Dispatcher) shardFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(d.shards)))
}

func (d *Dispatcher) run(ch chan task) {
	defer d.workers.Done()
	for {
		select {
		case t := <-ch:
			d.execute(t)
			d.done()
		case <-d.quit:
			// anything that slipped in after the final flush
			for {
				select {
				case t := <-ch:
					d.execute(t)
					d.done()
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) execute(t task) {
	wait := d.backoff
	for attempt := 0; ; attempt++ {
		err := t.fn(d.ctx)
		if err == nil {
			return
		}
		if attempt >= d.maxRetries {
			metrics.RecordJobFailure(t.name)
			d.logger.Error("job failed, giving up", "job", t.name, "key", t.key, "attempts", attempt+1, "err", err)
			return
		}
		metrics.RecordJobRetry(t.name)
		d.logger.Warn("job failed, retrying", "job", t.name, "key", t.key, "attempt", attempt+1, "err", err)
		time.Sleep(wait)
		wait *= 2
	}
}
