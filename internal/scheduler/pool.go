package scheduler

import (
	"sync"

	"github.com/dbsentinel/dbsentinel/internal/metrics"
)

// defaultWorkerCount matches spec §4.6's "bounded concurrency (default 4
// concurrent runs across all schedules)".
const defaultWorkerCount = 4

// workerPool runs submitted jobs on a fixed number of goroutines, queuing
// anything beyond that in FIFO order rather than blocking the submitter.
// Unlike a buffered channel, this queue has no fixed capacity — Submit
// never blocks or drops work, matching spec §4.6's "overflow goes to a
// FIFO queue" (not "overflow is rejected").
type workerPool struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	wg     sync.WaitGroup
}

// newWorkerPool starts workers goroutines draining the queue.
func newWorkerPool(workers int) *workerPool {
	if workers <= 0 {
		workers = defaultWorkerCount
	}
	p := &workerPool{}
	p.cond = sync.NewCond(&p.mu)

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.work()
	}
	return p
}

func (p *workerPool) work() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 && p.closed {
			p.mu.Unlock()
			return
		}
		job := p.queue[0]
		p.queue = p.queue[1:]
		metrics.WorkerPoolQueueDepth.Set(float64(len(p.queue)))
		p.mu.Unlock()

		job()
	}
}

// Submit enqueues job to run on the next free worker. Never blocks.
func (p *workerPool) Submit(job func()) {
	p.mu.Lock()
	p.queue = append(p.queue, job)
	metrics.WorkerPoolQueueDepth.Set(float64(len(p.queue)))
	p.mu.Unlock()
	p.cond.Signal()
}

// Stop signals every worker to exit once the queue drains and waits for
// them to finish any job already in progress.
func (p *workerPool) Stop() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
	p.wg.Wait()
}
