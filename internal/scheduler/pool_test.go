package scheduler

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerPoolRunsAllSubmittedJobs(t *testing.T) {
	p := newWorkerPool(2)
	defer p.Stop()

	var count int64
	var wg sync.WaitGroup
	wg.Add(20)
	for i := 0; i < 20; i++ {
		p.Submit(func() {
			atomic.AddInt64(&count, 1)
			wg.Done()
		})
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for all jobs to run")
	}
	if got := atomic.LoadInt64(&count); got != 20 {
		t.Fatalf("expected 20 jobs to run, got %d", got)
	}
}

func TestWorkerPoolSubmitNeverBlocks(t *testing.T) {
	p := newWorkerPool(1)
	defer p.Stop()

	block := make(chan struct{})
	p.Submit(func() { <-block })

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			p.Submit(func() {})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Submit blocked while the single worker was busy")
	}
	close(block)
}

func TestWorkerPoolStopWaitsForInFlightJobs(t *testing.T) {
	p := newWorkerPool(1)

	var finished int32
	started := make(chan struct{})
	p.Submit(func() {
		close(started)
		time.Sleep(50 * time.Millisecond)
		atomic.StoreInt32(&finished, 1)
	})
	<-started
	p.Stop()

	if atomic.LoadInt32(&finished) != 1 {
		t.Fatal("expected Stop to wait for the in-flight job to finish")
	}
}
