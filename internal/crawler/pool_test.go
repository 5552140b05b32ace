package crawler

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alvmarrod/image-weaver/internal/storage"
)

// gatedProcessor blocks every job until release is closed and tracks concurrency
type gatedProcessor struct {
	started chan storage.ArticleJob
	release chan struct{}
	running atomic.Int32
	peak    atomic.Int32

	mu    sync.Mutex
	order []string
}

func newGatedProcessor() *gatedProcessor {
	return &gatedProcessor{
		started: make(chan storage.ArticleJob, 100),
		release: make(chan struct{}),
	}
}

func (p *gatedProcessor) Download(job storage.ArticleJob) storage.Outcome {
	n := p.running.Add(1)
	for {
		old := p.peak.Load()
		if n <= old || p.peak.CompareAndSwap(old, n) {
			break
		}
	}

	p.mu.Lock()
	p.order = append(p.order, job.Title)
	p.mu.Unlock()

	p.started <- job
	<-p.release

	p.running.Add(-1)
	return storage.Completed(job.Title, 1, 1)
}

func (p *gatedProcessor) seen() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.order...)
}

// sleepyProcessor sleeps a little per job and tracks concurrency
type sleepyProcessor struct {
	running atomic.Int32
	peak    atomic.Int32
	calls   atomic.Int32
}

func (p *sleepyProcessor) Download(job storage.ArticleJob) storage.Outcome {
	p.calls.Add(1)
	n := p.running.Add(1)
	for {
		old := p.peak.Load()
		if n <= old || p.peak.CompareAndSwap(old, n) {
			break
		}
	}
	time.Sleep(time.Duration(rand.Intn(3000)) * time.Microsecond)
	p.running.Add(-1)

	if job.Path == "/fail" {
		return storage.Failed(storage.ReasonImageFetchFailed, "", 0, 0, fmt.Errorf("boom"))
	}
	return storage.Completed(job.Title, 1, 1)
}

func makeJobs(n int) []storage.ArticleJob {
	jobs := make([]storage.ArticleJob, n)
	for i := range jobs {
		jobs[i] = storage.ArticleJob{Title: fmt.Sprintf("article-%d", i+1), Path: fmt.Sprintf("/a/%d/", i+1)}
	}
	return jobs
}

func waitStarted(t *testing.T, p *gatedProcessor) storage.ArticleJob {
	t.Helper()
	select {
	case job := <-p.started:
		return job
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a job to start")
	}
	return storage.ArticleJob{}
}

func runAsync(pool *Pool, jobs []storage.ArticleJob) <-chan Summary {
	out := make(chan Summary, 1)
	go func() { out <- pool.Run(jobs) }()
	return out
}

func TestPoolNeverExceedsConcurrency(t *testing.T) {
	for c := 1; c <= 4; c++ {
		proc := &sleepyProcessor{}
		var results []Result
		pool := NewPool(c, proc, NewShutdown(), func(r Result) { results = append(results, r) })

		summary := pool.Run(makeJobs(20))

		if peak := proc.peak.Load(); int(peak) > c {
			t.Errorf("c=%d: %d articles ran concurrently", c, peak)
		}
		if summary.PeakLive > c {
			t.Errorf("c=%d: PeakLive = %d", c, summary.PeakLive)
		}
		if summary.Dispatched != 20 || summary.NotDispatched != 0 || summary.Interrupted {
			t.Errorf("c=%d: summary = %+v, want all 20 dispatched", c, summary)
		}
		if len(results) != 20 {
			t.Errorf("c=%d: %d results reported, want 20", c, len(results))
		}
		if int(proc.calls.Load()) != 20 {
			t.Errorf("c=%d: processor called %d times, want 20", c, proc.calls.Load())
		}
	}
}

func TestPoolThreeArticlesTwoWorkers(t *testing.T) {
	proc := newGatedProcessor()
	pool := NewPool(2, proc, NewShutdown(), nil)
	done := runAsync(pool, makeJobs(3))

	waitStarted(t, proc)
	waitStarted(t, proc)

	// Both workers are busy: the third article must wait
	select {
	case job := <-proc.started:
		t.Fatalf("article %q started while 2 were live", job.Title)
	case <-time.After(50 * time.Millisecond):
	}

	select {
	case <-done:
		t.Fatal("Run returned while articles were still live")
	default:
	}

	close(proc.release)

	select {
	case summary := <-done:
		if summary.Dispatched != 3 {
			t.Errorf("Dispatched = %d, want 3", summary.Dispatched)
		}
		if summary.PeakLive != 2 {
			t.Errorf("PeakLive = %d, want 2", summary.PeakLive)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after release")
	}

	if peak := proc.peak.Load(); peak > 2 {
		t.Errorf("%d articles ran concurrently, want at most 2", peak)
	}
	if proc.running.Load() != 0 {
		t.Errorf("%d articles still running after Run returned", proc.running.Load())
	}
}

func TestPoolShutdownStopsDispatch(t *testing.T) {
	proc := newGatedProcessor()
	shutdown := NewShutdown()
	var results []Result
	pool := NewPool(1, proc, shutdown, func(r Result) { results = append(results, r) })
	done := runAsync(pool, makeJobs(3))

	first := waitStarted(t, proc)
	if first.Title != "article-1" {
		t.Fatalf("first dispatched = %q, want article-1", first.Title)
	}

	shutdown.Trigger()

	select {
	case <-done:
		t.Fatal("Run returned before the in-flight article finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(proc.release)

	var summary Summary
	select {
	case summary = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the in-flight article finished")
	}

	if summary.Dispatched != 1 || summary.NotDispatched != 2 || !summary.Interrupted {
		t.Errorf("summary = %+v, want 1 dispatched, 2 not dispatched, interrupted", summary)
	}
	if seen := proc.seen(); len(seen) != 1 {
		t.Errorf("processed %v, want only article-1", seen)
	}
	if len(results) != 1 || results[0].Outcome.Status != storage.StatusCompleted {
		t.Errorf("results = %+v, want article-1 completed", results)
	}
}

func TestPoolShutdownWhileFullNeverDispatches(t *testing.T) {
	for i := 0; i < 50; i++ {
		proc := newGatedProcessor()
		shutdown := NewShutdown()
		pool := NewPool(2, proc, shutdown, nil)
		done := runAsync(pool, makeJobs(6))

		waitStarted(t, proc)
		waitStarted(t, proc)

		// Both workers are busy, so no send can be ready when the latch trips
		shutdown.Trigger()
		close(proc.release)

		var summary Summary
		select {
		case summary = <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("iteration %d: Run did not return", i)
		}

		if summary.Dispatched != 2 || summary.NotDispatched != 4 {
			t.Fatalf("iteration %d: summary = %+v, want 2 dispatched, 4 not dispatched", i, summary)
		}
		if seen := proc.seen(); len(seen) != 2 {
			t.Fatalf("iteration %d: processed %v, want 2 articles", i, seen)
		}
	}
}

func TestPoolShutdownBeforeRun(t *testing.T) {
	proc := &sleepyProcessor{}
	shutdown := NewShutdown()
	shutdown.Trigger()

	pool := NewPool(3, proc, shutdown, nil)
	summary := pool.Run(makeJobs(5))

	if summary.Dispatched != 0 || summary.NotDispatched != 5 {
		t.Errorf("summary = %+v, want nothing dispatched", summary)
	}
	if proc.calls.Load() != 0 {
		t.Errorf("processor called %d times, want 0", proc.calls.Load())
	}
	select {
	case <-pool.Drained():
	default:
		t.Error("Drained() not closed after Run")
	}
}

func TestPoolDispatchesInListingOrder(t *testing.T) {
	proc := &sleepyProcessor{}
	var mu sync.Mutex
	var order []int
	pool := NewPool(1, proc, NewShutdown(), func(r Result) {
		mu.Lock()
		order = append(order, r.Seq)
		mu.Unlock()
	})

	pool.Run(makeJobs(6))

	for i, seq := range order {
		if seq != i {
			t.Fatalf("completion order = %v, want 0..5 with a single worker", order)
		}
	}
}

func TestPoolFailuresAreContained(t *testing.T) {
	proc := &sleepyProcessor{}
	jobs := makeJobs(4)
	jobs[1].Path = "/fail"

	statuses := make(map[int]storage.Status)
	pool := NewPool(2, proc, NewShutdown(), func(r Result) { statuses[r.Seq] = r.Outcome.Status })
	summary := pool.Run(jobs)

	if summary.Dispatched != 4 {
		t.Errorf("Dispatched = %d, want 4", summary.Dispatched)
	}
	if statuses[1] != storage.StatusFailed {
		t.Errorf("article 1 status = %s, want failed", statuses[1])
	}
	for _, seq := range []int{0, 2, 3} {
		if statuses[seq] != storage.StatusCompleted {
			t.Errorf("article %d status = %s, want completed", seq, statuses[seq])
		}
	}
}

func TestPoolRunsOnce(t *testing.T) {
	proc := &sleepyProcessor{}
	pool := NewPool(2, proc, NewShutdown(), nil)

	pool.Run(makeJobs(2))
	second := pool.Run(makeJobs(2))

	if second.Dispatched != 0 {
		t.Errorf("second Run dispatched %d, want 0", second.Dispatched)
	}
	if proc.calls.Load() != 2 {
		t.Errorf("processor called %d times, want 2", proc.calls.Load())
	}
}

func TestPoolEmptyJobs(t *testing.T) {
	pool := NewPool(2, &sleepyProcessor{}, NewShutdown(), nil)
	summary := pool.Run(nil)
	if summary != (Summary{}) {
		t.Errorf("summary = %+v, want zero", summary)
	}
}
