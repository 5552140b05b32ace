package crawler

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/alvmarrod/image-weaver/internal/storage"
)

// Result reports one finished article job
type Result struct {
	Seq      int // position in the listing
	Job      storage.ArticleJob
	Outcome  storage.Outcome
	Duration time.Duration
}

// Summary describes a finished run. It is informational only: per-article
// failures are reported through the result callback and the log.
type Summary struct {
	Listed        int
	Dispatched    int
	NotDispatched int
	PeakLive      int
	Interrupted   bool
}

type dispatch struct {
	seq int
	job storage.ArticleJob
}

// Pool runs article jobs on a fixed number of workers
type Pool struct {
	size      int
	processor ArticleProcessor
	shutdown  *Shutdown
	onResult  func(Result)
	drained   chan struct{}
	runOnce   sync.Once
}

// NewPool creates a pool of size workers. onResult may be nil; it is always
// called from the goroutine executing Run.
func NewPool(size int, processor ArticleProcessor, shutdown *Shutdown, onResult func(Result)) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		size:      size,
		processor: processor,
		shutdown:  shutdown,
		onResult:  onResult,
		drained:   make(chan struct{}),
	}
}

// Drained is closed once Run has returned and no worker is live
func (p *Pool) Drained() <-chan struct{} {
	return p.drained
}

// Run dispatches jobs in order until they are exhausted or shutdown is
// triggered, then blocks until every dispatched job has finished.
// A pool runs once; later calls return immediately.
func (p *Pool) Run(jobs []storage.ArticleJob) Summary {
	var summary Summary
	ran := false
	p.runOnce.Do(func() {
		ran = true
		summary = p.run(jobs)
	})
	if !ran {
		logrus.Warn("Pool already ran, ignoring second Run call")
	}
	return summary
}

func (p *Pool) run(jobs []storage.ArticleJob) Summary {
	defer close(p.drained)

	logrus.Infof("Starting %d workers for %d articles", p.size, len(jobs))

	work := make(chan dispatch)
	done := make(chan Result, p.size)

	var wg sync.WaitGroup
	for i := 0; i < p.size; i++ {
		wg.Add(1)
		go p.worker(i+1, work, done, &wg)
	}

	// Live set: only this goroutine touches it
	live := make(map[int]storage.ArticleJob, p.size)
	summary := Summary{Listed: len(jobs)}

	next := 0
	for next < len(jobs) {
		if p.shutdown.Triggered() {
			summary.Interrupted = true
			break
		}

		// A trip between the check above and the select below leaves both the
		// send and Done ready, and select picks at random. Re-check without
		// blocking to keep that window as small as possible.
		select {
		case <-p.shutdown.Done():
			continue
		default:
		}

		// Admission only while below capacity; otherwise wait for a completion
		var send chan<- dispatch
		if len(live) < p.size {
			send = work
		}

		select {
		case send <- dispatch{seq: next, job: jobs[next]}:
			live[next] = jobs[next]
			logrus.Infof("Dispatched article %d/%d: %q", next+1, len(jobs), jobs[next].Title)
			next++
			summary.Dispatched++
			if len(live) > summary.PeakLive {
				summary.PeakLive = len(live)
			}
		case res := <-done:
			p.reclaim(live, res)
		case <-p.shutdown.Done():
		}
	}

	summary.NotDispatched = len(jobs) - next
	if summary.NotDispatched > 0 {
		logrus.Warnf("Shutdown requested: %d articles will not be dispatched", summary.NotDispatched)
	}

	if len(live) > 0 {
		logrus.Infof("Waiting for %d in-flight articles...", len(live))
	}
	for len(live) > 0 {
		p.reclaim(live, <-done)
	}

	close(work)
	wg.Wait()

	logrus.Infof("Pool drained: %d dispatched, %d not dispatched, peak %d live",
		summary.Dispatched, summary.NotDispatched, summary.PeakLive)
	return summary
}

// worker processes dispatched jobs until the work channel is closed
func (p *Pool) worker(id int, work <-chan dispatch, done chan<- Result, wg *sync.WaitGroup) {
	defer wg.Done()

	for d := range work {
		logrus.Debugf("Worker %d: processing %q (%s)", id, d.job.Title, d.job.Path)

		start := time.Now()
		outcome := p.processor.Download(d.job)

		done <- Result{
			Seq:      d.seq,
			Job:      d.job,
			Outcome:  outcome,
			Duration: time.Since(start),
		}
	}
}

// reclaim removes a finished job from the live set and reports it
func (p *Pool) reclaim(live map[int]storage.ArticleJob, res Result) {
	if _, ok := live[res.Seq]; !ok {
		logrus.Warnf("Completion for unknown article %d ignored", res.Seq)
		return
	}
	delete(live, res.Seq)

	logOutcome(res)
	if p.onResult != nil {
		p.onResult(res)
	}
}

func logOutcome(res Result) {
	o := res.Outcome
	switch o.Status {
	case storage.StatusCompleted:
		logrus.Infof("Article %q: %d images saved to %s (%v)", res.Job.Title, o.ImagesWritten, o.Directory, res.Duration)
	case storage.StatusSkipped:
		if o.Reason == storage.ReasonFetchFailed {
			logrus.Warnf("Article %q skipped: %s: %v", res.Job.Title, o.Reason, o.Err)
		} else {
			logrus.Infof("Article %q skipped: %s", res.Job.Title, o.Reason)
		}
	case storage.StatusFailed:
		logrus.Errorf("Article %q failed after %d images: %s: %v", res.Job.Title, o.ImagesWritten, o.Reason, o.Err)
	}
}
