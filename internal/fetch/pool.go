package fetch

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Job is one fetch unit dispatched through a Pool.
type Job struct {
	URL         string
	Headers     map[string]string
	Destination string
}

// Pool runs fetch jobs with bounded concurrency, independent of any
// install-concurrency limit (§4.J.4: "Download concurrency is bounded
// independently and can exceed install concurrency").
type Pool struct {
	client  *Client
	workers int
}

// NewPool creates a Pool with the given maximum concurrent downloads.
func NewPool(client *Client, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{client: client, workers: workers}
}

// Report aggregates counts across a batch of jobs.
type Report struct {
	Total      int
	Downloaded int
	Failed     int
	mu         sync.Mutex
}

func (r *Report) recordSuccess() {
	r.mu.Lock()
	r.Downloaded++
	r.mu.Unlock()
}

// RunAll dispatches all jobs concurrently, bounded by Pool.workers, and
// returns on the first error (cancelling remaining in-flight jobs via
// errgroup's shared context), matching the teacher's download.go idiom.
func (p *Pool) RunAll(ctx context.Context, jobs []Job) (Report, error) {
	report := Report{Total: len(jobs)}

	g, gctx := errgroup.WithContext(ctx)
	semaphore := make(chan struct{}, p.workers)

	for _, job := range jobs {
		job := job
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case semaphore <- struct{}{}:
				defer func() { <-semaphore }()
			}

			if _, err := p.client.Get(gctx, job.URL, job.Headers, job.Destination); err != nil {
				return err
			}
			report.recordSuccess()
			return nil
		})
	}

	err := g.Wait()
	if err != nil {
		report.mu.Lock()
		report.Failed = report.Total - report.Downloaded
		report.mu.Unlock()
	}
	return report, err
}
