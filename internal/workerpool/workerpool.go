// Package workerpool provides a bounded, generic worker pool used to process
// container entries in parallel.
package workerpool

import (
	"context"
	"runtime"
	"sync"
)

// DefaultWorkers is the worker count used when a caller passes zero.
func DefaultWorkers() int {
	return runtime.NumCPU()
}

// Pool manages job distribution across a fixed number of workers and
// collects results.
type Pool[Job any, Result any] struct {
	numWorkers int
	jobs       chan Job
	results    chan Result
	wg         sync.WaitGroup
}

// New creates a pool with the specified number of workers.
// If numWorkers is 0 or negative, it defaults to DefaultWorkers.
// If numJobs is less than numWorkers, the pool is sized to match numJobs.
func New[Job any, Result any](numWorkers, numJobs int) *Pool[Job, Result] {
	if numWorkers <= 0 {
		numWorkers = DefaultWorkers()
	}
	if numJobs > 0 {
		numWorkers = min(numWorkers, numJobs)
	}

	return &Pool[Job, Result]{
		numWorkers: numWorkers,
		jobs:       make(chan Job, numJobs),
		results:    make(chan Result, numJobs),
	}
}

// Workers returns the number of goroutines Start launches.
func (p *Pool[Job, Result]) Workers() int {
	return p.numWorkers
}

// Start begins the pool with the provided worker function.
// The workerFn is called for each job and should return a result.
func (p *Pool[Job, Result]) Start(workerFn func(Job) Result) {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				p.results <- workerFn(job)
			}
		}()
	}
}

// Submit adds a job to the pool's job queue.
func (p *Pool[Job, Result]) Submit(job Job) {
	p.jobs <- job
}

// Close closes the job channel and waits for all workers to complete.
// After calling Close, the results channel will be closed automatically.
func (p *Pool[Job, Result]) Close() {
	close(p.jobs)
	go func() {
		p.wg.Wait()
		close(p.results)
	}()
}

// Results returns the results channel for collecting worker outputs.
func (p *Pool[Job, Result]) Results() <-chan Result {
	return p.results
}

// Map runs fn over every job with at most numWorkers goroutines and returns
// the results in job order. Jobs not yet started when ctx is done are
// skipped and Map returns ctx.Err(). The first error returned by fn stops
// further jobs from starting and is returned.
func Map[Job any, Result any](ctx context.Context, numWorkers int, jobs []Job, fn func(context.Context, Job) (Result, error)) ([]Result, error) {
	type indexed struct {
		i   int
		job Job
	}
	type outcome struct {
		i   int
		res Result
		err error
	}

	out := make([]Result, len(jobs))
	if len(jobs) == 0 {
		return out, ctx.Err()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool := New[indexed, outcome](numWorkers, len(jobs))
	pool.Start(func(j indexed) outcome {
		if err := ctx.Err(); err != nil {
			return outcome{i: j.i, err: err}
		}
		res, err := fn(ctx, j.job)
		if err != nil {
			cancel()
		}
		return outcome{i: j.i, res: res, err: err}
	})
	for i, j := range jobs {
		pool.Submit(indexed{i: i, job: j})
	}
	pool.Close()

	var firstErr error
	for o := range pool.Results() {
		if o.err != nil {
			if firstErr == nil || (isContextErr(firstErr) && !isContextErr(o.err)) {
				firstErr = o.err
			}
			cancel()
			continue
		}
		out[o.i] = o.res
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func isContextErr(err error) bool {
	return err == context.Canceled || err == context.DeadlineExceeded
}
