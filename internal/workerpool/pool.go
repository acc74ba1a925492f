// Package workerpool is a fixed-size pool of goroutines draining a single
// task queue — the Go rendition of the specification's fixed pool of OS
// threads servicing one reactor queue. Submitting a connection here, rather
// than spawning a goroutine per connection directly, is what makes
// number_of_additional_threads an actual concurrency bound instead of a
// cosmetic configuration value.
package workerpool

import (
	"sync"

	"github.com/rs/zerolog"
)

// Pool runs a fixed number of worker goroutines, each pulling closures off
// a shared, buffered queue until the queue is closed.
type Pool struct {
	log   *zerolog.Logger
	tasks chan func()
	wg    sync.WaitGroup
}

// New starts workers goroutines reading from a queue of the given capacity.
// A queue depth of 0 makes Submit block until a worker is free to accept.
func New(workers, queueDepth int, log *zerolog.Logger) *Pool {
	p := &Pool{
		log:   log,
		tasks: make(chan func(), queueDepth),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.runWorker(i)
	}
	return p
}

func (p *Pool) runWorker(id int) {
	defer p.wg.Done()
	for task := range p.tasks {
		p.runTask(id, task)
	}
}

func (p *Pool) runTask(id int, task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Int("worker", id).Interface("panic", r).Msg("worker task panicked")
		}
	}()
	task()
}

// Submit enqueues task for execution by the next available worker. It
// blocks if the queue is full.
func (p *Pool) Submit(task func()) {
	p.tasks <- task
}

// Close stops accepting new tasks and waits for every in-flight and queued
// task to finish.
func (p *Pool) Close() {
	close(p.tasks)
	p.wg.Wait()
}
