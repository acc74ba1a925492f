package workerpool

import (
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func discardLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func TestPoolRunsSubmittedTasks(t *testing.T) {
	pool := New(2, 4, discardLogger())
	defer pool.Close()

	var n atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		pool.Submit(func() {
			defer wg.Done()
			n.Add(1)
		})
	}
	wg.Wait()

	if n.Load() != 10 {
		t.Fatalf("expected 10 tasks to run, ran %d", n.Load())
	}
}

func TestPoolSurvivesPanickingTask(t *testing.T) {
	pool := New(1, 1, discardLogger())
	defer pool.Close()

	pool.Submit(func() { panic("boom") })

	done := make(chan struct{})
	pool.Submit(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not recover from a panicking task")
	}
}
