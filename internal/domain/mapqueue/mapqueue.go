// Package mapqueue runs jobs serialized per key.
//
// Jobs submitted under the same key run one at a time in submission order.
// Jobs for different keys run concurrently, bounded by a worker limit. Each
// key holds one in-flight job plus a bounded backlog; Enqueue fails fast with
// an OverflowError once the backlog is full instead of blocking the caller.
package mapqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/wavetermdev/waveterm-sub010/internal/shared/errs"
)

const (
	DefaultBacklog = 100
	DefaultWorkers = 8
)

var ErrClosed = errors.New("mapqueue closed")

type keyQueue struct {
	jobs    []func()
	running bool
}

type MapQueue struct {
	backlog int
	sem     *semaphore.Weighted
	logger  *zap.Logger

	lock   sync.Mutex
	queues map[string]*keyQueue
	closed bool
	wg     sync.WaitGroup

	onReject func(key string)
}

// New creates a queue allowing backlog pending jobs per key and at most
// workers jobs running at once across all keys.
func New(backlog int, workers int, logger *zap.Logger) *MapQueue {
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MapQueue{
		backlog: backlog,
		sem:     semaphore.NewWeighted(int64(workers)),
		logger:  logger.With(zap.String("component", "mapqueue")),
		queues:  make(map[string]*keyQueue),
	}
}

// SetOnReject installs a hook called when Enqueue rejects a job for a full
// backlog.
func (q *MapQueue) SetOnReject(fn func(key string)) {
	q.onReject = fn
}

// Enqueue schedules fn to run after every job previously enqueued under key.
func (q *MapQueue) Enqueue(key string, fn func()) error {
	q.lock.Lock()
	defer q.lock.Unlock()
	if q.closed {
		return ErrClosed
	}
	kq := q.queues[key]
	if kq == nil {
		kq = &keyQueue{}
		q.queues[key] = kq
	}
	if len(kq.jobs) >= q.backlog {
		if q.onReject != nil {
			q.onReject(key)
		}
		return &errs.OverflowError{Key: key, Capacity: q.backlog}
	}
	kq.jobs = append(kq.jobs, fn)
	if !kq.running {
		kq.running = true
		q.wg.Add(1)
		go q.runKey(key, kq)
	}
	return nil
}

func (q *MapQueue) runKey(key string, kq *keyQueue) {
	defer q.wg.Done()
	for {
		q.lock.Lock()
		if len(kq.jobs) == 0 {
			kq.running = false
			delete(q.queues, key)
			q.lock.Unlock()
			return
		}
		job := kq.jobs[0]
		kq.jobs[0] = nil
		kq.jobs = kq.jobs[1:]
		q.lock.Unlock()

		// only fails on a cancelled context
		_ = q.sem.Acquire(context.Background(), 1)
		q.runJob(key, job)
		q.sem.Release(1)
	}
}

func (q *MapQueue) runJob(key string, job func()) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("panic in queued job",
				zap.String("key", key),
				zap.String("panic", fmt.Sprint(r)))
		}
	}()
	job()
}

// Len returns the number of pending (not yet running) jobs for key.
func (q *MapQueue) Len(key string) int {
	q.lock.Lock()
	defer q.lock.Unlock()
	if kq := q.queues[key]; kq != nil {
		return len(kq.jobs)
	}
	return 0
}

// NumKeys returns the number of keys with queued or running jobs.
func (q *MapQueue) NumKeys() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	return len(q.queues)
}

// Close stops accepting jobs and waits for queued jobs to finish or ctx to
// end.
func (q *MapQueue) Close(ctx context.Context) error {
	q.lock.Lock()
	q.closed = true
	q.lock.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
