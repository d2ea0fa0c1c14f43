// Package taskqueue provides lane-based asynchronous task serialization.
// Tasks enqueued on the same lane run strictly in order, one at a time, so
// callers can hand off persistence work and return immediately while writes
// to the same store still serialize.
package taskqueue

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/openbrowser-ai/opensession/internal/observability"
)

// Task is one unit of asynchronous work.
type Task func(ctx context.Context) error

type taskRecord struct {
	name string
	task Task
}

type laneState struct {
	queue   []taskRecord
	cond    *sync.Cond
	closing bool
}

// Queue runs tasks per lane in FIFO order with concurrency 1 per lane.
type Queue struct {
	lanes  map[string]*laneState
	mu     sync.Mutex
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	logger zerolog.Logger
	closed bool
}

// New creates an empty queue; lanes are created on first use.
func New(logger zerolog.Logger) *Queue {
	observability.EnsureRegistered()
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		lanes:  make(map[string]*laneState),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
}

// Enqueue schedules a task on a lane and returns immediately. Task errors are
// logged, not returned; work that must report failure synchronously does not
// belong on the queue.
func (q *Queue) Enqueue(lane, name string, task Task) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return errors.New("queue is shut down")
	}
	ls, ok := q.lanes[lane]
	if !ok {
		ls = &laneState{}
		ls.cond = sync.NewCond(&q.mu)
		q.lanes[lane] = ls
		q.wg.Add(1)
		go q.drain(lane, ls)
	}
	ls.queue = append(ls.queue, taskRecord{name: name, task: task})
	observability.SetQueueDepth(lane, len(ls.queue))
	ls.cond.Signal()
	q.mu.Unlock()
	return nil
}

func (q *Queue) drain(lane string, ls *laneState) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		for len(ls.queue) == 0 && !ls.closing {
			ls.cond.Wait()
		}
		if len(ls.queue) == 0 && ls.closing {
			q.mu.Unlock()
			return
		}
		rec := ls.queue[0]
		ls.queue = ls.queue[1:]
		observability.SetQueueDepth(lane, len(ls.queue))
		q.mu.Unlock()

		if err := rec.task(q.ctx); err != nil {
			q.logger.Error().
				Err(err).
				Str("lane", lane).
				Str("task", rec.name).
				Msg("Queued task failed")
		}
	}
}

// Depth reports the number of pending tasks on a lane.
func (q *Queue) Depth(lane string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if ls, ok := q.lanes[lane]; ok {
		return len(ls.queue)
	}
	return 0
}

// Shutdown stops accepting tasks and waits until every lane drains or the
// context expires. Tasks already running observe a cancelled context once the
// deadline passes.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	for _, ls := range q.lanes {
		ls.closing = true
		ls.cond.Broadcast()
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		return ctx.Err()
	}
}
