package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"github.com/onnwee/mintcast/telemetry"
)

// JobRunner is the per-turn pipeline invoked by the queue's worker. The
// generation identifies which room epoch the turn was enqueued under.
type JobRunner func(ctx context.Context, turn ChatTurn, generation uint64)

// Queue is the FIFO job queue drained by a single logical worker, so at most
// one AI+TTS round trip is outstanding at any time. A burst of inbound turns
// is never dropped, only delayed.
type Queue struct {
	mu         sync.Mutex
	jobs       []ChatTurn
	processing bool
	generation uint64

	ctx context.Context
	run JobRunner
}

func NewQueue(ctx context.Context, run JobRunner) *Queue {
	return &Queue{ctx: ctx, run: run}
}

// Enqueue appends to the tail and requests a drain. If a drain is already in
// progress the request is a no-op; the in-progress drain will observe the new
// item when it loops.
func (q *Queue) Enqueue(turn ChatTurn) {
	q.mu.Lock()
	q.jobs = append(q.jobs, turn)
	telemetry.SetQueueDepth(len(q.jobs))
	if q.processing {
		q.mu.Unlock()
		return
	}
	q.processing = true
	q.mu.Unlock()
	go q.drain()
}

// drain pops and runs jobs strictly in arrival order until the queue is
// empty. An iterative loop, not recursion: sustained load must not grow the
// stack. A failure in one job must not stop the queue from draining.
func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if len(q.jobs) == 0 || q.ctx.Err() != nil {
			q.processing = false
			q.mu.Unlock()
			return
		}
		turn := q.jobs[0]
		q.jobs = q.jobs[1:]
		gen := q.generation
		telemetry.SetQueueDepth(len(q.jobs))
		q.mu.Unlock()

		q.runSafely(turn, gen)
	}
}

func (q *Queue) runSafely(turn ChatTurn, gen uint64) {
	defer func() {
		if r := recover(); r != nil {
			telemetry.JobsFailed.Inc()
			slog.Error("job panicked; continuing drain", slog.Any("panic", r), slog.String("username", turn.Username), slog.String("component", "queue"))
		}
	}()
	q.run(q.ctx, turn, gen)
}

// Reset clears pending jobs and advances the room generation; called on every
// room switch. A job already handed to the runner keeps running — the new
// generation lets the processor recognize its broadcast as stale.
func (q *Queue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = nil
	q.generation++
	telemetry.SetQueueDepth(0)
}

// Generation returns the current room epoch.
func (q *Queue) Generation() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.generation
}

// Depth reports the number of queued turns not yet handed to the runner.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}
