package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/chomp-dev/chomp/pkg/ingester"
	"github.com/chomp-dev/chomp/pkg/interval"
	"github.com/chomp-dev/chomp/pkg/observability"
)

// TaskTypeTick is the asynq task type every tick job is enqueued
// under; job.go's handler is registered against it.
const TaskTypeTick = "chomp:tick"

// tickPayload is the JSON body of a TaskTypeTick task.
type tickPayload struct {
	Ingester string `json:"ingester"`
	Tick     int64  `json:"tick"` // unix seconds
}

// ticker wakes at every wall-clock boundary for one ingester's
// interval tag and enqueues a tick job (spec.md §4.2 dispatch
// algorithm, step 1: "every process independently computes the same
// T_k"). One ticker runs per ingester, not per distinct interval tag;
// evm_logger ingesters in perpetual mode tick too, each tick draining
// their subscription buffer.
type ticker struct {
	log    logrus.FieldLogger
	client *asynq.Client
	ing    *ingester.Ingester
	period time.Duration
}

func newTicker(log logrus.FieldLogger, client *asynq.Client, ing *ingester.Ingester) *ticker {
	return &ticker{log: log.WithField("ingester", ing.Name), client: client, ing: ing}
}

// run blocks, enqueuing a tick job at every boundary, until ctx is
// canceled.
func (t *ticker) run(ctx context.Context) {
	d, err := interval.Duration(t.ing.Interval)
	if err != nil {
		t.log.WithError(err).Error("Unknown interval tag, ticker exiting")
		return
	}
	t.period = d

	boundary, err := interval.Boundary(t.ing.Interval, time.Now())
	if err != nil {
		t.log.WithError(err).Error("Failed to compute initial boundary")
		return
	}

	next, err := interval.Next(t.ing.Interval, boundary)
	if err != nil {
		t.log.WithError(err).Error("Failed to compute next boundary")
		return
	}

	for {
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			t.enqueue(ctx, next)
			boundary = next
			next, err = interval.Next(t.ing.Interval, boundary)
			if err != nil {
				t.log.WithError(err).Error("Failed to compute next boundary, ticker exiting")
				return
			}
		}
	}
}

// enqueue draws this process's own uniform sample before doing
// anything else: per spec.md §4.2 step 1, a skipped tick must not
// attempt a claim at all, so the draw happens before the job is even
// put on the queue, not inside job.go's claim logic.
func (t *ticker) enqueue(ctx context.Context, tick time.Time) {
	if t.ing.Probability < 1 {
		if r := rand.Float64(); r >= t.ing.Probability { //nolint:gosec // probability gate, not security-sensitive
			observability.RecordClaim(t.ing.Name, "skipped")
			t.log.WithField("probability", t.ing.Probability).Debug("Tick skipped by probability draw")
			return
		}
	}

	payload, err := json.Marshal(tickPayload{Ingester: t.ing.Name, Tick: tick.Unix()})
	if err != nil {
		t.log.WithError(err).Error("Failed to marshal tick payload")
		return
	}

	taskID := fmt.Sprintf("tick:%s:%d", t.ing.Name, tick.Unix())
	task := asynq.NewTask(TaskTypeTick, payload)

	_, err = t.client.EnqueueContext(ctx, task,
		asynq.TaskID(taskID),
		asynq.Queue(queueName),
		asynq.MaxRetry(0), // job.go owns retry/cooldown internally, per tick
		asynq.Timeout(capTimeout(t.period)),
	)
	if err != nil {
		// A conflicting TaskID means this tick is already queued or
		// being processed, which is expected when a previous tick's
		// job is still running as the next boundary fires.
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			t.log.WithField("task_id", taskID).Debug("Tick already queued, skipping")
			return
		}
		t.log.WithError(err).WithField("task_id", taskID).Error("Failed to enqueue tick job")
		return
	}

	observability.RecordClaim(t.ing.Name, "enqueued")
}

// capTimeout bounds an asynq task's processing deadline to a multiple
// of the ingester's own interval, clamped to a sane range so very
// short or very long intervals don't produce a degenerate timeout.
func capTimeout(period time.Duration) time.Duration {
	const (
		minTimeout = 30 * time.Second
		maxTimeout = 10 * time.Minute
	)
	t := period * 3
	if t < minTimeout {
		return minTimeout
	}
	if t > maxTimeout {
		return maxTimeout
	}
	return t
}
