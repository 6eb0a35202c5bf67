package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// SweepOrphanTask is scheduled every time a write URL is issued. When it
	// runs, an object no record references is deleted.
	SweepOrphanTask = "media:sweep-orphan"
)

// SweepPayload names the object to check. Round counts how many times the
// check was put off because the object was still fresh.
type SweepPayload struct {
	Key     string `json:"key"`
	OwnerID string `json:"owner_id"`
	Round   int    `json:"round,omitempty"`
}

// TaskID identifies the pending sweep of a key. Each round gets its own id so
// a sweep can reschedule itself while it is still active.
func (p SweepPayload) TaskID() string {
	id := SweepOrphanTask + ":" + p.Key
	if p.Round > 0 {
		id += ":" + strconv.Itoa(p.Round)
	}
	return id
}

// NewSweepTask builds the task for payload.
func NewSweepTask(payload SweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(SweepOrphanTask, data), nil
}

// Scheduler enqueues sweeps on an asynq client.
type Scheduler struct {
	client *asynq.Client
}

// NewScheduler wraps client.
func NewScheduler(client *asynq.Client) *Scheduler {
	return &Scheduler{client: client}
}

// ScheduleSweep runs the orphan check for key after delay. Sweeps of the same
// key and round are deduplicated while one is pending.
func (s *Scheduler) ScheduleSweep(ctx context.Context, payload SweepPayload, delay time.Duration) error {
	task, err := NewSweepTask(payload)
	if err != nil {
		return err
	}
	_, err = s.client.EnqueueContext(ctx, task,
		asynq.ProcessIn(delay),
		asynq.MaxRetry(5),
		asynq.TaskID(payload.TaskID()),
	)
	if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		return fmt.Errorf("enqueue sweep task: %w", err)
	}
	return nil
}
