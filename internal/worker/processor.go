package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/mediavault/internal/apperr"
	"github.com/dharsanguruparan/mediavault/internal/queue"
)

// References answers whether a storage key is still used by a record.
type References interface {
	KeyReferenced(ctx context.Context, key string) (bool, error)
}

// Objects inspects and deletes stored objects. *s3storage.Storage and
// *storage.DiskObjects implement it.
type Objects interface {
	Modified(ctx context.Context, key string) (time.Time, error)
	Remove(ctx context.Context, key string) error
}

// Rescheduler puts a sweep off for later. *queue.Scheduler implements it.
type Rescheduler interface {
	ScheduleSweep(ctx context.Context, p queue.SweepPayload, delay time.Duration) error
}

// Processor is plugged into the asynq worker loop. It only ever deletes
// objects; records are never touched.
type Processor struct {
	refs    References
	objects Objects
	later   Rescheduler
	grace   time.Duration
	log     *zap.Logger
	now     func() time.Time
}

// NewProcessor constructs a worker processor. Objects written less than grace
// ago are left alone and checked again once grace has passed.
func NewProcessor(refs References, objects Objects, later Rescheduler, grace time.Duration, log *zap.Logger) *Processor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Processor{refs: refs, objects: objects, later: later, grace: grace, log: log, now: time.Now}
}

// Handler registers the sweep handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.SweepOrphanTask, p.HandleSweep)
	return mux
}

// HandleSweep removes the payload's object unless a record references it or
// it was written within the grace period.
func (p *Processor) HandleSweep(ctx context.Context, task *asynq.Task) error {
	var payload queue.SweepPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.Key == "" {
		return fmt.Errorf("empty key: %w", asynq.SkipRetry)
	}
	log := p.log.With(zap.String("key", payload.Key), zap.String("owner_id", payload.OwnerID))

	modified, err := p.objects.Modified(ctx, payload.Key)
	if errors.Is(err, apperr.ErrNotUploaded) {
		log.Debug("nothing stored, done")
		return nil
	}
	if err != nil {
		log.Warn("sweep stat failed", zap.Error(err))
		return err
	}
	if age := p.now().Sub(modified); age < p.grace {
		next := payload
		next.Round++
		if err := p.later.ScheduleSweep(ctx, next, p.grace-age); err != nil {
			log.Warn("sweep reschedule failed", zap.Error(err))
			return err
		}
		log.Debug("object still fresh, sweep put off", zap.Duration("age", age))
		return nil
	}

	referenced, err := p.refs.KeyReferenced(ctx, payload.Key)
	if err != nil {
		log.Warn("sweep lookup failed", zap.Error(err))
		return err
	}
	if referenced {
		log.Debug("object in use, keeping")
		return nil
	}
	if err := p.objects.Remove(ctx, payload.Key); err != nil {
		log.Warn("sweep remove failed", zap.Error(err))
		return err
	}
	log.Info("orphaned object removed")
	return nil
}
