package askworker

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/yungbote/chatlore-backend/internal/clients/llm"
	"github.com/yungbote/chatlore-backend/internal/notify"
	"github.com/yungbote/chatlore-backend/internal/pkg/dbctx"
	"github.com/yungbote/chatlore-backend/internal/pkg/logger"
	"github.com/yungbote/chatlore-backend/internal/repos"
	"github.com/yungbote/chatlore-backend/internal/types"
)

const (
	notifyWaitTimeout = 30 * time.Second
	dbRetrySleep      = 10 * time.Second

	staleRecoveryInterval = time.Minute
	cleanupInterval       = time.Hour
	cleanupRetention      = 7 * 24 * time.Hour
)

// Worker drains the ask queue. Multiple instances can run side by side
// because Pick is atomic; notifications only shorten the idle wait.
type Worker struct {
	queue     repos.AskQueueRepo
	waiter    notify.Waiter
	processor *Processor
	log       *logger.Logger

	lastStaleSweep time.Time
	lastCleanup    time.Time
}

func NewWorker(queue repos.AskQueueRepo, waiter notify.Waiter, processor *Processor, baseLog *logger.Logger) *Worker {
	return &Worker{
		queue:     queue,
		waiter:    waiter,
		processor: processor,
		log:       baseLog.With("worker", "AskWorker"),
	}
}

// Run loops until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.log.Info("ask worker started")
	for {
		select {
		case <-ctx.Done():
			w.log.Info("ask worker stopped")
			return
		default:
		}

		dbc := dbctx.New(ctx)
		w.maintenance(dbc)

		job, err := w.queue.Pick(dbc)
		if err != nil {
			w.log.Error("pick failed, backing off", "error", err)
			sleepCtx(ctx, dbRetrySleep)
			continue
		}
		if job == nil {
			w.waiter.Wait(ctx, notifyWaitTimeout)
			continue
		}
		w.handle(ctx, job)
	}
}

func (w *Worker) maintenance(dbc dbctx.Context) {
	now := time.Now()
	if now.Sub(w.lastStaleSweep) >= staleRecoveryInterval {
		w.lastStaleSweep = now
		if n, err := w.queue.RecoverStale(dbc); err != nil {
			w.log.Error("stale recovery failed", "error", err)
		} else if n > 0 {
			w.log.Info("recovered stale ask jobs", "count", n)
		}
	}
	if now.Sub(w.lastCleanup) >= cleanupInterval {
		w.lastCleanup = now
		if n, err := w.queue.CleanupOld(dbc, cleanupRetention); err != nil {
			w.log.Error("queue cleanup failed", "error", err)
		} else if n > 0 {
			w.log.Info("cleaned up processed ask jobs", "count", n)
		}
	}
}

func (w *Worker) handle(ctx context.Context, job *types.AskJob) {
	log := w.log.With("job_id", job.ID, "chat_id", job.ChatID, "attempt", job.AttemptCount)
	start := time.Now()

	err := w.process(ctx, job)
	if err == nil {
		log.Info("ask processed", "took", time.Since(start))
		return
	}

	log.Error("ask processing failed", "error", err)
	dbc := dbctx.New(ctx)
	willRetry, failErr := w.queue.Fail(dbc, job.ID, failAttempts(job.AttemptCount, err), err.Error())
	if failErr != nil {
		log.Error("failed to record job failure", "error", failErr)
		return
	}
	if !willRetry {
		w.processor.NotifyFinalFailure(ctx, job)
	}
}

// failAttempts forces quota rejections past the attempt ceiling so Fail
// closes the job at once; retrying cannot succeed before the quota resets
// and would only delay the failure notice by the full backoff schedule.
func failAttempts(attemptCount int, err error) int {
	if llm.IsQuotaExhausted(err) {
		return repos.AskMaxAttempts
	}
	return attemptCount
}

// process shields the pipeline behind a panic recovery so one poisoned job
// cannot take the worker down.
func (w *Worker) process(ctx context.Context, job *types.AskJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return w.processor.ProcessAsk(ctx, job)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
