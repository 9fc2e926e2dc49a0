package repos

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/chatlore-backend/internal/pkg/dbctx"
	"github.com/yungbote/chatlore-backend/internal/pkg/logger"
	"github.com/yungbote/chatlore-backend/internal/types"
)

// Queue tuning. Lease expiry makes a picked row claimable again; backoff is
// encoded by pushing started_at forward so the same pick predicate covers
// both fresh and retrying rows.
const (
	AskMaxAttempts   = 3
	TruthMaxAttempts = 3

	AskLeaseTimeout   = 5 * time.Minute
	TruthLeaseTimeout = 10 * time.Minute

	BaseRetryDelay = 30 * time.Second
	MaxRetryDelay  = 5 * time.Minute
)

// AskNotifyChannel is the pg_notify channel fired on enqueue.
const AskNotifyChannel = "ask_queue_new"

// TruthNotifyChannel is the pg_notify channel for truth jobs.
const TruthNotifyChannel = "truth_queue_new"

// RetryBackoff is min(BaseRetryDelay * 2^(attempt-1), MaxRetryDelay).
func RetryBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := BaseRetryDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= MaxRetryDelay {
			return MaxRetryDelay
		}
	}
	if d > MaxRetryDelay {
		d = MaxRetryDelay
	}
	return d
}

func pgInterval(d time.Duration) string {
	return fmt.Sprintf("%d milliseconds", d.Milliseconds())
}

type AskQueueRepo interface {
	// Enqueue inserts a job unless an unprocessed row with the same
	// idempotency key already exists. Returns the job and whether a new
	// row was actually inserted.
	Enqueue(dbc dbctx.Context, job *types.AskJob) (bool, error)
	// Pick atomically claims the oldest eligible row. Returns nil when
	// the queue is empty.
	Pick(dbc dbctx.Context) (*types.AskJob, error)
	Complete(dbc dbctx.Context, id uuid.UUID) error
	// Fail records an error. If attempts remain the row becomes eligible
	// again after an exponential backoff; otherwise it is closed and
	// false is returned so the caller can notify the user.
	Fail(dbc dbctx.Context, id uuid.UUID, attemptCount int, errMsg string) (bool, error)
	RecoverStale(dbc dbctx.Context) (int64, error)
	CleanupOld(dbc dbctx.Context, olderThan time.Duration) (int64, error)
	Depth(dbc dbctx.Context) (int64, error)
}

type askQueueRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAskQueueRepo(db *gorm.DB, baseLog *logger.Logger) AskQueueRepo {
	return &askQueueRepo{db: db, log: baseLog.With("repo", "AskQueueRepo")}
}

func (r *askQueueRepo) conn(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *askQueueRepo) Enqueue(dbc dbctx.Context, job *types.AskJob) (bool, error) {
	if job == nil {
		return false, fmt.Errorf("nil job")
	}
	if job.IdempotencyKey == "" {
		job.IdempotencyKey = types.AskIdempotencyKey(job.ChatID, job.ReplyToMessageID, job.Command)
	}
	tx := r.conn(dbc).WithContext(dbc.Ctx).Clauses(clause.OnConflict{
		Columns:     []clause.Column{{Name: "idempotency_key"}},
		TargetWhere: clause.Where{Exprs: []clause.Expression{clause.Eq{Column: "processed", Value: false}}},
		DoNothing:   true,
	}).Create(job)
	if tx.Error != nil {
		return false, tx.Error
	}
	inserted := tx.RowsAffected > 0
	if inserted {
		if err := r.conn(dbc).WithContext(dbc.Ctx).
			Exec(`SELECT pg_notify(?, ?)`, AskNotifyChannel, job.ID.String()).Error; err != nil {
			// Wake-up is a hint; polling remains the source of truth.
			r.log.Warn("pg_notify failed after enqueue", "job_id", job.ID, "error", err)
		}
	}
	return inserted, nil
}

func (r *askQueueRepo) Pick(dbc dbctx.Context) (*types.AskJob, error) {
	var job types.AskJob
	res := r.conn(dbc).WithContext(dbc.Ctx).Raw(`
		UPDATE ask_queue SET
			started_at    = now(),
			picked_at     = now(),
			attempt_count = attempt_count + 1
		WHERE id = (
			SELECT id FROM ask_queue
			WHERE processed = false
			  AND attempt_count < ?
			  AND (started_at IS NULL OR started_at < now() - ?::interval)
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *`,
		AskMaxAttempts, pgInterval(AskLeaseTimeout),
	).Scan(&job)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &job, nil
}

func (r *askQueueRepo) Complete(dbc dbctx.Context, id uuid.UUID) error {
	return r.conn(dbc).WithContext(dbc.Ctx).
		Model(&types.AskJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"processed":    true,
			"completed_at": time.Now().UTC(),
		}).Error
}

func (r *askQueueRepo) Fail(dbc dbctx.Context, id uuid.UUID, attemptCount int, errMsg string) (bool, error) {
	if attemptCount < AskMaxAttempts {
		backoff := RetryBackoff(attemptCount)
		err := r.conn(dbc).WithContext(dbc.Ctx).Exec(`
			UPDATE ask_queue
			SET started_at = now() - ?::interval + ?::interval, error = ?
			WHERE id = ? AND processed = false`,
			pgInterval(AskLeaseTimeout), pgInterval(backoff), errMsg, id,
		).Error
		if err != nil {
			return false, err
		}
		return true, nil
	}
	err := r.conn(dbc).WithContext(dbc.Ctx).
		Model(&types.AskJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"processed":    true,
			"completed_at": time.Now().UTC(),
			"error":        errMsg,
		}).Error
	if err != nil {
		return false, err
	}
	return false, nil
}

func (r *askQueueRepo) RecoverStale(dbc dbctx.Context) (int64, error) {
	conn := r.conn(dbc).WithContext(dbc.Ctx)

	reset := conn.Exec(`
		UPDATE ask_queue
		SET started_at = NULL, picked_at = NULL
		WHERE processed = false
		  AND started_at IS NOT NULL
		  AND started_at < now() - ?::interval
		  AND attempt_count < ?`,
		pgInterval(AskLeaseTimeout), AskMaxAttempts,
	)
	if reset.Error != nil {
		return 0, reset.Error
	}

	closed := conn.Exec(`
		UPDATE ask_queue
		SET processed = true,
		    completed_at = now(),
		    error = '[DEAD] ' || COALESCE(error, 'attempts exhausted')
		WHERE processed = false
		  AND started_at IS NOT NULL
		  AND started_at < now() - ?::interval
		  AND attempt_count >= ?`,
		pgInterval(AskLeaseTimeout), AskMaxAttempts,
	)
	if closed.Error != nil {
		return reset.RowsAffected, closed.Error
	}
	if closed.RowsAffected > 0 {
		r.log.Warn("closed exhausted ask jobs", "count", closed.RowsAffected)
	}
	return reset.RowsAffected + closed.RowsAffected, nil
}

func (r *askQueueRepo) CleanupOld(dbc dbctx.Context, olderThan time.Duration) (int64, error) {
	res := r.conn(dbc).WithContext(dbc.Ctx).
		Where("processed = true AND created_at < ?", time.Now().UTC().Add(-olderThan)).
		Delete(&types.AskJob{})
	return res.RowsAffected, res.Error
}

func (r *askQueueRepo) Depth(dbc dbctx.Context) (int64, error) {
	var n int64
	err := r.conn(dbc).WithContext(dbc.Ctx).
		Model(&types.AskJob{}).
		Where("processed = false").
		Count(&n).Error
	return n, err
}
