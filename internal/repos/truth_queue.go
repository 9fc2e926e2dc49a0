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

type TruthQueueRepo interface {
	Enqueue(dbc dbctx.Context, job *types.TruthJob) (bool, error)
	Pick(dbc dbctx.Context) (*types.TruthJob, error)
	Complete(dbc dbctx.Context, id uuid.UUID) error
	Fail(dbc dbctx.Context, id uuid.UUID, attemptCount int, errMsg string) (bool, error)
	RecoverStale(dbc dbctx.Context) (int64, error)
	CleanupOld(dbc dbctx.Context, olderThan time.Duration) (int64, error)
	Depth(dbc dbctx.Context) (int64, error)
}

type truthQueueRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTruthQueueRepo(db *gorm.DB, baseLog *logger.Logger) TruthQueueRepo {
	return &truthQueueRepo{db: db, log: baseLog.With("repo", "TruthQueueRepo")}
}

func (r *truthQueueRepo) conn(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *truthQueueRepo) Enqueue(dbc dbctx.Context, job *types.TruthJob) (bool, error) {
	if job == nil {
		return false, fmt.Errorf("nil job")
	}
	if job.IdempotencyKey == "" {
		job.IdempotencyKey = types.TruthIdempotencyKey(job.ChatID, job.ReplyToMessageID)
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
			Exec(`SELECT pg_notify(?, ?)`, TruthNotifyChannel, job.ID.String()).Error; err != nil {
			r.log.Warn("pg_notify failed after enqueue", "job_id", job.ID, "error", err)
		}
	}
	return inserted, nil
}

func (r *truthQueueRepo) Pick(dbc dbctx.Context) (*types.TruthJob, error) {
	var job types.TruthJob
	res := r.conn(dbc).WithContext(dbc.Ctx).Raw(`
		UPDATE truth_queue SET
			started_at    = now(),
			picked_at     = now(),
			attempt_count = attempt_count + 1
		WHERE id = (
			SELECT id FROM truth_queue
			WHERE processed = false
			  AND attempt_count < ?
			  AND (started_at IS NULL OR started_at < now() - ?::interval)
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *`,
		TruthMaxAttempts, pgInterval(TruthLeaseTimeout),
	).Scan(&job)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &job, nil
}

func (r *truthQueueRepo) Complete(dbc dbctx.Context, id uuid.UUID) error {
	return r.conn(dbc).WithContext(dbc.Ctx).
		Model(&types.TruthJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"processed":    true,
			"completed_at": time.Now().UTC(),
		}).Error
}

func (r *truthQueueRepo) Fail(dbc dbctx.Context, id uuid.UUID, attemptCount int, errMsg string) (bool, error) {
	if attemptCount < TruthMaxAttempts {
		backoff := RetryBackoff(attemptCount)
		err := r.conn(dbc).WithContext(dbc.Ctx).Exec(`
			UPDATE truth_queue
			SET started_at = now() - ?::interval + ?::interval, error = ?
			WHERE id = ? AND processed = false`,
			pgInterval(TruthLeaseTimeout), pgInterval(backoff), errMsg, id,
		).Error
		if err != nil {
			return false, err
		}
		return true, nil
	}
	err := r.conn(dbc).WithContext(dbc.Ctx).
		Model(&types.TruthJob{}).
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

func (r *truthQueueRepo) RecoverStale(dbc dbctx.Context) (int64, error) {
	conn := r.conn(dbc).WithContext(dbc.Ctx)

	reset := conn.Exec(`
		UPDATE truth_queue
		SET started_at = NULL, picked_at = NULL
		WHERE processed = false
		  AND started_at IS NOT NULL
		  AND started_at < now() - ?::interval
		  AND attempt_count < ?`,
		pgInterval(TruthLeaseTimeout), TruthMaxAttempts,
	)
	if reset.Error != nil {
		return 0, reset.Error
	}

	closed := conn.Exec(`
		UPDATE truth_queue
		SET processed = true,
		    completed_at = now(),
		    error = '[DEAD] ' || COALESCE(error, 'attempts exhausted')
		WHERE processed = false
		  AND started_at IS NOT NULL
		  AND started_at < now() - ?::interval
		  AND attempt_count >= ?`,
		pgInterval(TruthLeaseTimeout), TruthMaxAttempts,
	)
	if closed.Error != nil {
		return reset.RowsAffected, closed.Error
	}
	return reset.RowsAffected + closed.RowsAffected, nil
}

func (r *truthQueueRepo) CleanupOld(dbc dbctx.Context, olderThan time.Duration) (int64, error) {
	res := r.conn(dbc).WithContext(dbc.Ctx).
		Where("processed = true AND created_at < ?", time.Now().UTC().Add(-olderThan)).
		Delete(&types.TruthJob{})
	return res.RowsAffected, res.Error
}

func (r *truthQueueRepo) Depth(dbc dbctx.Context) (int64, error) {
	var n int64
	err := r.conn(dbc).WithContext(dbc.Ctx).
		Model(&types.TruthJob{}).
		Where("processed = false").
		Count(&n).Error
	return n, err
}
