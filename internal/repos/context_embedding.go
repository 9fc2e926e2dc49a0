package repos

import (
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/chatlore-backend/internal/pkg/dbctx"
	"github.com/yungbote/chatlore-backend/internal/pkg/logger"
	"github.com/yungbote/chatlore-backend/internal/types"
)

// ContextHit is one sliding-window match with its cosine distance.
type ContextHit struct {
	ChatID          int64            `json:"chat_id"`
	CenterMessageID int64            `json:"center_message_id"`
	WindowStartID   int64            `json:"window_start_id"`
	WindowEndID     int64            `json:"window_end_id"`
	MessageIDs      types.Int64Array `json:"message_ids"`
	ContextText     string           `json:"context_text"`
	WindowSize      int32            `json:"window_size"`
	CreatedAt       time.Time        `json:"created_at"`
	Distance        float64          `json:"distance"`
}

type ContextEmbeddingRepo interface {
	UpsertBatch(dbc dbctx.Context, rows []*types.ContextEmbedding) error
	VectorSearch(dbc dbctx.Context, chatID int64, query pgvector.Vector, limit int) ([]ContextHit, error)
	DeleteChat(dbc dbctx.Context, chatID int64) (int64, error)
	DeleteAll(dbc dbctx.Context) (int64, error)
	CountForChat(dbc dbctx.Context, chatID int64) (int64, error)
	// MaxCenterID reports the newest indexed window so rebuilds can skip
	// already-covered history.
	MaxCenterID(dbc dbctx.Context, chatID int64) (int64, error)
}

type contextEmbeddingRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewContextEmbeddingRepo(db *gorm.DB, baseLog *logger.Logger) ContextEmbeddingRepo {
	return &contextEmbeddingRepo{db: db, log: baseLog.With("repo", "ContextEmbeddingRepo")}
}

func (r *contextEmbeddingRepo) conn(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *contextEmbeddingRepo) UpsertBatch(dbc dbctx.Context, rows []*types.ContextEmbedding) error {
	if len(rows) == 0 {
		return nil
	}
	return r.conn(dbc).WithContext(dbc.Ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "chat_id"}, {Name: "center_message_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"window_start_id": gorm.Expr("excluded.window_start_id"),
			"window_end_id":   gorm.Expr("excluded.window_end_id"),
			"message_ids":     gorm.Expr("excluded.message_ids"),
			"context_text":    gorm.Expr("excluded.context_text"),
			"embedding":       gorm.Expr("excluded.embedding"),
			"window_size":     gorm.Expr("excluded.window_size"),
			"created_at":      gorm.Expr("now()"),
		}),
	}).CreateInBatches(&rows, 50).Error
}

func (r *contextEmbeddingRepo) VectorSearch(dbc dbctx.Context, chatID int64, query pgvector.Vector, limit int) ([]ContextHit, error) {
	var out []ContextHit
	err := r.conn(dbc).WithContext(dbc.Ctx).Raw(`
		SELECT chat_id, center_message_id, window_start_id, window_end_id,
		       message_ids, context_text, window_size, created_at,
		       (embedding <=> ?) AS distance
		FROM context_embeddings
		WHERE chat_id = ?
		ORDER BY embedding <=> ?
		LIMIT ?`,
		query, chatID, query, limit,
	).Scan(&out).Error
	return out, err
}

func (r *contextEmbeddingRepo) DeleteChat(dbc dbctx.Context, chatID int64) (int64, error) {
	res := r.conn(dbc).WithContext(dbc.Ctx).
		Where("chat_id = ?", chatID).
		Delete(&types.ContextEmbedding{})
	return res.RowsAffected, res.Error
}

func (r *contextEmbeddingRepo) DeleteAll(dbc dbctx.Context) (int64, error) {
	res := r.conn(dbc).WithContext(dbc.Ctx).
		Where("1 = 1").
		Delete(&types.ContextEmbedding{})
	return res.RowsAffected, res.Error
}

func (r *contextEmbeddingRepo) CountForChat(dbc dbctx.Context, chatID int64) (int64, error) {
	var n int64
	err := r.conn(dbc).WithContext(dbc.Ctx).
		Model(&types.ContextEmbedding{}).
		Where("chat_id = ?", chatID).
		Count(&n).Error
	return n, err
}

func (r *contextEmbeddingRepo) MaxCenterID(dbc dbctx.Context, chatID int64) (int64, error) {
	var maxID *int64
	err := r.conn(dbc).WithContext(dbc.Ctx).
		Model(&types.ContextEmbedding{}).
		Select("MAX(center_message_id)").
		Where("chat_id = ?", chatID).
		Scan(&maxID).Error
	if err != nil || maxID == nil {
		return 0, err
	}
	return *maxID, nil
}
