package repos

import (
	"fmt"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/chatlore-backend/internal/pkg/dbctx"
	"github.com/yungbote/chatlore-backend/internal/pkg/logger"
	"github.com/yungbote/chatlore-backend/internal/types"
)

// EmbeddingHit is one stage-1 candidate: a stored row plus its cosine
// distance to the query vector.
type EmbeddingHit struct {
	ChatID     int64          `json:"chat_id"`
	MessageID  int64          `json:"message_id"`
	ChunkIndex int32          `json:"chunk_index"`
	ChunkText  string         `json:"chunk_text"`
	Metadata   datatypes.JSON `json:"metadata"`
	IsQuestion bool           `json:"is_question"`
	CreatedAt  time.Time      `json:"created_at"`
	Distance   float64        `json:"distance"`
}

// FullTextHit is one russian-FTS match with its ts_rank_cd score.
type FullTextHit struct {
	ChatID     int64          `json:"chat_id"`
	MessageID  int64          `json:"message_id"`
	ChunkIndex int32          `json:"chunk_index"`
	ChunkText  string         `json:"chunk_text"`
	Metadata   datatypes.JSON `json:"metadata"`
	IsQuestion bool           `json:"is_question"`
	Rank       float64        `json:"rank"`
}

// EmbeddingStats summarizes a chat's embedding coverage.
type EmbeddingStats struct {
	Rows          int64      `json:"rows"`
	QuestionRows  int64      `json:"question_rows"`
	LastCreatedAt *time.Time `json:"last_created_at,omitempty"`
}

type MessageEmbeddingRepo interface {
	Upsert(dbc dbctx.Context, row *types.MessageEmbedding) error
	UpsertBatch(dbc dbctx.Context, rows []*types.MessageEmbedding) error
	VectorSearch(dbc dbctx.Context, chatID int64, query pgvector.Vector, limit int) ([]EmbeddingHit, error)
	VectorSearchInPool(dbc dbctx.Context, chatID int64, query pgvector.Vector, pool []int64, limit int) ([]EmbeddingHit, error)
	FullTextSearch(dbc dbctx.Context, chatID int64, query string, limit int) ([]FullTextHit, error)
	ILikeSearch(dbc dbctx.Context, chatID int64, words []string, limit int) ([]EmbeddingHit, error)
	// IDsByAuthorNames returns message ids whose metadata Username or
	// DisplayName matches any name, or whose chunk text starts with
	// "Name: ". Used to build personal pools when no stable user id is
	// known.
	IDsByAuthorNames(dbc dbctx.Context, chatID int64, names []string, limit int) ([]int64, error)
	// Rename rewrites author prefixes in chunk_text (current "Name: " and
	// legacy "] Name: " formats) and patches metadata DisplayName.
	// Returns the number of modified rows.
	Rename(dbc dbctx.Context, chatID *int64, oldName, newName string) (int64, error)
	DeleteChat(dbc dbctx.Context, chatID int64) (int64, error)
	DeleteAll(dbc dbctx.Context) (int64, error)
	Stats(dbc dbctx.Context, chatID int64) (EmbeddingStats, error)
}

type messageEmbeddingRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMessageEmbeddingRepo(db *gorm.DB, baseLog *logger.Logger) MessageEmbeddingRepo {
	return &messageEmbeddingRepo{db: db, log: baseLog.With("repo", "MessageEmbeddingRepo")}
}

func (r *messageEmbeddingRepo) conn(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

var embeddingUpsertClause = clause.OnConflict{
	Columns: []clause.Column{{Name: "chat_id"}, {Name: "message_id"}, {Name: "chunk_index"}},
	DoUpdates: clause.Assignments(map[string]interface{}{
		"chunk_text":  gorm.Expr("excluded.chunk_text"),
		"embedding":   gorm.Expr("excluded.embedding"),
		"metadata":    gorm.Expr("excluded.metadata"),
		"is_question": gorm.Expr("excluded.is_question"),
		"created_at":  gorm.Expr("now()"),
	}),
}

func (r *messageEmbeddingRepo) Upsert(dbc dbctx.Context, row *types.MessageEmbedding) error {
	if row == nil {
		return fmt.Errorf("nil embedding row")
	}
	return r.conn(dbc).WithContext(dbc.Ctx).
		Clauses(embeddingUpsertClause).
		Create(row).Error
}

func (r *messageEmbeddingRepo) UpsertBatch(dbc dbctx.Context, rows []*types.MessageEmbedding) error {
	if len(rows) == 0 {
		return nil
	}
	return r.conn(dbc).WithContext(dbc.Ctx).
		Clauses(embeddingUpsertClause).
		CreateInBatches(&rows, 100).Error
}

func (r *messageEmbeddingRepo) VectorSearch(dbc dbctx.Context, chatID int64, query pgvector.Vector, limit int) ([]EmbeddingHit, error) {
	var out []EmbeddingHit
	err := r.conn(dbc).WithContext(dbc.Ctx).Raw(`
		SELECT chat_id, message_id, chunk_index, chunk_text, metadata,
		       is_question, created_at, (embedding <=> ?) AS distance
		FROM message_embeddings
		WHERE chat_id = ?
		ORDER BY embedding <=> ?
		LIMIT ?`,
		query, chatID, query, limit,
	).Scan(&out).Error
	return out, err
}

func (r *messageEmbeddingRepo) VectorSearchInPool(dbc dbctx.Context, chatID int64, query pgvector.Vector, pool []int64, limit int) ([]EmbeddingHit, error) {
	if len(pool) == 0 {
		return nil, nil
	}
	var out []EmbeddingHit
	err := r.conn(dbc).WithContext(dbc.Ctx).Raw(`
		SELECT chat_id, message_id, chunk_index, chunk_text, metadata,
		       is_question, created_at, (embedding <=> ?) AS distance
		FROM message_embeddings
		WHERE chat_id = ? AND message_id = ANY(?::bigint[])
		ORDER BY embedding <=> ?
		LIMIT ?`,
		query, chatID, types.Int64Array(pool), query, limit,
	).Scan(&out).Error
	return out, err
}

func (r *messageEmbeddingRepo) FullTextSearch(dbc dbctx.Context, chatID int64, query string, limit int) ([]FullTextHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	var out []FullTextHit
	err := r.conn(dbc).WithContext(dbc.Ctx).Raw(`
		SELECT chat_id, message_id, chunk_index, chunk_text, metadata, is_question,
		       ts_rank_cd(to_tsvector('russian', chunk_text),
		                  websearch_to_tsquery('russian', ?)) AS rank
		FROM message_embeddings
		WHERE chat_id = ?
		  AND to_tsvector('russian', chunk_text) @@ websearch_to_tsquery('russian', ?)
		ORDER BY rank DESC
		LIMIT ?`,
		query, chatID, query, limit,
	).Scan(&out).Error
	return out, err
}

func (r *messageEmbeddingRepo) ILikeSearch(dbc dbctx.Context, chatID int64, words []string, limit int) ([]EmbeddingHit, error) {
	if len(words) == 0 {
		return nil, nil
	}
	q := r.conn(dbc).WithContext(dbc.Ctx).
		Table("message_embeddings").
		Select("chat_id, message_id, chunk_index, chunk_text, metadata, is_question, created_at, 0.5 AS distance").
		Where("chat_id = ?", chatID)

	like := r.db.Where("chunk_text ILIKE ?", "%"+words[0]+"%")
	for _, w := range words[1:] {
		like = like.Or("chunk_text ILIKE ?", "%"+w+"%")
	}
	var out []EmbeddingHit
	err := q.Where(like).Order("created_at DESC").Limit(limit).Scan(&out).Error
	return out, err
}

func (r *messageEmbeddingRepo) IDsByAuthorNames(dbc dbctx.Context, chatID int64, names []string, limit int) ([]int64, error) {
	if len(names) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	q := r.conn(dbc).WithContext(dbc.Ctx).
		Table("message_embeddings").
		Where("chat_id = ?", chatID)

	match := r.db.Where(
		"metadata->>'Username' ILIKE ? OR metadata->>'DisplayName' ILIKE ? OR chunk_text LIKE ?",
		names[0], names[0], names[0]+": %",
	)
	for _, n := range names[1:] {
		match = match.Or(
			"metadata->>'Username' ILIKE ? OR metadata->>'DisplayName' ILIKE ? OR chunk_text LIKE ?",
			n, n, n+": %",
		)
	}
	var ids []int64
	err := q.Where(match).
		Order("created_at DESC").
		Limit(limit).
		Pluck("message_id", &ids).Error
	return ids, err
}

func (r *messageEmbeddingRepo) Rename(dbc dbctx.Context, chatID *int64, oldName, newName string) (int64, error) {
	oldName = strings.TrimSpace(oldName)
	newName = strings.TrimSpace(newName)
	if oldName == "" || newName == "" {
		return 0, fmt.Errorf("rename: empty name")
	}
	oldTok := oldName + ": "
	newTok := newName + ": "
	oldLegacy := "] " + oldName + ": "
	newLegacy := "] " + newName + ": "

	sql := `
		UPDATE message_embeddings
		SET chunk_text = replace(replace(chunk_text, ?, ?), ?, ?),
		    metadata = CASE
		        WHEN metadata->>'DisplayName' = ?
		        THEN jsonb_set(metadata, '{DisplayName}', to_jsonb(?::text))
		        ELSE metadata
		    END
		WHERE (chunk_text LIKE ? OR chunk_text LIKE ? OR metadata->>'DisplayName' = ?)`
	args := []interface{}{
		oldLegacy, newLegacy, oldTok, newTok,
		oldName, newName,
		oldTok + "%", "%" + oldLegacy + "%", oldName,
	}
	if chatID != nil {
		sql += ` AND chat_id = ?`
		args = append(args, *chatID)
	}
	res := r.conn(dbc).WithContext(dbc.Ctx).Exec(sql, args...)
	return res.RowsAffected, res.Error
}

func (r *messageEmbeddingRepo) DeleteChat(dbc dbctx.Context, chatID int64) (int64, error) {
	res := r.conn(dbc).WithContext(dbc.Ctx).
		Where("chat_id = ?", chatID).
		Delete(&types.MessageEmbedding{})
	return res.RowsAffected, res.Error
}

func (r *messageEmbeddingRepo) DeleteAll(dbc dbctx.Context) (int64, error) {
	res := r.conn(dbc).WithContext(dbc.Ctx).
		Where("1 = 1").
		Delete(&types.MessageEmbedding{})
	return res.RowsAffected, res.Error
}

func (r *messageEmbeddingRepo) Stats(dbc dbctx.Context, chatID int64) (EmbeddingStats, error) {
	var stats EmbeddingStats
	err := r.conn(dbc).WithContext(dbc.Ctx).Raw(`
		SELECT COUNT(*) AS rows,
		       COUNT(*) FILTER (WHERE is_question) AS question_rows,
		       MAX(created_at) AS last_created_at
		FROM message_embeddings
		WHERE chat_id = ?`,
		chatID,
	).Scan(&stats).Error
	return stats, err
}
