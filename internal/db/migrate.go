package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/chatlore-backend/internal/types"
)

// DefaultVectorDim matches the default EMBEDDING_VECTOR_DIM.
const DefaultVectorDim = 1024

func AutoMigrateAll(db *gorm.DB, vectorDim int) error {
	if err := db.AutoMigrate(
		&types.Message{},
		&types.MessageEmbedding{},
		&types.ContextEmbedding{},
		&types.AskJob{},
		&types.TruthJob{},
	); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	for _, s := range vectorColumnDDL(vectorDim) {
		if err := db.Exec(s).Error; err != nil {
			return fmt.Errorf("vector column: %w", err)
		}
	}
	return applyRawIndexes(db)
}

// vectorColumnDDL types the embedding columns with the dimension the
// configured model produces. It runs before index creation because hnsw
// needs a typed column. A dimension change over populated tables fails
// here, at startup, instead of on the first insert.
func vectorColumnDDL(dim int) []string {
	if dim <= 0 {
		dim = DefaultVectorDim
	}
	return []string{
		fmt.Sprintf(`ALTER TABLE message_embeddings ALTER COLUMN embedding TYPE vector(%d)`, dim),
		fmt.Sprintf(`ALTER TABLE context_embeddings ALTER COLUMN embedding TYPE vector(%d)`, dim),
	}
}

// applyRawIndexes creates what gorm cannot express: partial unique indexes
// for in-flight idempotency, vector indexes, and russian full-text indexes.
func applyRawIndexes(db *gorm.DB) error {
	stmts := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_ask_queue_idempotency
		   ON ask_queue (idempotency_key) WHERE processed = false`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_truth_queue_idempotency
		   ON truth_queue (idempotency_key) WHERE processed = false`,

		`CREATE INDEX IF NOT EXISTS ix_ask_queue_pending
		   ON ask_queue (created_at) WHERE processed = false`,
		`CREATE INDEX IF NOT EXISTS ix_truth_queue_pending
		   ON truth_queue (created_at) WHERE processed = false`,

		`CREATE INDEX IF NOT EXISTS ix_message_embeddings_vec
		   ON message_embeddings USING hnsw (embedding vector_cosine_ops)`,
		`CREATE INDEX IF NOT EXISTS ix_context_embeddings_vec
		   ON context_embeddings USING hnsw (embedding vector_cosine_ops)`,

		`CREATE INDEX IF NOT EXISTS ix_message_embeddings_fts
		   ON message_embeddings USING gin (to_tsvector('russian', chunk_text))`,
		`CREATE INDEX IF NOT EXISTS ix_context_embeddings_fts
		   ON context_embeddings USING gin (to_tsvector('russian', context_text))`,

		`CREATE INDEX IF NOT EXISTS ix_messages_chat_date
		   ON messages (chat_id, date_utc DESC)`,
	}
	for _, s := range stmts {
		if err := db.Exec(s).Error; err != nil {
			return fmt.Errorf("raw index: %w", err)
		}
	}
	return nil
}
