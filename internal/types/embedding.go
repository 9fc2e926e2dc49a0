package types

import (
	"strconv"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// Metadata keys shared by writers and readers of message_embeddings.metadata.
const (
	MetaUsername     = "Username"
	MetaDisplayName  = "DisplayName"
	MetaFromUserID   = "FromUserId"
	MetaDateUTC      = "DateUtc"
	MetaStartDate    = "start_date"
	MetaEndDate      = "end_date"
	MetaMessageCount = "message_count"
	MetaMessageIDs   = "message_ids"
)

// MessageEmbedding is a per-utterance (or grouped-utterance) dense vector.
// Exactly one row exists per (chat_id, message_id, chunk_index).
type MessageEmbedding struct {
	ChatID     int64 `gorm:"primaryKey;autoIncrement:false" json:"chat_id"`
	MessageID  int64 `gorm:"primaryKey;autoIncrement:false" json:"message_id"`
	ChunkIndex int32 `gorm:"primaryKey;autoIncrement:false" json:"chunk_index"`

	ChunkText string `gorm:"type:text;not null" json:"chunk_text"`
	// The column is typed to the configured dimension by the migration;
	// a struct tag cannot carry a runtime value.
	Embedding pgvector.Vector `gorm:"type:vector" json:"-"`
	Metadata  datatypes.JSON  `gorm:"type:jsonb;not null;default:'{}'" json:"metadata"`

	// IsQuestion marks hypothetical-question bridge rows that point
	// question-shaped queries at answer-shaped messages.
	IsQuestion bool `gorm:"not null;default:false" json:"is_question"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (MessageEmbedding) TableName() string { return "message_embeddings" }

// ContextEmbedding is a sliding-window projection over one dialog.
// Unique per (chat_id, center_message_id).
type ContextEmbedding struct {
	ID              int64 `gorm:"primaryKey" json:"id"`
	ChatID          int64 `gorm:"not null;uniqueIndex:uq_context_center,priority:1" json:"chat_id"`
	CenterMessageID int64 `gorm:"not null;uniqueIndex:uq_context_center,priority:2" json:"center_message_id"`

	WindowStartID int64      `gorm:"not null" json:"window_start_id"`
	WindowEndID   int64      `gorm:"not null" json:"window_end_id"`
	MessageIDs    Int64Array `gorm:"type:bigint[];not null" json:"message_ids"`

	ContextText string          `gorm:"type:text;not null" json:"context_text"`
	Embedding   pgvector.Vector `gorm:"type:vector" json:"-"`
	WindowSize  int32           `gorm:"not null" json:"window_size"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (ContextEmbedding) TableName() string { return "context_embeddings" }

func formatInt64(v int64) string { return strconv.FormatInt(v, 10) }
