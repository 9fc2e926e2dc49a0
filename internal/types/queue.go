package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Commands accepted by the ask queue.
const (
	CommandAsk   = "ask"
	CommandSmart = "smart"
)

// AskJob is one durable ask-style request. Lifecycle: pending (started_at
// null) -> picked (started_at/picked_at set, attempt_count bumped) ->
// processed, or back to pending via stale recovery.
type AskJob struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	ChatID           int64  `gorm:"not null;index" json:"chat_id"`
	ReplyToMessageID int64  `gorm:"not null" json:"reply_to_message_id"`
	Question         string `gorm:"type:text;not null" json:"question"`
	Command          string `gorm:"type:text;not null" json:"command"`

	AskerID       int64   `gorm:"not null" json:"asker_id"`
	AskerName     string  `gorm:"type:text;not null" json:"asker_name"`
	AskerUsername *string `gorm:"type:text" json:"asker_username,omitempty"`

	CreatedAt   time.Time  `gorm:"not null;default:now();index" json:"created_at"`
	StartedAt   *time.Time `gorm:"index" json:"started_at,omitempty"`
	PickedAt    *time.Time `json:"picked_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	AttemptCount int     `gorm:"not null;default:0" json:"attempt_count"`
	Processed    bool    `gorm:"not null;default:false;index" json:"processed"`
	Error        *string `gorm:"type:text" json:"error,omitempty"`

	// IdempotencyKey is unique only among processed=false rows (partial
	// unique index created in the migration).
	IdempotencyKey string `gorm:"type:text;not null" json:"idempotency_key"`
}

func (AskJob) TableName() string { return "ask_queue" }

// AskIdempotencyKey dedupes in-flight requests for the same target message.
func AskIdempotencyKey(chatID, replyToMessageID int64, command string) string {
	return fmt.Sprintf("%d:%d:%s", chatID, replyToMessageID, command)
}

// TruthJob is a durable "/truth" request over the last MessageCount messages.
type TruthJob struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	ChatID           int64 `gorm:"not null;index" json:"chat_id"`
	ReplyToMessageID int64 `gorm:"not null" json:"reply_to_message_id"`
	MessageCount     int   `gorm:"not null" json:"message_count"`

	AskerID   int64  `gorm:"not null" json:"asker_id"`
	AskerName string `gorm:"type:text;not null" json:"asker_name"`

	CreatedAt   time.Time  `gorm:"not null;default:now();index" json:"created_at"`
	StartedAt   *time.Time `gorm:"index" json:"started_at,omitempty"`
	PickedAt    *time.Time `json:"picked_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	AttemptCount int     `gorm:"not null;default:0" json:"attempt_count"`
	Processed    bool    `gorm:"not null;default:false;index" json:"processed"`
	Error        *string `gorm:"type:text" json:"error,omitempty"`

	IdempotencyKey string `gorm:"type:text;not null" json:"idempotency_key"`
}

func (TruthJob) TableName() string { return "truth_queue" }

// TruthIdempotencyKey mirrors AskIdempotencyKey for the truth queue.
func TruthIdempotencyKey(chatID, replyToMessageID int64) string {
	return fmt.Sprintf("%d:%d:truth", chatID, replyToMessageID)
}
