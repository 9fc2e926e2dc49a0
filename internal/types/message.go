package types

import "time"

// Message is a stored chat message. Rows are immutable after insert except
// for display-name renames, which go through the embedding store.
type Message struct {
	ChatID     int64 `gorm:"primaryKey;autoIncrement:false" json:"chat_id"`
	ID         int64 `gorm:"primaryKey;autoIncrement:false" json:"id"`
	FromUserID int64 `gorm:"not null;index" json:"from_user_id"`

	Username    *string `gorm:"type:text" json:"username,omitempty"`
	DisplayName *string `gorm:"type:text" json:"display_name,omitempty"`
	Text        *string `gorm:"type:text" json:"text,omitempty"`

	DateUTC time.Time `gorm:"column:date_utc;not null;index" json:"date_utc"`

	IsForwarded       bool    `gorm:"not null;default:false" json:"is_forwarded"`
	ForwardOriginType *string `gorm:"type:text" json:"forward_origin_type,omitempty"`
	ForwardFromName   *string `gorm:"type:text" json:"forward_from_name,omitempty"`
}

func (Message) TableName() string { return "messages" }

// AuthorLabel picks the best available author name for passage formatting:
// display name, then username, then the raw user id.
func (m *Message) AuthorLabel() string {
	if m.DisplayName != nil && *m.DisplayName != "" {
		return *m.DisplayName
	}
	if m.Username != nil && *m.Username != "" {
		return *m.Username
	}
	return formatInt64(m.FromUserID)
}

// BodyText returns the message text or "".
func (m *Message) BodyText() string {
	if m.Text == nil {
		return ""
	}
	return *m.Text
}
