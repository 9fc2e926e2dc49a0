package types

import "time"

// WindowMessage is one message inside an expanded context window.
type WindowMessage struct {
	MessageID     int64     `json:"message_id"`
	Author        string    `json:"author"`
	Text          string    `json:"text"`
	Date          time.Time `json:"date"`
	IsForwarded   bool      `json:"is_forwarded"`
	ForwardOrigin string    `json:"forward_origin,omitempty"`
}

// ContextWindow is a merged run of messages around one or more hits.
type ContextWindow struct {
	Messages []WindowMessage `json:"messages"`
}

// ContainsMessage reports whether id is part of this window.
func (w *ContextWindow) ContainsMessage(id int64) bool {
	for _, m := range w.Messages {
		if m.MessageID == id {
			return true
		}
	}
	return false
}
