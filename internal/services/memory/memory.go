package memory

import (
	"context"

	"github.com/yungbote/chatlore-backend/internal/pkg/logger"
)

// Service builds and maintains a short per-user profile that the answer
// generator folds into prompts. The backing store is external; the pipeline
// only needs these two calls.
type Service interface {
	// BuildContext returns a short profile text for the user, or "" when
	// nothing is known.
	BuildContext(ctx context.Context, chatID, userID int64) (string, error)
	// RecordExchange feeds a completed question/answer pair back into the
	// profile. Called fire-and-forget; errors are logged, not surfaced.
	RecordExchange(ctx context.Context, chatID, userID int64, question, answer string) error
}

// Noop is the default when no memory backend is configured.
type Noop struct{}

func NewNoop() *Noop { return &Noop{} }

func (*Noop) BuildContext(context.Context, int64, int64) (string, error) { return "", nil }

func (*Noop) RecordExchange(context.Context, int64, int64, string, string) error { return nil }

var _ Service = (*Noop)(nil)

// Logged wraps a Service so failures degrade to empty context.
type Logged struct {
	inner Service
	log   *logger.Logger
}

func NewLogged(inner Service, baseLog *logger.Logger) *Logged {
	return &Logged{inner: inner, log: baseLog.With("service", "MemoryService")}
}

func (l *Logged) BuildContext(ctx context.Context, chatID, userID int64) (string, error) {
	out, err := l.inner.BuildContext(ctx, chatID, userID)
	if err != nil {
		l.log.Warn("memory context failed", "chat_id", chatID, "user_id", userID, "error", err)
		return "", nil
	}
	return out, nil
}

func (l *Logged) RecordExchange(ctx context.Context, chatID, userID int64, question, answer string) error {
	if err := l.inner.RecordExchange(ctx, chatID, userID, question, answer); err != nil {
		l.log.Warn("memory update failed", "chat_id", chatID, "user_id", userID, "error", err)
	}
	return nil
}
