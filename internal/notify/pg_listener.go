package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/yungbote/chatlore-backend/internal/pkg/logger"
)

// PGListener waits on a Postgres LISTEN channel over a dedicated pgx
// connection. The ask/truth repos fire pg_notify in the same transaction
// scope as the enqueue insert.
type PGListener struct {
	log     *logger.Logger
	dsn     string
	channel string

	mu   sync.Mutex
	conn *pgx.Conn
}

func NewPGListener(log *logger.Logger, dsn, channel string) *PGListener {
	return &PGListener{
		log:     log.With("service", "PGListener", "channel", channel),
		dsn:     dsn,
		channel: channel,
	}
}

func (l *PGListener) ensureConn(ctx context.Context) *pgx.Conn {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil && !l.conn.IsClosed() {
		return l.conn
	}
	conn, err := pgx.Connect(ctx, l.dsn)
	if err != nil {
		l.log.Warn("listener connect failed", "error", err)
		return nil
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		l.log.Warn("LISTEN failed", "error", err)
		_ = conn.Close(ctx)
		return nil
	}
	l.conn = conn
	return conn
}

func (l *PGListener) dropConn() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = l.conn.Close(ctx)
		cancel()
		l.conn = nil
	}
}

// Wait blocks for one notification, then drains whatever else is buffered.
// A dead connection degrades to a plain sleep so the worker keeps polling.
func (l *PGListener) Wait(ctx context.Context, timeout time.Duration) []string {
	conn := l.ensureConn(ctx)
	if conn == nil {
		return SleepWaiter{}.Wait(ctx, timeout)
	}

	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	n, err := conn.WaitForNotification(wctx)
	if err != nil {
		if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			l.log.Warn("wait for notification failed, reconnecting", "error", err)
			l.dropConn()
		}
		return nil
	}

	payloads := []string{n.Payload}
	// Drain the buffer; these are hints only.
	for {
		dctx, dcancel := context.WithTimeout(ctx, 10*time.Millisecond)
		more, derr := conn.WaitForNotification(dctx)
		dcancel()
		if derr != nil {
			break
		}
		payloads = append(payloads, more.Payload)
	}
	return payloads
}

func (l *PGListener) Close() error {
	l.dropConn()
	return nil
}
