package truthworker

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/yungbote/chatlore-backend/internal/clients/llm"
	"github.com/yungbote/chatlore-backend/internal/clients/telegram"
	"github.com/yungbote/chatlore-backend/internal/notify"
	"github.com/yungbote/chatlore-backend/internal/pkg/dbctx"
	"github.com/yungbote/chatlore-backend/internal/pkg/logger"
	"github.com/yungbote/chatlore-backend/internal/repos"
	"github.com/yungbote/chatlore-backend/internal/services/answer"
	"github.com/yungbote/chatlore-backend/internal/types"
)

const (
	notifyWaitTimeout = 30 * time.Second
	dbRetrySleep      = 10 * time.Second

	staleRecoveryInterval = time.Minute
	cleanupInterval       = time.Hour
	cleanupRetention      = 7 * 24 * time.Hour

	defaultMessageCount = 100
	maxMessageCount     = 300
)

const finalFailureReply = "Не получилось подвести итоги, попробуйте ещё раз позже."

// Worker drains the truth queue: each job summarizes the chat's recent
// history with the tongue-in-cheek truth prompt.
type Worker struct {
	queue     repos.TruthQueueRepo
	waiter    notify.Waiter
	messages  repos.MessageRepo
	generator *answer.Generator
	sender    telegram.Sender
	log       *logger.Logger

	lastStaleSweep time.Time
	lastCleanup    time.Time
}

func NewWorker(queue repos.TruthQueueRepo, waiter notify.Waiter, messages repos.MessageRepo, generator *answer.Generator, sender telegram.Sender, baseLog *logger.Logger) *Worker {
	return &Worker{
		queue:     queue,
		waiter:    waiter,
		messages:  messages,
		generator: generator,
		sender:    sender,
		log:       baseLog.With("worker", "TruthWorker"),
	}
}

func (w *Worker) Run(ctx context.Context) {
	w.log.Info("truth worker started")
	for {
		select {
		case <-ctx.Done():
			w.log.Info("truth worker stopped")
			return
		default:
		}

		dbc := dbctx.New(ctx)
		w.maintenance(dbc)

		job, err := w.queue.Pick(dbc)
		if err != nil {
			w.log.Error("pick failed, backing off", "error", err)
			sleepCtx(ctx, dbRetrySleep)
			continue
		}
		if job == nil {
			w.waiter.Wait(ctx, notifyWaitTimeout)
			continue
		}
		w.handle(ctx, job)
	}
}

func (w *Worker) maintenance(dbc dbctx.Context) {
	now := time.Now()
	if now.Sub(w.lastStaleSweep) >= staleRecoveryInterval {
		w.lastStaleSweep = now
		if _, err := w.queue.RecoverStale(dbc); err != nil {
			w.log.Error("stale recovery failed", "error", err)
		}
	}
	if now.Sub(w.lastCleanup) >= cleanupInterval {
		w.lastCleanup = now
		if _, err := w.queue.CleanupOld(dbc, cleanupRetention); err != nil {
			w.log.Error("queue cleanup failed", "error", err)
		}
	}
}

func (w *Worker) handle(ctx context.Context, job *types.TruthJob) {
	log := w.log.With("job_id", job.ID, "chat_id", job.ChatID, "attempt", job.AttemptCount)

	err := w.process(ctx, job)
	if err == nil {
		log.Info("truth processed")
		return
	}
	log.Error("truth processing failed", "error", err)

	attempts := job.AttemptCount
	if llm.IsQuotaExhausted(err) {
		// Retrying before the quota resets cannot succeed.
		attempts = repos.TruthMaxAttempts
	}
	willRetry, failErr := w.queue.Fail(dbctx.New(ctx), job.ID, attempts, err.Error())
	if failErr != nil {
		log.Error("failed to record job failure", "error", failErr)
		return
	}
	if !willRetry {
		if _, sendErr := w.sender.SendMessage(ctx, job.ChatID, finalFailureReply, job.ReplyToMessageID, telegram.ParseModeNone); sendErr != nil {
			log.Error("final failure notice not delivered", "error", sendErr)
		}
	}
}

func (w *Worker) process(ctx context.Context, job *types.TruthJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()

	dbc := dbctx.New(ctx)
	count := job.MessageCount
	if count <= 0 {
		count = defaultMessageCount
	}
	if count > maxMessageCount {
		count = maxMessageCount
	}
	msgs, err := w.messages.ListRecent(dbc, job.ChatID, count)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	if len(msgs) == 0 {
		if _, err := w.sender.SendMessage(ctx, job.ChatID, "В чате пока нечего подытоживать.", job.ReplyToMessageID, telegram.ParseModeNone); err != nil {
			return err
		}
		return w.queue.Complete(dbc, job.ID)
	}

	_ = w.sender.SendChatAction(ctx, job.ChatID, "typing")

	items := make([]answer.ContextItem, 0, len(msgs))
	for _, m := range msgs {
		items = append(items, answer.ContextItem{
			Author: m.AuthorLabel(),
			Text:   m.BodyText(),
			Date:   m.DateUTC,
		})
	}
	text, err := w.generator.Generate(ctx, answer.Request{
		Question: fmt.Sprintf("Подведи «правду» по последним %d сообщениям чата.", len(items)),
		Kind:     answer.KindTruth,
		Context:  items,
	})
	if err != nil {
		return err
	}

	outcome, err := w.sender.SendMessage(ctx, job.ChatID, text, job.ReplyToMessageID, telegram.ParseModeHTML)
	if err != nil {
		return err
	}
	if outcome == telegram.SendParseError {
		if _, err := w.sender.SendMessage(ctx, job.ChatID, stripHTML(text), job.ReplyToMessageID, telegram.ParseModeNone); err != nil {
			return err
		}
	}
	return w.queue.Complete(dbc, job.ID)
}

func stripHTML(s string) string {
	return strings.TrimSpace(telegram.StripHTML(s))
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
