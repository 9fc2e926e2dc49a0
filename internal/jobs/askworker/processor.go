package askworker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/chatlore-backend/internal/clients/telegram"
	"github.com/yungbote/chatlore-backend/internal/pkg/dbctx"
	"github.com/yungbote/chatlore-backend/internal/pkg/logger"
	"github.com/yungbote/chatlore-backend/internal/repos"
	"github.com/yungbote/chatlore-backend/internal/services/answer"
	"github.com/yungbote/chatlore-backend/internal/services/classify"
	"github.com/yungbote/chatlore-backend/internal/services/contextwindow"
	"github.com/yungbote/chatlore-backend/internal/services/fusion"
	"github.com/yungbote/chatlore-backend/internal/services/memory"
	"github.com/yungbote/chatlore-backend/internal/services/nicknames"
	"github.com/yungbote/chatlore-backend/internal/services/personal"
	"github.com/yungbote/chatlore-backend/internal/services/textnorm"
	"github.com/yungbote/chatlore-backend/internal/types"
)

const (
	maxDirectContext = 10
	maxContextItems  = 30

	resolutionMinConfidence = 0.5
)

const (
	emptyQuestionReply = "Не смог разобрать вопрос — напишите его текстом, пожалуйста."
	finalFailureReply  = "Не получилось обработать вопрос, попробуйте ещё раз позже."
)

// Processor runs the full ask pipeline for one claimed job.
type Processor struct {
	queue      repos.AskQueueRepo
	classifier *classify.Classifier
	fusion     *fusion.Orchestrator
	personal   *personal.Service
	resolver   *nicknames.Resolver
	memory     memory.Service
	expander   *contextwindow.Expander
	generator  *answer.Generator
	prompts    *answer.PromptStore
	sender     telegram.Sender
	observer   Observer
	log        *logger.Logger

	mu          sync.Mutex
	deactivated map[int64]struct{}
}

func NewProcessor(
	queue repos.AskQueueRepo,
	classifier *classify.Classifier,
	orchestrator *fusion.Orchestrator,
	personalSearch *personal.Service,
	resolver *nicknames.Resolver,
	mem memory.Service,
	expander *contextwindow.Expander,
	generator *answer.Generator,
	prompts *answer.PromptStore,
	sender telegram.Sender,
	observer Observer,
	baseLog *logger.Logger,
) *Processor {
	if observer == nil {
		observer = NoopObserver{}
	}
	return &Processor{
		queue:       queue,
		classifier:  classifier,
		fusion:      orchestrator,
		personal:    personalSearch,
		resolver:    resolver,
		memory:      mem,
		expander:    expander,
		generator:   generator,
		prompts:     prompts,
		sender:      sender,
		observer:    observer,
		log:         baseLog.With("worker", "AskProcessor"),
		deactivated: map[int64]struct{}{},
	}
}

func (p *Processor) ProcessAsk(ctx context.Context, job *types.AskJob) error {
	ctx, span := otel.Tracer("askworker").Start(ctx, "ProcessAsk")
	span.SetAttributes(
		attribute.Int64("chat.id", job.ChatID),
		attribute.String("job.command", job.Command),
		attribute.Int("job.attempt", job.AttemptCount),
	)
	defer span.End()

	start := time.Now()
	dbc := dbctx.New(ctx)

	question := textnorm.Normalize(job.Question)
	if question == "" {
		if err := p.send(ctx, job, emptyQuestionReply); err != nil {
			return err
		}
		return p.queue.Complete(dbc, job.ID)
	}

	_ = p.sender.SendChatAction(ctx, job.ChatID, "typing")

	// Classification, the speculative default search and the memory build
	// run concurrently; the speculative branch is thrown away when the
	// classified intent demands a specialized strategy.
	var (
		classified  *types.ClassifiedQuery
		speculative *types.SearchResponse
		memoryCtx   string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		classified = p.classifier.Classify(gctx, question)
		return nil
	})
	if job.Command == types.CommandAsk {
		g.Go(func() error {
			resp, err := p.fusion.Search(dbctx.New(gctx), job.ChatID, question)
			if err != nil {
				p.log.Warn("speculative search failed", "job_id", job.ID, "error", err)
				return nil
			}
			speculative = resp
			return nil
		})
	}
	g.Go(func() error {
		out, _ := p.memory.BuildContext(gctx, job.ChatID, job.AskerID)
		memoryCtx = out
		return nil
	})
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}

	searchQuestion, resolutions := p.resolveNames(dbc, job.ChatID, question, classified)

	resp, err := p.search(dbc, job, classified, speculative, searchQuestion)
	if err != nil {
		return err
	}

	// Confidence gate.
	if resp == nil || resp.Confidence == types.ConfidenceNone {
		if job.Command == types.CommandSmart {
			return p.generateAndFinish(ctx, job, answer.Request{
				Question:      question,
				Kind:          answer.KindGeneral,
				MemoryContext: memoryCtx,
			}, newAskReport(job, question, classified, resp), start)
		}
		if err := p.send(ctx, job, p.prompts.Get(answer.KindNotFound)); err != nil {
			return err
		}
		return p.queue.Complete(dbc, job.ID)
	}

	items := p.assembleContext(dbc, job.ChatID, resp)

	kind := answer.KindAsk
	if job.Command == types.CommandSmart {
		kind = answer.KindSmart
	}
	return p.generateAndFinish(ctx, job, answer.Request{
		Question:      question,
		Kind:          kind,
		Context:       items,
		MemoryContext: joinMemory(memoryCtx, resolutions),
	}, newAskReport(job, question, classified, resp), start)
}

// resolveNames substitutes canonical member names into the search question.
func (p *Processor) resolveNames(dbc dbctx.Context, chatID int64, question string, classified *types.ClassifiedQuery) (string, []string) {
	if classified == nil || len(classified.MentionedPeople) == 0 {
		return question, nil
	}
	results := p.resolver.ResolveAll(dbc, chatID, classified.MentionedPeople)

	substituted := question
	var notes []string
	for i, res := range results {
		if res.ResolvedName == "" || res.Confidence <= resolutionMinConfidence {
			continue
		}
		substituted = strings.ReplaceAll(substituted, "@"+res.Nickname, res.ResolvedName)
		substituted = strings.ReplaceAll(substituted, res.Nickname, res.ResolvedName)
		classified.MentionedPeople[i] = res.ResolvedName
		notes = append(notes, fmt.Sprintf("%s — это %s", res.Nickname, res.ResolvedName))
	}
	return substituted, notes
}

func (p *Processor) search(dbc dbctx.Context, job *types.AskJob, classified *types.ClassifiedQuery, speculative *types.SearchResponse, question string) (*types.SearchResponse, error) {
	if classified != nil && classified.NeedsSpecializedSearch() {
		switch classified.Intent {
		case types.IntentPersonalSelf:
			return p.personal.Search(dbc, job.ChatID, question, &job.AskerID, askerNames(job))
		case types.IntentPersonalOther:
			return p.personal.Search(dbc, job.ChatID, question, nil, classified.MentionedPeople)
		case types.IntentTemporal:
			return p.personal.SearchTemporal(dbc, job.ChatID, question, classified.TemporalRef)
		case types.IntentComparison, types.IntentMultiEntity:
			people := classified.MentionedPeople
			if len(people) < 2 {
				for _, e := range classified.Entities {
					if e.Type == types.EntityPerson {
						people = append(people, e.Text)
					}
				}
			}
			return p.personal.SearchMultiEntity(dbc, job.ChatID, question, people)
		}
	}
	if speculative != nil {
		return speculative, nil
	}
	return p.fusion.Search(dbc, job.ChatID, question)
}

func (p *Processor) assembleContext(dbc dbctx.Context, chatID int64, resp *types.SearchResponse) []answer.ContextItem {
	direct := resp.Results
	if len(direct) > maxDirectContext {
		direct = direct[:maxDirectContext]
	}
	items := answer.ContextFromResults(direct)

	covered := map[int64]struct{}{}
	var hitIDs []int64
	for _, r := range direct {
		covered[r.MessageID] = struct{}{}
		if !r.IsContextWindow && !r.IsQuestionEmbedding {
			hitIDs = append(hitIDs, r.MessageID)
		}
	}
	windows, err := p.expander.Expand(dbc, chatID, hitIDs)
	if err != nil {
		p.log.Warn("context expansion failed", "chat_id", chatID, "error", err)
	} else {
		items = append(items, answer.ContextFromWindows(windows, covered)...)
	}
	if len(items) > maxContextItems {
		items = items[:maxContextItems]
	}
	return items
}

func (p *Processor) generateAndFinish(ctx context.Context, job *types.AskJob, req answer.Request, report AskReport, start time.Time) error {
	text, err := p.generator.Generate(ctx, req)
	if err != nil {
		return err
	}
	if err := p.send(ctx, job, text); err != nil {
		return err
	}
	if err := p.queue.Complete(dbctx.New(ctx), job.ID); err != nil {
		return err
	}
	report.Answer = text
	report.Took = time.Since(start)
	go func() {
		_ = p.memory.RecordExchange(context.Background(), job.ChatID, job.AskerID, req.Question, text)
		p.observer.AskProcessed(context.Background(), report)
	}()
	return nil
}

// send delivers a reply, falling back to plain text on HTML rejection and
// marking the chat deactivated on a permission failure.
func (p *Processor) send(ctx context.Context, job *types.AskJob, text string) error {
	if p.isDeactivated(job.ChatID) {
		return nil
	}
	outcome, err := p.sender.SendMessage(ctx, job.ChatID, text, job.ReplyToMessageID, telegram.ParseModeHTML)
	if err != nil {
		return err
	}
	switch outcome {
	case telegram.SendParseError:
		outcome, err = p.sender.SendMessage(ctx, job.ChatID, telegram.StripHTML(text), job.ReplyToMessageID, telegram.ParseModeNone)
		if err != nil {
			return err
		}
		if outcome == telegram.SendDeactivatedChat {
			p.markDeactivated(job.ChatID)
		}
	case telegram.SendDeactivatedChat:
		p.markDeactivated(job.ChatID)
	}
	return nil
}

// NotifyFinalFailure tells the asker once that their question is dead.
func (p *Processor) NotifyFinalFailure(ctx context.Context, job *types.AskJob) {
	if err := p.send(ctx, job, finalFailureReply); err != nil {
		p.log.Error("final failure notice not delivered", "job_id", job.ID, "error", err)
	}
}

func (p *Processor) isDeactivated(chatID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.deactivated[chatID]
	return ok
}

func (p *Processor) markDeactivated(chatID int64) {
	p.mu.Lock()
	p.deactivated[chatID] = struct{}{}
	p.mu.Unlock()
	p.log.Warn("chat marked deactivated", "chat_id", chatID)
}

func askerNames(job *types.AskJob) []string {
	names := []string{job.AskerName}
	if job.AskerUsername != nil && *job.AskerUsername != "" {
		names = append(names, *job.AskerUsername)
	}
	return names
}

func joinMemory(memoryCtx string, resolutionNotes []string) string {
	if len(resolutionNotes) == 0 {
		return memoryCtx
	}
	note := "Уточнение имён: " + strings.Join(resolutionNotes, "; ")
	if memoryCtx == "" {
		return note
	}
	return memoryCtx + "\n" + note
}
