package answer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/chatlore-backend/internal/clients/llm"
	"github.com/yungbote/chatlore-backend/internal/pkg/logger"
	"github.com/yungbote/chatlore-backend/internal/types"
)

const answerTemperature = 0.3

// ContextItem is one numbered line of retrieved evidence in the prompt.
type ContextItem struct {
	Author string
	Text   string
	Date   time.Time
}

// Request carries everything the generator folds into one prompt.
type Request struct {
	Question      string
	Kind          string // KindAsk, KindSmart, KindGeneral, KindTruth
	Context       []ContextItem
	MemoryContext string
	PreferredTag  string
}

// Generator assembles the answer prompt and routes it through the model
// fallback chain. Transport, sanitization and HTML fallback stay with the
// caller.
type Generator struct {
	router  *llm.Router
	prompts *PromptStore
	log     *logger.Logger
	now     func() time.Time
}

func NewGenerator(router *llm.Router, prompts *PromptStore, baseLog *logger.Logger) *Generator {
	return &Generator{
		router:  router,
		prompts: prompts,
		log:     baseLog.With("service", "AnswerGenerator"),
		now:     time.Now,
	}
}

func (g *Generator) Generate(ctx context.Context, req Request) (string, error) {
	system := g.prompts.Get(req.Kind)

	var b strings.Builder
	b.WriteString("Вопрос: ")
	b.WriteString(req.Question)
	b.WriteString("\n")

	if len(req.Context) > 0 {
		b.WriteString("\nСообщения из истории чата:\n")
		for i, item := range req.Context {
			author := item.Author
			if author == "" {
				author = "кто-то"
			}
			fmt.Fprintf(&b, "%d. [%s, %s] %s\n", i+1, author, g.relativeTime(item.Date), item.Text)
		}
	}
	if strings.TrimSpace(req.MemoryContext) != "" {
		b.WriteString("\nЧто известно о спрашивающем:\n")
		b.WriteString(req.MemoryContext)
		b.WriteString("\n")
	}

	completion, err := g.router.CompleteWithFallback(ctx, system, b.String(), answerTemperature, req.PreferredTag)
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	return strings.TrimSpace(completion.Content), nil
}

// relativeTime renders a coarse russian age label; the model reasons about
// "3 дня назад" far better than about ISO timestamps.
func (g *Generator) relativeTime(t time.Time) string {
	if t.IsZero() {
		return "дата неизвестна"
	}
	d := g.now().Sub(t)
	switch {
	case d < time.Hour:
		return "только что"
	case d < 24*time.Hour:
		return fmt.Sprintf("%d ч назад", int(d.Hours()))
	case d < 48*time.Hour:
		return "вчера"
	case d < 30*24*time.Hour:
		return fmt.Sprintf("%d дн назад", int(d.Hours()/24))
	case d < 365*24*time.Hour:
		return fmt.Sprintf("%d мес назад", int(d.Hours()/(24*30)))
	default:
		return t.Format("2006-01-02")
	}
}

// ContextFromResults flattens retrieval hits into prompt items.
func ContextFromResults(results []types.SearchResult) []ContextItem {
	out := make([]ContextItem, 0, len(results))
	for _, r := range results {
		item := ContextItem{Text: r.ChunkText}
		if r.Metadata != nil {
			if name, ok := r.Metadata[types.MetaDisplayName].(string); ok && name != "" {
				item.Author = name
			} else if name, ok := r.Metadata[types.MetaUsername].(string); ok && name != "" {
				item.Author = name
			}
			if s, ok := r.Metadata[types.MetaDateUTC].(string); ok {
				if t, err := time.Parse(time.RFC3339, s); err == nil {
					item.Date = t
				}
			}
		}
		out = append(out, item)
	}
	return out
}

// ContextFromWindows flattens expanded windows into prompt items, skipping
// message ids already covered by direct hits.
func ContextFromWindows(windows []types.ContextWindow, covered map[int64]struct{}) []ContextItem {
	var out []ContextItem
	for _, w := range windows {
		for _, m := range w.Messages {
			if _, dup := covered[m.MessageID]; dup {
				continue
			}
			out = append(out, ContextItem{Author: m.Author, Text: m.Text, Date: m.Date})
		}
	}
	return out
}
