package nicknames

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/chatlore-backend/internal/clients/llm"
	"github.com/yungbote/chatlore-backend/internal/pkg/dbctx"
	"github.com/yungbote/chatlore-backend/internal/pkg/logger"
	"github.com/yungbote/chatlore-backend/internal/repos"
)

const (
	cacheTTL     = 30 * time.Minute
	topAuthors   = 50
	llmListLimit = 20
)

const resolveSystemPrompt = `Участники чата перечислены ниже. Определи, к кому
из них относится прозвище. Верни ТОЛЬКО JSON:
{"resolved_name": "точное имя из списка или unknown", "confidence": 0.0-1.0, "reasoning": "..."}`

// Resolution maps a nickname onto a canonical chat member name.
// ResolvedName is empty when the nickname could not be matched.
type Resolution struct {
	Nickname     string  `json:"nickname"`
	ResolvedName string  `json:"resolved_name"`
	Confidence   float64 `json:"confidence"`
	Reasoning    string  `json:"reasoning,omitempty"`
}

type cacheEntry struct {
	authors  []repos.AuthorStat
	loadedAt time.Time
}

// Resolver matches nicknames against the chat's most active authors, first
// by exact name, then by asking the language model.
type Resolver struct {
	messages repos.MessageRepo
	router   *llm.Router
	log      *logger.Logger

	mu    sync.Mutex
	cache map[int64]cacheEntry
	now   func() time.Time
}

func NewResolver(messages repos.MessageRepo, router *llm.Router, baseLog *logger.Logger) *Resolver {
	return &Resolver{
		messages: messages,
		router:   router,
		log:      baseLog.With("service", "NicknameResolver"),
		cache:    map[int64]cacheEntry{},
		now:      time.Now,
	}
}

func (r *Resolver) authorsFor(dbc dbctx.Context, chatID int64) ([]repos.AuthorStat, error) {
	r.mu.Lock()
	entry, ok := r.cache[chatID]
	r.mu.Unlock()
	if ok && r.now().Sub(entry.loadedAt) < cacheTTL {
		return entry.authors, nil
	}

	authors, err := r.messages.TopAuthors(dbc, chatID, topAuthors)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.cache[chatID] = cacheEntry{authors: authors, loadedAt: r.now()}
	r.mu.Unlock()
	return authors, nil
}

// Resolve matches one nickname. Exact case-insensitive display-name or
// username matches short-circuit with confidence 1.0.
func (r *Resolver) Resolve(dbc dbctx.Context, chatID int64, nickname string) (Resolution, error) {
	nickname = strings.TrimSpace(strings.TrimPrefix(nickname, "@"))
	if nickname == "" {
		return Resolution{}, fmt.Errorf("empty nickname")
	}
	authors, err := r.authorsFor(dbc, chatID)
	if err != nil {
		return Resolution{}, err
	}

	for _, a := range authors {
		if strings.EqualFold(a.DisplayName, nickname) || strings.EqualFold(a.Username, nickname) {
			name := a.DisplayName
			if name == "" {
				name = a.Username
			}
			return Resolution{Nickname: nickname, ResolvedName: name, Confidence: 1.0}, nil
		}
	}
	return r.resolveViaLLM(dbc, chatID, nickname, authors)
}

func (r *Resolver) resolveViaLLM(dbc dbctx.Context, chatID int64, nickname string, authors []repos.AuthorStat) (Resolution, error) {
	if len(authors) == 0 {
		return Resolution{Nickname: nickname}, nil
	}
	n := len(authors)
	if n > llmListLimit {
		n = llmListLimit
	}
	var list strings.Builder
	for i := 0; i < n; i++ {
		a := authors[i]
		fmt.Fprintf(&list, "- %s", a.DisplayName)
		if a.Username != "" {
			fmt.Fprintf(&list, " (@%s)", a.Username)
		}
		fmt.Fprintf(&list, " — %d сообщений\n", a.MessageCount)
	}

	user := fmt.Sprintf("Участники:\n%s\nПрозвище: %q", list.String(), nickname)
	completion, err := r.router.Complete(dbc.Ctx, resolveSystemPrompt, user, 0.0)
	if err != nil {
		return Resolution{Nickname: nickname}, err
	}
	var parsed struct {
		ResolvedName string  `json:"resolved_name"`
		Confidence   float64 `json:"confidence"`
		Reasoning    string  `json:"reasoning"`
	}
	if err := llm.UnmarshalInto(completion.Content, &parsed); err != nil {
		r.log.Warn("nickname resolution parse failed", "chat_id", chatID, "nickname", nickname, "error", err)
		return Resolution{Nickname: nickname}, nil
	}
	if strings.EqualFold(strings.TrimSpace(parsed.ResolvedName), "unknown") || parsed.ResolvedName == "" {
		return Resolution{Nickname: nickname}, nil
	}
	return Resolution{
		Nickname:     nickname,
		ResolvedName: parsed.ResolvedName,
		Confidence:   parsed.Confidence,
		Reasoning:    parsed.Reasoning,
	}, nil
}

// ResolveAll resolves nicknames concurrently. Individual failures degrade to
// unresolved entries rather than failing the batch.
func (r *Resolver) ResolveAll(dbc dbctx.Context, chatID int64, nicknames []string) []Resolution {
	out := make([]Resolution, len(nicknames))
	g, gctx := errgroup.WithContext(dbc.Ctx)
	gdbc := dbctx.Context{Ctx: gctx, Tx: dbc.Tx}
	for i, nick := range nicknames {
		g.Go(func() error {
			res, err := r.Resolve(gdbc, chatID, nick)
			if err != nil {
				r.log.Warn("nickname resolution failed", "chat_id", chatID, "nickname", nick, "error", err)
				res = Resolution{Nickname: nick}
			}
			out[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return out
}
