package personal

import (
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/yungbote/chatlore-backend/internal/clients/embedding"
	"github.com/yungbote/chatlore-backend/internal/pkg/dbctx"
	"github.com/yungbote/chatlore-backend/internal/pkg/logger"
	"github.com/yungbote/chatlore-backend/internal/repos"
	"github.com/yungbote/chatlore-backend/internal/services/retrieval"
	"github.com/yungbote/chatlore-backend/internal/types"
)

const (
	poolDays        = 7
	ownMessageLimit = 100
	mentionLimit    = 50
	poolSearchLimit = 20

	temporalPoolLimit = 150
)

// Service answers person- and time-scoped questions by restricting the
// hybrid retriever to an explicit message-id pool.
type Service struct {
	embedder   embedding.Client
	retriever  retrieval.Retriever
	messages   repos.MessageRepo
	embeddings repos.MessageEmbeddingRepo
	log        *logger.Logger
	now        func() time.Time
}

func NewService(embedder embedding.Client, rtr retrieval.Retriever, messages repos.MessageRepo, embeddings repos.MessageEmbeddingRepo, baseLog *logger.Logger) *Service {
	return &Service{
		embedder:   embedder,
		retriever:  rtr,
		messages:   messages,
		embeddings: embeddings,
		log:        baseLog.With("service", "PersonalSearch"),
		now:        time.Now,
	}
}

// BuildPool collects candidate message ids for one person. With a stable
// user id it takes the person's own recent messages plus mentions by others;
// without one it falls back to author-name matches in the embedding store.
func (s *Service) BuildPool(dbc dbctx.Context, chatID int64, userID *int64, names []string) ([]int64, error) {
	patterns := make([]string, 0, len(names))
	for _, n := range names {
		if n != "" {
			patterns = append(patterns, n)
		}
	}

	var own []int64
	var err error
	if userID != nil {
		since := s.now().AddDate(0, 0, -poolDays)
		own, err = s.messages.IDsByUserSince(dbc, chatID, *userID, since, ownMessageLimit)
	} else {
		own, err = s.embeddings.IDsByAuthorNames(dbc, chatID, patterns, ownMessageLimit)
	}
	if err != nil {
		return nil, fmt.Errorf("pool author messages: %w", err)
	}

	var mentions []int64
	if len(patterns) > 0 {
		mentions, err = s.messages.IDsMentioning(dbc, chatID, patterns, userID, patterns, mentionLimit)
		if err != nil {
			return nil, fmt.Errorf("pool mentions: %w", err)
		}
	}
	return unionIDs(own, mentions), nil
}

// Search runs a pool-restricted hybrid search for one person.
func (s *Service) Search(dbc dbctx.Context, chatID int64, question string, userID *int64, names []string) (*types.SearchResponse, error) {
	pool, err := s.BuildPool(dbc, chatID, userID, names)
	if err != nil {
		return nil, err
	}
	return s.searchPool(dbc, chatID, question, pool)
}

// SearchTemporal restricts search to messages inside the referenced period.
func (s *Service) SearchTemporal(dbc dbctx.Context, chatID int64, question string, ref *types.TemporalRef) (*types.SearchResponse, error) {
	days := 0
	if ref != nil {
		days = ref.RelativeDays
	}
	if days < 0 {
		days = 0
	}
	now := s.now()
	from := now.AddDate(0, 0, -(days + 1))
	pool, err := s.messages.IDsInDateRange(dbc, chatID, from, now, temporalPoolLimit)
	if err != nil {
		return nil, fmt.Errorf("temporal pool: %w", err)
	}
	return s.searchPool(dbc, chatID, question, pool)
}

// SearchMultiEntity pools every mentioned person together so comparison
// questions see both sides.
func (s *Service) SearchMultiEntity(dbc dbctx.Context, chatID int64, question string, people []string) (*types.SearchResponse, error) {
	var pool []int64
	for _, person := range people {
		part, err := s.BuildPool(dbc, chatID, nil, []string{person})
		if err != nil {
			return nil, err
		}
		pool = unionIDs(pool, part)
	}
	return s.searchPool(dbc, chatID, question, pool)
}

func (s *Service) searchPool(dbc dbctx.Context, chatID int64, question string, pool []int64) (*types.SearchResponse, error) {
	resp := &types.SearchResponse{Confidence: types.ConfidenceNone}
	if len(pool) == 0 {
		resp.ConfidenceReason = "[Personal pool: 0] empty pool"
		return resp, nil
	}

	vecRaw, err := s.embedder.Embed(dbc.Ctx, question, embedding.TaskQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	results, err := s.retriever.SearchInPool(dbc, chatID, pgvector.NewVector(vecRaw), pool, poolSearchLimit, question)
	if err != nil {
		return nil, fmt.Errorf("pool search: %w", err)
	}

	resp.Results = results
	if len(results) > 0 {
		scores := make([]float64, len(results))
		for i, r := range results {
			scores[i] = r.Similarity
		}
		resp.BestScore = scores[0]
		resp.ScoreGap = retrieval.ScoreGap(scores)
		var reason string
		resp.Confidence, reason = retrieval.EvaluateConfidence(resp.BestScore, resp.ScoreGap, false)
		resp.ConfidenceReason = fmt.Sprintf("[Personal pool: %d] %s", len(pool), reason)
	} else {
		resp.ConfidenceReason = fmt.Sprintf("[Personal pool: %d] no matches", len(pool))
	}
	return resp, nil
}

func unionIDs(groups ...[]int64) []int64 {
	seen := map[int64]struct{}{}
	var out []int64
	for _, g := range groups {
		for _, id := range g {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
