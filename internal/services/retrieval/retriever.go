package retrieval

import (
	"encoding/json"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"

	"github.com/yungbote/chatlore-backend/internal/pkg/dbctx"
	"github.com/yungbote/chatlore-backend/internal/pkg/logger"
	"github.com/yungbote/chatlore-backend/internal/repos"
	"github.com/yungbote/chatlore-backend/internal/services/textnorm"
	"github.com/yungbote/chatlore-backend/internal/types"
)

const (
	maxCandidateLimit = 200
	// Candidate multipliers for stage 1: wider when sparse terms let
	// stage 2 actually discriminate.
	hybridMultiplier = 10
	denseMultiplier  = 5

	denseWeight  = 0.7
	sparseWeight = 0.3
	exactBoost   = 0.15

	decayWeight       = 0.1
	decayHalfLifeDays = 14.0

	// Similarity at or above this means the candidate is almost certainly
	// the query itself echoed back.
	nearDuplicateSim = 0.98

	newsDumpPenalty = 0.05
)

// Retriever is the two-stage dense+sparse searcher over message embeddings.
type Retriever interface {
	Search(dbc dbctx.Context, chatID int64, query pgvector.Vector, limit int, queryText string) ([]types.SearchResult, error)
	SearchInPool(dbc dbctx.Context, chatID int64, query pgvector.Vector, pool []int64, limit int, queryText string) ([]types.SearchResult, error)
	FullTextSearch(dbc dbctx.Context, chatID int64, queryText string, limit int) ([]types.SearchResult, error)
	SimpleTextSearch(dbc dbctx.Context, chatID int64, queryText string, limit int) ([]types.SearchResult, error)
	SearchContextWindows(dbc dbctx.Context, chatID int64, query pgvector.Vector, limit int) ([]types.SearchResult, []repos.ContextHit, error)
}

type retriever struct {
	embeddings repos.MessageEmbeddingRepo
	contexts   repos.ContextEmbeddingRepo
	messages   repos.MessageRepo
	log        *logger.Logger
	now        func() time.Time
}

func NewRetriever(embeddings repos.MessageEmbeddingRepo, contexts repos.ContextEmbeddingRepo, messages repos.MessageRepo, baseLog *logger.Logger) Retriever {
	return &retriever{
		embeddings: embeddings,
		contexts:   contexts,
		messages:   messages,
		log:        baseLog.With("service", "Retriever"),
		now:        time.Now,
	}
}

func (r *retriever) Search(dbc dbctx.Context, chatID int64, query pgvector.Vector, limit int, queryText string) ([]types.SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	terms := strings.Fields(textnorm.ExtractSearchTerms(queryText))
	candidateLimit := stage1Limit(limit, len(terms) > 0)

	hits, err := r.embeddings.VectorSearch(dbc, chatID, query, candidateLimit)
	if err != nil {
		return nil, err
	}
	return r.rescore(hits, queryText, terms, limit, false), nil
}

func (r *retriever) SearchInPool(dbc dbctx.Context, chatID int64, query pgvector.Vector, pool []int64, limit int, queryText string) ([]types.SearchResult, error) {
	if len(pool) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	terms := strings.Fields(textnorm.ExtractSearchTerms(queryText))
	candidateLimit := stage1Limit(limit, len(terms) > 0)

	hits, err := r.embeddings.VectorSearchInPool(dbc, chatID, query, pool, candidateLimit)
	if err != nil {
		return nil, err
	}
	return r.rescore(hits, queryText, terms, limit, true), nil
}

// FullTextSearch hands the query to websearch_to_tsquery verbatim. Callers
// prepare it themselves (the fusion branch joins extracted terms with OR);
// re-extracting terms here would strip the connectors and turn the query
// into an AND over all keywords.
func (r *retriever) FullTextSearch(dbc dbctx.Context, chatID int64, queryText string, limit int) ([]types.SearchResult, error) {
	queryText = strings.TrimSpace(queryText)
	if queryText == "" {
		return nil, nil
	}
	hits, err := r.embeddings.FullTextSearch(dbc, chatID, queryText, limit)
	if err != nil {
		return nil, err
	}
	out := make([]types.SearchResult, 0, len(hits))
	for _, h := range hits {
		out = append(out, types.SearchResult{
			ChatID:              h.ChatID,
			MessageID:           h.MessageID,
			ChunkIndex:          h.ChunkIndex,
			ChunkText:           h.ChunkText,
			Metadata:            decodeMetadata(h.Metadata),
			Similarity:          h.Rank,
			IsNewsDump:          IsNewsDump(h.ChunkText),
			IsQuestionEmbedding: h.IsQuestion,
		})
	}
	return out, nil
}

func (r *retriever) SimpleTextSearch(dbc dbctx.Context, chatID int64, queryText string, limit int) ([]types.SearchResult, error) {
	words := textnorm.ExtractILikeWords(queryText, 5)
	if len(words) == 0 {
		return nil, nil
	}
	hits, err := r.embeddings.ILikeSearch(dbc, chatID, words, limit)
	if err != nil {
		return nil, err
	}
	if len(hits) > 0 {
		out := make([]types.SearchResult, 0, len(hits))
		for _, h := range hits {
			out = append(out, types.SearchResult{
				ChatID:              h.ChatID,
				MessageID:           h.MessageID,
				ChunkIndex:          h.ChunkIndex,
				ChunkText:           h.ChunkText,
				Metadata:            decodeMetadata(h.Metadata),
				Distance:            h.Distance,
				Similarity:          1 - h.Distance,
				IsNewsDump:          IsNewsDump(h.ChunkText),
				IsQuestionEmbedding: h.IsQuestion,
			})
		}
		return out, nil
	}

	// No indexed chunk matched; scan raw messages from the last month.
	since := r.now().AddDate(0, 0, -30)
	msgs, err := r.messages.SearchILike(dbc, chatID, words, since, limit)
	if err != nil {
		return nil, err
	}
	out := make([]types.SearchResult, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, types.SearchResult{
			ChatID:     m.ChatID,
			MessageID:  m.ID,
			ChunkText:  m.AuthorLabel() + ": " + m.BodyText(),
			Distance:   0.5,
			Similarity: 0.5,
			IsNewsDump: IsNewsDump(m.BodyText()),
		})
	}
	return out, nil
}

func (r *retriever) SearchContextWindows(dbc dbctx.Context, chatID int64, query pgvector.Vector, limit int) ([]types.SearchResult, []repos.ContextHit, error) {
	if limit <= 0 {
		limit = 20
	}
	hits, err := r.contexts.VectorSearch(dbc, chatID, query, limit)
	if err != nil {
		return nil, nil, err
	}
	out := make([]types.SearchResult, 0, len(hits))
	for _, h := range hits {
		out = append(out, types.SearchResult{
			ChatID:          h.ChatID,
			MessageID:       h.CenterMessageID,
			ChunkText:       h.ContextText,
			Distance:        h.Distance,
			Similarity:      1 - h.Distance,
			IsContextWindow: true,
		})
	}
	return out, hits, nil
}

func stage1Limit(limit int, hybrid bool) int {
	m := denseMultiplier
	if hybrid {
		m = hybridMultiplier
	}
	n := limit * m
	if n > maxCandidateLimit {
		n = maxCandidateLimit
	}
	return n
}

// rescore runs stage 2: composite scoring, near-duplicate and news-dump
// handling, sorting and truncation. The composite score lands in Similarity.
func (r *retriever) rescore(hits []repos.EmbeddingHit, queryText string, terms []string, limit int, personal bool) []types.SearchResult {
	ilikeWords := textnorm.ExtractILikeWords(queryText, 5)
	hybrid := len(terms) > 0
	now := r.now()

	results := make([]types.SearchResult, 0, len(hits))
	for _, h := range hits {
		rawSim := 1 - h.Distance
		if rawSim >= nearDuplicateSim {
			continue
		}
		meta := decodeMetadata(h.Metadata)
		score := r.compositeScore(h, meta, terms, ilikeWords, hybrid, now)

		res := types.SearchResult{
			ChatID:              h.ChatID,
			MessageID:           h.MessageID,
			ChunkIndex:          h.ChunkIndex,
			ChunkText:           h.ChunkText,
			Metadata:            meta,
			Distance:            h.Distance,
			Similarity:          score,
			IsQuestionEmbedding: h.IsQuestion,
		}
		if IsNewsDump(h.ChunkText) {
			res.IsNewsDump = true
			res.Similarity -= newsDumpPenalty
		}
		results = append(results, res)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		if personal {
			return metaDate(results[i].Metadata).After(metaDate(results[j].Metadata))
		}
		return false
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

func (r *retriever) compositeScore(h repos.EmbeddingHit, meta map[string]any, terms, ilikeWords []string, hybrid bool, now time.Time) float64 {
	dense := 1 - h.Distance
	lowerText := strings.ToLower(h.ChunkText)

	boost := 0.0
	for _, w := range ilikeWords {
		if strings.Contains(lowerText, w) {
			boost = exactBoost
			break
		}
	}

	decay := 0.0
	ts := metaDateOr(meta, h.CreatedAt)
	if !ts.IsZero() {
		ageDays := now.Sub(ts).Hours() / 24
		if ageDays < 0 {
			ageDays = 0
		}
		decay = decayWeight * math.Exp(-ageDays*math.Ln2/decayHalfLifeDays)
	}

	if !hybrid {
		return dense + boost + decay
	}
	matched := 0
	for _, t := range terms {
		if strings.Contains(lowerText, t) {
			matched++
		}
	}
	textScore := float64(matched) / float64(len(terms))
	return denseWeight*dense + sparseWeight*textScore + boost + decay
}

func decodeMetadata(raw datatypes.JSON) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

func metaDate(meta map[string]any) time.Time {
	return metaDateOr(meta, time.Time{})
}

func metaDateOr(meta map[string]any, fallback time.Time) time.Time {
	if meta != nil {
		if s, ok := meta[types.MetaDateUTC].(string); ok {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				return t
			}
		}
	}
	return fallback
}
