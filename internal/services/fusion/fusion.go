package fusion

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pgvector/pgvector-go"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/chatlore-backend/internal/clients/embedding"
	"github.com/yungbote/chatlore-backend/internal/clients/reranker"
	"github.com/yungbote/chatlore-backend/internal/pkg/dbctx"
	"github.com/yungbote/chatlore-backend/internal/pkg/logger"
	"github.com/yungbote/chatlore-backend/internal/repos"
	"github.com/yungbote/chatlore-backend/internal/services/textnorm"
	"github.com/yungbote/chatlore-backend/internal/types"
)

const (
	// RRF smoothing constant.
	rrfK = 60

	resultsPerQuery   = 60
	keywordLimit      = 2 * resultsPerQuery
	contextWindowPull = 20

	rerankCap = 100

	nearDuplicateSim = 0.98
)

// Searcher is the subset of the retriever the orchestrator drives.
type Searcher interface {
	Search(dbc dbctx.Context, chatID int64, query pgvector.Vector, limit int, queryText string) ([]types.SearchResult, error)
	FullTextSearch(dbc dbctx.Context, chatID int64, queryText string, limit int) ([]types.SearchResult, error)
	SearchContextWindows(dbc dbctx.Context, chatID int64, query pgvector.Vector, limit int) ([]types.SearchResult, []repos.ContextHit, error)
}

// Orchestrator fuses the dense and sparse branches with reciprocal rank
// fusion and optionally reranks the merged list.
type Orchestrator struct {
	embedder embedding.Client
	searcher Searcher
	reranker reranker.Client // nil disables the rerank stage
	log      *logger.Logger
}

func NewOrchestrator(embedder embedding.Client, searcher Searcher, rr reranker.Client, baseLog *logger.Logger) *Orchestrator {
	return &Orchestrator{
		embedder: embedder,
		searcher: searcher,
		reranker: rr,
		log:      baseLog.With("service", "FusionOrchestrator"),
	}
}

// Search runs the full fusion pipeline for one normalized question.
func (o *Orchestrator) Search(dbc dbctx.Context, chatID int64, question string) (*types.SearchResponse, error) {
	ctx, span := otel.Tracer("fusion").Start(dbc.Ctx, "FusionSearch")
	defer span.End()
	dbc = dbctx.Context{Ctx: ctx, Tx: dbc.Tx}

	vecRaw, err := o.embedder.Embed(dbc.Ctx, question, embedding.TaskQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	vec := pgvector.NewVector(vecRaw)

	var (
		vectorBranch  []types.SearchResult
		keywordBranch []types.SearchResult
	)
	g, gctx := errgroup.WithContext(dbc.Ctx)
	branchDBC := dbctx.Context{Ctx: gctx, Tx: dbc.Tx}

	g.Go(func() error {
		hits, err := o.searcher.Search(branchDBC, chatID, vec, resultsPerQuery, question)
		if err != nil {
			return fmt.Errorf("vector branch: %w", err)
		}
		windows, _, err := o.searcher.SearchContextWindows(branchDBC, chatID, vec, contextWindowPull)
		if err != nil {
			return fmt.Errorf("context window branch: %w", err)
		}
		vectorBranch = append(hits, windows...)
		return nil
	})
	g.Go(func() error {
		terms := strings.Fields(textnorm.ExtractSearchTerms(question))
		if len(terms) == 0 {
			return nil
		}
		orQuery := strings.Join(terms, " OR ")
		hits, err := o.searcher.FullTextSearch(branchDBC, chatID, orQuery, keywordLimit)
		if err != nil {
			return fmt.Errorf("keyword branch: %w", err)
		}
		keywordBranch = hits
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	branches := [][]types.SearchResult{vectorBranch}
	if len(keywordBranch) > 0 {
		branches = append(branches, keywordBranch)
	}
	fused := reciprocalRankFusion(branches)

	// Drop echoes of the question itself.
	filtered := fused[:0]
	for _, f := range fused {
		if !f.result.IsContextWindow && 1-f.result.Distance >= nearDuplicateSim {
			continue
		}
		filtered = append(filtered, f)
	}
	fused = filtered

	hasFullText := len(keywordBranch) > 0

	reranked := false
	if o.reranker != nil && len(fused) > 0 {
		n, err := o.rerank(dbc, question, fused)
		if err != nil {
			o.log.Warn("rerank failed, keeping fused order", "error", err)
		} else {
			reranked = true
			sortReranked(fused, n)
		}
	}

	results := make([]types.SearchResult, 0, len(fused))
	for _, f := range fused {
		results = append(results, f.result)
	}

	resp := &types.SearchResponse{
		Results:          results,
		HasFullTextMatch: hasFullText,
	}
	if len(fused) > 0 {
		if reranked {
			resp.BestScore = fused[0].result.Similarity
			resp.Confidence, resp.ConfidenceReason = rerankedConfidence(resp.BestScore, len(fused))
		} else {
			resp.BestScore = fused[0].fusedScore
			resp.Confidence, resp.ConfidenceReason = fusedConfidence(resp.BestScore, len(branches), len(fused))
		}
		resp.ScoreGap = scoreGap(fused, reranked)
	} else {
		resp.Confidence = types.ConfidenceNone
		resp.ConfidenceReason = "no results from any branch"
	}
	return resp, nil
}

type fusedResult struct {
	result     types.SearchResult
	fusedScore float64
}

func fusionKey(r types.SearchResult) string {
	kind := "m"
	if r.IsContextWindow {
		kind = "w"
	}
	return fmt.Sprintf("%s:%d:%d:%d", kind, r.ChatID, r.MessageID, r.ChunkIndex)
}

// reciprocalRankFusion merges ranked branches. Scores are rank-only:
// each appearance contributes 1/(K + rank + 1). A document seen in several
// branches keeps one representative: non-question-embedding beats
// question-embedding, then higher raw similarity wins.
func reciprocalRankFusion(branches [][]types.SearchResult) []fusedResult {
	byKey := map[string]*fusedResult{}
	var order []string
	for _, branch := range branches {
		for rank, res := range branch {
			key := fusionKey(res)
			contrib := 1.0 / float64(rrfK+rank+1)
			if existing, ok := byKey[key]; ok {
				existing.fusedScore += contrib
				if betterRepresentative(res, existing.result) {
					existing.result = res
				}
				continue
			}
			byKey[key] = &fusedResult{result: res, fusedScore: contrib}
			order = append(order, key)
		}
	}
	out := make([]fusedResult, 0, len(order))
	for _, key := range order {
		out = append(out, *byKey[key])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].fusedScore > out[j].fusedScore
	})
	return out
}

func betterRepresentative(candidate, current types.SearchResult) bool {
	if candidate.IsQuestionEmbedding != current.IsQuestionEmbedding {
		return !candidate.IsQuestionEmbedding
	}
	return candidate.Similarity > current.Similarity
}

// rerank scores the top candidates and reports how many carry reranker
// scores; everything past the cap keeps its composite similarity.
func (o *Orchestrator) rerank(dbc dbctx.Context, question string, fused []fusedResult) (int, error) {
	n := len(fused)
	if n > rerankCap {
		n = rerankCap
	}
	docs := make([]string, n)
	for i := 0; i < n; i++ {
		docs[i] = fused[i].result.ChunkText
	}
	scores, err := o.reranker.Rerank(dbc.Ctx, question, docs, n)
	if err != nil {
		return 0, err
	}
	for _, s := range scores {
		fused[s.Index].result.Similarity = s.Score
	}
	return n, nil
}

// sortReranked orders the reranked head by reranker score. The tail still
// carries composite similarities on another scale, so it keeps its fused
// order below the head instead of competing with it.
func sortReranked(fused []fusedResult, n int) {
	if n > len(fused) {
		n = len(fused)
	}
	head := fused[:n]
	sort.SliceStable(head, func(i, j int) bool {
		return head[i].result.Similarity > head[j].result.Similarity
	})
}

func rerankedConfidence(best float64, count int) (types.Confidence, string) {
	switch {
	case best >= 0.8:
		return types.ConfidenceHigh, fmt.Sprintf("reranker score %.3f", best)
	case best >= 0.5:
		return types.ConfidenceMedium, fmt.Sprintf("reranker score %.3f", best)
	case best >= 0.3 || count >= 5:
		return types.ConfidenceLow, fmt.Sprintf("reranker score %.3f over %d results", best, count)
	default:
		return types.ConfidenceNone, fmt.Sprintf("reranker score %.3f", best)
	}
}

func fusedConfidence(best float64, branchCount, resultCount int) (types.Confidence, string) {
	// Best possible fused score is one top-rank contribution per branch.
	ceiling := float64(branchCount) * (1.0 / float64(rrfK+1))
	normalized := 0.0
	if ceiling > 0 {
		normalized = best / ceiling
	}
	multiBranchStrong := branchCount > 1 && best > 2.0/float64(rrfK+5)
	switch {
	case normalized >= 0.7 || multiBranchStrong:
		return types.ConfidenceHigh, fmt.Sprintf("fused score %.4f (normalized %.2f, %d branches)", best, normalized, branchCount)
	case normalized >= 0.4:
		return types.ConfidenceMedium, fmt.Sprintf("fused score %.4f (normalized %.2f)", best, normalized)
	case normalized >= 0.2 || resultCount >= 5:
		return types.ConfidenceLow, fmt.Sprintf("fused score %.4f over %d results", best, resultCount)
	default:
		return types.ConfidenceNone, fmt.Sprintf("fused score %.4f (normalized %.2f)", best, normalized)
	}
}

func scoreGap(fused []fusedResult, reranked bool) float64 {
	if len(fused) < 2 {
		return 0
	}
	idx := 4
	if idx >= len(fused) {
		idx = len(fused) - 1
	}
	if reranked {
		return fused[0].result.Similarity - fused[idx].result.Similarity
	}
	return fused[0].fusedScore - fused[idx].fusedScore
}
