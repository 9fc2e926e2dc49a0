package fusion

import (
	"testing"

	"github.com/yungbote/chatlore-backend/internal/types"
)

func msg(id int64, sim float64) types.SearchResult {
	return types.SearchResult{ChatID: 7, MessageID: id, Similarity: sim, Distance: 1 - sim}
}

func TestReciprocalRankFusionIsRankOnly(t *testing.T) {
	branch := []types.SearchResult{msg(1, 0.9), msg(2, 0.8), msg(3, 0.7)}
	rescaled := []types.SearchResult{msg(1, 0.5), msg(2, 0.4), msg(3, 0.3)}

	a := reciprocalRankFusion([][]types.SearchResult{branch})
	b := reciprocalRankFusion([][]types.SearchResult{rescaled})
	if len(a) != len(b) {
		t.Fatalf("length mismatch: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].fusedScore != b[i].fusedScore {
			t.Fatalf("position %d: fused score depends on raw similarity: %v vs %v", i, a[i].fusedScore, b[i].fusedScore)
		}
		if a[i].result.MessageID != b[i].result.MessageID {
			t.Fatalf("position %d: order depends on raw similarity", i)
		}
	}
}

func TestReciprocalRankFusionMergesCrossBranchHits(t *testing.T) {
	vector := []types.SearchResult{msg(1, 0.9), msg(2, 0.8), msg(3, 0.7)}
	keyword := []types.SearchResult{msg(3, 0.2), msg(4, 0.1)}

	fused := reciprocalRankFusion([][]types.SearchResult{vector, keyword})
	if len(fused) != 4 {
		t.Fatalf("want=4 unique documents got=%d", len(fused))
	}
	// Message 3 appears in both branches, so it must outrank message 2
	// which only appears once at a better rank.
	pos := map[int64]int{}
	for i, f := range fused {
		pos[f.result.MessageID] = i
	}
	if pos[3] >= pos[2] {
		t.Fatalf("cross-branch hit should win: pos(3)=%d pos(2)=%d", pos[3], pos[2])
	}
	if pos[1] != 0 && pos[3] != 0 {
		t.Fatalf("top position held by neither 1 nor 3: %v", pos)
	}

	wantTop := 1.0/float64(rrfK+3) + 1.0/float64(rrfK+1)
	if fused[pos[3]].fusedScore != wantTop {
		t.Fatalf("fused score for doc 3: want=%v got=%v", wantTop, fused[pos[3]].fusedScore)
	}
}

func TestReciprocalRankFusionPrefersNonQuestionRepresentative(t *testing.T) {
	questionRow := msg(5, 0.9)
	questionRow.IsQuestionEmbedding = true
	questionRow.ChunkText = "гипотетический вопрос"
	plainRow := msg(5, 0.4)
	plainRow.ChunkText = "настоящее сообщение"

	fused := reciprocalRankFusion([][]types.SearchResult{{questionRow}, {plainRow}})
	if len(fused) != 1 {
		t.Fatalf("want=1 merged document got=%d", len(fused))
	}
	got := fused[0].result
	if got.IsQuestionEmbedding {
		t.Fatalf("question embedding kept as representative")
	}
	if got.ChunkText != "настоящее сообщение" {
		t.Fatalf("representative text: want=%q got=%q", "настоящее сообщение", got.ChunkText)
	}
}

func TestFusionKeySeparatesWindowsFromChunks(t *testing.T) {
	m := types.SearchResult{ChatID: 1, MessageID: 10, ChunkIndex: 0}
	w := types.SearchResult{ChatID: 1, MessageID: 10, ChunkIndex: 0, IsContextWindow: true}
	if fusionKey(m) == fusionKey(w) {
		t.Fatalf("context window collided with message chunk: %q", fusionKey(m))
	}
}

func TestFusedConfidence(t *testing.T) {
	topRank := 1.0 / float64(rrfK+1)
	cases := []struct {
		name     string
		best     float64
		branches int
		results  int
		want     types.Confidence
	}{
		{"top of both branches", 2 * topRank, 2, 10, types.ConfidenceHigh},
		{"strong multi-branch", 2.0/float64(rrfK+5) + 0.001, 2, 3, types.ConfidenceHigh},
		{"single branch top rank", topRank, 1, 3, types.ConfidenceHigh},
		{"mid single branch", 0.5 * topRank, 1, 3, types.ConfidenceMedium},
		{"weak but plentiful", 0.05 * topRank, 1, 8, types.ConfidenceLow},
		{"weak and sparse", 0.05 * topRank, 1, 2, types.ConfidenceNone},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, reason := fusedConfidence(c.best, c.branches, c.results)
			if got != c.want {
				t.Fatalf("confidence: want=%v got=%v (reason=%q)", c.want, got, reason)
			}
		})
	}
}

func TestRerankedConfidence(t *testing.T) {
	cases := []struct {
		best  float64
		count int
		want  types.Confidence
	}{
		{0.85, 1, types.ConfidenceHigh},
		{0.6, 1, types.ConfidenceMedium},
		{0.35, 1, types.ConfidenceLow},
		{0.1, 5, types.ConfidenceLow},
		{0.1, 2, types.ConfidenceNone},
	}
	for _, c := range cases {
		got, _ := rerankedConfidence(c.best, c.count)
		if got != c.want {
			t.Fatalf("rerankedConfidence(%v, %d): want=%v got=%v", c.best, c.count, c.want, got)
		}
	}
}

func TestScoreGap(t *testing.T) {
	fused := []fusedResult{
		{fusedScore: 0.9, result: msg(1, 0.9)},
		{fusedScore: 0.7, result: msg(2, 0.7)},
		{fusedScore: 0.5, result: msg(3, 0.5)},
	}
	got := scoreGap(fused, false)
	if diff := got - 0.4; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("fused gap: want=0.4 got=%v", got)
	}
	got = scoreGap(fused, true)
	if diff := got - 0.4; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("reranked gap: want=0.4 got=%v", got)
	}
	if scoreGap(fused[:1], false) != 0 {
		t.Fatalf("single result must have zero gap")
	}
}

func TestSortRerankedKeepsUnrankedTailBelowHead(t *testing.T) {
	// Messages 3 and 4 sit past the rerank cap and still carry composite
	// similarities, which live on a different scale than reranker scores.
	fused := []fusedResult{
		{result: msg(1, 0.40), fusedScore: 0.030},
		{result: msg(2, 0.80), fusedScore: 0.025},
		{result: msg(3, 0.95), fusedScore: 0.020},
		{result: msg(4, 0.90), fusedScore: 0.015},
	}
	sortReranked(fused, 2)

	wantOrder := []int64{2, 1, 3, 4}
	for i, id := range wantOrder {
		if fused[i].result.MessageID != id {
			t.Fatalf("position %d: want=%d got=%d", i, id, fused[i].result.MessageID)
		}
	}
}

func TestSortRerankedClampsToLength(t *testing.T) {
	fused := []fusedResult{
		{result: msg(1, 0.2)},
		{result: msg(2, 0.9)},
	}
	sortReranked(fused, 100)
	if fused[0].result.MessageID != 2 {
		t.Fatalf("short list must be fully sorted, got first=%d", fused[0].result.MessageID)
	}
}
