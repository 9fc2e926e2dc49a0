package personal

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/yungbote/chatlore-backend/internal/clients/embedding"
	"github.com/yungbote/chatlore-backend/internal/pkg/dbctx"
	"github.com/yungbote/chatlore-backend/internal/pkg/logger"
	"github.com/yungbote/chatlore-backend/internal/repos"
	"github.com/yungbote/chatlore-backend/internal/services/retrieval"
	"github.com/yungbote/chatlore-backend/internal/types"
)

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string, task embedding.Task) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}
func (fakeEmbedder) EmbedBatch(ctx context.Context, texts []string, task embedding.Task, lateChunking bool) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}
func (fakeEmbedder) VectorDim() int             { return 3 }
func (fakeEmbedder) SupportsLateChunking() bool { return false }

func (fakeEmbedder) Usage() embedding.UsageSnapshot { return embedding.UsageSnapshot{} }

type fakeRetriever struct {
	retrieval.Retriever
	gotPool []int64
	results []types.SearchResult
}

func (f *fakeRetriever) SearchInPool(dbc dbctx.Context, chatID int64, query pgvector.Vector, pool []int64, limit int, queryText string) ([]types.SearchResult, error) {
	f.gotPool = pool
	return f.results, nil
}

type fakePoolMessages struct {
	repos.MessageRepo
	ownIDs     []int64
	mentionIDs []int64
	gotFrom    time.Time
	gotTo      time.Time
	rangeIDs   []int64
}

func (f *fakePoolMessages) IDsByUserSince(dbc dbctx.Context, chatID, userID int64, since time.Time, limit int) ([]int64, error) {
	return f.ownIDs, nil
}

func (f *fakePoolMessages) IDsMentioning(dbc dbctx.Context, chatID int64, patterns []string, excludeUserID *int64, excludeNames []string, limit int) ([]int64, error) {
	return f.mentionIDs, nil
}

func (f *fakePoolMessages) IDsInDateRange(dbc dbctx.Context, chatID int64, from, to time.Time, limit int) ([]int64, error) {
	f.gotFrom = from
	f.gotTo = to
	return f.rangeIDs, nil
}

func TestSearchUnionsOwnAndMentions(t *testing.T) {
	msgs := &fakePoolMessages{ownIDs: []int64{1, 2, 3}, mentionIDs: []int64{3, 4}}
	rtr := &fakeRetriever{results: []types.SearchResult{{MessageID: 2, Similarity: 0.6}}}
	s := NewService(fakeEmbedder{}, rtr, msgs, nil, logger.NewNop())

	uid := int64(77)
	resp, err := s.Search(dbctx.New(context.Background()), 1, "что я обещал", &uid, []string{"Вера"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []int64{1, 2, 3, 4}
	if !reflect.DeepEqual(rtr.gotPool, want) {
		t.Fatalf("pool: want=%v got=%v", want, rtr.gotPool)
	}
	if resp.Confidence != types.ConfidenceMedium {
		t.Fatalf("confidence: want=%v got=%v (%s)", types.ConfidenceMedium, resp.Confidence, resp.ConfidenceReason)
	}
	if resp.ConfidenceReason == "" || resp.ConfidenceReason[:16] != "[Personal pool: " {
		t.Fatalf("reason must carry pool size prefix, got=%q", resp.ConfidenceReason)
	}
}

func TestSearchEmptyPool(t *testing.T) {
	msgs := &fakePoolMessages{}
	rtr := &fakeRetriever{}
	s := NewService(fakeEmbedder{}, rtr, msgs, nil, logger.NewNop())

	resp, err := s.Search(dbctx.New(context.Background()), 1, "вопрос", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Confidence != types.ConfidenceNone {
		t.Fatalf("empty pool: want=%v got=%v", types.ConfidenceNone, resp.Confidence)
	}
}

func TestSearchTemporalWindow(t *testing.T) {
	msgs := &fakePoolMessages{rangeIDs: []int64{5}}
	rtr := &fakeRetriever{}
	s := NewService(fakeEmbedder{}, rtr, msgs, nil, logger.NewNop())
	now := time.Date(2026, 8, 10, 15, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	// "вчера" (1 day back) reaches one extra day so late-evening messages
	// survive the midnight boundary.
	ref := &types.TemporalRef{Text: "вчера", Type: types.TemporalRelative, RelativeDays: 1}
	if _, err := s.SearchTemporal(dbctx.New(context.Background()), 1, "что было вчера", ref); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantFrom := now.AddDate(0, 0, -2)
	if !msgs.gotFrom.Equal(wantFrom) {
		t.Fatalf("window start: want=%v got=%v", wantFrom, msgs.gotFrom)
	}
	if !msgs.gotTo.Equal(now) {
		t.Fatalf("window end: want=%v got=%v", now, msgs.gotTo)
	}
}

func TestUnionIDs(t *testing.T) {
	got := unionIDs([]int64{1, 2}, []int64{2, 3}, nil, []int64{1, 4})
	want := []int64{1, 2, 3, 4}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("union: want=%v got=%v", want, got)
	}
	if unionIDs(nil, nil) != nil {
		t.Fatalf("empty union must be nil")
	}
}
