package retrieval

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"gorm.io/datatypes"

	"github.com/yungbote/chatlore-backend/internal/pkg/dbctx"
	"github.com/yungbote/chatlore-backend/internal/repos"
	"github.com/yungbote/chatlore-backend/internal/types"
)

func fixedRetriever(now time.Time) *retriever {
	return &retriever{now: func() time.Time { return now }}
}

func metaJSON(dateUTC time.Time) datatypes.JSON {
	return datatypes.JSON([]byte(fmt.Sprintf(`{%q:%q}`, types.MetaDateUTC, dateUTC.Format(time.RFC3339))))
}

func TestRescoreOrdersByDistance(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	r := fixedRetriever(now)

	hits := []repos.EmbeddingHit{
		{MessageID: 1, ChunkText: "купил машину вчера", Distance: 0.5, CreatedAt: now},
		{MessageID: 2, ChunkText: "купил машину вчера", Distance: 0.3, CreatedAt: now},
		{MessageID: 3, ChunkText: "купил машину вчера", Distance: 0.4, CreatedAt: now},
	}
	terms := strings.Fields("купил машину")
	got := r.rescore(hits, "купил машину", terms, 10, false)
	if len(got) != 3 {
		t.Fatalf("want=3 results got=%d", len(got))
	}
	wantOrder := []int64{2, 3, 1}
	for i, id := range wantOrder {
		if got[i].MessageID != id {
			t.Fatalf("position %d: want=%d got=%d", i, id, got[i].MessageID)
		}
	}
}

func TestRescoreDropsNearDuplicates(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	r := fixedRetriever(now)

	hits := []repos.EmbeddingHit{
		{MessageID: 1, ChunkText: "кто брал ключи от офиса", Distance: 0.01, CreatedAt: now},
		{MessageID: 2, ChunkText: "ключи у охраны на вахте", Distance: 0.3, CreatedAt: now},
	}
	got := r.rescore(hits, "кто брал ключи от офиса", []string{"брал", "ключи", "офиса"}, 10, false)
	if len(got) != 1 {
		t.Fatalf("want=1 result got=%d", len(got))
	}
	if got[0].MessageID != 2 {
		t.Fatalf("near-duplicate survived: got message %d", got[0].MessageID)
	}
}

func TestRescorePenalizesNewsDumps(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	r := fixedRetriever(now)

	dump := "🔴 BREAKING: курс обвалился. Подписаться на канал"
	hits := []repos.EmbeddingHit{
		{MessageID: 1, ChunkText: dump, Distance: 0.3, CreatedAt: now},
		{MessageID: 2, ChunkText: "обычное сообщение про курс", Distance: 0.3, CreatedAt: now},
	}
	got := r.rescore(hits, "", nil, 10, false)
	if len(got) != 2 {
		t.Fatalf("want=2 results got=%d", len(got))
	}
	if got[0].MessageID != 2 {
		t.Fatalf("news dump outranked plain message: first=%d", got[0].MessageID)
	}
	if !got[1].IsNewsDump {
		t.Fatalf("expected news dump flag on message 1")
	}
	if got[1].Similarity >= got[0].Similarity {
		t.Fatalf("penalty not applied: dump=%.4f plain=%.4f", got[1].Similarity, got[0].Similarity)
	}
}

func TestRescoreExactMatchBoost(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	r := fixedRetriever(now)

	hits := []repos.EmbeddingHit{
		{MessageID: 1, ChunkText: "обсуждали погоду и планы", Distance: 0.4, CreatedAt: now},
		{MessageID: 2, ChunkText: "гараж открыт до девяти", Distance: 0.4, CreatedAt: now},
	}
	got := r.rescore(hits, "гараж", nil, 10, false)
	if got[0].MessageID != 2 {
		t.Fatalf("exact keyword hit should rank first, got %d", got[0].MessageID)
	}
}

func TestRescorePersonalRecencyTiebreak(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := fixedRetriever(now)

	// Both dates clamp to zero age, so the composite scores tie exactly and
	// only the recency tiebreak separates them.
	older := now.AddDate(0, 1, 0)
	newer := now.AddDate(0, 2, 0)
	hits := []repos.EmbeddingHit{
		{MessageID: 1, ChunkText: "одинаковый текст", Distance: 0.3, Metadata: metaJSON(older)},
		{MessageID: 2, ChunkText: "одинаковый текст", Distance: 0.3, Metadata: metaJSON(newer)},
	}
	got := r.rescore(hits, "", nil, 10, true)
	if got[0].MessageID != 2 {
		t.Fatalf("personal search should prefer newer message on ties, got %d", got[0].MessageID)
	}
}

func TestRescoreTruncatesToLimit(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	r := fixedRetriever(now)

	var hits []repos.EmbeddingHit
	for i := 0; i < 8; i++ {
		hits = append(hits, repos.EmbeddingHit{
			MessageID: int64(i + 1),
			ChunkText: "сообщение",
			Distance:  0.3 + float64(i)*0.01,
			CreatedAt: now,
		})
	}
	got := r.rescore(hits, "", nil, 3, false)
	if len(got) != 3 {
		t.Fatalf("want=3 results got=%d", len(got))
	}
}

func TestStage1Limit(t *testing.T) {
	cases := []struct {
		limit  int
		hybrid bool
		want   int
	}{
		{10, true, 100},
		{10, false, 50},
		{30, true, 200},
		{50, false, 200},
	}
	for _, c := range cases {
		if got := stage1Limit(c.limit, c.hybrid); got != c.want {
			t.Fatalf("stage1Limit(%d, %v): want=%d got=%d", c.limit, c.hybrid, c.want, got)
		}
	}
}

type fakeEmbeddings struct {
	repos.MessageEmbeddingRepo
	gotQuery string
	calls    int
	hits     []repos.FullTextHit
}

func (f *fakeEmbeddings) FullTextSearch(dbc dbctx.Context, chatID int64, query string, limit int) ([]repos.FullTextHit, error) {
	f.calls++
	f.gotQuery = query
	return f.hits, nil
}

func TestFullTextSearchKeepsQueryVerbatim(t *testing.T) {
	fake := &fakeEmbeddings{hits: []repos.FullTextHit{{MessageID: 1, ChunkText: "пицца вечером", Rank: 0.4}}}
	r := &retriever{embeddings: fake, now: time.Now}

	got, err := r.FullTextSearch(dbctx.New(context.Background()), 1, "пицца OR суши", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fake.gotQuery != "пицца OR суши" {
		t.Fatalf("query must reach the index untouched: want=%q got=%q", "пицца OR суши", fake.gotQuery)
	}
	if len(got) != 1 || got[0].Similarity != 0.4 {
		t.Fatalf("unexpected results: %+v", got)
	}
}

func TestFullTextSearchSkipsBlankQuery(t *testing.T) {
	fake := &fakeEmbeddings{}
	r := &retriever{embeddings: fake, now: time.Now}

	got, err := r.FullTextSearch(dbctx.New(context.Background()), 1, "   ", 10)
	if err != nil || got != nil {
		t.Fatalf("blank query: want nil results and nil error, got=%v err=%v", got, err)
	}
	if fake.calls != 0 {
		t.Fatalf("index must not be queried for a blank query")
	}
}

func TestMetaDateOr(t *testing.T) {
	fallback := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	parsed := time.Date(2026, 6, 2, 10, 30, 0, 0, time.UTC)

	meta := decodeMetadata(metaJSON(parsed))
	if got := metaDateOr(meta, fallback); !got.Equal(parsed) {
		t.Fatalf("want=%v got=%v", parsed, got)
	}
	if got := metaDateOr(nil, fallback); !got.Equal(fallback) {
		t.Fatalf("nil metadata: want fallback %v got=%v", fallback, got)
	}
	bad := decodeMetadata(datatypes.JSON([]byte(`{"DateUtc":"not-a-date"}`)))
	if got := metaDateOr(bad, fallback); !got.Equal(fallback) {
		t.Fatalf("unparsable date: want fallback %v got=%v", fallback, got)
	}
}
