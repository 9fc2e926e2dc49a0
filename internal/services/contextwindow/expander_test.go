package contextwindow

import (
	"context"
	"testing"
	"time"

	"github.com/yungbote/chatlore-backend/internal/pkg/dbctx"
	"github.com/yungbote/chatlore-backend/internal/pkg/logger"
	"github.com/yungbote/chatlore-backend/internal/repos"
)

type fakeMessages struct {
	repos.MessageRepo
	rows       []repos.ContextRow
	gotHitIDs  []int64
	gotBefore  int
	gotAfter   int
	callsCount int
}

func (f *fakeMessages) ContextAround(dbc dbctx.Context, chatID int64, hitIDs []int64, before, after int) ([]repos.ContextRow, error) {
	f.gotHitIDs = hitIDs
	f.gotBefore = before
	f.gotAfter = after
	f.callsCount++
	return f.rows, nil
}

func row(hitID, id int64, author, text string) repos.ContextRow {
	return repos.ContextRow{
		HitID:       hitID,
		ChatID:      1,
		ID:          id,
		FromUserID:  id % 3,
		DisplayName: &author,
		Text:        &text,
		DateUTC:     time.Date(2026, 7, 1, 10, 0, int(id), 0, time.UTC),
	}
}

func TestExpandMergesOverlappingWindows(t *testing.T) {
	fake := &fakeMessages{rows: []repos.ContextRow{
		row(10, 8, "Аня", "восемь"),
		row(10, 9, "Боря", "девять"),
		row(10, 10, "Аня", "десять"),
		row(10, 11, "Вера", "одиннадцать"),
		row(10, 12, "Аня", "двенадцать"),
		row(14, 12, "Аня", "двенадцать"),
		row(14, 13, "Боря", "тринадцать"),
		row(14, 14, "Вера", "четырнадцать"),
		row(30, 29, "Аня", "двадцать девять"),
		row(30, 30, "Боря", "тридцать"),
		row(30, 31, "Аня", "тридцать один"),
	}}
	e := NewExpander(fake, logger.NewNop())

	windows, err := e.Expand(dbctx.New(context.Background()), 1, []int64{10, 14, 30})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(windows) != 2 {
		t.Fatalf("want=2 merged windows got=%d", len(windows))
	}

	first := windows[0]
	if len(first.Messages) != 7 {
		t.Fatalf("merged window size: want=7 got=%d", len(first.Messages))
	}
	for i := 1; i < len(first.Messages); i++ {
		if first.Messages[i].MessageID <= first.Messages[i-1].MessageID {
			t.Fatalf("window messages not sorted: %v then %v", first.Messages[i-1].MessageID, first.Messages[i].MessageID)
		}
	}
	if first.Messages[0].MessageID != 8 || first.Messages[6].MessageID != 14 {
		t.Fatalf("merged window span: got %d..%d", first.Messages[0].MessageID, first.Messages[6].MessageID)
	}

	second := windows[1]
	if len(second.Messages) != 3 || second.Messages[0].MessageID != 29 {
		t.Fatalf("isolated window: got=%+v", second)
	}

	if fake.gotBefore != 2 || fake.gotAfter != 2 {
		t.Fatalf("neighborhood bounds: got before=%d after=%d", fake.gotBefore, fake.gotAfter)
	}
}

func TestExpandBridgingWindowJoinsSeparateSets(t *testing.T) {
	// Hits 2 and 9 are disjoint; hit 5 overlaps both and must pull them
	// into a single window instead of leaving shared ids in two windows.
	fake := &fakeMessages{rows: []repos.ContextRow{
		row(2, 1, "Аня", "один"),
		row(2, 2, "Боря", "два"),
		row(2, 3, "Аня", "три"),
		row(2, 4, "Вера", "четыре"),
		row(9, 7, "Аня", "семь"),
		row(9, 8, "Боря", "восемь"),
		row(9, 9, "Вера", "девять"),
		row(9, 10, "Аня", "десять"),
		row(9, 11, "Боря", "одиннадцать"),
		row(5, 3, "Аня", "три"),
		row(5, 4, "Вера", "четыре"),
		row(5, 5, "Боря", "пять"),
		row(5, 6, "Аня", "шесть"),
		row(5, 7, "Аня", "семь"),
	}}
	e := NewExpander(fake, logger.NewNop())

	windows, err := e.Expand(dbctx.New(context.Background()), 1, []int64{2, 9, 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(windows) != 1 {
		t.Fatalf("bridged sets must collapse into one window, got=%d", len(windows))
	}
	msgs := windows[0].Messages
	if len(msgs) != 11 || msgs[0].MessageID != 1 || msgs[10].MessageID != 11 {
		t.Fatalf("merged span: got %d messages %d..%d", len(msgs), msgs[0].MessageID, msgs[len(msgs)-1].MessageID)
	}
	seen := map[int64]int{}
	for _, m := range msgs {
		seen[m.MessageID]++
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("message %d appears %d times in merged window", id, n)
		}
	}
}

func TestExpandCapsHitCount(t *testing.T) {
	fake := &fakeMessages{}
	e := NewExpander(fake, logger.NewNop())

	hits := make([]int64, 25)
	for i := range hits {
		hits[i] = int64(i + 1)
	}
	if _, err := e.Expand(dbctx.New(context.Background()), 1, hits); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fake.gotHitIDs) != maxHits {
		t.Fatalf("hit cap: want=%d got=%d", maxHits, len(fake.gotHitIDs))
	}
}

func TestExpandNoHits(t *testing.T) {
	fake := &fakeMessages{}
	e := NewExpander(fake, logger.NewNop())

	windows, err := e.Expand(dbctx.New(context.Background()), 1, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if windows != nil {
		t.Fatalf("want nil windows, got=%v", windows)
	}
	if fake.callsCount != 0 {
		t.Fatalf("repo must not be queried without hits")
	}
}

func TestToWindowMessage(t *testing.T) {
	username := "borya"
	text := "переслал новость"
	origin := "Новости дня"
	r := repos.ContextRow{
		ID:              5,
		Username:        &username,
		Text:            &text,
		IsForwarded:     true,
		ForwardFromName: &origin,
	}
	got := toWindowMessage(r)
	if got.Author != "borya" {
		t.Fatalf("author fallback: want=%q got=%q", "borya", got.Author)
	}
	if !got.IsForwarded || got.ForwardOrigin != "Новости дня" {
		t.Fatalf("forward origin: got=%+v", got)
	}
}
