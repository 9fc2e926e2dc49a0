package nicknames

import (
	"context"
	"testing"
	"time"

	"github.com/yungbote/chatlore-backend/internal/pkg/dbctx"
	"github.com/yungbote/chatlore-backend/internal/pkg/logger"
	"github.com/yungbote/chatlore-backend/internal/repos"
)

type fakeAuthors struct {
	repos.MessageRepo
	authors []repos.AuthorStat
	calls   int
}

func (f *fakeAuthors) TopAuthors(dbc dbctx.Context, chatID int64, limit int) ([]repos.AuthorStat, error) {
	f.calls++
	return f.authors, nil
}

func newTestResolver(authors []repos.AuthorStat) (*Resolver, *fakeAuthors) {
	fake := &fakeAuthors{authors: authors}
	r := NewResolver(fake, nil, logger.NewNop())
	return r, fake
}

func TestResolveExactMatch(t *testing.T) {
	r, _ := newTestResolver([]repos.AuthorStat{
		{DisplayName: "Иван Петров", Username: "ivan_petrov", MessageCount: 500},
		{DisplayName: "Маша", Username: "masha88", MessageCount: 300},
	})
	dbc := dbctx.New(context.Background())

	cases := []struct {
		nick string
		want string
	}{
		{"Маша", "Маша"},
		{"маша", "Маша"},
		{"@ivan_petrov", "Иван Петров"},
		{"IVAN_PETROV", "Иван Петров"},
	}
	for _, c := range cases {
		res, err := r.Resolve(dbc, 1, c.nick)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", c.nick, err)
		}
		if res.ResolvedName != c.want {
			t.Fatalf("Resolve(%q): want=%q got=%q", c.nick, c.want, res.ResolvedName)
		}
		if res.Confidence != 1.0 {
			t.Fatalf("Resolve(%q): confidence want=1.0 got=%v", c.nick, res.Confidence)
		}
	}
}

func TestResolveUsernameOnlyAuthor(t *testing.T) {
	r, _ := newTestResolver([]repos.AuthorStat{
		{DisplayName: "", Username: "ghost", MessageCount: 10},
	})
	res, err := r.Resolve(dbctx.New(context.Background()), 1, "ghost")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ResolvedName != "ghost" {
		t.Fatalf("want username as resolved name, got=%q", res.ResolvedName)
	}
}

func TestResolveEmptyNickname(t *testing.T) {
	r, _ := newTestResolver(nil)
	if _, err := r.Resolve(dbctx.New(context.Background()), 1, "  @ "); err == nil {
		t.Fatalf("want error for empty nickname")
	}
}

func TestAuthorCacheExpiry(t *testing.T) {
	r, fake := newTestResolver([]repos.AuthorStat{
		{DisplayName: "Вера", Username: "vera", MessageCount: 100},
	})
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }
	dbc := dbctx.New(context.Background())

	for i := 0; i < 3; i++ {
		if _, err := r.Resolve(dbc, 1, "Вера"); err != nil {
			t.Fatalf("resolve %d: %v", i, err)
		}
	}
	if fake.calls != 1 {
		t.Fatalf("author list must be cached: want=1 call got=%d", fake.calls)
	}

	now = now.Add(cacheTTL + time.Minute)
	if _, err := r.Resolve(dbc, 1, "Вера"); err != nil {
		t.Fatalf("resolve after expiry: %v", err)
	}
	if fake.calls != 2 {
		t.Fatalf("expired cache must refetch: want=2 calls got=%d", fake.calls)
	}

	// Another chat gets its own entry.
	if _, err := r.Resolve(dbc, 2, "Вера"); err != nil {
		t.Fatalf("resolve other chat: %v", err)
	}
	if fake.calls != 3 {
		t.Fatalf("cache must be per chat: want=3 calls got=%d", fake.calls)
	}
}
