package ingest

import (
	"context"
	"testing"

	"github.com/yungbote/chatlore-backend/internal/pkg/dbctx"
	"github.com/yungbote/chatlore-backend/internal/pkg/logger"
	"github.com/yungbote/chatlore-backend/internal/repos"
)

type fakeEmbRepo struct {
	repos.MessageEmbeddingRepo
	deleteAllCalls  int
	deleteChatCalls int
}

func (f *fakeEmbRepo) DeleteAll(dbc dbctx.Context) (int64, error) {
	f.deleteAllCalls++
	return 7, nil
}

func (f *fakeEmbRepo) DeleteChat(dbc dbctx.Context, chatID int64) (int64, error) {
	f.deleteChatCalls++
	return 5, nil
}

type fakeCtxRepo struct {
	repos.ContextEmbeddingRepo
	deleteAllCalls  int
	deleteChatCalls int
}

func (f *fakeCtxRepo) DeleteAll(dbc dbctx.Context) (int64, error) {
	f.deleteAllCalls++
	return 3, nil
}

func (f *fakeCtxRepo) DeleteChat(dbc dbctx.Context, chatID int64) (int64, error) {
	f.deleteChatCalls++
	return 2, nil
}

func TestDeleteAllClearsBothProjections(t *testing.T) {
	emb := &fakeEmbRepo{}
	ctxs := &fakeCtxRepo{}
	s := NewService(nil, nil, nil, nil, emb, ctxs, logger.NewNop())

	n, err := s.DeleteAll(dbctx.New(context.Background()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 10 {
		t.Fatalf("rows: want=10 got=%d", n)
	}
	if emb.deleteAllCalls != 1 || ctxs.deleteAllCalls != 1 {
		t.Fatalf("both stores must be cleared: emb=%d ctx=%d", emb.deleteAllCalls, ctxs.deleteAllCalls)
	}
}

func TestDeleteChatClearsBothProjections(t *testing.T) {
	emb := &fakeEmbRepo{}
	ctxs := &fakeCtxRepo{}
	s := NewService(nil, nil, nil, nil, emb, ctxs, logger.NewNop())

	n, err := s.DeleteChat(dbctx.New(context.Background()), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 7 {
		t.Fatalf("rows: want=7 got=%d", n)
	}
	if emb.deleteChatCalls != 1 || ctxs.deleteChatCalls != 1 {
		t.Fatalf("both stores must be cleared: emb=%d ctx=%d", emb.deleteChatCalls, ctxs.deleteChatCalls)
	}
}
