package dialogs

import (
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/yungbote/chatlore-backend/internal/clients/embedding"
	"github.com/yungbote/chatlore-backend/internal/pkg/dbctx"
	"github.com/yungbote/chatlore-backend/internal/pkg/logger"
	"github.com/yungbote/chatlore-backend/internal/repos"
	"github.com/yungbote/chatlore-backend/internal/types"
)

// embedBatchSize keeps provider payloads bounded; late chunking still sees
// a whole batch of related windows at once.
const embedBatchSize = 32

// Indexer builds sliding-window context embeddings over a chat's history.
type Indexer struct {
	embedder embedding.Client
	contexts repos.ContextEmbeddingRepo
	messages repos.MessageRepo
	log      *logger.Logger
}

func NewIndexer(embedder embedding.Client, contexts repos.ContextEmbeddingRepo, messages repos.MessageRepo, baseLog *logger.Logger) *Indexer {
	return &Indexer{
		embedder: embedder,
		contexts: contexts,
		messages: messages,
		log:      baseLog.With("service", "DialogIndexer"),
	}
}

// IndexChat segments up to limit recent messages into dialogs, slices each
// into windows and upserts one context embedding per window. Returns the
// number of windows written.
func (x *Indexer) IndexChat(dbc dbctx.Context, chatID int64, limit int) (int, error) {
	if limit <= 0 {
		limit = 500
	}
	msgs, err := x.messages.ListRecent(dbc, chatID, limit)
	if err != nil {
		return 0, fmt.Errorf("load messages: %w", err)
	}

	var windows []Window
	for _, d := range Segment(msgs) {
		windows = append(windows, d.Windows()...)
	}
	if len(windows) == 0 {
		return 0, nil
	}

	written := 0
	for start := 0; start < len(windows); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(windows) {
			end = len(windows)
		}
		n, err := x.indexBatch(dbc, chatID, windows[start:end])
		if err != nil {
			return written, err
		}
		written += n
	}
	x.log.Info("indexed dialog windows", "chat_id", chatID, "windows", written)
	return written, nil
}

func (x *Indexer) indexBatch(dbc dbctx.Context, chatID int64, batch []Window) (int, error) {
	texts := make([]string, len(batch))
	for i, w := range batch {
		texts[i] = w.Text()
	}
	vecs, err := x.embedder.EmbedBatch(dbc.Ctx, texts, embedding.TaskPassage, x.embedder.SupportsLateChunking())
	if err != nil {
		return 0, fmt.Errorf("embed windows: %w", err)
	}

	rows := make([]*types.ContextEmbedding, 0, len(batch))
	for i, w := range batch {
		ids := make(types.Int64Array, len(w.Messages))
		for j, m := range w.Messages {
			ids[j] = m.ID
		}
		rows = append(rows, &types.ContextEmbedding{
			ChatID:          chatID,
			CenterMessageID: w.Center().ID,
			WindowStartID:   w.Start().ID,
			WindowEndID:     w.End().ID,
			MessageIDs:      ids,
			ContextText:     texts[i],
			Embedding:       pgvector.NewVector(vecs[i]),
			WindowSize:      int32(len(w.Messages)),
		})
	}
	if err := x.contexts.UpsertBatch(dbc, rows); err != nil {
		return 0, fmt.Errorf("upsert windows: %w", err)
	}
	return len(rows), nil
}
