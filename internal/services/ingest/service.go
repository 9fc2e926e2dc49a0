package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/yungbote/chatlore-backend/internal/clients/embedding"
	"github.com/yungbote/chatlore-backend/internal/pkg/dbctx"
	"github.com/yungbote/chatlore-backend/internal/pkg/logger"
	"github.com/yungbote/chatlore-backend/internal/repos"
	"github.com/yungbote/chatlore-backend/internal/services/dialogs"
	"github.com/yungbote/chatlore-backend/internal/types"
)

const (
	flushSize     = 16
	flushInterval = 5 * time.Second

	// Window rebuild cadence per chat.
	rebuildEvery    = 50
	rebuildInterval = 30 * time.Minute
	rebuildDepth    = 500
)

// ChatStats is the per-chat report served by the ops endpoint.
type ChatStats struct {
	Messages       int64                   `json:"messages"`
	Embeddings     repos.EmbeddingStats    `json:"embeddings"`
	ContextWindows int64                   `json:"context_windows"`
	EmbedderUsage  embedding.UsageSnapshot `json:"embedder_usage"`
}

// Service is the ingestion front door: it persists incoming messages,
// batches them into utterance embeddings and periodically rebuilds the
// sliding-window index.
type Service struct {
	store      *Store
	indexer    *dialogs.Indexer
	embedder   embedding.Client
	messages   repos.MessageRepo
	embeddings repos.MessageEmbeddingRepo
	contexts   repos.ContextEmbeddingRepo
	log        *logger.Logger

	mu           sync.Mutex
	buffer       []*types.Message
	sinceRebuild map[int64]int
	lastRebuild  map[int64]time.Time
	now          func() time.Time
}

func NewService(store *Store, indexer *dialogs.Indexer, embedder embedding.Client, messages repos.MessageRepo, embeddings repos.MessageEmbeddingRepo, contexts repos.ContextEmbeddingRepo, baseLog *logger.Logger) *Service {
	return &Service{
		store:        store,
		indexer:      indexer,
		embedder:     embedder,
		messages:     messages,
		embeddings:   embeddings,
		contexts:     contexts,
		log:          baseLog.With("service", "IngestService"),
		sinceRebuild: map[int64]int{},
		lastRebuild:  map[int64]time.Time{},
		now:          time.Now,
	}
}

// HandleIncoming stores the message row immediately and defers embedding to
// the batch flusher. Messages without text are stored but never embedded.
func (s *Service) HandleIncoming(dbc dbctx.Context, msg *types.Message) error {
	if msg == nil {
		return nil
	}
	if err := s.messages.CreateOrIgnore(dbc, []*types.Message{msg}); err != nil {
		return err
	}
	if msg.BodyText() == "" {
		return nil
	}

	s.mu.Lock()
	s.buffer = append(s.buffer, msg)
	s.sinceRebuild[msg.ChatID]++
	full := len(s.buffer) >= flushSize
	s.mu.Unlock()

	if full {
		s.Flush(dbc)
	}
	return nil
}

// Flush embeds everything buffered so far. Safe to call concurrently.
func (s *Service) Flush(dbc dbctx.Context) {
	s.mu.Lock()
	batch := s.buffer
	s.buffer = nil
	s.mu.Unlock()
	if len(batch) == 0 {
		return
	}
	if err := s.store.StoreBatch(dbc, batch); err != nil {
		s.log.Error("batch embedding failed", "count", len(batch), "error", err)
		// Requeue so the next flush retries; messages are already stored.
		s.mu.Lock()
		s.buffer = append(batch, s.buffer...)
		s.mu.Unlock()
	}
}

// Run drives the periodic flusher and the window-rebuild scheduler until
// the context is cancelled.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.Flush(dbctx.New(context.Background()))
			return
		case <-ticker.C:
			dbc := dbctx.New(ctx)
			s.Flush(dbc)
			s.rebuildDueChats(dbc)
		}
	}
}

func (s *Service) rebuildDueChats(dbc dbctx.Context) {
	s.mu.Lock()
	var due []int64
	now := s.now()
	for chatID, n := range s.sinceRebuild {
		last, seen := s.lastRebuild[chatID]
		if n >= rebuildEvery || (n > 0 && (!seen || now.Sub(last) >= rebuildInterval)) {
			due = append(due, chatID)
			s.sinceRebuild[chatID] = 0
			s.lastRebuild[chatID] = now
		}
	}
	s.mu.Unlock()

	for _, chatID := range due {
		if _, err := s.indexer.IndexChat(dbc, chatID, rebuildDepth); err != nil {
			s.log.Error("window rebuild failed", "chat_id", chatID, "error", err)
		}
	}
}

// Rename rewrites an author's name in both raw messages and embeddings,
// returning the total number of rows touched.
func (s *Service) Rename(dbc dbctx.Context, chatID *int64, oldName, newName string) (int64, error) {
	msgRows, err := s.messages.UpdateDisplayName(dbc, chatID, oldName, newName)
	if err != nil {
		return 0, err
	}
	embRows, err := s.embeddings.Rename(dbc, chatID, oldName, newName)
	if err != nil {
		return msgRows, err
	}
	return msgRows + embRows, nil
}

func (s *Service) Stats(dbc dbctx.Context, chatID int64) (ChatStats, error) {
	var out ChatStats
	var err error
	if out.Messages, err = s.messages.CountForChat(dbc, chatID); err != nil {
		return out, err
	}
	if out.Embeddings, err = s.embeddings.Stats(dbc, chatID); err != nil {
		return out, err
	}
	if out.ContextWindows, err = s.contexts.CountForChat(dbc, chatID); err != nil {
		return out, err
	}
	out.EmbedderUsage = s.embedder.Usage()
	return out, nil
}

func (s *Service) DeleteChat(dbc dbctx.Context, chatID int64) (int64, error) {
	embRows, err := s.embeddings.DeleteChat(dbc, chatID)
	if err != nil {
		return 0, err
	}
	ctxRows, err := s.contexts.DeleteChat(dbc, chatID)
	if err != nil {
		return embRows, err
	}
	return embRows + ctxRows, nil
}

func (s *Service) DeleteAll(dbc dbctx.Context) (int64, error) {
	embRows, err := s.embeddings.DeleteAll(dbc)
	if err != nil {
		return 0, err
	}
	ctxRows, err := s.contexts.DeleteAll(dbc)
	if err != nil {
		return embRows, err
	}
	return embRows + ctxRows, nil
}
