package ingest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"

	"github.com/yungbote/chatlore-backend/internal/clients/embedding"
	"github.com/yungbote/chatlore-backend/internal/pkg/dbctx"
	"github.com/yungbote/chatlore-backend/internal/pkg/logger"
	"github.com/yungbote/chatlore-backend/internal/repos"
	"github.com/yungbote/chatlore-backend/internal/types"
)

const (
	// Batch grouping bounds: consecutive messages from one author inside
	// this span collapse into a single embedding row.
	groupSpan    = 5 * time.Minute
	groupMaxSize = 10
)

// Store writes messages and their utterance embeddings.
type Store struct {
	embedder   embedding.Client
	messages   repos.MessageRepo
	embeddings repos.MessageEmbeddingRepo
	log        *logger.Logger
}

func NewStore(embedder embedding.Client, messages repos.MessageRepo, embeddings repos.MessageEmbeddingRepo, baseLog *logger.Logger) *Store {
	return &Store{
		embedder:   embedder,
		messages:   messages,
		embeddings: embeddings,
		log:        baseLog.With("service", "EmbeddingStore"),
	}
}

// StoreMessage embeds and upserts a single message.
func (s *Store) StoreMessage(dbc dbctx.Context, msg *types.Message) error {
	return s.StoreBatch(dbc, []*types.Message{msg})
}

// StoreBatch groups consecutive same-author messages and writes one
// embedding row per group, keyed by the group's first message id.
func (s *Store) StoreBatch(dbc dbctx.Context, msgs []*types.Message) error {
	groups := GroupMessages(msgs)
	if len(groups) == 0 {
		return nil
	}

	texts := make([]string, len(groups))
	for i, g := range groups {
		texts[i] = g.PassageText()
	}
	vecs, err := s.embedder.EmbedBatch(dbc.Ctx, texts, embedding.TaskPassage, false)
	if err != nil {
		return fmt.Errorf("embed batch: %w", err)
	}

	rows := make([]*types.MessageEmbedding, 0, len(groups))
	for i, g := range groups {
		meta, err := g.metadata()
		if err != nil {
			return fmt.Errorf("group metadata: %w", err)
		}
		rows = append(rows, &types.MessageEmbedding{
			ChatID:    g.Messages[0].ChatID,
			MessageID: g.Messages[0].ID,
			ChunkText: texts[i],
			Embedding: pgvector.NewVector(vecs[i]),
			Metadata:  meta,
		})
	}
	return s.embeddings.UpsertBatch(dbc, rows)
}

// Group is a run of consecutive same-author messages embedded as one row.
type Group struct {
	Messages []*types.Message
}

// GroupMessages splits a chronological slice into embedding groups: same
// author, at most groupSpan from first to last, at most groupMaxSize long.
// Messages without text are skipped.
func GroupMessages(msgs []*types.Message) []Group {
	var groups []Group
	var current []*types.Message

	flush := func() {
		if len(current) > 0 {
			groups = append(groups, Group{Messages: current})
			current = nil
		}
	}
	for _, m := range msgs {
		if m == nil || m.BodyText() == "" {
			continue
		}
		if len(current) > 0 {
			first := current[0]
			if m.FromUserID != first.FromUserID ||
				m.DateUTC.Sub(first.DateUTC) > groupSpan ||
				len(current) >= groupMaxSize {
				flush()
			}
		}
		current = append(current, m)
	}
	flush()
	return groups
}

// PassageText renders the group as "{author}: body\nbody\n…".
func (g Group) PassageText() string {
	first := g.Messages[0]
	text := first.AuthorLabel() + ": " + first.BodyText()
	for _, m := range g.Messages[1:] {
		text += "\n" + m.BodyText()
	}
	return text
}

func (g Group) metadata() (datatypes.JSON, error) {
	first := g.Messages[0]
	last := g.Messages[len(g.Messages)-1]

	meta := map[string]any{
		types.MetaFromUserID: first.FromUserID,
		types.MetaDateUTC:    first.DateUTC.UTC().Format(time.RFC3339),
	}
	if first.Username != nil {
		meta[types.MetaUsername] = *first.Username
	}
	if first.DisplayName != nil {
		meta[types.MetaDisplayName] = *first.DisplayName
	}
	if len(g.Messages) > 1 {
		ids := make([]int64, len(g.Messages))
		for i, m := range g.Messages {
			ids[i] = m.ID
		}
		meta[types.MetaStartDate] = first.DateUTC.UTC().Format(time.RFC3339)
		meta[types.MetaEndDate] = last.DateUTC.UTC().Format(time.RFC3339)
		meta[types.MetaMessageCount] = len(g.Messages)
		meta[types.MetaMessageIDs] = ids
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
