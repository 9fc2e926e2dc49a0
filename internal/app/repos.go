package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/chatlore-backend/internal/pkg/logger"
	"github.com/yungbote/chatlore-backend/internal/repos"
)

type Repos struct {
	Message          repos.MessageRepo
	MessageEmbedding repos.MessageEmbeddingRepo
	ContextEmbedding repos.ContextEmbeddingRepo
	AskQueue         repos.AskQueueRepo
	TruthQueue       repos.TruthQueueRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Message:          repos.NewMessageRepo(db, log),
		MessageEmbedding: repos.NewMessageEmbeddingRepo(db, log),
		ContextEmbedding: repos.NewContextEmbeddingRepo(db, log),
		AskQueue:         repos.NewAskQueueRepo(db, log),
		TruthQueue:       repos.NewTruthQueueRepo(db, log),
	}
}
