package app

import (
	"fmt"

	"github.com/yungbote/chatlore-backend/internal/clients/embedding"
	"github.com/yungbote/chatlore-backend/internal/clients/llm"
	"github.com/yungbote/chatlore-backend/internal/clients/reranker"
	"github.com/yungbote/chatlore-backend/internal/clients/telegram"
	"github.com/yungbote/chatlore-backend/internal/pkg/logger"
)

type Clients struct {
	Embedder embedding.Client
	LLM      *llm.Router
	Reranker reranker.Client // nil when not configured
	Telegram telegram.Sender
}

func wireClients(log *logger.Logger) (Clients, error) {
	log.Info("Wiring clients...")

	embCfg, err := embedding.ResolveConfigFromEnv()
	if err != nil {
		return Clients{}, fmt.Errorf("embedding config: %w", err)
	}
	embedder, err := embedding.NewClient(log, embCfg)
	if err != nil {
		return Clients{}, fmt.Errorf("embedding client: %w", err)
	}

	router, err := llm.NewRouterFromEnv(log)
	if err != nil {
		return Clients{}, fmt.Errorf("llm router: %w", err)
	}

	rr, err := reranker.NewClientFromEnv(log)
	if err != nil {
		return Clients{}, fmt.Errorf("reranker client: %w", err)
	}
	if rr == nil {
		log.Info("reranker not configured, fusion will keep RRF order")
	}

	sender, err := telegram.NewClientFromEnv(log)
	if err != nil {
		return Clients{}, fmt.Errorf("telegram client: %w", err)
	}

	return Clients{Embedder: embedder, LLM: router, Reranker: rr, Telegram: sender}, nil
}
