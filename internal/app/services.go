package app

import (
	"fmt"
	"strings"

	"github.com/yungbote/chatlore-backend/internal/jobs/askworker"
	"github.com/yungbote/chatlore-backend/internal/jobs/truthworker"
	"github.com/yungbote/chatlore-backend/internal/notify"
	"github.com/yungbote/chatlore-backend/internal/pkg/logger"
	"github.com/yungbote/chatlore-backend/internal/repos"
	"github.com/yungbote/chatlore-backend/internal/services/answer"
	"github.com/yungbote/chatlore-backend/internal/services/classify"
	"github.com/yungbote/chatlore-backend/internal/services/contextwindow"
	"github.com/yungbote/chatlore-backend/internal/services/dialogs"
	"github.com/yungbote/chatlore-backend/internal/services/fusion"
	"github.com/yungbote/chatlore-backend/internal/services/ingest"
	"github.com/yungbote/chatlore-backend/internal/services/memory"
	"github.com/yungbote/chatlore-backend/internal/services/nicknames"
	"github.com/yungbote/chatlore-backend/internal/services/personal"
	"github.com/yungbote/chatlore-backend/internal/services/retrieval"
)

type Services struct {
	Retriever  retrieval.Retriever
	Fusion     *fusion.Orchestrator
	Expander   *contextwindow.Expander
	Indexer    *dialogs.Indexer
	Ingest     *ingest.Service
	Classifier *classify.Classifier
	Resolver   *nicknames.Resolver
	Personal   *personal.Service
	Prompts    *answer.PromptStore
	Generator  *answer.Generator
	Memory     memory.Service

	AskWorker   *askworker.Worker
	TruthWorker *truthworker.Worker

	askWaiter   notify.Waiter
	truthWaiter notify.Waiter
}

func wireServices(cfg Config, dsn string, log *logger.Logger, r Repos, c Clients) (Services, error) {
	log.Info("Wiring services...")

	retriever := retrieval.NewRetriever(r.MessageEmbedding, r.ContextEmbedding, r.Message, log)
	orchestrator := fusion.NewOrchestrator(c.Embedder, retriever, c.Reranker, log)
	expander := contextwindow.NewExpander(r.Message, log)
	indexer := dialogs.NewIndexer(c.Embedder, r.ContextEmbedding, r.Message, log)
	store := ingest.NewStore(c.Embedder, r.Message, r.MessageEmbedding, log)
	ingestSvc := ingest.NewService(store, indexer, c.Embedder, r.Message, r.MessageEmbedding, r.ContextEmbedding, log)
	classifier := classify.NewClassifier(c.LLM, log)
	resolver := nicknames.NewResolver(r.Message, c.LLM, log)
	personalSvc := personal.NewService(c.Embedder, retriever, r.Message, r.MessageEmbedding, log)
	prompts := answer.NewPromptStore(log)
	generator := answer.NewGenerator(c.LLM, prompts, log)
	mem := memory.NewLogged(memory.NewNoop(), log)

	askWaiter, err := newWaiter(cfg, dsn, repos.AskNotifyChannel, log)
	if err != nil {
		return Services{}, err
	}
	truthWaiter, err := newWaiter(cfg, dsn, repos.TruthNotifyChannel, log)
	if err != nil {
		return Services{}, err
	}

	processor := askworker.NewProcessor(
		r.AskQueue, classifier, orchestrator, personalSvc, resolver,
		mem, expander, generator, prompts, c.Telegram, askworker.NoopObserver{}, log,
	)
	askWorker := askworker.NewWorker(r.AskQueue, askWaiter, processor, log)
	truthWorker := truthworker.NewWorker(r.TruthQueue, truthWaiter, r.Message, generator, c.Telegram, log)

	return Services{
		Retriever:   retriever,
		Fusion:      orchestrator,
		Expander:    expander,
		Indexer:     indexer,
		Ingest:      ingestSvc,
		Classifier:  classifier,
		Resolver:    resolver,
		Personal:    personalSvc,
		Prompts:     prompts,
		Generator:   generator,
		Memory:      mem,
		AskWorker:   askWorker,
		TruthWorker: truthWorker,
		askWaiter:   askWaiter,
		truthWaiter: truthWaiter,
	}, nil
}

func newWaiter(cfg Config, dsn, channel string, log *logger.Logger) (notify.Waiter, error) {
	switch strings.ToLower(cfg.NotifyBackend) {
	case "postgres", "":
		return notify.NewPGListener(log, dsn, channel), nil
	case "redis":
		return notify.NewRedisWakeBus(log, channel)
	case "poll":
		return notify.SleepWaiter{}, nil
	default:
		return nil, fmt.Errorf("unknown NOTIFY_BACKEND %q", cfg.NotifyBackend)
	}
}

func (s *Services) closeWaiters() {
	if s.askWaiter != nil {
		_ = s.askWaiter.Close()
	}
	if s.truthWaiter != nil {
		_ = s.truthWaiter.Close()
	}
}
