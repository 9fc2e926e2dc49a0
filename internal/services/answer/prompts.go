package answer

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/chatlore-backend/internal/pkg/logger"
	"github.com/yungbote/chatlore-backend/internal/utils"
)

// Prompt kinds. Each maps to one system prompt in the store.
const (
	KindAsk      = "ask"
	KindSmart    = "smart"
	KindGeneral  = "general"
	KindTruth    = "truth"
	KindNotFound = "not_found"
)

var defaultPrompts = map[string]string{
	KindAsk: `Ты — помощник группового чата. Отвечай на вопрос, опираясь ТОЛЬКО на
приведённые сообщения из истории чата. Если в них нет ответа, так и скажи.
Отвечай кратко, на языке вопроса. Можно использовать простой HTML (<b>, <i>).`,
	KindSmart: `Ты — помощник группового чата. Используй приведённые сообщения из
истории чата как основной источник, но можешь дополнять их общими знаниями,
явно отделяя одно от другого. Отвечай на языке вопроса.`,
	KindGeneral: `Ты — помощник группового чата. В истории чата ничего не нашлось,
поэтому отвечай из общих знаний и прямо скажи, что в чате об этом не говорили.`,
	KindTruth: `Ты — ироничный летописец группового чата. По последним сообщениям
составь короткую шуточную «правду» о том, что происходит в чате. Без злобы,
без выдуманных фактов, на русском.`,
	KindNotFound: `К сожалению, в истории чата не нашлось ничего подходящего по
этому вопросу.`,
}

// PromptStore serves per-kind system prompts from an optional yaml file,
// falling back to the compiled-in defaults. Reload swaps the whole map.
type PromptStore struct {
	log  *logger.Logger
	path string

	mu      sync.RWMutex
	prompts map[string]string
}

func NewPromptStore(log *logger.Logger) *PromptStore {
	s := &PromptStore{
		log:  log.With("service", "PromptStore"),
		path: utils.GetEnv("PROMPTS_PATH", "", log),
	}
	if err := s.Reload(); err != nil {
		s.log.Warn("prompt file load failed, using defaults", "path", s.path, "error", err)
	}
	return s
}

// Reload re-reads the prompt file. Unknown kinds are kept verbatim so new
// prompts can ship without a binary change; missing kinds fall back to
// defaults at read time.
func (s *PromptStore) Reload() error {
	if s.path == "" {
		return nil
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read prompts: %w", err)
	}
	var loaded map[string]string
	if err := yaml.Unmarshal(raw, &loaded); err != nil {
		return fmt.Errorf("parse prompts: %w", err)
	}
	s.mu.Lock()
	s.prompts = loaded
	s.mu.Unlock()
	s.log.Info("prompts loaded", "path", s.path, "kinds", len(loaded))
	return nil
}

// Get returns the prompt for a kind, preferring the file over defaults.
func (s *PromptStore) Get(kind string) string {
	s.mu.RLock()
	p, ok := s.prompts[kind]
	s.mu.RUnlock()
	if ok && p != "" {
		return p
	}
	return defaultPrompts[kind]
}
