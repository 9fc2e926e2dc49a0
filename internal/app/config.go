package app

import (
	"github.com/yungbote/chatlore-backend/internal/pkg/logger"
	"github.com/yungbote/chatlore-backend/internal/utils"
)

type Config struct {
	HTTPAddr string
	// NotifyBackend selects the worker wake bus: "postgres" (LISTEN/NOTIFY),
	// "redis" (pub/sub, survives connection pooling) or "poll".
	NotifyBackend string
	Environment   string
	Version       string
}

func LoadConfig(log *logger.Logger) Config {
	return Config{
		HTTPAddr:      ":" + utils.GetEnv("PORT", "8080", log),
		NotifyBackend: utils.GetEnv("NOTIFY_BACKEND", "postgres", log),
		Environment:   utils.GetEnv("ENVIRONMENT", "development", log),
		Version:       utils.GetEnv("VERSION", "dev", log),
	}
}
