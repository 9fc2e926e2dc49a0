package http

import (
	"strconv"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yungbote/chatlore-backend/internal/pkg/dbctx"
	"github.com/yungbote/chatlore-backend/internal/pkg/logger"
	"github.com/yungbote/chatlore-backend/internal/repos"
	"github.com/yungbote/chatlore-backend/internal/services/ingest"
)

// Server exposes the operational endpoints: health, per-chat ingestion
// stats and queue depths. It is not a user-facing API; questions arrive
// through chat commands, never HTTP.
type Server struct {
	Engine *gin.Engine
	log    *logger.Logger
}

type Config struct {
	Ingest     *ingest.Service
	AskQueue   repos.AskQueueRepo
	TruthQueue repos.TruthQueueRepo
	Log        *logger.Logger
}

func NewServer(cfg Config) *Server {
	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{"http://localhost:3000", "http://127.0.0.1:3000"},
		AllowMethods: []string{"GET", "OPTIONS"},
		AllowHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1")
	{
		v1.GET("/stats/:chat_id", func(c *gin.Context) {
			chatID, err := strconv.ParseInt(c.Param("chat_id"), 10, 64)
			if err != nil {
				c.JSON(400, gin.H{"error": "invalid chat_id"})
				return
			}
			stats, err := cfg.Ingest.Stats(dbctx.New(c.Request.Context()), chatID)
			if err != nil {
				cfg.Log.Error("stats query failed", "chat_id", chatID, "error", err)
				c.JSON(500, gin.H{"error": "stats unavailable"})
				return
			}
			c.JSON(200, stats)
		})

		v1.GET("/queue/depth", func(c *gin.Context) {
			dbc := dbctx.New(c.Request.Context())
			askDepth, err := cfg.AskQueue.Depth(dbc)
			if err != nil {
				cfg.Log.Error("ask queue depth failed", "error", err)
				c.JSON(500, gin.H{"error": "queue unavailable"})
				return
			}
			truthDepth, err := cfg.TruthQueue.Depth(dbc)
			if err != nil {
				cfg.Log.Error("truth queue depth failed", "error", err)
				c.JSON(500, gin.H{"error": "queue unavailable"})
				return
			}
			c.JSON(200, gin.H{"ask": askDepth, "truth": truthDepth})
		})
	}

	return &Server{Engine: r, log: cfg.Log}
}

func (s *Server) Run(address string) error {
	return s.Engine.Run(address)
}
