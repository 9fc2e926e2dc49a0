package llm

import (
	"context"
	"strings"

	"github.com/yungbote/chatlore-backend/internal/pkg/httpx"
	"github.com/yungbote/chatlore-backend/internal/pkg/logger"
	"github.com/yungbote/chatlore-backend/internal/utils"
)

// Router fans a completion over an ordered list of endpoints, preferring a
// tagged endpoint when asked, and falling through on retryable failures.
type Router struct {
	log     *logger.Logger
	clients []Client
}

func NewRouter(log *logger.Logger, clients ...Client) *Router {
	return &Router{log: log.With("service", "LlmRouter"), clients: clients}
}

// NewRouterFromEnv builds primary + optional fallback endpoints.
// LLM_FALLBACK_* mirrors LLM_*.
func NewRouterFromEnv(log *logger.Logger) (*Router, error) {
	primary, err := NewClientFromEnv(log)
	if err != nil {
		return nil, err
	}
	clients := []Client{primary}

	if utils.GetEnv("LLM_FALLBACK_BASE_URL", "", log) != "" {
		fallback, err := NewClient(log, Endpoint{
			Tag:     utils.GetEnv("LLM_FALLBACK_TAG", "fallback", log),
			BaseURL: utils.GetEnv("LLM_FALLBACK_BASE_URL", "", log),
			APIKey:  utils.GetEnv("LLM_FALLBACK_API_KEY", "", log),
			Model:   utils.GetEnv("LLM_FALLBACK_MODEL", "", log),
		})
		if err != nil {
			return nil, err
		}
		clients = append(clients, fallback)
	}
	return NewRouter(log, clients...), nil
}

func (r *Router) Complete(ctx context.Context, system, user string, temperature float64) (Completion, error) {
	return r.CompleteWithFallback(ctx, system, user, temperature, "")
}

func (r *Router) CompleteWithFallback(ctx context.Context, system, user string, temperature float64, preferredTag string) (Completion, error) {
	ordered := r.ordered(preferredTag)
	var lastErr error
	for _, c := range ordered {
		completion, err := c.Complete(ctx, system, user, temperature)
		if err == nil {
			return completion, nil
		}
		lastErr = err
		if IsQuotaExhausted(err) || !httpx.IsRetryableError(err) {
			// A hard rejection from one endpoint still lets the next try,
			// but we log it distinctly.
			r.log.Warn("llm endpoint rejected request", "tag", c.Tag(), "error", err)
			continue
		}
		r.log.Warn("llm endpoint failed, trying next", "tag", c.Tag(), "error", err)
	}
	if lastErr == nil {
		lastErr = opErr("complete_with_fallback", OperationErrorAllFailed, "no endpoints configured", nil)
	}
	return Completion{}, lastErr
}

func (r *Router) ordered(preferredTag string) []Client {
	if strings.TrimSpace(preferredTag) == "" {
		return r.clients
	}
	ordered := make([]Client, 0, len(r.clients))
	for _, c := range r.clients {
		if c.Tag() == preferredTag {
			ordered = append(ordered, c)
		}
	}
	for _, c := range r.clients {
		if c.Tag() != preferredTag {
			ordered = append(ordered, c)
		}
	}
	return ordered
}
