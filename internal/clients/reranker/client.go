package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/chatlore-backend/internal/pkg/logger"
	"github.com/yungbote/chatlore-backend/internal/utils"
)

const maxErrorBodyBytes = 1024

// Score is one reranked document: its index into the input slice and a
// 0..1 relevance score.
type Score struct {
	Index int     `json:"index"`
	Score float64 `json:"relevance_score"`
}

// Client is a cross-encoder reranking service (jina/cohere-style /rerank).
type Client interface {
	Rerank(ctx context.Context, query string, documents []string, topN int) ([]Score, error)
}

type client struct {
	log     *logger.Logger
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
}

// NewClientFromEnv returns (nil, nil) when RERANKER_BASE_URL is unset: the
// reranker is an optional stage.
func NewClientFromEnv(log *logger.Logger) (Client, error) {
	baseURL := utils.GetEnv("RERANKER_BASE_URL", "", log)
	if baseURL == "" {
		return nil, nil
	}
	model := utils.GetEnv("RERANKER_MODEL", "", log)
	if model == "" {
		return nil, fmt.Errorf("RERANKER_MODEL is required when RERANKER_BASE_URL is set")
	}
	return &client{
		log:     log.With("service", "RerankerClient", "model", model),
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  utils.GetEnv("RERANKER_API_KEY", "", log),
		model:   model,
		http:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (c *client) Rerank(ctx context.Context, query string, documents []string, topN int) ([]Score, error) {
	if len(documents) == 0 {
		return nil, nil
	}
	if topN <= 0 || topN > len(documents) {
		topN = len(documents)
	}
	body, err := json.Marshal(map[string]any{
		"model":     c.model,
		"query":     query,
		"documents": documents,
		"top_n":     topN,
	})
	if err != nil {
		return nil, fmt.Errorf("rerank encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank transport: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, fmt.Errorf("rerank failed (status=%d): %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var envelope struct {
		Results []Score `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("rerank decode: %w", err)
	}
	for _, r := range envelope.Results {
		if r.Index < 0 || r.Index >= len(documents) {
			return nil, fmt.Errorf("rerank returned index %d out of range", r.Index)
		}
	}
	return envelope.Results, nil
}
