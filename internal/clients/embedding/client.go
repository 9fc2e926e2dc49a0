package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/chatlore-backend/internal/pkg/httpx"
	"github.com/yungbote/chatlore-backend/internal/pkg/logger"
)

// Task selects the embedding instruction: queries and passages are embedded
// asymmetrically by retrieval-tuned models.
type Task string

const (
	TaskQuery   Task = "query"
	TaskPassage Task = "passage"
)

const maxErrorBodyBytes = 1024

// Client produces dense vectors through an external embedding service.
type Client interface {
	Embed(ctx context.Context, text string, task Task) ([]float32, error)
	// EmbedBatch embeds texts in one call. lateChunking asks the provider
	// to compute each embedding with awareness of the whole batch; it is
	// ignored by providers that do not support it.
	EmbedBatch(ctx context.Context, texts []string, task Task, lateChunking bool) ([][]float32, error)
	VectorDim() int
	SupportsLateChunking() bool
	Usage() UsageSnapshot
}

type client struct {
	log   *logger.Logger
	cfg   Config
	http  *http.Client
	usage *usageCounter
}

func NewClient(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return &client{
		log:   log.With("service", "EmbeddingClient", "provider", string(cfg.Provider)),
		cfg:   cfg,
		http:  &http.Client{Timeout: 60 * time.Second},
		usage: newUsageCounter(),
	}, nil
}

func (c *client) VectorDim() int { return c.cfg.VectorDim }

func (c *client) SupportsLateChunking() bool { return c.cfg.Provider == ProviderJina }

func (c *client) Usage() UsageSnapshot { return c.usage.snapshot() }

func (c *client) Embed(ctx context.Context, text string, task Task) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text}, task, false)
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, opErr("embed", OperationErrorDecodeFailed,
			fmt.Sprintf("expected 1 vector, got %d", len(vecs)), nil)
	}
	return vecs[0], nil
}

func (c *client) EmbedBatch(ctx context.Context, texts []string, task Task, lateChunking bool) ([][]float32, error) {
	const op = "embed_batch"
	if len(texts) == 0 {
		return nil, nil
	}

	body, path, err := c.requestBody(texts, task, lateChunking)
	if err != nil {
		return nil, opErr(op, OperationErrorEncodeFailed, "", err)
	}

	vecs, err := c.post(ctx, op, path, body)
	if err != nil {
		c.usage.recordFailure()
		return nil, err
	}

	if len(vecs) != len(texts) {
		c.usage.recordFailure()
		return nil, opErr(op, OperationErrorDecodeFailed,
			fmt.Sprintf("expected %d vectors, got %d", len(texts), len(vecs)), nil)
	}
	for i, v := range vecs {
		if len(v) != c.cfg.VectorDim {
			c.usage.recordFailure()
			return nil, opErr(op, OperationErrorDecodeFailed,
				fmt.Sprintf("vector %d dimension mismatch: expected=%d got=%d", i, c.cfg.VectorDim, len(v)), nil)
		}
	}
	c.usage.record(len(texts))
	return vecs, nil
}

// requestBody builds the provider-specific payload; the response parser is
// shared where dialects agree on the OpenAI shape.
func (c *client) requestBody(texts []string, task Task, lateChunking bool) ([]byte, string, error) {
	switch c.cfg.Provider {
	case ProviderJina:
		payload := map[string]any{
			"model": c.cfg.Model,
			"input": texts,
		}
		if task == TaskQuery {
			payload["task"] = "retrieval.query"
		} else {
			payload["task"] = "retrieval.passage"
		}
		if lateChunking {
			payload["late_chunking"] = true
		}
		b, err := json.Marshal(payload)
		return b, "/v1/embeddings", err
	case ProviderHuggingFace:
		b, err := json.Marshal(map[string]any{"inputs": texts})
		return b, "/embed", err
	default: // openai-compatible
		b, err := json.Marshal(map[string]any{
			"model": c.cfg.Model,
			"input": texts,
		})
		return b, "/embeddings", err
	}
}

func (c *client) post(ctx context.Context, op, path string, body []byte) ([][]float32, error) {
	url := strings.TrimRight(c.cfg.BaseURL, "/") + path

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, opErr(op, OperationErrorTransportFailed, "", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, opErr(op, OperationErrorTransportFailed, "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		code := OperationErrorQueryFailed
		if httpx.IsRetryableHTTPStatus(resp.StatusCode) {
			code = OperationErrorRateLimited
		}
		return nil, &OperationError{
			Code:       code,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(snippet)),
		}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, opErr(op, OperationErrorDecodeFailed, "", err)
	}
	return c.parseVectors(op, raw)
}

func (c *client) parseVectors(op string, raw []byte) ([][]float32, error) {
	if c.cfg.Provider == ProviderHuggingFace {
		// TEI returns a bare array of vectors.
		var vecs [][]float32
		if err := json.Unmarshal(raw, &vecs); err != nil {
			return nil, opErr(op, OperationErrorDecodeFailed, "", err)
		}
		return vecs, nil
	}
	var envelope struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, opErr(op, OperationErrorDecodeFailed, "", err)
	}
	vecs := make([][]float32, len(envelope.Data))
	for _, d := range envelope.Data {
		if d.Index < 0 || d.Index >= len(vecs) {
			return nil, opErr(op, OperationErrorDecodeFailed,
				fmt.Sprintf("embedding index %d out of range", d.Index), nil)
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}
