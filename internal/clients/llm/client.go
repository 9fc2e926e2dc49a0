package llm

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
	"github.com/yungbote/chatlore-backend/internal/utils"
)

const maxErrorBodyBytes = 1024

// Completion is one language-model answer plus accounting fields.
type Completion struct {
	Content          string `json:"content"`
	Model            string `json:"model"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
}

// Client talks to one OpenAI-compatible chat-completions endpoint.
type Client interface {
	Complete(ctx context.Context, system, user string, temperature float64) (Completion, error)
	Tag() string
}

type client struct {
	log     *logger.Logger
	tag     string
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
}

// Endpoint describes one completion backend for the router.
type Endpoint struct {
	Tag     string
	BaseURL string
	APIKey  string
	Model   string
}

func NewClient(log *logger.Logger, ep Endpoint) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(ep.BaseURL) == "" {
		return nil, fmt.Errorf("llm endpoint %q: missing base url", ep.Tag)
	}
	if strings.TrimSpace(ep.Model) == "" {
		return nil, fmt.Errorf("llm endpoint %q: missing model", ep.Tag)
	}
	return &client{
		log:     log.With("service", "LlmClient", "tag", ep.Tag, "model", ep.Model),
		tag:     ep.Tag,
		baseURL: strings.TrimRight(ep.BaseURL, "/"),
		apiKey:  ep.APIKey,
		model:   ep.Model,
		http:    &http.Client{Timeout: 120 * time.Second},
	}, nil
}

// NewClientFromEnv builds the primary endpoint from LLM_* variables.
func NewClientFromEnv(log *logger.Logger) (Client, error) {
	return NewClient(log, Endpoint{
		Tag:     utils.GetEnv("LLM_TAG", "primary", log),
		BaseURL: utils.GetEnv("LLM_BASE_URL", "", log),
		APIKey:  utils.GetEnv("LLM_API_KEY", "", log),
		Model:   utils.GetEnv("LLM_MODEL", "", log),
	})
}

func (c *client) Tag() string { return c.tag }

func (c *client) Complete(ctx context.Context, system, user string, temperature float64) (Completion, error) {
	const op = "complete"
	messages := make([]map[string]string, 0, 2)
	if strings.TrimSpace(system) != "" {
		messages = append(messages, map[string]string{"role": "system", "content": system})
	}
	messages = append(messages, map[string]string{"role": "user", "content": user})

	body, err := json.Marshal(map[string]any{
		"model":       c.model,
		"messages":    messages,
		"temperature": temperature,
	})
	if err != nil {
		return Completion{}, opErr(op, OperationErrorEncodeFailed, "", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Completion{}, opErr(op, OperationErrorTransportFailed, "", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Completion{}, opErr(op, OperationErrorTransportFailed, "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		code := OperationErrorQueryFailed
		if resp.StatusCode == http.StatusTooManyRequests {
			code = OperationErrorRateLimited
		} else if httpx.IsRetryableHTTPStatus(resp.StatusCode) {
			code = OperationErrorTransportFailed
		}
		return Completion{}, &OperationError{
			Code:       code,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(snippet)),
		}
	}

	var envelope struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return Completion{}, opErr(op, OperationErrorDecodeFailed, "", err)
	}
	if len(envelope.Choices) == 0 {
		return Completion{}, opErr(op, OperationErrorDecodeFailed, "no choices in response", nil)
	}
	return Completion{
		Content:          envelope.Choices[0].Message.Content,
		Model:            envelope.Model,
		PromptTokens:     envelope.Usage.PromptTokens,
		CompletionTokens: envelope.Usage.CompletionTokens,
	}, nil
}
