package telegram

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

// SendOutcome is the explicit result variant of a send attempt. Transport
// rejections that need specific handling (bad HTML, blocked chat) are values,
// not errors; only genuinely remote failures return err.
type SendOutcome int

const (
	SendOK SendOutcome = iota
	SendParseError
	SendDeactivatedChat
)

const (
	ParseModeHTML = "HTML"
	ParseModeNone = ""
)

// Sender is the chat transport. The pipeline never builds Telegram payloads
// itself; it hands text to this interface.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string, replyTo int64, parseMode string) (SendOutcome, error)
	SendChatAction(ctx context.Context, chatID int64, action string) error
}

type client struct {
	log   *logger.Logger
	base  string
	http  *http.Client
}

func NewClientFromEnv(log *logger.Logger) (Sender, error) {
	token := utils.GetEnv("TELEGRAM_BOT_TOKEN", "", log)
	if token == "" {
		return nil, fmt.Errorf("missing TELEGRAM_BOT_TOKEN")
	}
	apiURL := utils.GetEnv("TELEGRAM_API_URL", "https://api.telegram.org", log)
	return &client{
		log:  log.With("service", "TelegramClient"),
		base: strings.TrimRight(apiURL, "/") + "/bot" + token,
		http: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (c *client) SendMessage(ctx context.Context, chatID int64, text string, replyTo int64, parseMode string) (SendOutcome, error) {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	if replyTo != 0 {
		payload["reply_parameters"] = map[string]any{
			"message_id":                  replyTo,
			"allow_sending_without_reply": true,
		}
	}
	if parseMode != ParseModeNone {
		payload["parse_mode"] = parseMode
	}

	status, desc, err := c.post(ctx, "/sendMessage", payload)
	if err != nil {
		return SendOK, err
	}
	switch {
	case status >= 200 && status <= 299:
		return SendOK, nil
	case status == http.StatusBadRequest && strings.Contains(strings.ToLower(desc), "can't parse entities"):
		return SendParseError, nil
	case status == http.StatusForbidden:
		return SendDeactivatedChat, nil
	default:
		return SendOK, fmt.Errorf("sendMessage failed (status=%d): %s", status, desc)
	}
}

func (c *client) SendChatAction(ctx context.Context, chatID int64, action string) error {
	if action == "" {
		action = "typing"
	}
	status, desc, err := c.post(ctx, "/sendChatAction", map[string]any{
		"chat_id": chatID,
		"action":  action,
	})
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return fmt.Errorf("sendChatAction failed (status=%d): %s", status, desc)
	}
	return nil
}

func (c *client) post(ctx context.Context, method string, payload map[string]any) (int, string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, "", fmt.Errorf("telegram encode: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+method, bytes.NewReader(body))
	if err != nil {
		return 0, "", fmt.Errorf("telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("telegram transport: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var envelope struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	_ = json.Unmarshal(raw, &envelope)
	return resp.StatusCode, envelope.Description, nil
}

// StripHTML removes tags for the plain-text resend after a parse rejection.
func StripHTML(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}
