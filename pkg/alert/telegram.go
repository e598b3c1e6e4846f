package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	telegramAPIBase     = "https://api.telegram.org"
	telegramMessageMax  = 4096
	telegramMaxAttempts = 4
)

// Telegram sends payloads as plain-text messages through the Bot API,
// respecting rate-limit retry hints.
type Telegram struct {
	client   *http.Client
	botToken string
	chatID   string
	threadID int
	logger   *slog.Logger
}

// NewTelegram creates a Telegram notifier. threadID 0 means no forum topic.
func NewTelegram(botToken, chatID string, threadID int, logger *slog.Logger) *Telegram {
	if logger == nil {
		logger = slog.Default()
	}
	return &Telegram{
		client:   &http.Client{Timeout: 15 * time.Second},
		botToken: botToken,
		chatID:   chatID,
		threadID: threadID,
		logger:   logger,
	}
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Send(ctx context.Context, p Payload) error {
	chunks := payloadToMessages(p)
	for _, chunk := range chunks {
		if err := t.sendWithRetry(ctx, chunk); err != nil {
			return err
		}
	}
	return nil
}

type telegramSendRequest struct {
	ChatID            string `json:"chat_id"`
	MessageThreadID   int    `json:"message_thread_id,omitempty"`
	Text              string `json:"text"`
	DisableWebPreview bool   `json:"disable_web_page_preview"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

func (t *Telegram) sendWithRetry(ctx context.Context, text string) error {
	var lastErr error
	for attempt := 1; attempt <= telegramMaxAttempts; attempt++ {
		retryAfter, err := t.sendMessage(ctx, text)
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt == telegramMaxAttempts {
			break
		}

		delay := time.Duration(attempt) * 2 * time.Second
		if delay > 15*time.Second {
			delay = 15 * time.Second
		}
		if retryAfter > 0 && retryAfter <= 120 {
			delay = time.Duration(retryAfter+1) * time.Second
			t.logger.Warn("telegram send rate-limited; retrying", "attempt", attempt, "retryAfter", retryAfter)
		} else {
			t.logger.Warn("telegram send failed; retrying", "attempt", attempt, "backoff", delay, "error", err.Error())
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	t.logger.Warn("telegram send failed", "attempts", telegramMaxAttempts, "error", lastErr.Error())
	return lastErr
}

// sendMessage posts one message. The second return value is the server's
// retry_after hint in seconds, zero when absent.
func (t *Telegram) sendMessage(ctx context.Context, text string) (int, error) {
	body, err := json.Marshal(telegramSendRequest{
		ChatID:            t.chatID,
		MessageThreadID:   t.threadID,
		Text:              text,
		DisableWebPreview: true,
	})
	if err != nil {
		return 0, fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", telegramAPIBase, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("send telegram message: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var parsed telegramResponse
	_ = json.Unmarshal(raw, &parsed)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 && parsed.OK {
		return 0, nil
	}

	desc := parsed.Description
	if desc == "" {
		desc = strings.TrimSpace(string(raw))
	}
	return parsed.Parameters.RetryAfter, fmt.Errorf("telegram status %d: %s", resp.StatusCode, desc)
}

// payloadToMessages flattens a payload into plain-text chunks within the Bot
// API message size limit.
func payloadToMessages(p Payload) []string {
	var blocks []string
	if strings.TrimSpace(p.Content) != "" {
		blocks = append(blocks, strings.TrimSpace(p.Content))
	}
	for _, embed := range p.Embeds {
		if text := embedToText(embed); text != "" {
			blocks = append(blocks, text)
		}
	}

	var chunks []string
	for _, block := range blocks {
		for len(block) > telegramMessageMax {
			// Back up to a rune boundary so a multi-byte character is never
			// split across messages.
			cut := telegramMessageMax
			for cut > 0 && !utf8.RuneStart(block[cut]) {
				cut--
			}
			if cut == 0 {
				cut = telegramMessageMax
			}
			chunks = append(chunks, block[:cut])
			block = block[cut:]
		}
		if block != "" {
			chunks = append(chunks, block)
		}
	}
	return chunks
}

func embedToText(e Embed) string {
	var b strings.Builder
	if e.Title != "" {
		b.WriteString(e.Title)
		b.WriteString("\n")
	}
	if e.Description != "" {
		b.WriteString(e.Description)
		b.WriteString("\n")
	}
	for _, f := range e.Fields {
		b.WriteString(f.Name)
		b.WriteString(": ")
		b.WriteString(f.Value)
		b.WriteString("\n")
	}
	if e.Footer != nil && e.Footer.Text != "" {
		b.WriteString(e.Footer.Text)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}
