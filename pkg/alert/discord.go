package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	webhookUsername  = "Perlica"
	webhookAvatarURL = "https://play-lh.googleusercontent.com/l6FVNa293RykBWy88TqEhUakIcGSC8bRygSnKOBgztln48JX-WzMWnrBAETrKZsxDNC4HhwCsvfle_UI7rBE=s256-rw"
)

// Discord sends payloads through a Discord webhook under a fixed bot
// identity.
type Discord struct {
	client     *http.Client
	webhookURL string
	logger     *slog.Logger
}

// NewDiscord creates a Discord webhook notifier.
func NewDiscord(webhookURL string, logger *slog.Logger) *Discord {
	if logger == nil {
		logger = slog.Default()
	}
	return &Discord{
		client:     &http.Client{Timeout: 10 * time.Second},
		webhookURL: webhookURL,
		logger:     logger,
	}
}

func (d *Discord) Name() string { return "discord" }

type discordWebhookBody struct {
	Content   string  `json:"content,omitempty"`
	Embeds    []Embed `json:"embeds,omitempty"`
	Username  string  `json:"username"`
	AvatarURL string  `json:"avatar_url"`
}

func (d *Discord) Send(ctx context.Context, p Payload) error {
	body, err := json.Marshal(discordWebhookBody{
		Content:   p.Content,
		Embeds:    p.Embeds,
		Username:  webhookUsername,
		AvatarURL: webhookAvatarURL,
	})
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}

	d.logger.Debug("discord webhook request",
		"url", sanitizeWebhookURL(d.webhookURL),
		"hasContent", p.Content != "",
		"embedCount", len(p.Embeds),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("send discord webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("discord webhook status %d", resp.StatusCode)
	}
	return nil
}

// sanitizeWebhookURL hides the webhook token so URLs are safe to log.
func sanitizeWebhookURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "[invalid-url]"
	}
	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "webhooks" {
		return fmt.Sprintf("%s://%s/api/webhooks/%s/***", parsed.Scheme, parsed.Host, parts[2])
	}
	return parsed.Scheme + "://" + parsed.Host + parsed.Path
}
