package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Payload is the message shape shared by all destinations: plain content, an
// embed list, or both. Embeds are rendered natively on Discord and flattened
// to text for Telegram.
type Payload struct {
	Content string  `json:"content,omitempty"`
	Embeds  []Embed `json:"embeds,omitempty"`
}

// Embed is a structured message block in the Discord embed shape.
type Embed struct {
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description,omitempty"`
	URL         string          `json:"url,omitempty"`
	Color       int             `json:"color,omitempty"`
	Fields      []EmbedField    `json:"fields,omitempty"`
	Footer      *EmbedFooter    `json:"footer,omitempty"`
	Author      *EmbedAuthor    `json:"author,omitempty"`
	Thumbnail   *EmbedThumbnail `json:"thumbnail,omitempty"`
	Timestamp   string          `json:"timestamp,omitempty"`
}

// EmbedField is a single name/value pair within an embed.
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// EmbedFooter is the embed footer line.
type EmbedFooter struct {
	Text string `json:"text"`
}

// EmbedAuthor is the embed author header.
type EmbedAuthor struct {
	Name    string `json:"name"`
	IconURL string `json:"icon_url,omitempty"`
}

// EmbedThumbnail is the embed thumbnail image.
type EmbedThumbnail struct {
	URL string `json:"url"`
}

// Notifier delivers payloads to one destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, p Payload) error
}

// Manager broadcasts to every registered notifier. One destination failing
// does not stop delivery to the others.
type Manager struct {
	notifiers []Notifier
	logger    *slog.Logger
}

// NewManager creates a broadcast manager.
func NewManager(notifiers []Notifier, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{notifiers: notifiers, logger: logger}
}

func (m *Manager) Name() string { return "all" }

// HasNotifiers reports whether at least one destination is configured.
func (m *Manager) HasNotifiers() bool { return len(m.notifiers) > 0 }

// Send delivers the payload to every notifier and returns the joined errors.
func (m *Manager) Send(ctx context.Context, p Payload) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Send(ctx, p); err != nil {
			m.logger.Warn("notifier delivery failed", "notifier", n.Name(), "error", err.Error())
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}
