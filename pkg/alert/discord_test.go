package alert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDiscordSend(t *testing.T) {
	var got discordWebhookBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content type = %q", r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscord(srv.URL, nil)
	d.client = srv.Client()

	payload := Payload{
		Content: "heads up",
		Embeds:  []Embed{{Title: "Endfield Attendance"}},
	}
	if err := d.Send(context.Background(), payload); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.Username != "Perlica" || got.AvatarURL == "" {
		t.Errorf("webhook identity = %q / %q", got.Username, got.AvatarURL)
	}
	if got.Content != "heads up" || len(got.Embeds) != 1 {
		t.Errorf("body = %+v", got)
	}
}

func TestDiscordSendErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	d := NewDiscord(srv.URL, nil)
	d.client = srv.Client()

	err := d.Send(context.Background(), Payload{Content: "x"})
	if err == nil || err.Error() != "discord webhook status 429" {
		t.Errorf("err = %v", err)
	}
}

func TestSanitizeWebhookURL(t *testing.T) {
	got := sanitizeWebhookURL("https://discord.com/api/webhooks/123456/secret-token")
	if got != "https://discord.com/api/webhooks/123456/***" {
		t.Errorf("sanitized = %q", got)
	}
	if got := sanitizeWebhookURL("https://example.com/other/path"); got != "https://example.com/other/path" {
		t.Errorf("non-webhook url = %q", got)
	}
	if got := sanitizeWebhookURL("://bad"); got != "[invalid-url]" {
		t.Errorf("invalid url = %q", got)
	}
}
