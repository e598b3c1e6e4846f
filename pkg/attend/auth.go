package attend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const authRefreshURL = "https://zonai.skport.com/web/v1/auth/refresh"

// AuthClient refreshes the short-lived sign token the attendance endpoint
// signs requests with.
type AuthClient struct {
	client *http.Client
	url    string
}

func NewAuthClient() *AuthClient {
	return &AuthClient{
		client: &http.Client{Timeout: 30 * time.Second},
		url:    authRefreshURL,
	}
}

type authRefreshResponse struct {
	Code    *int   `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Token string `json:"token"`
	} `json:"data"`
}

// RefreshSignToken fetches a fresh sign token for the profile's credential.
func (a *AuthClient) RefreshSignToken(ctx context.Context, profile *Profile) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.url, nil)
	if err != nil {
		return "", fmt.Errorf("create auth refresh request: %w", err)
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Origin", originHeader)
	req.Header.Set("Referer", refererHeader)
	req.Header.Set("User-Agent", browserUA)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("sk-language", "en")
	req.Header.Set("cred", profile.Cred)
	req.Header.Set("platform", profile.Platform)
	req.Header.Set("vName", profile.VName)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("auth refresh request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read auth refresh response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("auth refresh HTTP %d", resp.StatusCode)
	}

	var payload authRefreshResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		preview := string(raw)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		return "", fmt.Errorf("invalid auth refresh response: %s", preview)
	}
	if payload.Code == nil || *payload.Code != 0 {
		msg := payload.Message
		if msg == "" {
			msg = "unknown error"
		}
		return "", fmt.Errorf("auth refresh error: %s", msg)
	}
	if payload.Data.Token == "" {
		return "", fmt.Errorf("auth refresh missing token")
	}
	return payload.Data.Token, nil
}
