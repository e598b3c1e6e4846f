package attend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	attendanceURL = "https://zonai.skport.com/web/v1/game/endfield/attendance"

	originHeader   = "https://game.skport.com"
	refererHeader  = "https://game.skport.com/"
	browserUA      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:147.0) Gecko/20100101 Firefox/147.0"
	acceptLanguage = "en-CA,en-US;q=0.9,en;q=0.8,fr-CA;q=0.7"
)

// HTTPClient calls the attendance endpoint with a signed browser-shaped
// header set.
type HTTPClient struct {
	client *http.Client
	url    string
	now    func() time.Time
	logger *slog.Logger
}

// NewHTTPClient creates the production attendance client.
func NewHTTPClient(logger *slog.Logger) *HTTPClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPClient{
		client: &http.Client{Timeout: 30 * time.Second},
		url:    attendanceURL,
		now:    time.Now,
		logger: logger,
	}
}

type calendarItem struct {
	AwardID   string `json:"awardId"`
	Available bool   `json:"available"`
	Done      bool   `json:"done"`
}

type resourceInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Count int    `json:"count"`
	Icon  string `json:"icon"`
}

type attendanceResponse struct {
	Code    *int   `json:"code"`
	Retcode *int   `json:"retcode"`
	Message string `json:"message"`
	Msg     string `json:"msg"`
	Data    struct {
		HasToday        bool                    `json:"hasToday"`
		CurrentTs       string                  `json:"currentTs"`
		Calendar        []calendarItem          `json:"calendar"`
		ResourceInfoMap map[string]resourceInfo `json:"resourceInfoMap"`
		AwardIDs        []struct {
			ID string `json:"id"`
		} `json:"awardIds"`
		Awards []struct {
			Name     string `json:"name"`
			Count    int    `json:"count"`
			Amount   int    `json:"amount"`
			Resource struct {
				Name string `json:"name"`
				Icon string `json:"icon"`
			} `json:"resource"`
		} `json:"awards"`
	} `json:"data"`
}

func (r *attendanceResponse) resultCode() (int, bool) {
	if r.Code != nil {
		return *r.Code, true
	}
	if r.Retcode != nil {
		return *r.Retcode, true
	}
	return 0, false
}

func (r *attendanceResponse) resultMessage() string {
	if r.Msg != "" {
		return r.Msg
	}
	return r.Message
}

func (c *HTTPClient) do(ctx context.Context, profile *Profile, method, body string) (*http.Response, []byte, error) {
	signHeaders, err := buildSignHeaders(profile, c.url, method, body, c.now())
	if err != nil {
		return nil, nil, err
	}

	var reqBody io.Reader
	if body != "" {
		reqBody = bytes.NewReader([]byte(body))
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url, reqBody)
	if err != nil {
		return nil, nil, fmt.Errorf("create attendance request: %w", err)
	}

	req.Header.Set("cred", profile.Cred)
	req.Header.Set("sk-game-role", profile.SkGameRole)
	for name, value := range signHeaders {
		req.Header.Set(name, value)
	}
	if req.Header.Get("sign") == "" && profile.Sign != "" {
		req.Header.Set("sign", profile.Sign)
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", originHeader)
	req.Header.Set("Referer", refererHeader)
	req.Header.Set("User-Agent", browserUA)
	req.Header.Set("Accept-Language", acceptLanguage)
	req.Header.Set("DNT", "1")
	req.Header.Set("Priority", "u=4")
	req.Header.Set("sk-language", "en")
	req.Header.Set("Sec-Fetch-Dest", "empty")
	req.Header.Set("Sec-Fetch-Mode", "cors")
	req.Header.Set("Sec-Fetch-Site", "same-site")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("attendance request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read attendance response: %w", err)
	}
	return resp, raw, nil
}

// FetchStatus reads the attendance calendar for a profile.
func (c *HTTPClient) FetchStatus(ctx context.Context, profile *Profile) (*Status, error) {
	resp, raw, err := c.do(ctx, profile, http.MethodGet, "")
	if err != nil {
		return nil, err
	}

	var payload attendanceResponse
	parseErr := json.Unmarshal(raw, &payload)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Status{OK: false, Message: fmt.Sprintf("HTTP %d", resp.StatusCode)}, nil
	}
	if parseErr != nil {
		return &Status{OK: false, Message: "invalid attendance response"}, nil
	}
	if code, ok := payload.resultCode(); !ok || code != 0 {
		msg := payload.resultMessage()
		if msg == "" {
			msg = "attendance status failed"
		}
		return &Status{OK: false, Message: msg}, nil
	}

	calendar := payload.Data.Calendar
	doneCount := 0
	for _, item := range calendar {
		if item.Done {
			doneCount++
		}
	}

	status := &Status{
		OK:         true,
		Message:    "OK",
		HasToday:   payload.Data.HasToday,
		DoneCount:  doneCount,
		TotalCount: len(calendar),
	}
	if msg := payload.resultMessage(); msg != "" {
		status.Message = msg
	}
	status.MissingCount = countMissedDays(calendar, serverDayOfMonth(payload.Data.CurrentTs, c.now()))

	for _, item := range calendar {
		if !item.Available {
			continue
		}
		if info, ok := payload.Data.ResourceInfoMap[item.AwardID]; ok {
			status.TodayRewards = append(status.TodayRewards, rewardFromInfo(info))
		}
	}
	return status, nil
}

// Attend performs the daily check-in, short-circuiting when the status call
// already shows today as done.
func (c *HTTPClient) Attend(ctx context.Context, profile *Profile) (*Result, error) {
	status, err := c.FetchStatus(ctx, profile)
	if err != nil {
		return nil, err
	}
	if status.OK && status.HasToday {
		return &Result{
			Already: true,
			Message: "already checked in today",
			Status:  status,
		}, nil
	}

	resp, raw, err := c.do(ctx, profile, http.MethodPost, "{}")
	if err != nil {
		return nil, err
	}

	var payload attendanceResponse
	parseErr := json.Unmarshal(raw, &payload)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("attendance request failed", "profileId", profile.ID, "status", resp.StatusCode)
		msg := "request failed"
		if parseErr == nil {
			if m := payload.resultMessage(); m != "" {
				msg = m
			}
		}
		return &Result{
			Message: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, msg),
			Status:  status,
		}, nil
	}
	if parseErr != nil {
		return &Result{Message: "invalid attendance response", Status: status}, nil
	}

	code, hasCode := payload.resultCode()
	msg := payload.resultMessage()
	if msg == "" {
		msg = "attendance response received"
	}

	if hasCode && code == 0 {
		rewards := collectRewards(&payload)
		if status.OK {
			next := *status
			next.HasToday = true
			if next.DoneCount < next.TotalCount {
				next.DoneCount++
			}
			next.TodayRewards = nil
			status = &next
		}
		if msg == "OK" {
			msg = "check-in successful"
		}
		return &Result{OK: true, Message: msg, Rewards: rewards, Status: status}, nil
	}

	already := strings.Contains(strings.ToLower(msg), "already")
	if already && status.OK {
		next := *status
		next.HasToday = true
		next.TodayRewards = nil
		status = &next
	}
	return &Result{Already: already, Message: msg, Status: status}, nil
}

func rewardFromInfo(info resourceInfo) Reward {
	return Reward{ID: info.ID, Name: info.Name, Count: info.Count, Icon: info.Icon}
}

func collectRewards(payload *attendanceResponse) []Reward {
	var rewards []Reward
	for _, entry := range payload.Data.AwardIDs {
		if entry.ID == "" {
			continue
		}
		if info, ok := payload.Data.ResourceInfoMap[entry.ID]; ok {
			rewards = append(rewards, rewardFromInfo(info))
		}
	}
	for _, award := range payload.Data.Awards {
		name := award.Name
		if name == "" {
			name = award.Resource.Name
		}
		if name == "" {
			continue
		}
		count := award.Count
		if count == 0 {
			count = award.Amount
		}
		rewards = append(rewards, Reward{Name: name, Count: count, Icon: award.Resource.Icon})
	}
	return rewards
}

// serverDayOfMonth resolves "today" in the game server's timezone, preferring
// the server-reported clock when present.
func serverDayOfMonth(currentTs string, fallback time.Time) int {
	t := fallback
	if currentTs != "" {
		if secs, err := strconv.ParseInt(currentTs, 10, 64); err == nil {
			t = time.Unix(secs, 0)
		}
	}
	return t.In(shanghaiLoc).Day()
}

// countMissedDays counts calendar days before today that were not checked in.
func countMissedDays(calendar []calendarItem, todayDay int) int {
	if todayDay <= 0 {
		missed := 0
		for _, item := range calendar {
			if !item.Done {
				missed++
			}
		}
		return missed
	}

	end := todayDay - 1
	if end > len(calendar) {
		end = len(calendar)
	}
	missed := 0
	for _, item := range calendar[:end] {
		if !item.Done {
			missed++
		}
	}
	return missed
}
