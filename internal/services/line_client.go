package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tcmclinic/internal/models"

	"golang.org/x/time/rate"
)

// ErrLineNotConfigured is returned when no channel access token is set
var ErrLineNotConfigured = errors.New("LINE_CHANNEL_ACCESS_TOKEN is not configured")

// LineClient talks to the LINE Messaging API
type LineClient struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	limiter     *rate.Limiter
}

// NewLineClient creates a LINE client. Requests are paced to stay under the
// Messaging API rate limits.
func NewLineClient(baseURL, accessToken string) *LineClient {
	return &LineClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: accessToken,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		limiter:     rate.NewLimiter(rate.Limit(50), 10),
	}
}

// Configured reports whether the client has credentials
func (c *LineClient) Configured() bool {
	return c != nil && c.accessToken != ""
}

type pushMessageRequest struct {
	To       string        `json:"to"`
	Messages []textMessage `json:"messages"`
}

type textMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// PushText sends a text message to one user
func (c *LineClient) PushText(ctx context.Context, userID, text string) error {
	body, err := json.Marshal(pushMessageRequest{
		To:       userID,
		Messages: []textMessage{{Type: "text", Text: text}},
	})
	if err != nil {
		return fmt.Errorf("failed to encode push message: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/message/push", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to push notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to push notification: %d - %s", resp.StatusCode, readErrorBody(resp.Body))
	}
	return nil
}

// GetProfile fetches the display profile of one user
func (c *LineClient) GetProfile(ctx context.Context, userID string) (*models.LineUserProfile, error) {
	resp, err := c.do(ctx, http.MethodGet, "/profile/"+url.PathEscape(userID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get user profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to get user profile: %d - %s", resp.StatusCode, readErrorBody(resp.Body))
	}

	var profile models.LineUserProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("failed to decode user profile: %w", err)
	}
	return &profile, nil
}

func (c *LineClient) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	if !c.Configured() {
		return nil, ErrLineNotConfigured
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	return c.httpClient.Do(req)
}

func readErrorBody(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 2048))
	return strings.TrimSpace(string(data))
}
