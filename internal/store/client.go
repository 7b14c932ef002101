// Package store reads raw activity records from the remote activity store.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"example.com/swimlog/internal/domain"
)

// StatusError is returned when the store answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("activity store returned %d: %s", e.StatusCode, e.Body)
}

// Client fetches a user's activities. Requests are neither retried nor cached.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a Client. A zero timeout falls back to 15s.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type activitiesResponse struct {
	Activities []domain.Record `json:"activities"`
}

// FetchActivities returns the raw records stored for userID. Numbers are kept as json.Number so
// the normalizer sees the values exactly as sent.
func (c *Client) FetchActivities(ctx context.Context, userID string) ([]domain.Record, error) {
	endpoint := fmt.Sprintf("%s/users/%s/activities", c.baseURL, url.PathEscape(userID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch activities: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var payload activitiesResponse
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode activities: %w", err)
	}
	if payload.Activities == nil {
		return []domain.Record{}, nil
	}
	return payload.Activities, nil
}
