// Package advisor calls the compromise-suggestion collaborator. The
// collaborator is advisory only; callers treat any failure here as "no
// suggestion available".
package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Yaswanth9347/ai-dispute-sub002/internal/negotiation"
)

var ErrNotConfigured = errors.New("compromise advisor not configured")

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		HTTP:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) Suggest(ctx context.Context, req negotiation.AdvisorRequest) (negotiation.AdvisorResult, error) {
	if c.BaseURL == "" {
		return negotiation.AdvisorResult{}, ErrNotConfigured
	}
	body, err := json.Marshal(req)
	if err != nil {
		return negotiation.AdvisorResult{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/suggestions", bytes.NewReader(body))
	if err != nil {
		return negotiation.AdvisorResult{}, err
	}
	httpReq.Header.Set("content-type", "application/json")
	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return negotiation.AdvisorResult{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return negotiation.AdvisorResult{}, fmt.Errorf("advisor returned %d", resp.StatusCode)
	}
	var out negotiation.AdvisorResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return negotiation.AdvisorResult{}, err
	}
	return out, nil
}
