// Package caseparties resolves the authoritative party list of a case from
// the case service.
package caseparties

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Yaswanth9347/ai-dispute-sub002/internal/negotiation"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) ListParties(ctx context.Context, caseID string) ([]negotiation.Party, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/%s/parties", c.BaseURL, caseID), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("case service returned %d", resp.StatusCode)
	}
	var out struct {
		Parties []negotiation.Party `json:"parties"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Parties, nil
}

// ListCaseMembers adapts the party list to the id-only shape the tally
// engine quorum check needs.
func (c *Client) ListCaseMembers(ctx context.Context, caseID string) ([]string, error) {
	parties, err := c.ListParties(ctx, caseID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(parties))
	for _, p := range parties {
		ids = append(ids, p.UserID)
	}
	return ids, nil
}

// Static is a fixed directory for tests and single-tenant dev setups.
type Static struct {
	Cases map[string][]negotiation.Party
}

func (s *Static) ListParties(_ context.Context, caseID string) ([]negotiation.Party, error) {
	return s.Cases[caseID], nil
}

func (s *Static) ListCaseMembers(_ context.Context, caseID string) ([]string, error) {
	parties := s.Cases[caseID]
	ids := make([]string, 0, len(parties))
	for _, p := range parties {
		ids = append(ids, p.UserID)
	}
	return ids, nil
}
