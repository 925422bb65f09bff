// Package notify delivers party notifications. Delivery is fire-and-forget:
// a lost notification is logged, never surfaced to the caller, and never
// rolls back a negotiation state change.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Yaswanth9347/ai-dispute-sub002/internal/negotiation"
)

type Notifier struct {
	BaseURL string
	HTTP    *http.Client
	Log     *zap.Logger
}

func New(baseURL string, log *zap.Logger) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		HTTP:    &http.Client{Timeout: 5 * time.Second},
		Log:     log,
	}
}

func (n *Notifier) Notify(ctx context.Context, msg negotiation.Notification) {
	if n.BaseURL == "" {
		n.Log.Debug("notification (no delivery endpoint)",
			zap.String("type", msg.Type), zap.String("session_id", msg.SessionID))
		return
	}
	if err := n.post(ctx, msg); err != nil {
		n.Log.Warn("notification delivery failed",
			zap.String("type", msg.Type), zap.String("session_id", msg.SessionID), zap.Error(err))
	}
}

func (n *Notifier) post(ctx context.Context, msg negotiation.Notification) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.BaseURL+"/notifications", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("content-type", "application/json")
	resp, err := n.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification service returned %d", resp.StatusCode)
	}
	return nil
}
