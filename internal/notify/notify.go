// Package notify implements the webhook notifier AgentConnections fire
// on message creation and status transitions. It is a deliberately
// simpler sibling of internal/requester: a webhook delivery is
// best-effort telemetry for the owner's UI, not a protocol message
// that must eventually land, so it gets one attempt and a short
// timeout rather than a circuit breaker and retry loop.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/golang/glog"

	"github.com/vault-mesh/agency/internal/wire"
)

// Webhook is the default Notifier: one HTTP POST per notification.
type Webhook struct {
	client *http.Client
}

func New(timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Webhook{client: &http.Client{Timeout: timeout}}
}

func (w *Webhook) Notify(ctx context.Context, url string, n wire.MessageNotification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: post %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		glog.Warningf("notify: webhook %s returned status %d", url, resp.StatusCode)
		return fmt.Errorf("notify: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
