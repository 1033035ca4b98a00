// Package push sends advisory updates to the external realtime fan-out
// service. The sink is advisory, not authoritative: every call is bounded by
// a short timeout and errors are swallowed, never blocking ingestion.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/goran-ethernal/MilestoneIndexor/internal/logger"
	"github.com/goran-ethernal/MilestoneIndexor/pkg/config"
)

// Client posts updates to the realtime push endpoint.
type Client struct {
	url     string
	timeout time.Duration
	http    *http.Client
	log     *logger.Logger
}

// NewClient creates a push client. A nil config or empty URL yields a client
// whose calls are no-ops.
func NewClient(cfg *config.PushConfig, log *logger.Logger) *Client {
	c := &Client{log: log}
	if cfg == nil || cfg.URL == "" {
		return c
	}

	c.url = cfg.URL
	c.timeout = cfg.Timeout.Duration
	c.http = &http.Client{Timeout: cfg.Timeout.Duration}
	return c
}

// Enabled reports whether a push endpoint is configured.
func (c *Client) Enabled() bool {
	return c.url != ""
}

// Send posts a payload and swallows any failure. Safe to call from hot paths;
// the per-call timeout bounds the wait.
func (c *Client) Send(ctx context.Context, event string, payload any) {
	if !c.Enabled() {
		return
	}

	body, err := json.Marshal(map[string]any{
		"event": event,
		"data":  payload,
	})
	if err != nil {
		c.log.Debugf("push payload not serializable: event=%s err=%v", event, err)
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debugf("push failed: event=%s err=%v", event, err)
		return
	}
	resp.Body.Close()
}

// SendAsync fires Send on its own goroutine. The detached context means a
// shutdown can cut a push short; that is acceptable for an advisory sink.
func (c *Client) SendAsync(ctx context.Context, event string, payload any) {
	if !c.Enabled() {
		return
	}
	go c.Send(ctx, event, payload)
}
