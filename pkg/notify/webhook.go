package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/windoliver/ThreatWeaver/pkg/duration"
	"github.com/windoliver/ThreatWeaver/pkg/jsonutil"
)

// Compile-time interface check.
var _ Hook = (*WebhookHook)(nil)

// WebhookHook POSTs each event as JSON to a configured URL. Outbound
// posts are rate-limited so a burst of expiry sweeps cannot flood the
// receiver.
type WebhookHook struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
	headers map[string]string
}

// WebhookOptions configures the webhook hook.
type WebhookOptions struct {
	// Headers are added to every request (e.g. an auth token).
	Headers map[string]string

	// PostsPerSecond limits delivery rate (default 5, burst 10).
	PostsPerSecond float64

	// Client overrides the HTTP client (default: WebhookTimeout-bounded).
	Client *http.Client
}

// NewWebhookHook creates a webhook hook targeting url.
func NewWebhookHook(url string, opts WebhookOptions) *WebhookHook {
	rps := opts.PostsPerSecond
	if rps <= 0 {
		rps = 5
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: duration.WebhookTimeout}
	}
	return &WebhookHook{
		url:     url,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(rps), 10),
		headers: opts.Headers,
	}
}

// EventTypes returns nil: the webhook receives every event.
func (w *WebhookHook) EventTypes() []EventType { return nil }

// OnEvent delivers one event.
func (w *WebhookHook) OnEvent(ctx context.Context, ev Event) error {
	if err := w.limiter.Wait(ctx); err != nil {
		return err
	}
	body, err := jsonutil.Marshal(ev)
	if err != nil {
		return fmt.Errorf("notify: encode event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: webhook post: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: webhook returned %d", resp.StatusCode)
	}
	return nil
}
