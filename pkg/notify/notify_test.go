package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHook struct {
	mu     sync.Mutex
	events []Event
	types  []EventType
	err    error
}

func (r *recordingHook) OnEvent(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingHook) EventTypes() []EventType { return r.types }

func (r *recordingHook) seen() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func TestDispatcherFanOut(t *testing.T) {
	t.Parallel()
	d := NewDispatcher(nil)
	all := &recordingHook{}
	onlyCreated := &recordingHook{types: []EventType{EventRequestCreated}}
	d.Register(all)
	d.Register(onlyCreated)

	d.Emit(context.Background(), Event{Type: EventRequestCreated, RequestID: "r1"})
	d.Emit(context.Background(), Event{Type: EventRequestExpired, RequestID: "r1"})

	assert.Len(t, all.seen(), 2)
	require.Len(t, onlyCreated.seen(), 1)
	assert.Equal(t, EventRequestCreated, onlyCreated.seen()[0].Type)
}

func TestDispatcherHookFailureDoesNotPropagate(t *testing.T) {
	t.Parallel()
	d := NewDispatcher(nil)
	failing := &recordingHook{err: errors.New("slack is down")}
	healthy := &recordingHook{}
	d.Register(failing)
	d.Register(healthy)

	// Must not panic or short-circuit the healthy hook.
	d.Emit(context.Background(), Event{Type: EventRequestCreated, RequestID: "r1"})
	assert.Len(t, healthy.seen(), 1)
}

func TestWebhookHookPosts(t *testing.T) {
	t.Parallel()
	var got Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.Equal(t, "secret", r.Header.Get("X-Auth"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	h := NewWebhookHook(srv.URL, WebhookOptions{Headers: map[string]string{"X-Auth": "secret"}})
	ev := Event{
		Type:      EventRequestCreated,
		RequestID: "req-1",
		RunID:     "run-1",
		Title:     "SQLMap data extraction",
		RiskLevel: "HIGH",
		ExpiresAt: time.Now().Add(time.Hour).UTC(),
	}
	require.NoError(t, h.OnEvent(context.Background(), ev))
	assert.Equal(t, "req-1", got.RequestID)
	assert.Equal(t, "HIGH", got.RiskLevel)
}

func TestWebhookHookNon2xx(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	h := NewWebhookHook(srv.URL, WebhookOptions{})
	err := h.OnEvent(context.Background(), Event{Type: EventRequestCreated})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestSlackMessageFormatting(t *testing.T) {
	t.Parallel()
	created := formatMessage(Event{
		Type:      EventRequestCreated,
		RequestID: "req-1",
		RunID:     "run-1",
		Title:     "SQLMap data extraction",
		RiskLevel: "HIGH",
	})
	assert.Contains(t, created, "Approval needed")
	assert.Contains(t, created, "HIGH")

	rejected := formatMessage(Event{
		Type:     EventRequestDecided,
		Title:    "SQLMap data extraction",
		Decision: "rejected",
		Reason:   "out of engagement scope",
	})
	assert.Contains(t, rejected, "rejected")
	assert.Contains(t, rejected, "out of engagement scope")

	expired := formatMessage(Event{Type: EventRequestExpired, Title: "x", RequestID: "req-9"})
	assert.Contains(t, expired, "Expired")
}
