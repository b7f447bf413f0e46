package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fx-trader/internal/config"
	"fx-trader/internal/models"
)

func TestWebhookNotifier(t *testing.T) {
	var mu sync.Mutex
	var got []map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		mu.Lock()
		got = append(got, payload)
		mu.Unlock()
	}))
	defer srv.Close()

	mn := NewMultiNotifier(config.NotificationConfig{Enabled: true, WebhookURL: srv.URL, Level: "errors_only"})
	ctx := context.Background()

	n, ok := FromAuditEvent(models.AuditEvent{
		Timestamp: time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC),
		Type:      models.AuditBreaker,
		Message:   "drawdown 10.1% >= 10%",
		Details:   map[string]interface{}{"limit": 10.0},
	})
	require.True(t, ok)
	require.NoError(t, mn.Send(ctx, n))

	// filtered by level
	require.NoError(t, mn.Send(ctx, Notification{Type: NotificationTrade, Title: "closed"}))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, "breaker", got[0]["type"])
	assert.Equal(t, "Breaker tripped", got[0]["title"])
	assert.Equal(t, "2026-03-04T09:00:00Z", got[0]["timestamp"])
}

func TestWebhookNotifierReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL).Send(context.Background(), Notification{Type: NotificationInfo})
	assert.ErrorContains(t, err, "status 500")

	assert.NoError(t, NewWebhookNotifier("").Send(context.Background(), Notification{}))
}

func TestFromAuditEventSkipsRoutineEvents(t *testing.T) {
	_, ok := FromAuditEvent(models.AuditEvent{Type: models.AuditSignal})
	assert.False(t, ok)

	n, ok := FromAuditEvent(models.AuditEvent{Type: models.AuditPositionClosed, Symbol: "EURUSD", Ticket: "7"})
	require.True(t, ok)
	assert.Equal(t, NotificationTrade, n.Type)
	assert.Equal(t, "Position closed: EURUSD", n.Title)
	assert.Equal(t, "7", n.Data["ticket"])
}
