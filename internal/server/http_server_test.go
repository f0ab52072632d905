package server_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/muzz-social/internal/db"
	"github.com/oggyb/muzz-social/internal/logger"
	"github.com/oggyb/muzz-social/internal/notify"
	"github.com/oggyb/muzz-social/internal/server"
	"github.com/oggyb/muzz-social/internal/testutil"
)

func TestHealthz(t *testing.T) {
	healthy := true
	h := server.NewHTTPHandler(server.HTTPDeps{
		Logger: logger.Discard(),
		Checks: map[string]server.HealthCheck{
			"db": func(context.Context) error {
				if healthy {
					return nil
				}
				return errors.New("down")
			},
		},
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	healthy = false
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "db: down")
}

func TestMetricsEndpoint(t *testing.T) {
	h := server.NewHTTPHandler(server.HTTPDeps{Logger: logger.Discard()})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestSubscription_StreamsCallerNotifications(t *testing.T) {
	rc, _ := testutil.NewRedis(t)
	h := server.NewHTTPHandler(server.HTTPDeps{
		Logger:     logger.Discard(),
		Subscriber: notify.NewSubscriber(rc, logger.Discard()),
	})
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/subscriptions"
	header := http.Header{}
	header.Set(server.CallerHeader, "u1")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	pub := notify.NewRedisPublisher(rc)
	card := &db.Card{ID: "u1:CHAT_ACTIVITY", Type: db.CardChatActivity, Title: "You have 1 chat with new messages", Action: "x"}

	// the subscription is registered asynchronously; publish until it lands
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	got := make(chan notify.Notification, 1)
	go func() {
		var n notify.Notification
		if err := conn.ReadJSON(&n); err == nil {
			got <- n
		}
	}()

	ctx := context.Background()
	require.NoError(t, pub.PublishCard(ctx, "u2", notify.EventAdded, card))
	var n notify.Notification
	require.Eventually(t, func() bool {
		_ = pub.PublishCard(ctx, "u1", notify.EventAdded, card)
		select {
		case n = <-got:
			return true
		default:
			return false
		}
	}, 3*time.Second, 50*time.Millisecond)

	assert.Equal(t, "u1", n.UserID)
	assert.Equal(t, notify.EventAdded, n.Type)
	require.NotNil(t, n.Card)
	assert.Equal(t, card.ID, n.Card.CardID)
}

func TestSubscription_RequiresCaller(t *testing.T) {
	h := server.NewHTTPHandler(server.HTTPDeps{Logger: logger.Discard()})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws/subscriptions", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
