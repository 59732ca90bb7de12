package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddielth/machine-bridge/alert"
	"github.com/eddielth/machine-bridge/sink"
	"github.com/eddielth/machine-bridge/telemetry"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubReadings struct {
	readings []telemetry.Reading
	err      error
}

func (s stubReadings) List(context.Context) ([]telemetry.Reading, error) {
	return s.readings, s.err
}

type stubPublisher struct {
	topic   string
	payload string
	err     error
}

func (p *stubPublisher) Publish(_ context.Context, topic string, payload []byte) error {
	p.topic = topic
	p.payload = string(payload)
	return p.err
}

var stored = []telemetry.Reading{
	{ID: "a", Maquina: "M1", Volume: 15, Temperatura: 85, DataHora: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)},
	{ID: "b", Maquina: "M2", Volume: 50, Temperatura: 30, DataHora: time.Date(2025, 6, 1, 0, 1, 0, 0, time.UTC)},
}

func do(t *testing.T, router http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestListReadings(t *testing.T) {
	router := NewRouter(NewHandler(Deps{Readings: stubReadings{readings: stored}}))

	rec := do(t, router, http.MethodGet, "/api/sensor")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []telemetry.Reading
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, stored, got)
}

func TestListReadingsEmptyIsArray(t *testing.T) {
	router := NewRouter(NewHandler(Deps{Readings: stubReadings{readings: []telemetry.Reading{}}}))

	rec := do(t, router, http.MethodGet, "/api/sensor")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestListReadingsError(t *testing.T) {
	router := NewRouter(NewHandler(Deps{Readings: stubReadings{err: errors.New("db down")}}))

	rec := do(t, router, http.MethodGet, "/api/sensor")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestPublishCommand(t *testing.T) {
	pub := &stubPublisher{}
	router := NewRouter(NewHandler(Deps{Publisher: pub, PublishTopic: "sensores/alertas"}))

	rec := do(t, router, http.MethodPost, "/api/sensor/comando/parar")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "sensores/alertas", pub.topic)
	assert.Equal(t, "parar", pub.payload)
}

func TestPublishCommandFailure(t *testing.T) {
	pub := &stubPublisher{err: errors.New("not connected")}
	router := NewRouter(NewHandler(Deps{Publisher: pub, PublishTopic: "sensores/alertas"}))

	rec := do(t, router, http.MethodPost, "/api/sensor/comando/parar")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRoutesDisabledWithoutDeps(t *testing.T) {
	router := NewRouter(NewHandler(Deps{}))

	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/api/sensor").Code)
	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodPost, "/api/sensor/comando/x").Code)
	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/ws").Code)
}

func TestStatus(t *testing.T) {
	router := NewRouter(NewHandler(Deps{Status: func() interface{} {
		return gin.H{"session": "subscribed"}
	}}))

	rec := do(t, router, http.MethodGet, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"session":"subscribed"}`, rec.Body.String())
}

func TestLiveFeedStreamsEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	go hub.Run(ctx)

	srv := httptest.NewServer(NewRouter(NewHandler(Deps{Hub: hub})))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	live := sink.NewLiveSink(hub)
	verdict := alert.Verdict{AltaTemperatura: true}
	require.NoError(t, live.Deliver(context.Background(), stored[0], &verdict))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var event sink.Event
	require.NoError(t, json.Unmarshal(data, &event))
	assert.Equal(t, "reading", event.Type)
	assert.Equal(t, stored[0], event.Payload)
	require.NotNil(t, event.Alerts)
	assert.True(t, event.Alerts.AltaTemperatura)
}

func TestHubBroadcastNeverBlocks(t *testing.T) {
	hub := NewHub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < broadcastBuffer+10; i++ {
			hub.Broadcast(sink.Event{Type: "reading"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked without a running hub")
	}
	assert.Equal(t, uint64(10), hub.dropped.Load())
}
