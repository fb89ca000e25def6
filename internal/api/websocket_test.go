package api

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"fxgate/internal/audit"
	"fxgate/internal/events"
	"fxgate/internal/executor"
	"fxgate/internal/risk"
	"fxgate/pkg/instruments"
)

func newWSTestServer(t *testing.T) (*httptest.Server, *events.Bus) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := instruments.NewDirectory()
	dir.EnableAll()
	ledger := risk.NewInMemory(risk.DefaultLimits(), dir)
	auditLog := audit.NewLog(5)
	bus := events.NewBus()
	exec := executor.New(&stubBroker{}, ledger, dir, bus, auditLog, 20, 40)

	server := NewServer(exec, bus, auditLog, dir, Options{JWTSecret: "test-secret"})
	ts := httptest.NewServer(server.Router)
	t.Cleanup(ts.Close)
	return ts, bus
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestWebsocketStreamsBusEvents(t *testing.T) {
	ts, bus := newWSTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	waitFor(t, func() bool { return bus.Subscribers() == 1 }, "stream subscription")

	bus.Publish(events.EventRiskAlert, "budget warning")

	var env events.Envelope
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read envelope: %v", err)
	}
	if env.Event != events.EventRiskAlert || env.Payload != "budget warning" {
		t.Fatalf("envelope=%+v", env)
	}
}

func TestWebsocketUnsubscribesOnIdleDisconnect(t *testing.T) {
	ts, bus := newWSTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	waitFor(t, func() bool { return bus.Subscribers() == 1 }, "stream subscription")

	// Close with no events flowing: the handler must notice through its read
	// pump and drop the subscription instead of blocking forever.
	conn.Close()
	waitFor(t, func() bool { return bus.Subscribers() == 0 }, "subscription release after disconnect")
}
