package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"fxgate/internal/audit"
	"fxgate/internal/events"
	"fxgate/internal/executor"
	"fxgate/internal/risk"
	"fxgate/pkg/broker/oanda"
	"fxgate/pkg/instruments"
)

type stubBroker struct {
	submitted int
}

func (b *stubBroker) GetQuote(context.Context, string) (oanda.Quote, error) {
	return oanda.Quote{Bid: 1.0999, Ask: 1.1000, Spread: 0.0001}, nil
}

func (b *stubBroker) GetBalance(context.Context) (float64, error) { return 10000, nil }

func (b *stubBroker) GetOpenPositions(context.Context) ([]oanda.Position, error) {
	return []oanda.Position{{Instrument: "EUR_USD", LongUnits: 100000}}, nil
}

func (b *stubBroker) GetOpenPositionCount(context.Context) (int, error) { return 1, nil }

func (b *stubBroker) SubmitMarketOrder(_ context.Context, _ string, _ int, _, _ float64) (oanda.OrderRef, error) {
	b.submitted++
	return oanda.OrderRef{ID: "42", Filled: true}, nil
}

func (b *stubBroker) ClosePosition(context.Context, string) error { return nil }

func (b *stubBroker) GetOpenTrades(context.Context) ([]oanda.Trade, error) { return nil, nil }

func newTestAPIServer(t *testing.T, opts Options) (*httptest.Server, *stubBroker, func()) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	broker := &stubBroker{}
	dir := instruments.NewDirectory()
	dir.EnableAll()
	ledger := risk.NewInMemory(risk.DefaultLimits(), dir)
	auditLog := audit.NewLog(20)
	exec := executor.New(broker, ledger, dir, events.NewBus(), auditLog, 20, 40)

	server := NewServer(exec, events.NewBus(), auditLog, dir, opts)
	httpServer := httptest.NewServer(server.Router)
	return httpServer, broker, httpServer.Close
}

func doJSONRequest(t *testing.T, client *http.Client, method, url, token string, payload any, out any) int {
	t.Helper()

	var buf bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&buf).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}

	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func login(t *testing.T, client *http.Client, baseURL, password string) string {
	t.Helper()
	var resp struct {
		Token string `json:"token"`
	}
	status := doJSONRequest(t, client, http.MethodPost, baseURL+"/api/auth/token", "", map[string]string{
		"password": password,
	}, &resp)
	if status != http.StatusOK || resp.Token == "" {
		t.Fatalf("login failed status=%d resp=%+v", status, resp)
	}
	return resp.Token
}

func signPayload(secret string, timestamp, action string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + action))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestHealth(t *testing.T) {
	ts, _, cleanup := newTestAPIServer(t, Options{JWTSecret: "test-secret"})
	defer cleanup()

	var resp struct {
		Status string `json:"status"`
	}
	status := doJSONRequest(t, ts.Client(), http.MethodGet, ts.URL+"/health", "", nil, &resp)
	if status != http.StatusOK || resp.Status != "ok" {
		t.Fatalf("status=%d resp=%+v", status, resp)
	}
}

func TestWebhookExecutesSignal(t *testing.T) {
	ts, broker, cleanup := newTestAPIServer(t, Options{JWTSecret: "test-secret"})
	defer cleanup()

	var resp struct {
		Status     string `json:"status"`
		Instrument string `json:"instrument"`
	}
	status := doJSONRequest(t, ts.Client(), http.MethodPost, ts.URL+"/webhook", "", map[string]any{
		"action":     "buy",
		"instrument": "EUR_USD",
	}, &resp)
	if status != http.StatusOK {
		t.Fatalf("status=%d resp=%+v", status, resp)
	}
	if resp.Status != "success" || resp.Instrument != "EUR_USD" {
		t.Fatalf("resp=%+v", resp)
	}
	if broker.submitted != 1 {
		t.Fatalf("submitted=%d", broker.submitted)
	}
}

func TestWebhookRequiresValidSignature(t *testing.T) {
	ts, broker, cleanup := newTestAPIServer(t, Options{
		JWTSecret:     "test-secret",
		WebhookSecret: "hook-secret",
	})
	defer cleanup()

	payload := map[string]any{
		"action":     "buy",
		"instrument": "EUR_USD",
		"timestamp":  1234567890,
	}

	// Missing signature.
	status := doJSONRequest(t, ts.Client(), http.MethodPost, ts.URL+"/webhook", "", payload, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("missing signature: status=%d", status)
	}

	// Wrong signature.
	payload["signature"] = "deadbeef"
	status = doJSONRequest(t, ts.Client(), http.MethodPost, ts.URL+"/webhook", "", payload, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("bad signature: status=%d", status)
	}
	if broker.submitted != 0 {
		t.Fatal("unsigned payload must not reach the broker")
	}

	// Valid signature over timestamp+action.
	payload["signature"] = signPayload("hook-secret", "1234567890", "buy")
	var resp struct {
		Status string `json:"status"`
	}
	status = doJSONRequest(t, ts.Client(), http.MethodPost, ts.URL+"/webhook", "", payload, &resp)
	if status != http.StatusOK || resp.Status != "success" {
		t.Fatalf("signed payload: status=%d resp=%+v", status, resp)
	}
}

func TestWebhookIPAllowlist(t *testing.T) {
	ts, _, cleanup := newTestAPIServer(t, Options{
		JWTSecret:  "test-secret",
		AllowedIPs: []string{"10.1.2.3"},
	})
	defer cleanup()

	status := doJSONRequest(t, ts.Client(), http.MethodPost, ts.URL+"/webhook", "", map[string]any{
		"action":     "buy",
		"instrument": "EUR_USD",
	}, nil)
	if status != http.StatusForbidden {
		t.Fatalf("status=%d, expected 403 for unlisted IP", status)
	}
}

func TestWebhookRejectsEmptyBody(t *testing.T) {
	ts, _, cleanup := newTestAPIServer(t, Options{JWTSecret: "test-secret"})
	defer cleanup()

	status := doJSONRequest(t, ts.Client(), http.MethodPost, ts.URL+"/webhook", "", map[string]any{}, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("status=%d, expected 400", status)
	}
}

func TestAuthTokenFlow(t *testing.T) {
	ts, _, cleanup := newTestAPIServer(t, Options{
		JWTSecret:         "test-secret",
		DashboardPassword: "hunter2",
	})
	defer cleanup()
	client := ts.Client()

	// Wrong password.
	status := doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/auth/token", "", map[string]string{
		"password": "wrong",
	}, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("wrong password: status=%d", status)
	}

	// No token on a protected route.
	status = doJSONRequest(t, client, http.MethodGet, ts.URL+"/api/risk", "", nil, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("unauthenticated: status=%d", status)
	}

	token := login(t, client, ts.URL, "hunter2")

	var riskResp struct {
		TradingEnabled bool `json:"trading_enabled"`
	}
	status = doJSONRequest(t, client, http.MethodGet, ts.URL+"/api/risk", token, nil, &riskResp)
	if status != http.StatusOK || !riskResp.TradingEnabled {
		t.Fatalf("risk status=%d resp=%+v", status, riskResp)
	}
}

func TestAuthNotConfigured(t *testing.T) {
	ts, _, cleanup := newTestAPIServer(t, Options{JWTSecret: "test-secret"})
	defer cleanup()

	status := doJSONRequest(t, ts.Client(), http.MethodPost, ts.URL+"/api/auth/token", "", map[string]string{
		"password": "anything",
	}, nil)
	if status != http.StatusServiceUnavailable {
		t.Fatalf("status=%d, expected 503 with no password configured", status)
	}
}

func TestTradingToggleGatesWebhook(t *testing.T) {
	ts, broker, cleanup := newTestAPIServer(t, Options{
		JWTSecret:         "test-secret",
		DashboardPassword: "hunter2",
	})
	defer cleanup()
	client := ts.Client()
	token := login(t, client, ts.URL, "hunter2")

	status := doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/trading/disable", token, nil, nil)
	if status != http.StatusOK {
		t.Fatalf("disable status=%d", status)
	}

	var resp struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	}
	status = doJSONRequest(t, client, http.MethodPost, ts.URL+"/webhook", "", map[string]any{
		"action":     "buy",
		"instrument": "EUR_USD",
	}, &resp)
	if status != http.StatusOK || resp.Status != "rejected" {
		t.Fatalf("status=%d resp=%+v", status, resp)
	}
	if broker.submitted != 0 {
		t.Fatal("disabled trading must not submit orders")
	}

	status = doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/trading/enable", token, nil, nil)
	if status != http.StatusOK {
		t.Fatalf("enable status=%d", status)
	}
	status = doJSONRequest(t, client, http.MethodPost, ts.URL+"/webhook", "", map[string]any{
		"action":     "buy",
		"instrument": "EUR_USD",
	}, &resp)
	if status != http.StatusOK || resp.Status != "success" {
		t.Fatalf("after enable: status=%d resp=%+v", status, resp)
	}
}

func TestExecutionsListsAuditTrail(t *testing.T) {
	ts, _, cleanup := newTestAPIServer(t, Options{
		JWTSecret:         "test-secret",
		DashboardPassword: "hunter2",
	})
	defer cleanup()
	client := ts.Client()
	token := login(t, client, ts.URL, "hunter2")

	status := doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/execute", token, map[string]any{
		"action":     "buy",
		"instrument": "GBP_USD",
	}, nil)
	if status != http.StatusOK {
		t.Fatalf("execute status=%d", status)
	}

	var resp struct {
		Executions []struct {
			Instrument string `json:"instrument"`
			Status     string `json:"status"`
		} `json:"executions"`
	}
	status = doJSONRequest(t, client, http.MethodGet, ts.URL+"/api/executions", token, nil, &resp)
	if status != http.StatusOK {
		t.Fatalf("executions status=%d", status)
	}
	if len(resp.Executions) != 1 || resp.Executions[0].Instrument != "GBP_USD" {
		t.Fatalf("executions=%+v", resp.Executions)
	}
}

func TestInstrumentsList(t *testing.T) {
	ts, _, cleanup := newTestAPIServer(t, Options{
		JWTSecret:         "test-secret",
		DashboardPassword: "hunter2",
	})
	defer cleanup()
	client := ts.Client()
	token := login(t, client, ts.URL, "hunter2")

	var resp struct {
		Instruments []struct {
			Symbol string `json:"symbol"`
		} `json:"instruments"`
	}
	status := doJSONRequest(t, client, http.MethodGet, ts.URL+"/api/instruments", token, nil, &resp)
	if status != http.StatusOK || len(resp.Instruments) == 0 {
		t.Fatalf("status=%d instruments=%d", status, len(resp.Instruments))
	}
}

func TestRateLimitEnforcesConfiguredBudget(t *testing.T) {
	// Burst of one and a refill rate far below one token per test run: the
	// second request must be turned away.
	ts, _, cleanup := newTestAPIServer(t, Options{
		JWTSecret:          "test-secret",
		RateLimitPerSecond: 0.001,
		RateLimitBurst:     1,
	})
	defer cleanup()

	if status := doJSONRequest(t, ts.Client(), http.MethodGet, ts.URL+"/health", "", nil, nil); status != http.StatusOK {
		t.Fatalf("first request status=%d", status)
	}
	if status := doJSONRequest(t, ts.Client(), http.MethodGet, ts.URL+"/health", "", nil, nil); status != http.StatusTooManyRequests {
		t.Fatalf("second request status=%d, expected 429", status)
	}
}

func TestSignatureFormatsNumericTimestamp(t *testing.T) {
	// JSON numbers decode as float64; the digest must still cover the
	// sender's integer rendering.
	payload := map[string]any{
		"action":    "sell",
		"timestamp": float64(1234567890),
		"signature": signPayload("s3cret", "1234567890", "sell"),
	}
	if !validSignature(payload, "s3cret") {
		t.Fatal("numeric timestamp should verify")
	}
}
