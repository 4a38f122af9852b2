package httpapi

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/domain"
	pushhub "github.com/quangdang46/shipment-tracker/services/tracking-service/internal/infrastructure/websocket"
	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/store"
	"github.com/quangdang46/shipment-tracker/shared/metrics"
)

const account = "0xab00000000000000000000000000000000000012"

// MockTracker is a mock implementation of Tracker
type MockTracker struct {
	mock.Mock
}

func (m *MockTracker) Session() domain.WalletSession {
	return m.Called().Get(0).(domain.WalletSession)
}

func (m *MockTracker) Connect(ctx context.Context) (domain.WalletSession, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.WalletSession), args.Error(1)
}

func (m *MockTracker) Disconnect(ctx context.Context) domain.WalletSession {
	return m.Called(ctx).Get(0).(domain.WalletSession)
}

func (m *MockTracker) Refresh(ctx context.Context) ([]domain.Shipment, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Shipment), args.Error(1)
}

func (m *MockTracker) Shipments() []domain.Shipment {
	return m.Called().Get(0).([]domain.Shipment)
}

func (m *MockTracker) Shipment(ctx context.Context, id domain.ShipmentID) (domain.Shipment, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Shipment), args.Error(1)
}

func (m *MockTracker) UpdateStatus(ctx context.Context, id domain.ShipmentID, status domain.ShipmentStatus) (*domain.WriteReceipt, error) {
	args := m.Called(ctx, id, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.WriteReceipt), args.Error(1)
}

func (m *MockTracker) Dashboard() domain.DashboardStats {
	return m.Called().Get(0).(domain.DashboardStats)
}

type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ServerTestSuite drives the routes through the full middleware chain
type ServerTestSuite struct {
	suite.Suite
	tracker *MockTracker
	metrics *metrics.Metrics
	handler http.Handler
}

func (suite *ServerTestSuite) SetupTest() {
	suite.tracker = new(MockTracker)
	suite.metrics = metrics.NewMetrics("test", "api")
	suite.handler = NewServer(suite.tracker, nil, Config{
		HealthChecks: map[string]HealthCheck{"redis": func(context.Context) error { return nil }},
	}, nil, suite.metrics).Handler()
}

func (suite *ServerTestSuite) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	suite.handler.ServeHTTP(rec, req)
	return rec
}

func (suite *ServerTestSuite) decodeError(rec *httptest.ResponseRecorder) apiError {
	var out apiError
	suite.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func (suite *ServerTestSuite) TestGetSession() {
	suite.tracker.On("Session").Return(domain.WalletSession{Account: account, State: domain.StateConnected, ChainID: 1})

	rec := suite.do(http.MethodGet, "/api/session", "")

	suite.Equal(http.StatusOK, rec.Code)
	suite.NotEmpty(rec.Header().Get("X-Request-ID"))
	var body map[string]interface{}
	suite.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	suite.Equal("connected", body["state"])
	suite.Equal("0xab00...0012", body["display_account"])
}

func (suite *ServerTestSuite) TestConnectRejected() {
	suite.tracker.On("Connect", mock.Anything).Return(domain.WalletSession{State: domain.StateError}, domain.ErrConnectRejected)

	rec := suite.do(http.MethodPost, "/api/session/connect", "")

	suite.Equal(http.StatusBadGateway, rec.Code)
	suite.Equal("CONNECT_REJECTED", suite.decodeError(rec).Error.Code)
}

func (suite *ServerTestSuite) TestDisconnect() {
	suite.tracker.On("Disconnect", mock.Anything).Return(domain.WalletSession{State: domain.StateDisconnected})

	rec := suite.do(http.MethodPost, "/api/session/disconnect", "")

	suite.Equal(http.StatusOK, rec.Code)
	suite.tracker.AssertExpectations(suite.T())
}

func (suite *ServerTestSuite) TestListShipmentsIncludesStats() {
	suite.tracker.On("Shipments").Return([]domain.Shipment{
		{ID: "TRK3000", Status: domain.StatusInTransit},
		{ID: "TRK3001", Status: domain.StatusDelivered},
	})

	rec := suite.do(http.MethodGet, "/api/shipments", "")

	suite.Equal(http.StatusOK, rec.Code)
	var body struct {
		Shipments []map[string]interface{} `json:"shipments"`
		Stats     domain.DashboardStats    `json:"stats"`
	}
	suite.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	suite.Len(body.Shipments, 2)
	suite.Equal(0.5, body.Stats.DeliveryRate)
	suite.Equal(domain.DefaultLocation.Lat, body.Shipments[0]["location"].(map[string]interface{})["lat"])
}

func (suite *ServerTestSuite) TestRefreshWithoutSession() {
	suite.tracker.On("Refresh", mock.Anything).Return(nil, domain.ErrSessionUnavailable)

	rec := suite.do(http.MethodPost, "/api/shipments/refresh", "")

	suite.Equal(http.StatusUnauthorized, rec.Code)
	suite.Equal("SESSION", suite.decodeError(rec).Error.Type)
}

func (suite *ServerTestSuite) TestRefreshSupersededIsConflict() {
	suite.tracker.On("Refresh", mock.Anything).Return(nil, store.ErrRefreshSuperseded)

	rec := suite.do(http.MethodPost, "/api/shipments/refresh", "")

	suite.Equal(http.StatusConflict, rec.Code)
	suite.Equal("REFRESH_SUPERSEDED", suite.decodeError(rec).Error.Code)
}

func (suite *ServerTestSuite) TestGetShipment() {
	at := time.Date(2024, 3, 12, 10, 30, 0, 0, time.UTC)
	suite.tracker.On("Shipment", mock.Anything, "TRK3000").Return(domain.Shipment{
		ID:       "TRK3000",
		Status:   domain.StatusInTransit,
		Timeline: []domain.TimelineEvent{{Status: domain.StatusInTransit, Timestamp: at}},
	}, nil)

	rec := suite.do(http.MethodGet, "/api/shipments/TRK3000", "")

	suite.Equal(http.StatusOK, rec.Code)
	var body map[string]interface{}
	suite.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	suite.Equal("TRK3000", body["id"])
	suite.Len(body["timeline"], 1)
}

func (suite *ServerTestSuite) TestGetShipmentNotFound() {
	suite.tracker.On("Shipment", mock.Anything, "TRK0").Return(domain.Shipment{}, domain.ErrShipmentNotFound)

	rec := suite.do(http.MethodGet, "/api/shipments/TRK0", "")

	suite.Equal(http.StatusNotFound, rec.Code)
}

func (suite *ServerTestSuite) TestUpdateStatus() {
	suite.tracker.On("UpdateStatus", mock.Anything, "TRK3000", domain.StatusDelivered).
		Return(&domain.WriteReceipt{TxHash: "0xabc"}, nil)

	rec := suite.do(http.MethodPost, "/api/shipments/TRK3000/status", `{"status":"livré"}`)

	suite.Equal(http.StatusAccepted, rec.Code)
	var receipt domain.WriteReceipt
	suite.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &receipt))
	suite.Equal("0xabc", receipt.TxHash)
}

func (suite *ServerTestSuite) TestUpdateStatusRejectsUnknownStatus() {
	rec := suite.do(http.MethodPost, "/api/shipments/TRK3000/status", `{"status":"lost"}`)

	suite.Equal(http.StatusBadRequest, rec.Code)
	suite.Equal("INVALID_STATUS", suite.decodeError(rec).Error.Code)
	suite.tracker.AssertNotCalled(suite.T(), "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
}

func (suite *ServerTestSuite) TestUpdateStatusRejectsBadBody() {
	rec := suite.do(http.MethodPost, "/api/shipments/TRK3000/status", `{`)

	suite.Equal(http.StatusBadRequest, rec.Code)
}

func (suite *ServerTestSuite) TestUpdateStatusUnauthorized() {
	suite.tracker.On("UpdateStatus", mock.Anything, "TRK3000", domain.StatusAlert).
		Return(nil, domain.ErrWriteUnauthorized)

	rec := suite.do(http.MethodPost, "/api/shipments/TRK3000/status", `{"status":"ALERT"}`)

	suite.Equal(http.StatusUnprocessableEntity, rec.Code)
	suite.Equal("WRITE_UNAUTHORIZED", suite.decodeError(rec).Error.Code)
}

func (suite *ServerTestSuite) TestUnexpectedErrorIsInternal() {
	suite.tracker.On("Refresh", mock.Anything).Return(nil, stderrors.New("dial tcp 10.0.0.7:8545: refused"))

	rec := suite.do(http.MethodPost, "/api/shipments/refresh", "")

	suite.Equal(http.StatusInternalServerError, rec.Code)
	body := suite.decodeError(rec)
	suite.Equal("INTERNAL", body.Error.Type)
	suite.Equal("unexpected server error", body.Error.Message)
	suite.NotContains(rec.Body.String(), "10.0.0.7")
}

func (suite *ServerTestSuite) TestDashboard() {
	suite.tracker.On("Dashboard").Return(domain.DashboardStats{Total: 4, Alerts: 1})

	rec := suite.do(http.MethodGet, "/api/dashboard", "")

	suite.Equal(http.StatusOK, rec.Code)
	suite.JSONEq(`{"total":4,"alerts":1,"delivered":0,"in_transit":0,"delivery_rate":0}`, rec.Body.String())
}

func (suite *ServerTestSuite) TestHealth() {
	suite.tracker.On("Session").Return(domain.WalletSession{State: domain.StateDisconnected})

	rec := suite.do(http.MethodGet, "/healthz", "")

	suite.Equal(http.StatusOK, rec.Code)
	suite.Contains(rec.Body.String(), `"redis":"ok"`)
}

func (suite *ServerTestSuite) TestHealthDegraded() {
	suite.tracker.On("Session").Return(domain.WalletSession{State: domain.StateDisconnected})
	handler := NewServer(suite.tracker, nil, Config{
		HealthChecks: map[string]HealthCheck{"redis": func(context.Context) error { return stderrors.New("dial tcp: refused") }},
	}, nil, nil).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	suite.Equal(http.StatusServiceUnavailable, rec.Code)
}

func (suite *ServerTestSuite) TestRequestsAreCounted() {
	suite.tracker.On("Dashboard").Return(domain.DashboardStats{})

	suite.do(http.MethodGet, "/api/dashboard", "")

	counter := suite.metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "GET /api/dashboard", "200")
	suite.Equal(1.0, testutil.ToFloat64(counter))
}

func (suite *ServerTestSuite) TestPanicsBecome500() {
	suite.tracker.On("Dashboard").Run(func(mock.Arguments) { panic("boom") }).Return(domain.DashboardStats{})

	rec := suite.do(http.MethodGet, "/api/dashboard", "")

	suite.Equal(http.StatusInternalServerError, rec.Code)
}

func (suite *ServerTestSuite) TestRateLimited() {
	handler := NewServer(suite.tracker, nil, Config{
		RateLimit: RateLimiterConfig{RatePerSecond: 1, Burst: 1},
	}, nil, nil).Handler()
	suite.tracker.On("Dashboard").Return(domain.DashboardStats{})

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/dashboard", nil))
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/api/dashboard", nil))

	suite.Equal(http.StatusOK, first.Code)
	suite.Equal(http.StatusTooManyRequests, second.Code)
	suite.Contains(second.Body.String(), "RATE_LIMITED")
}

func (suite *ServerTestSuite) TestWebSocketUpgradeThroughMiddleware() {
	hub := pushhub.NewHub(0, nil, nil)
	defer hub.Close()
	hub.SetSnapshot(func() []pushhub.Frame {
		return []pushhub.Frame{{Kind: "session", Payload: map[string]string{"state": "Connected"}}}
	})

	srv := httptest.NewServer(NewServer(suite.tracker, hub, Config{}, nil, suite.metrics).Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	suite.Require().NoError(err)
	defer conn.Close()
	suite.Equal(http.StatusSwitchingProtocols, resp.StatusCode)

	suite.Require().NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	var msg struct {
		Type string `json:"type"`
	}
	suite.Require().NoError(conn.ReadJSON(&msg))
	suite.Equal("session", msg.Type)

	upgraded := suite.metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "GET /ws", "101")
	suite.Eventually(func() bool { return testutil.ToFloat64(upgraded) == 1 }, time.Second, 10*time.Millisecond)
}

func TestServerTestSuite(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}

func TestRateLimiterPrunesIdleClients(t *testing.T) {
	now := time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(RateLimiterConfig{RatePerSecond: 5, Burst: 5, IdleTimeout: time.Minute})
	rl.now = func() time.Time { return now }

	rl.Allow("10.0.0.1")
	now = now.Add(30 * time.Second)
	rl.Allow("10.0.0.2")
	now = now.Add(45 * time.Second)

	if removed := rl.Prune(); removed != 1 {
		t.Fatalf("expected 1 pruned limiter, got %d", removed)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	if got := clientIP(req); got != "192.0.2.1" {
		t.Fatalf("unexpected ip %q", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.7" {
		t.Fatalf("unexpected forwarded ip %q", got)
	}
}
