package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"github.com/quangdang46/shipment-tracker/shared/metrics"
)

type frame struct {
	Type    string          `json:"type"`
	Version int             `json:"version"`
	Seq     uint64          `json:"seq"`
	Data    json.RawMessage `json:"data"`
}

// HubTestSuite runs a hub behind an httptest server
type HubTestSuite struct {
	suite.Suite
	hub     *Hub
	metrics *metrics.Metrics
	server  *httptest.Server
}

func (suite *HubTestSuite) SetupTest() {
	suite.metrics = metrics.NewMetrics("test", "hub")
	suite.hub = NewHub(2, nil, suite.metrics)
	suite.server = httptest.NewServer(suite.hub)
}

func (suite *HubTestSuite) TearDownTest() {
	suite.hub.Close()
	suite.server.Close()
}

func (suite *HubTestSuite) dial() *websocket.Conn {
	url := "ws" + strings.TrimPrefix(suite.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	suite.Require().NoError(err)
	return conn
}

func (suite *HubTestSuite) read(conn *websocket.Conn) frame {
	suite.Require().NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	var f frame
	suite.Require().NoError(conn.ReadJSON(&f))
	return f
}

func (suite *HubTestSuite) waitClients(n int) {
	suite.Require().Eventually(func() bool { return suite.hub.ClientCount() == n }, time.Second, 5*time.Millisecond)
}

func (suite *HubTestSuite) TestSnapshotThenBroadcastInOrder() {
	suite.hub.SetSnapshot(func() []Frame {
		return []Frame{{Kind: "session", Payload: map[string]string{"state": "connected"}}}
	})

	conn := suite.dial()
	defer conn.Close()
	suite.waitClients(1)

	suite.hub.Broadcast("shipments", []string{"TRK3000"})
	suite.hub.Broadcast("session", map[string]string{"state": "disconnected"})

	first := suite.read(conn)
	suite.Equal("session", first.Type)
	suite.JSONEq(`{"state":"connected"}`, string(first.Data))

	second := suite.read(conn)
	suite.Equal("shipments", second.Type)
	suite.Equal(1, second.Version)
	suite.Greater(second.Seq, first.Seq)

	third := suite.read(conn)
	suite.JSONEq(`{"state":"disconnected"}`, string(third.Data))
	suite.Greater(third.Seq, second.Seq)
}

func (suite *HubTestSuite) TestPingGetsPong() {
	conn := suite.dial()
	defer conn.Close()
	suite.waitClients(1)

	suite.Require().NoError(conn.WriteJSON(map[string]string{"type": "ping"}))

	suite.Equal("pong", suite.read(conn).Type)
}

func (suite *HubTestSuite) TestCapacityAndGaugeTracking() {
	a := suite.dial()
	b := suite.dial()
	suite.waitClients(2)
	suite.Equal(2.0, testutil.ToFloat64(suite.metrics.WebSocketClients))

	url := "ws" + strings.TrimPrefix(suite.server.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	suite.Error(err)
	suite.Require().NotNil(resp)
	suite.Equal(http.StatusServiceUnavailable, resp.StatusCode)

	a.Close()
	suite.waitClients(1)
	b.Close()
	suite.waitClients(0)
	suite.Equal(0.0, testutil.ToFloat64(suite.metrics.WebSocketClients))
}

func (suite *HubTestSuite) TestCloseDisconnectsClients() {
	conn := suite.dial()
	defer conn.Close()
	suite.waitClients(1)

	suite.hub.Close()

	suite.Require().NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	_, _, err := conn.ReadMessage()
	suite.Error(err)
	suite.Equal(0, suite.hub.ClientCount())
}

func TestHubTestSuite(t *testing.T) {
	suite.Run(t, new(HubTestSuite))
}
