package tui

import (
	"bytes"
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/domain"
	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/store"
)

// MockTracker is a mock implementation of Tracker
type MockTracker struct {
	mock.Mock
}

func (m *MockTracker) Session() domain.WalletSession {
	args := m.Called()
	return args.Get(0).(domain.WalletSession)
}

func (m *MockTracker) Shipments() []domain.Shipment {
	args := m.Called()
	return args.Get(0).([]domain.Shipment)
}

func (m *MockTracker) Connect(ctx context.Context) (domain.WalletSession, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.WalletSession), args.Error(1)
}

func (m *MockTracker) Disconnect(ctx context.Context) domain.WalletSession {
	args := m.Called(ctx)
	return args.Get(0).(domain.WalletSession)
}

func (m *MockTracker) Refresh(ctx context.Context) ([]domain.Shipment, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Shipment), args.Error(1)
}

func (m *MockTracker) SubscribeSession(fn func(domain.WalletSession)) func() {
	m.Called(fn)
	return func() {}
}

func (m *MockTracker) SubscribeShipments(fn func(store.Change)) func() {
	m.Called(fn)
	return func() {}
}

const account = "0xab00000000000000000000000000000000000012"

func demoShipments() []domain.Shipment {
	return []domain.Shipment{
		{
			ID:         "TRK3000",
			Status:     domain.StatusInTransit,
			Location:   &domain.Location{Lat: 48.8566, Lng: 2.3522},
			LastUpdate: time.Now().Add(-2 * time.Hour),
			Timeline: []domain.TimelineEvent{
				{Status: domain.StatusInTransit, Timestamp: time.Now().Add(-2 * time.Hour), Details: "Leaving Paris hub"},
			},
		},
		{ID: "TRK3001", Status: domain.StatusAlert, LastUpdate: time.Now()},
	}
}

func newTracker() *MockTracker {
	tracker := new(MockTracker)
	tracker.On("Session").Return(domain.WalletSession{State: domain.StateDisconnected})
	tracker.On("Shipments").Return([]domain.Shipment(nil))
	return tracker
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	require.True(t, ok)
	return model, cmd
}

func TestView_EmptyDashboard(t *testing.T) {
	m := New(newTracker())

	view := m.View()

	assert.Contains(t, view, "disconnected")
	assert.Contains(t, view, "(no shipments)")
	assert.Contains(t, view, "0 shipments")
}

func TestUpdate_ShipmentsAndSession(t *testing.T) {
	m := New(newTracker())
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})
	m, _ = update(t, m, sessionMsg(domain.WalletSession{State: domain.StateConnected, Account: account, ChainID: 1}))
	m, _ = update(t, m, shipmentsMsg(demoShipments()))

	view := m.View()

	assert.Contains(t, view, "connected")
	assert.Contains(t, view, "0xab00...0012")
	assert.Contains(t, view, "TRK3000")
	assert.Contains(t, view, "In transit")
	assert.Contains(t, view, "48.8566, 2.3522")
	assert.Contains(t, view, "2 shipments")
	assert.Contains(t, view, "1 alerts")
	assert.Contains(t, view, "Leaving Paris hub")
}

func TestUpdate_QuitKey(t *testing.T) {
	m := New(newTracker())

	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})

	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestUpdate_RefreshFailureIsShown(t *testing.T) {
	tracker := newTracker()
	tracker.On("Refresh", mock.Anything).Return(nil, domain.ErrSessionUnavailable)
	m := New(tracker)

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	require.NotNil(t, cmd)
	msg := cmd()
	m, _ = update(t, m, msg)

	assert.Contains(t, m.View(), domain.ErrSessionUnavailable.Error())
	tracker.AssertCalled(t, "Refresh", mock.Anything)
}

func TestUpdate_ConnectKey(t *testing.T) {
	tracker := newTracker()
	tracker.On("Connect", mock.Anything).Return(domain.WalletSession{State: domain.StateConnected, Account: account}, nil)
	m := New(tracker)

	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")})
	require.NotNil(t, cmd)

	assert.Nil(t, cmd())
	tracker.AssertCalled(t, "Connect", mock.Anything)
}

func TestUpdate_RecoveredSessionClearsError(t *testing.T) {
	m := New(newTracker())
	m, _ = update(t, m, sessionMsg(domain.WalletSession{State: domain.StateError, LastError: domain.ErrProviderRejected}))
	assert.Contains(t, m.View(), domain.ErrProviderRejected.Error())

	m, _ = update(t, m, sessionMsg(domain.WalletSession{State: domain.StateConnected, Account: account}))

	assert.NotContains(t, m.View(), domain.ErrProviderRejected.Error())
}

func TestRun_StopsWithContext(t *testing.T) {
	tracker := newTracker()
	tracker.On("SubscribeSession", mock.Anything).Return()
	tracker.On("SubscribeShipments", mock.Anything).Return()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	var out bytes.Buffer
	err := Run(ctx, tracker, tea.WithInput(nil), tea.WithOutput(&out))

	assert.NoError(t, err)
	tracker.AssertExpectations(t)
}
