package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/domain"
	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/service"
)

// executeCommand runs a fresh command tree with args and captures stdout
func executeCommand(ctx context.Context, args ...string) (string, error) {
	root := NewRootCommand()
	return run(ctx, root, args...)
}

func run(ctx context.Context, root *cobra.Command, args ...string) (string, error) {
	out := new(bytes.Buffer)
	root.SetOut(out)
	root.SetErr(new(bytes.Buffer))
	root.SetArgs(args)
	_, err := root.ExecuteContextC(ctx)
	return out.String(), err
}

// memoryEnv pins every adapter to its in-process implementation
func memoryEnv(t *testing.T) {
	t.Helper()
	t.Setenv("PROVIDER_KIND", "memory")
	t.Setenv("GATEWAY_KIND", "memory")
	t.Setenv("MEMORY_ACCOUNTS", "0xAB00000000000000000000000000000000000012")
	t.Setenv("REDIS_HOST", "")
	t.Setenv("RABBITMQ_HOST", "")
	t.Setenv("SENTRY_DSN", "")
	t.Setenv("LOG_LEVEL", "error")
}

func TestShipments_ListsAccountShipments(t *testing.T) {
	memoryEnv(t)

	out, err := executeCommand(context.Background(), "shipments")

	require.NoError(t, err)
	assert.Contains(t, out, "Shipments (1)")
	assert.Contains(t, out, "TRK3000")
	assert.Contains(t, out, "In transit")
}

func TestShipments_ShowsTimeline(t *testing.T) {
	memoryEnv(t)

	out, err := executeCommand(context.Background(), "shipments", "TRK3000")

	require.NoError(t, err)
	assert.Contains(t, out, "Shipment TRK3000")
	assert.Contains(t, out, "Timeline")
	assert.Contains(t, out, "Picked up")
	assert.Contains(t, out, "48.8566, 2.3522")
	assert.Contains(t, out, "RFID123")
	assert.Contains(t, out, "45.7640, 4.8357")
}

func TestShipments_UnknownID(t *testing.T) {
	memoryEnv(t)

	_, err := executeCommand(context.Background(), "shipments", "TRK0000")

	assert.True(t, errors.Is(err, domain.ErrShipmentNotFound), "got %v", err)
}

func TestShipments_JSON(t *testing.T) {
	memoryEnv(t)

	out, err := executeCommand(context.Background(), "shipments", "--json")
	require.NoError(t, err)

	var views []service.ShipmentView
	require.NoError(t, json.Unmarshal([]byte(out), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "TRK3000", views[0].ID)
	assert.Equal(t, domain.StatusInTransit, views[0].Status)
	assert.Equal(t, "RFID123", views[0].RFIDTag)
	assert.NotNil(t, views[0].DeliveryPoint)
}

func TestSession_JSON(t *testing.T) {
	memoryEnv(t)

	out, err := executeCommand(context.Background(), "session", "--json")
	require.NoError(t, err)

	var v service.SessionView
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, "Connected", v.State)
	assert.Equal(t, "0xab00000000000000000000000000000000000012", v.Account)
	assert.Equal(t, "0xab00...0012", v.DisplayAccount)
}

func TestStatus_RejectsUnknownStatus(t *testing.T) {
	memoryEnv(t)

	_, err := executeCommand(context.Background(), "status", "TRK3000", "lost")

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidStatus))
	assert.Contains(t, err.Error(), "lost")
}

func TestStatus_SubmitsUpdate(t *testing.T) {
	memoryEnv(t)

	out, err := executeCommand(context.Background(), "status", "TRK3000", "livré", "--json")
	require.NoError(t, err)

	var receipt domain.WriteReceipt
	require.NoError(t, json.Unmarshal([]byte(out), &receipt))
	assert.True(t, strings.HasPrefix(receipt.TxHash, "0x"))
	assert.False(t, receipt.SubmittedAt.IsZero())
}

func TestDashboard_Text(t *testing.T) {
	memoryEnv(t)

	out, err := executeCommand(context.Background(), "dashboard")

	require.NoError(t, err)
	assert.Contains(t, out, "Dashboard")
	assert.Contains(t, out, "Shipments:")
	assert.Contains(t, out, "0%")
}

func TestDashboard_JSON(t *testing.T) {
	memoryEnv(t)

	out, err := executeCommand(context.Background(), "dashboard", "--json")
	require.NoError(t, err)

	var stats domain.DashboardStats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.InTransit)
	assert.Zero(t, stats.Alerts)
}

func TestWatch_PlainPrintsChanges(t *testing.T) {
	memoryEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	out, err := executeCommand(ctx, "watch", "--plain")

	require.NoError(t, err)
	assert.Contains(t, out, "session Connected 0xab00...0012")
	assert.Contains(t, out, "TRK3000=InTransit")
}

func TestServe_StopsWithContext(t *testing.T) {
	memoryEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := executeCommand(ctx, "serve", "--addr", "127.0.0.1:0")

	assert.NoError(t, err)
}

func TestRoot_RejectsInvalidConfig(t *testing.T) {
	memoryEnv(t)
	t.Setenv("GATEWAY_KIND", "postgres")

	_, err := executeCommand(context.Background(), "dashboard")

	assert.ErrorContains(t, err, "GATEWAY_KIND")
}
