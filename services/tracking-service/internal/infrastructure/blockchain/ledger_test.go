package blockchain

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/domain"
)

const (
	alice = "0xAA00000000000000000000000000000000000001"
	bob   = "0xbb00000000000000000000000000000000000002"
)

func TestMemoryLedger_ListFiltersByOwner(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(0)
	l.SeedDemo(alice)
	l.Seed(domain.Shipment{ID: "TRK1000", Status: domain.StatusPickedUp}, nil)

	aliceList, err := l.ListShipments(ctx, "0xaa00000000000000000000000000000000000001")
	require.NoError(t, err)
	require.Len(t, aliceList, 2)
	assert.Equal(t, "TRK1000", aliceList[0].ID)
	assert.Equal(t, DemoShipmentID, aliceList[1].ID)

	bobList, err := l.ListShipments(ctx, bob)
	require.NoError(t, err)
	require.Len(t, bobList, 1)
	assert.Equal(t, "TRK1000", bobList[0].ID)
}

func TestMemoryLedger_DemoEventsAreRaw(t *testing.T) {
	l := NewMemoryLedger(0)
	l.SeedDemo()

	record, err := l.GetShipment(context.Background(), DemoShipmentID)

	require.NoError(t, err)
	assert.Len(t, record.Events, 3)
	assert.Equal(t, domain.StatusInTransit, record.Events[0].Status)
	assert.Equal(t, domain.StatusInTransit, record.Shipment.Status)
	assert.Nil(t, record.Shipment.Timeline)
	assert.Equal(t, DemoRFIDTag, record.Shipment.RFIDTag)
	assert.NotNil(t, record.Shipment.DeliveryPoint)
}

func TestMemoryLedger_GetMissing(t *testing.T) {
	_, err := NewMemoryLedger(0).GetShipment(context.Background(), "TRK0")
	assert.ErrorIs(t, err, domain.ErrNoSuchShipment)
}

func TestMemoryLedger_WriteRequiresOwner(t *testing.T) {
	l := NewMemoryLedger(0)
	l.SeedDemo(alice)

	_, err := l.SubmitStatusUpdate(context.Background(), bob, DemoShipmentID, domain.StatusDelivered)
	assert.ErrorIs(t, err, domain.ErrNotPermitted)

	_, err = l.SubmitStatusUpdate(context.Background(), alice, "TRK0", domain.StatusDelivered)
	assert.ErrorIs(t, err, domain.ErrNoSuchShipment)
}

func TestMemoryLedger_WriteVisibleAfterLag(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 13, 9, 0, 0, 0, time.UTC)
	l := NewMemoryLedger(time.Minute)
	l.now = func() time.Time { return now }
	l.SeedDemo(alice)

	receipt, err := l.SubmitStatusUpdate(ctx, alice, DemoShipmentID, domain.StatusDelivered)
	require.NoError(t, err)
	assert.Len(t, receipt.TxHash, 66)

	record, err := l.GetShipment(ctx, DemoShipmentID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInTransit, record.Shipment.Status)

	now = now.Add(2 * time.Minute)
	record, err = l.GetShipment(ctx, DemoShipmentID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDelivered, record.Shipment.Status)
	assert.Len(t, record.Events, 4)
	require.NotNil(t, record.Events[3].Location)
}

func TestMemoryLedger_DistinctTxHashes(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(0)
	l.SeedDemo()

	first, err := l.SubmitStatusUpdate(ctx, alice, DemoShipmentID, domain.StatusAlert)
	require.NoError(t, err)
	second, err := l.SubmitStatusUpdate(ctx, alice, DemoShipmentID, domain.StatusAlert)
	require.NoError(t, err)

	assert.NotEqual(t, first.TxHash, second.TxHash)
}

func TestMemoryLedger_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemoryLedger(0).ListShipments(ctx, alice)
	assert.ErrorIs(t, err, context.Canceled)
}
