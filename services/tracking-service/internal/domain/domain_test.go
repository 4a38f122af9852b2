package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quangdang46/shipment-tracker/shared/errors"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		input string
		want  ShipmentStatus
	}{
		{"InTransit", StatusInTransit},
		{"IN_TRANSIT", StatusInTransit},
		{"en transit", StatusInTransit},
		{"Pris en charge", StatusPickedUp},
		{"PICKED_UP", StatusPickedUp},
		{"Livré", StatusDelivered},
		{"delivered", StatusDelivered},
		{"Alerte", StatusAlert},
		{"3", StatusAlert},
		{" Unknown ", StatusUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseStatus(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseStatus("lost at sea")
	assert.Error(t, err)
}

func TestStatusFromCode(t *testing.T) {
	assert.Equal(t, StatusDelivered, StatusFromCode(2))
	assert.Equal(t, StatusUnknown, StatusFromCode(7))
	assert.False(t, StatusUnknown.Valid())
}

func TestStatusCategory(t *testing.T) {
	assert.Equal(t, CategoryPickedUp, StatusPickedUp.Category())
	assert.Equal(t, CategoryInTransit, StatusInTransit.Category())
	assert.Equal(t, CategoryDelivered, StatusDelivered.Category())
	assert.Equal(t, CategoryOther, StatusAlert.Category())
	assert.Equal(t, CategoryOther, StatusUnknown.Category())
}

func TestStatusJSON(t *testing.T) {
	b, err := json.Marshal(Shipment{ID: "TRK3000", Status: StatusInTransit})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"status":"InTransit"`)

	var s Shipment
	require.NoError(t, json.Unmarshal([]byte(`{"id":"TRK1","status":"DELIVERED"}`), &s))
	assert.Equal(t, StatusDelivered, s.Status)
}

func TestFormatAddress(t *testing.T) {
	assert.Equal(t, "0x1234...abcd", FormatAddress("0x1234567890123456789012345678901234abcd"))
	assert.Equal(t, "0xab", FormatAddress("0xab"))
}

func TestNormalizeAndValidateAddress(t *testing.T) {
	assert.Equal(t, Address("0xabcdef"), NormalizeAddress("  0xABCdef "))
	assert.True(t, IsHexAddress("0xAb00000000000000000000000000000000000012"))
	assert.False(t, IsHexAddress("0xZZ00000000000000000000000000000000000012"))
	assert.False(t, IsHexAddress("0xab12"))
}

func TestComputeStats(t *testing.T) {
	stats := ComputeStats([]Shipment{
		{ID: "A", Status: StatusDelivered},
		{ID: "B", Status: StatusAlert},
		{ID: "C", Status: StatusInTransit},
		{ID: "D", Status: StatusDelivered},
	})
	assert.Equal(t, DashboardStats{Total: 4, Alerts: 1, Delivered: 2, InTransit: 1, DeliveryRate: 0.5}, stats)
	assert.Equal(t, DashboardStats{}, ComputeStats(nil))
}

func TestShipmentCloneIsDeep(t *testing.T) {
	orig := Shipment{
		ID:            "TRK1",
		Location:      &Location{Lat: 1, Lng: 2},
		DeliveryPoint: &Location{Lat: 5, Lng: 6},
		Timeline:      []TimelineEvent{{Status: StatusPickedUp, Timestamp: time.Unix(1, 0), Location: &Location{Lat: 3}}},
	}
	c := orig.Clone()
	c.Location.Lat = 9
	c.DeliveryPoint.Lat = 9
	c.Timeline[0].Location.Lat = 9
	c.Timeline[0].Status = StatusAlert

	assert.Equal(t, 1.0, orig.Location.Lat)
	assert.Equal(t, 5.0, orig.DeliveryPoint.Lat)
	assert.Equal(t, 3.0, orig.Timeline[0].Location.Lat)
	assert.Equal(t, StatusPickedUp, orig.Timeline[0].Status)
}

func TestMapLocationFallsBackToDefault(t *testing.T) {
	assert.Equal(t, DefaultLocation, Shipment{}.MapLocation())
	assert.Equal(t, Location{Lat: 1, Lng: 1}, Shipment{Location: &Location{Lat: 1, Lng: 1}}.MapLocation())
}

func TestErrorSentinelsMatchByTypeAndCode(t *testing.T) {
	err := ErrQueryTimeout.WithCause(assert.AnError)
	assert.ErrorIs(t, err, ErrQueryTimeout)
	assert.NotErrorIs(t, err, ErrQueryFailed)
	assert.True(t, errors.IsType(err, errors.ErrorTypeQuery))
	assert.True(t, errors.IsType(ErrConnectTimeout, errors.ErrorTypeTimeout))
}
