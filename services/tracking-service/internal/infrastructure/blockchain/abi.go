package blockchain

import (
	"time"

	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/domain"
)

// ShipmentRegistryABI is the subset of the shipment contract the gateway calls.
// Coordinates are stored as microdegrees, timestamps as unix seconds.
const ShipmentRegistryABI = `[
	{
		"type": "function",
		"name": "listShipments",
		"stateMutability": "view",
		"inputs": [{"name": "viewer", "type": "address"}],
		"outputs": [{
			"name": "",
			"type": "tuple[]",
			"components": [
				{"name": "id", "type": "string"},
				{"name": "status", "type": "uint8"},
				{"name": "lat", "type": "int64"},
				{"name": "lng", "type": "int64"},
				{"name": "hasLocation", "type": "bool"},
				{"name": "lastUpdate", "type": "uint64"},
				{"name": "rfidTag", "type": "string"},
				{"name": "destLat", "type": "int64"},
				{"name": "destLng", "type": "int64"},
				{"name": "hasDestination", "type": "bool"}
			]
		}]
	},
	{
		"type": "function",
		"name": "getShipment",
		"stateMutability": "view",
		"inputs": [{"name": "id", "type": "string"}],
		"outputs": [
			{"name": "exists", "type": "bool"},
			{
				"name": "shipment",
				"type": "tuple",
				"components": [
					{"name": "id", "type": "string"},
					{"name": "status", "type": "uint8"},
					{"name": "lat", "type": "int64"},
					{"name": "lng", "type": "int64"},
					{"name": "hasLocation", "type": "bool"},
					{"name": "lastUpdate", "type": "uint64"},
					{"name": "rfidTag", "type": "string"},
					{"name": "destLat", "type": "int64"},
					{"name": "destLng", "type": "int64"},
					{"name": "hasDestination", "type": "bool"}
				]
			},
			{
				"name": "events",
				"type": "tuple[]",
				"components": [
					{"name": "status", "type": "uint8"},
					{"name": "lat", "type": "int64"},
					{"name": "lng", "type": "int64"},
					{"name": "hasLocation", "type": "bool"},
					{"name": "timestamp", "type": "uint64"},
					{"name": "details", "type": "string"}
				]
			}
		]
	},
	{
		"type": "function",
		"name": "updateStatus",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "id", "type": "string"},
			{"name": "status", "type": "uint8"}
		],
		"outputs": []
	}
]`

const (
	methodListShipments = "listShipments"
	methodGetShipment   = "getShipment"
	methodUpdateStatus  = "updateStatus"
)

const microdegrees = 1e6

// ShipmentTuple mirrors the contract's Shipment struct.
// Field names follow the ABI component names.
type ShipmentTuple struct {
	Id             string
	Status         uint8
	Lat            int64
	Lng            int64
	HasLocation    bool
	LastUpdate     uint64
	RfidTag        string
	DestLat        int64
	DestLng        int64
	HasDestination bool
}

// EventTuple mirrors the contract's StatusEvent struct
type EventTuple struct {
	Status      uint8
	Lat         int64
	Lng         int64
	HasLocation bool
	Timestamp   uint64
	Details     string
}

func toLocation(has bool, lat, lng int64) *domain.Location {
	if !has {
		return nil
	}
	return &domain.Location{Lat: float64(lat) / microdegrees, Lng: float64(lng) / microdegrees}
}

func fromLocation(loc *domain.Location) (bool, int64, int64) {
	if loc == nil {
		return false, 0, 0
	}
	return true, int64(loc.Lat * microdegrees), int64(loc.Lng * microdegrees)
}

func (t ShipmentTuple) toDomain() domain.Shipment {
	return domain.Shipment{
		ID:            t.Id,
		RFIDTag:       t.RfidTag,
		Status:        domain.StatusFromCode(t.Status),
		Location:      toLocation(t.HasLocation, t.Lat, t.Lng),
		DeliveryPoint: toLocation(t.HasDestination, t.DestLat, t.DestLng),
		LastUpdate:    time.Unix(int64(t.LastUpdate), 0).UTC(),
	}
}

func (t EventTuple) toDomain() domain.TimelineEvent {
	return domain.TimelineEvent{
		Status:    domain.StatusFromCode(t.Status),
		Location:  toLocation(t.HasLocation, t.Lat, t.Lng),
		Timestamp: time.Unix(int64(t.Timestamp), 0).UTC(),
		Details:   t.Details,
	}
}

// NewShipmentTuple encodes a shipment the way the contract stores it
func NewShipmentTuple(s domain.Shipment) ShipmentTuple {
	has, lat, lng := fromLocation(s.Location)
	hasDest, destLat, destLng := fromLocation(s.DeliveryPoint)
	return ShipmentTuple{
		Id:             s.ID,
		Status:         uint8(s.Status),
		Lat:            lat,
		Lng:            lng,
		HasLocation:    has,
		LastUpdate:     uint64(s.LastUpdate.Unix()),
		RfidTag:        s.RFIDTag,
		DestLat:        destLat,
		DestLng:        destLng,
		HasDestination: hasDest,
	}
}

// NewEventTuple encodes a status event the way the contract stores it
func NewEventTuple(e domain.TimelineEvent) EventTuple {
	has, lat, lng := fromLocation(e.Location)
	return EventTuple{
		Status:      uint8(e.Status),
		Lat:         lat,
		Lng:         lng,
		HasLocation: has,
		Timestamp:   uint64(e.Timestamp.Unix()),
		Details:     e.Details,
	}
}
