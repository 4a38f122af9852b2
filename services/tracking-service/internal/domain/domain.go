package domain

import (
	"context"
	"time"
)

// Type aliases for better readability
type Address = string
type ShipmentID = string

// SessionState is the lifecycle state of the wallet session
type SessionState int

const (
	StateDisconnected SessionState = iota
	StateConnecting
	StateConnected
	StateError
)

func (s SessionState) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateError:
		return "Error"
	default:
		return "Unknown"
	}
}

// WalletSession is an immutable snapshot of the session.
// Account is non-empty exactly when State is StateConnected.
type WalletSession struct {
	Account   Address
	State     SessionState
	LastError error
	ChainID   uint64
	UpdatedAt time.Time
}

// Connected reports whether the session holds an account
func (s WalletSession) Connected() bool {
	return s.State == StateConnected && s.Account != ""
}

// Location is a WGS84 coordinate
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// DefaultLocation is where a map centers when a shipment has no position (Paris)
var DefaultLocation = Location{Lat: 48.8566, Lng: 2.3522}

// TimelineEvent is one status change in a shipment's history.
// Events are identified by (Status, Timestamp).
type TimelineEvent struct {
	Status    ShipmentStatus `json:"status"`
	Location  *Location      `json:"location,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Details   string         `json:"details,omitempty"`
}

// Timeline is the reconciled, ordered history of a shipment
type Timeline struct {
	Events    []TimelineEvent
	Status    ShipmentStatus
	HasStatus bool
}

// Shipment is the cached view of an on-chain shipment.
// When Timeline is non-empty, Status equals the status of its last event.
// DeliveryPoint is where the shipment is headed, when the contract knows it.
type Shipment struct {
	ID            ShipmentID      `json:"id"`
	RFIDTag       string          `json:"rfid_tag,omitempty"`
	Status        ShipmentStatus  `json:"status"`
	Location      *Location       `json:"location,omitempty"`
	DeliveryPoint *Location       `json:"delivery_point,omitempty"`
	LastUpdate    time.Time       `json:"last_update"`
	Timeline      []TimelineEvent `json:"timeline,omitempty"`
}

// NeedsAlert reports whether the shipment is flagged on the dashboard
func (s Shipment) NeedsAlert() bool {
	return s.Status == StatusAlert
}

// MapLocation returns the shipment position or the default map center
func (s Shipment) MapLocation() Location {
	if s.Location != nil {
		return *s.Location
	}
	return DefaultLocation
}

// Clone returns a deep copy safe to hand to consumers
func (s Shipment) Clone() Shipment {
	c := s
	if s.Location != nil {
		loc := *s.Location
		c.Location = &loc
	}
	if s.DeliveryPoint != nil {
		dest := *s.DeliveryPoint
		c.DeliveryPoint = &dest
	}
	if s.Timeline != nil {
		c.Timeline = make([]TimelineEvent, len(s.Timeline))
		for i, ev := range s.Timeline {
			if ev.Location != nil {
				loc := *ev.Location
				ev.Location = &loc
			}
			c.Timeline[i] = ev
		}
	}
	return c
}

// ShipmentRecord is what the contract returns for a single shipment:
// its current state plus the raw, unordered status events.
type ShipmentRecord struct {
	Shipment Shipment
	Events   []TimelineEvent
}

// WriteReceipt acknowledges a submitted status update
type WriteReceipt struct {
	TxHash      string    `json:"tx_hash"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// DashboardStats summarises a shipment list
type DashboardStats struct {
	Total        int     `json:"total"`
	Alerts       int     `json:"alerts"`
	Delivered    int     `json:"delivered"`
	InTransit    int     `json:"in_transit"`
	DeliveryRate float64 `json:"delivery_rate"`
}

// ComputeStats derives dashboard counters from a shipment list
func ComputeStats(shipments []Shipment) DashboardStats {
	stats := DashboardStats{Total: len(shipments)}
	for _, s := range shipments {
		switch {
		case s.NeedsAlert():
			stats.Alerts++
		case s.Status == StatusDelivered:
			stats.Delivered++
		case s.Status == StatusInTransit:
			stats.InTransit++
		}
	}
	if stats.Total > 0 {
		stats.DeliveryRate = float64(stats.Delivered) / float64(stats.Total)
	}
	return stats
}

// EventAccountsChanged is the provider notification carrying the account list
const EventAccountsChanged = "accountsChanged"

// Subscription is a live provider notification registration
type Subscription interface {
	Unsubscribe()
}

// Provider is the external signing provider that owns the user's accounts
type Provider interface {
	RequestAccounts(ctx context.Context) ([]Address, error)
	Subscribe(event string, handler func(accounts []Address)) (Subscription, error)
	ClearCachedAuthorization(ctx context.Context) error
}

// ChainIDReader is implemented by providers that know their network
type ChainIDReader interface {
	ChainID(ctx context.Context) (uint64, error)
}

// ContractGateway is the raw view of the shipment contract
type ContractGateway interface {
	// ListShipments returns the shipments visible to viewer
	ListShipments(ctx context.Context, viewer Address) ([]Shipment, error)
	// GetShipment returns ErrNoSuchShipment when the id is unknown
	GetShipment(ctx context.Context, id ShipmentID) (*ShipmentRecord, error)
	// SubmitStatusUpdate returns ErrNotPermitted when from may not update id
	SubmitStatusUpdate(ctx context.Context, from Address, id ShipmentID, status ShipmentStatus) (*WriteReceipt, error)
}

// SnapshotMirror receives committed cache snapshots for out-of-process readers
type SnapshotMirror interface {
	Mirror(ctx context.Context, account Address, shipments []Shipment) error
	Clear(ctx context.Context, account Address) error
}

// EventPublisher emits domain events to the message bus
type EventPublisher interface {
	PublishSessionChanged(ctx context.Context, event *SessionChangedEvent) error
	PublishStatusUpdateSubmitted(ctx context.Context, event *StatusUpdateSubmittedEvent) error
	PublishShipmentsRefreshed(ctx context.Context, event *ShipmentsRefreshedEvent) error
}

type SessionChangedEvent struct {
	Account   Address   `json:"account,omitempty"`
	State     string    `json:"state"`
	ChainID   uint64    `json:"chain_id,omitempty"`
	Error     string    `json:"error,omitempty"`
	ChangedAt time.Time `json:"changed_at"`
}

type StatusUpdateSubmittedEvent struct {
	Account     Address        `json:"account"`
	ShipmentID  ShipmentID     `json:"shipment_id"`
	Status      ShipmentStatus `json:"status"`
	TxHash      string         `json:"tx_hash"`
	SubmittedAt time.Time      `json:"submitted_at"`
}

type ShipmentsRefreshedEvent struct {
	Account     Address   `json:"account"`
	Count       int       `json:"count"`
	Alerts      int       `json:"alerts"`
	RefreshedAt time.Time `json:"refreshed_at"`
}
