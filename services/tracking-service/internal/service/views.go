package service

import (
	"time"

	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/domain"
	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/store"
	"github.com/quangdang46/shipment-tracker/shared/errors"
)

// SessionView is the presentation form of a WalletSession
type SessionView struct {
	Account        string    `json:"account,omitempty"`
	DisplayAccount string    `json:"display_account,omitempty"`
	State          string    `json:"state"`
	ChainID        uint64    `json:"chain_id,omitempty"`
	Error          string    `json:"error,omitempty"`
	ErrorCode      string    `json:"error_code,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func NewSessionView(s domain.WalletSession) SessionView {
	v := SessionView{
		Account:        s.Account,
		DisplayAccount: domain.FormatAddress(s.Account),
		State:          s.State.String(),
		ChainID:        s.ChainID,
		UpdatedAt:      s.UpdatedAt,
	}
	if s.LastError != nil {
		v.Error = s.LastError.Error()
		v.ErrorCode = errors.GetCode(s.LastError)
	}
	return v
}

type EventView struct {
	Status    domain.ShipmentStatus `json:"status"`
	Label     string                `json:"label"`
	Category  string                `json:"category"`
	Location  *domain.Location      `json:"location,omitempty"`
	Timestamp time.Time             `json:"timestamp"`
	Details   string                `json:"details,omitempty"`
}

// ShipmentView is the presentation form of a Shipment. Location falls
// back to the default map center when the shipment has none.
type ShipmentView struct {
	ID            string                `json:"id"`
	RFIDTag       string                `json:"rfid_tag,omitempty"`
	Status        domain.ShipmentStatus `json:"status"`
	StatusLabel   string                `json:"status_label"`
	Category      string                `json:"category"`
	NeedsAlert    bool                  `json:"needs_alert"`
	Location      domain.Location       `json:"location"`
	HasLocation   bool                  `json:"has_location"`
	DeliveryPoint *domain.Location      `json:"delivery_point,omitempty"`
	LastUpdate    time.Time             `json:"last_update"`
	Timeline      []EventView           `json:"timeline,omitempty"`
}

func NewShipmentView(s domain.Shipment) ShipmentView {
	v := ShipmentView{
		ID:            s.ID,
		RFIDTag:       s.RFIDTag,
		Status:        s.Status,
		StatusLabel:   s.Status.Label(),
		Category:      s.Status.Category(),
		NeedsAlert:    s.NeedsAlert(),
		Location:      s.MapLocation(),
		HasLocation:   s.Location != nil,
		DeliveryPoint: s.DeliveryPoint,
		LastUpdate:    s.LastUpdate,
	}
	for _, ev := range s.Timeline {
		v.Timeline = append(v.Timeline, EventView{
			Status:    ev.Status,
			Label:     ev.Status.Label(),
			Category:  ev.Status.Category(),
			Location:  ev.Location,
			Timestamp: ev.Timestamp,
			Details:   ev.Details,
		})
	}
	return v
}

func NewShipmentViews(list []domain.Shipment) []ShipmentView {
	out := make([]ShipmentView, len(list))
	for i, s := range list {
		out[i] = NewShipmentView(s)
	}
	return out
}

// ShipmentsView is pushed to clients whenever the cache changes
type ShipmentsView struct {
	Account   string                `json:"account,omitempty"`
	Cleared   bool                  `json:"cleared"`
	Shipments []ShipmentView        `json:"shipments"`
	Stats     domain.DashboardStats `json:"stats"`
}

func NewShipmentsView(c store.Change) ShipmentsView {
	return ShipmentsView{
		Account:   c.Account,
		Cleared:   c.Cleared,
		Shipments: NewShipmentViews(c.Shipments),
		Stats:     c.Stats,
	}
}
