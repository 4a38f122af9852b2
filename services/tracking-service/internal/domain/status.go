package domain

import (
	"fmt"
	"strings"
)

// ShipmentStatus mirrors the contract's status enum
type ShipmentStatus uint8

const (
	StatusPickedUp ShipmentStatus = iota
	StatusInTransit
	StatusDelivered
	StatusAlert

	// StatusUnknown stands in for codes this build does not recognise
	StatusUnknown ShipmentStatus = 0xff
)

// Status display categories
const (
	CategoryPickedUp  = "picked_up"
	CategoryInTransit = "in_transit"
	CategoryDelivered = "delivered"
	CategoryOther     = "other"
)

// StatusFromCode converts a contract enum value
func StatusFromCode(code uint8) ShipmentStatus {
	s := ShipmentStatus(code)
	if !s.Valid() {
		return StatusUnknown
	}
	return s
}

// Valid reports whether s is one of the contract statuses
func (s ShipmentStatus) Valid() bool {
	return s <= StatusAlert
}

func (s ShipmentStatus) String() string {
	switch s {
	case StatusPickedUp:
		return "PickedUp"
	case StatusInTransit:
		return "InTransit"
	case StatusDelivered:
		return "Delivered"
	case StatusAlert:
		return "Alert"
	default:
		return "Unknown"
	}
}

// Label returns the human readable status
func (s ShipmentStatus) Label() string {
	switch s {
	case StatusPickedUp:
		return "Picked up"
	case StatusInTransit:
		return "In transit"
	case StatusDelivered:
		return "Delivered"
	case StatusAlert:
		return "Alert"
	default:
		return "Unknown"
	}
}

// Category groups statuses for timeline icons. Alerts share the generic
// category with unknown statuses.
func (s ShipmentStatus) Category() string {
	switch s {
	case StatusPickedUp:
		return CategoryPickedUp
	case StatusInTransit:
		return CategoryInTransit
	case StatusDelivered:
		return CategoryDelivered
	default:
		return CategoryOther
	}
}

func (s ShipmentStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *ShipmentStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

var statusAliases = map[string]ShipmentStatus{
	"pickedup":       StatusPickedUp,
	"picked_up":      StatusPickedUp,
	"picked up":      StatusPickedUp,
	"pris en charge": StatusPickedUp,
	"intransit":      StatusInTransit,
	"in_transit":     StatusInTransit,
	"in transit":     StatusInTransit,
	"en transit":     StatusInTransit,
	"delivered":      StatusDelivered,
	"livré":          StatusDelivered,
	"livre":          StatusDelivered,
	"alert":          StatusAlert,
	"alerte":         StatusAlert,
	"unknown":        StatusUnknown,
}

// ParseStatus accepts enum names (InTransit), constant style (IN_TRANSIT),
// English and French labels, and numeric contract codes.
func ParseStatus(raw string) (ShipmentStatus, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if s, ok := statusAliases[key]; ok {
		return s, nil
	}
	if len(key) == 1 && key[0] >= '0' && key[0] <= '3' {
		return ShipmentStatus(key[0] - '0'), nil
	}
	return StatusUnknown, fmt.Errorf("unknown shipment status %q", raw)
}
