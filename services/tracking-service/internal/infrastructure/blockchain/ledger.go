package blockchain

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/domain"
)

// Shipment seeded by SeedDemo
const (
	DemoShipmentID = "TRK3000"
	DemoRFIDTag    = "RFID123"
)

type ledgerShipment struct {
	shipment domain.Shipment
	events   []domain.TimelineEvent
	owners   map[domain.Address]bool
}

type pendingWrite struct {
	id      domain.ShipmentID
	event   domain.TimelineEvent
	visible time.Time
}

// MemoryLedger is an in-process stand-in for the shipment contract. Writes
// become readable only after the configured lag, like a chain that needs a
// block before state changes show up in calls.
type MemoryLedger struct {
	mu        sync.Mutex
	shipments map[domain.ShipmentID]*ledgerShipment
	pending   []pendingWrite
	lag       time.Duration
	nonce     uint64
	now       func() time.Time
}

func NewMemoryLedger(writeLag time.Duration) *MemoryLedger {
	return &MemoryLedger{
		shipments: make(map[domain.ShipmentID]*ledgerShipment),
		lag:       writeLag,
		now:       time.Now,
	}
}

// Seed adds or replaces a shipment. Events are stored as given, unordered
// and possibly duplicated, the way the contract's event log returns them.
// An empty owners list makes the shipment visible to every account.
func (l *MemoryLedger) Seed(s domain.Shipment, events []domain.TimelineEvent, owners ...domain.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := &ledgerShipment{
		shipment: s.Clone(),
		events:   append([]domain.TimelineEvent(nil), events...),
		owners:   make(map[domain.Address]bool, len(owners)),
	}
	entry.shipment.Timeline = nil
	for _, o := range owners {
		entry.owners[domain.NormalizeAddress(o)] = true
	}
	l.shipments[s.ID] = entry
}

// SeedDemo seeds TRK3000, in transit from the Paris sorting centre
func (l *MemoryLedger) SeedDemo(owners ...domain.Address) {
	paris := &domain.Location{Lat: domain.DefaultLocation.Lat, Lng: domain.DefaultLocation.Lng}
	pickedUp := time.Date(2024, 3, 11, 8, 0, 0, 0, time.UTC)
	inTransit := time.Date(2024, 3, 12, 10, 30, 0, 0, time.UTC)

	l.Seed(domain.Shipment{
		ID:            DemoShipmentID,
		RFIDTag:       DemoRFIDTag,
		Status:        domain.StatusInTransit,
		Location:      paris,
		DeliveryPoint: &domain.Location{Lat: 45.764, Lng: 4.8357},
		LastUpdate:    inTransit,
	}, []domain.TimelineEvent{
		{Status: domain.StatusInTransit, Timestamp: inTransit, Details: "Colis en cours d'acheminement"},
		{Status: domain.StatusPickedUp, Timestamp: pickedUp, Location: paris, Details: "Colis réceptionné au centre de tri"},
		{Status: domain.StatusInTransit, Timestamp: inTransit, Details: "Colis en cours d'acheminement"},
	}, owners...)
}

// Remove deletes a shipment, as if the contract had dropped it
func (l *MemoryLedger) Remove(id domain.ShipmentID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.shipments, id)
}

func (l *MemoryLedger) ListShipments(ctx context.Context, viewer domain.Address) ([]domain.Shipment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.applyVisibleLocked()

	viewer = domain.NormalizeAddress(viewer)
	out := make([]domain.Shipment, 0, len(l.shipments))
	for _, entry := range l.shipments {
		if len(entry.owners) > 0 && !entry.owners[viewer] {
			continue
		}
		out = append(out, entry.shipment.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (l *MemoryLedger) GetShipment(ctx context.Context, id domain.ShipmentID) (*domain.ShipmentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.applyVisibleLocked()

	entry, ok := l.shipments[id]
	if !ok {
		return nil, domain.ErrNoSuchShipment
	}
	return &domain.ShipmentRecord{
		Shipment: entry.shipment.Clone(),
		Events:   append([]domain.TimelineEvent(nil), entry.events...),
	}, nil
}

func (l *MemoryLedger) SubmitStatusUpdate(ctx context.Context, from domain.Address, id domain.ShipmentID, status domain.ShipmentStatus) (*domain.WriteReceipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.shipments[id]
	if !ok {
		return nil, domain.ErrNoSuchShipment
	}
	from = domain.NormalizeAddress(from)
	if len(entry.owners) > 0 && !entry.owners[from] {
		return nil, domain.ErrNotPermitted
	}

	now := l.now().UTC()
	l.nonce++
	event := domain.TimelineEvent{Status: status, Timestamp: now}
	if entry.shipment.Location != nil {
		loc := *entry.shipment.Location
		event.Location = &loc
	}
	l.pending = append(l.pending, pendingWrite{id: id, event: event, visible: now.Add(l.lag)})

	hash := crypto.Keccak256Hash([]byte(fmt.Sprintf("%s:%s:%d:%d", from, id, status, l.nonce)))
	return &domain.WriteReceipt{TxHash: hash.Hex(), SubmittedAt: now}, nil
}

func (l *MemoryLedger) applyVisibleLocked() {
	now := l.now()
	kept := l.pending[:0]
	for _, w := range l.pending {
		if now.Before(w.visible) {
			kept = append(kept, w)
			continue
		}
		entry, ok := l.shipments[w.id]
		if !ok {
			continue
		}
		entry.events = append(entry.events, w.event)
		entry.shipment.Status = w.event.Status
		entry.shipment.LastUpdate = w.event.Timestamp
	}
	l.pending = kept
}
