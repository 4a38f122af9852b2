package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/domain"
	"github.com/quangdang46/shipment-tracker/shared/logging"
	"github.com/quangdang46/shipment-tracker/shared/redis"
)

const DefaultSnapshotTTL = 24 * time.Hour

// Snapshot is the mirrored shipment list of one account
type Snapshot struct {
	Account     domain.Address
	Shipments   []domain.Shipment
	CommittedAt time.Time
}

type snapshotMeta struct {
	Count       int       `json:"count"`
	CommittedAt time.Time `json:"committed_at"`
}

// SnapshotMirror keeps a copy of each account's shipment cache in Redis so
// other processes can read it without talking to the chain.
type SnapshotMirror struct {
	redis  *redis.Redis
	ttl    time.Duration
	logger *logging.Logger
	now    func() time.Time
}

func NewSnapshotMirror(r *redis.Redis, ttl time.Duration, logger *logging.Logger) *SnapshotMirror {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &SnapshotMirror{
		redis:  r,
		ttl:    ttl,
		logger: logger.WithField("component", "snapshot_mirror"),
		now:    time.Now,
	}
}

// Mirror replaces the stored snapshot of account with shipments
func (m *SnapshotMirror) Mirror(ctx context.Context, account domain.Address, shipments []domain.Shipment) error {
	fields := make(map[string]string, len(shipments))
	for _, s := range shipments {
		raw, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("failed to encode shipment %s: %w", s.ID, err)
		}
		fields[s.ID] = string(raw)
	}

	if err := m.redis.ReplaceHash(ctx, redis.ShipmentSnapshotKey(account), fields, m.ttl); err != nil {
		return fmt.Errorf("failed to mirror shipments: %w", err)
	}

	meta, err := json.Marshal(snapshotMeta{Count: len(shipments), CommittedAt: m.now().UTC()})
	if err != nil {
		return err
	}
	if err := m.redis.Set(ctx, redis.SnapshotMetaKey(account), string(meta), m.ttl); err != nil {
		return fmt.Errorf("failed to write snapshot meta: %w", err)
	}

	m.logger.WithFields(map[string]interface{}{
		"account": domain.FormatAddress(account),
		"count":   len(shipments),
	}).Debug("Snapshot mirrored")
	return nil
}

// Clear drops the stored snapshot of account
func (m *SnapshotMirror) Clear(ctx context.Context, account domain.Address) error {
	if err := m.redis.Delete(ctx, redis.ShipmentSnapshotKey(account), redis.SnapshotMetaKey(account)); err != nil {
		return fmt.Errorf("failed to clear snapshot: %w", err)
	}
	return nil
}

// Load reads the stored snapshot of account. A missing snapshot yields
// (nil, nil).
func (m *SnapshotMirror) Load(ctx context.Context, account domain.Address) (*Snapshot, error) {
	rawMeta, err := m.redis.Get(ctx, redis.SnapshotMetaKey(account))
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot meta: %w", err)
	}

	var meta snapshotMeta
	if err := json.Unmarshal([]byte(rawMeta), &meta); err != nil {
		return nil, fmt.Errorf("corrupt snapshot meta: %w", err)
	}

	fields, err := m.redis.HGetAll(ctx, redis.ShipmentSnapshotKey(account))
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	snap := &Snapshot{
		Account:     redis.NormalizeAddress(account),
		Shipments:   make([]domain.Shipment, 0, len(fields)),
		CommittedAt: meta.CommittedAt,
	}
	for id, raw := range fields {
		var s domain.Shipment
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			m.logger.WithError(err).WithField("id", id).Warn("Skipping corrupt snapshot entry")
			continue
		}
		snap.Shipments = append(snap.Shipments, s)
	}
	sort.Slice(snap.Shipments, func(i, j int) bool { return snap.Shipments[i].ID < snap.Shipments[j].ID })
	return snap, nil
}
