package service

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/contract"
	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/domain"
	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/session"
	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/store"
	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/timeline"
	"github.com/quangdang46/shipment-tracker/shared/logging"
	"github.com/quangdang46/shipment-tracker/shared/metrics"
	"github.com/quangdang46/shipment-tracker/shared/monitoring"
)

// Push message kinds sent to presentation clients
const (
	PushSession   = "session"
	PushShipments = "shipments"
)

// Pusher fans changes out to connected presentation clients
type Pusher interface {
	Broadcast(kind string, payload interface{})
}

// Dependencies wires a Tracker. Provider and Gateway are required; the
// rest are optional.
type Dependencies struct {
	Provider  domain.Provider
	Gateway   domain.ContractGateway
	Publisher domain.EventPublisher
	Mirror    domain.SnapshotMirror
	Pusher    Pusher
	Logger    *logging.Logger
	Metrics   *metrics.Metrics

	Session  session.Config
	Contract contract.Config

	// MirrorTimeout bounds each snapshot mirror write
	MirrorTimeout time.Duration
}

// Tracker is the consumer boundary of the core: read-only snapshots plus
// the Connect, Disconnect, Refresh and UpdateStatus mutators.
type Tracker struct {
	sessions  *session.Manager
	client    *contract.Client
	store     *store.Store
	publisher domain.EventPublisher
	mirror    domain.SnapshotMirror
	pusher    Pusher
	logger    *logging.Logger

	mirrorTimeout time.Duration
	unsubscribe   []func()
}

func NewTracker(deps Dependencies) *Tracker {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	if deps.MirrorTimeout <= 0 {
		deps.MirrorTimeout = 2 * time.Second
	}

	sessions := session.NewManager(deps.Provider, deps.Session, logger, deps.Metrics)
	client := contract.NewClient(deps.Gateway, sessions, deps.Contract, logger, deps.Metrics)
	cache := store.New(client, sessions, logger, deps.Metrics)

	t := &Tracker{
		sessions:      sessions,
		client:        client,
		store:         cache,
		publisher:     deps.Publisher,
		mirror:        deps.Mirror,
		pusher:        deps.Pusher,
		logger:        logger.WithField("component", "tracker"),
		mirrorTimeout: deps.MirrorTimeout,
	}

	t.unsubscribe = append(t.unsubscribe,
		sessions.Subscribe(t.onSession),
		cache.Subscribe(t.onShipments),
	)
	return t
}

// Start restores the session when autoConnect is set
func (t *Tracker) Start(ctx context.Context, autoConnect bool) domain.WalletSession {
	if !autoConnect {
		return t.sessions.CurrentSession()
	}
	return t.sessions.Restore(ctx)
}

func (t *Tracker) onSession(s domain.WalletSession) {
	t.store.HandleSession(s)

	if t.pusher != nil {
		t.pusher.Broadcast(PushSession, NewSessionView(s))
	}
	if t.publisher != nil {
		event := &domain.SessionChangedEvent{
			Account:   s.Account,
			State:     s.State.String(),
			ChainID:   s.ChainID,
			ChangedAt: s.UpdatedAt,
		}
		if s.LastError != nil {
			event.Error = s.LastError.Error()
		}
		if err := t.publisher.PublishSessionChanged(context.Background(), event); err != nil {
			t.logger.WithError(err).Warn("Failed to publish session change")
		}
	}
}

func (t *Tracker) onShipments(c store.Change) {
	if t.mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), t.mirrorTimeout)
		var err error
		if c.Cleared {
			if c.Previous != "" {
				err = t.mirror.Clear(ctx, c.Previous)
			}
		} else {
			err = t.mirror.Mirror(ctx, c.Account, c.Shipments)
		}
		cancel()
		if err != nil {
			t.logger.WithError(err).WithField("account", c.Account).Warn("Snapshot mirror failed")
		}
	}

	if t.pusher != nil {
		t.pusher.Broadcast(PushShipments, NewShipmentsView(c))
	}
}

// Session returns the current session snapshot
func (t *Tracker) Session() domain.WalletSession {
	return t.sessions.CurrentSession()
}

// SubscribeSession registers fn for session changes
func (t *Tracker) SubscribeSession(fn func(domain.WalletSession)) func() {
	return t.sessions.Subscribe(fn)
}

// SubscribeShipments registers fn for cache changes
func (t *Tracker) SubscribeShipments(fn func(store.Change)) func() {
	return t.store.Subscribe(fn)
}

func (t *Tracker) Connect(ctx context.Context) (domain.WalletSession, error) {
	return t.sessions.Connect(ctx)
}

func (t *Tracker) Disconnect(ctx context.Context) domain.WalletSession {
	s := t.sessions.Disconnect(ctx)
	// The session listener clears too, but only once its notification is
	// dispatched. Callers must not read the old account's cache after this.
	t.store.Clear()
	return s
}

// Refresh reloads the shipments of the current account
func (t *Tracker) Refresh(ctx context.Context) ([]domain.Shipment, error) {
	s := t.sessions.CurrentSession()
	if !s.Connected() {
		return nil, domain.ErrSessionUnavailable
	}

	shipments, err := t.store.Refresh(ctx, s.Account)
	if err != nil {
		return nil, err
	}

	if t.publisher != nil {
		stats := domain.ComputeStats(shipments)
		event := &domain.ShipmentsRefreshedEvent{
			Account:     s.Account,
			Count:       stats.Total,
			Alerts:      stats.Alerts,
			RefreshedAt: time.Now(),
		}
		if err := t.publisher.PublishShipmentsRefreshed(ctx, event); err != nil {
			t.logger.WithError(err).Warn("Failed to publish refresh event")
		}
	}
	return shipments, nil
}

// Shipments returns the cached shipments of the current account
func (t *Tracker) Shipments() []domain.Shipment {
	return t.store.List()
}

// CachedShipment reads one shipment from the cache only
func (t *Tracker) CachedShipment(id domain.ShipmentID) (domain.Shipment, error) {
	return t.store.Get(id)
}

// Shipment reads id from the contract, reconciles its timeline and updates
// the cache. A shipment the contract no longer knows is evicted.
func (t *Tracker) Shipment(ctx context.Context, id domain.ShipmentID) (domain.Shipment, error) {
	record, err := t.client.GetShipment(ctx, id)
	if err != nil {
		if stderrors.Is(err, domain.ErrShipmentNotFound) {
			t.store.Evict(id)
		}
		return domain.Shipment{}, err
	}

	shipment := timeline.Apply(record.Shipment, record.Events)
	if shipment.ID == "" {
		shipment.ID = id
	}

	if s := t.sessions.CurrentSession(); s.Connected() {
		t.store.Upsert(s.Account, shipment)
	}
	return shipment, nil
}

// UpdateStatus submits a status change and then refreshes the cache. The
// refresh is best effort: reads may not reflect the write yet, and a failed
// refresh is only logged.
func (t *Tracker) UpdateStatus(ctx context.Context, id domain.ShipmentID, status domain.ShipmentStatus) (*domain.WriteReceipt, error) {
	receipt, err := t.client.UpdateStatus(ctx, id, status)
	if err != nil {
		if stderrors.Is(err, domain.ErrWriteFailed) || stderrors.Is(err, domain.ErrWriteTimeout) {
			monitoring.CaptureError(err, map[string]string{"operation": "update_status"}, map[string]interface{}{
				"shipment_id": id,
				"status":      status.String(),
			})
		}
		return nil, err
	}

	s := t.sessions.CurrentSession()
	t.logger.Audit("status_update_submitted", map[string]interface{}{
		"id":      id,
		"status":  status.String(),
		"account": s.Account,
		"tx_hash": receipt.TxHash,
	})

	if t.publisher != nil {
		event := &domain.StatusUpdateSubmittedEvent{
			Account:     s.Account,
			ShipmentID:  id,
			Status:      status,
			TxHash:      receipt.TxHash,
			SubmittedAt: receipt.SubmittedAt,
		}
		if err := t.publisher.PublishStatusUpdateSubmitted(ctx, event); err != nil {
			t.logger.WithError(err).Warn("Failed to publish status update event")
		}
	}

	if s.Connected() {
		if _, err := t.store.Refresh(ctx, s.Account); err != nil && !stderrors.Is(err, store.ErrRefreshSuperseded) {
			t.logger.WithError(err).WithField("id", id).Warn("Refresh after status update failed")
		}
	}
	return receipt, nil
}

// Dashboard returns counters for the cached shipments
// ContractHealth reports whether contract calls are currently allowed
func (t *Tracker) ContractHealth(ctx context.Context) error {
	return t.client.Health(ctx)
}

func (t *Tracker) Dashboard() domain.DashboardStats {
	return t.store.Stats()
}

// Close disconnects and stops background delivery
func (t *Tracker) Close(ctx context.Context) {
	t.sessions.Close(ctx)
	t.store.Close()
	for _, unsub := range t.unsubscribe {
		unsub()
	}
}
