// Package store holds the process-local shipment cache of the current
// wallet account.
package store

import (
	"context"
	stderrors "errors"
	"sort"
	"sync"
	"time"

	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/domain"
	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/notify"
	"github.com/quangdang46/shipment-tracker/shared/logging"
	"github.com/quangdang46/shipment-tracker/shared/metrics"
	"github.com/quangdang46/shipment-tracker/shared/recovery"
)

// ErrRefreshSuperseded is returned by a refresh whose result was discarded
// because a newer refresh started or the session account changed.
var ErrRefreshSuperseded = stderrors.New("refresh superseded")

// Lister fetches the shipments visible to an account
type Lister interface {
	ListShipments(ctx context.Context, account domain.Address) ([]domain.Shipment, error)
}

// SessionSource exposes the current wallet session
type SessionSource interface {
	CurrentSession() domain.WalletSession
}

// Change describes a committed cache update. A cleared cache has an empty
// Account; Previous names the account whose entries were dropped.
type Change struct {
	Account   domain.Address
	Previous  domain.Address
	Shipments []domain.Shipment
	Stats     domain.DashboardStats
	Cleared   bool
	At        time.Time
}

// Store caches the shipments of exactly one account: the current session
// account. Refreshes may overlap; only the latest one whose account still
// matches the session is committed.
type Store struct {
	lister   Lister
	sessions SessionSource
	logger   *logging.Logger
	metrics  *metrics.Metrics
	panics   *recovery.PanicHandler

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.RWMutex
	account    domain.Address
	entries    map[domain.ShipmentID]domain.Shipment
	generation uint64

	changes *notify.Broadcaster[Change]
}

func New(lister Lister, sessions SessionSource, logger *logging.Logger, m *metrics.Metrics) *Store {
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.WithField("component", "shipment_store")
	ctx, cancel := context.WithCancel(context.Background())

	return &Store{
		lister:   lister,
		sessions: sessions,
		logger:   logger,
		metrics:  m,
		panics:   recovery.NewPanicHandler(logger),
		ctx:      ctx,
		cancel:   cancel,
		entries:  make(map[domain.ShipmentID]domain.Shipment),
		changes:  notify.NewBroadcaster[Change](),
	}
}

// Refresh reloads the cache for account and returns the committed list.
// A result that lost the race to a newer refresh or an account switch is
// dropped with ErrRefreshSuperseded. Fetch errors leave the cache untouched.
func (s *Store) Refresh(ctx context.Context, account domain.Address) ([]domain.Shipment, error) {
	account = domain.NormalizeAddress(account)

	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	shipments, err := s.lister.ListShipments(ctx, account)
	if err != nil {
		s.metrics.RecordRefresh("failed")
		return nil, err
	}

	s.mu.Lock()
	if gen != s.generation || s.sessions.CurrentSession().Account != account {
		s.mu.Unlock()
		s.metrics.RecordRefresh("superseded")
		s.logger.WithFields(map[string]interface{}{
			"account":    account,
			"generation": gen,
		}).Debug("Discarding superseded refresh")
		return nil, ErrRefreshSuperseded
	}

	previous := s.account
	entries := make(map[domain.ShipmentID]domain.Shipment, len(shipments))
	for _, sh := range shipments {
		entries[sh.ID] = sh.Clone()
	}
	s.account = account
	s.entries = entries
	change := s.changeLocked(previous)
	s.mu.Unlock()

	s.metrics.RecordRefresh("committed")
	s.metrics.SetCachedEntries(len(change.Shipments))
	s.changes.Publish(change)

	return cloneAll(change.Shipments), nil
}

// Get returns a cached shipment without touching the network
func (s *Store) Get(id domain.ShipmentID) (domain.Shipment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sh, ok := s.entries[id]
	if !ok {
		return domain.Shipment{}, domain.ErrShipmentNotFound.WithDetails("id", id)
	}
	return sh.Clone(), nil
}

// List returns the cached shipments ordered by id
func (s *Store) List() []domain.Shipment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedLocked()
}

// Stats computes dashboard counters from the cache
func (s *Store) Stats() domain.DashboardStats {
	return domain.ComputeStats(s.List())
}

// Account returns the account the cache belongs to, empty when cleared
func (s *Store) Account() domain.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.account
}

// Upsert stores a single shipment, typically a freshly reconciled detail.
// It reports false when account no longer owns the cache.
func (s *Store) Upsert(account domain.Address, sh domain.Shipment) bool {
	account = domain.NormalizeAddress(account)

	s.mu.Lock()
	if account == "" || account != s.account || s.sessions.CurrentSession().Account != account {
		s.mu.Unlock()
		return false
	}
	s.entries[sh.ID] = sh.Clone()
	change := s.changeLocked(account)
	s.mu.Unlock()

	s.metrics.SetCachedEntries(len(change.Shipments))
	s.changes.Publish(change)
	return true
}

// Evict drops id after the contract reported it no longer exists
func (s *Store) Evict(id domain.ShipmentID) bool {
	s.mu.Lock()
	if _, ok := s.entries[id]; !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.entries, id)
	change := s.changeLocked(s.account)
	s.mu.Unlock()

	s.metrics.SetCachedEntries(len(change.Shipments))
	s.changes.Publish(change)
	return true
}

// Clear empties the cache and invalidates in-flight refreshes
func (s *Store) Clear() {
	s.mu.Lock()
	s.generation++
	previous := s.account
	hadEntries := len(s.entries) > 0
	s.account = ""
	s.entries = make(map[domain.ShipmentID]domain.Shipment)
	s.mu.Unlock()

	if previous == "" && !hadEntries {
		return
	}
	s.metrics.SetCachedEntries(0)
	s.changes.Publish(Change{Previous: previous, Cleared: true, At: time.Now()})
}

// HandleSession keeps the cache aligned with the session: it clears when
// the session ends and, on a new account, clears and refreshes.
func (s *Store) HandleSession(session domain.WalletSession) {
	if !session.Connected() {
		s.Clear()
		return
	}
	if s.Account() == session.Account {
		return
	}

	s.Clear()
	account := session.Account
	s.panics.Go("store.refresh", func() {
		_, err := s.Refresh(s.ctx, account)
		switch {
		case err == nil:
		case stderrors.Is(err, ErrRefreshSuperseded), stderrors.Is(err, context.Canceled):
		default:
			s.logger.WithError(err).WithField("account", account).Warn("Automatic refresh failed")
		}
	})
}

// Subscribe registers fn for committed changes, delivered in commit order
func (s *Store) Subscribe(fn func(Change)) func() {
	return s.changes.Subscribe(fn)
}

// Close cancels background refreshes and stops change delivery
func (s *Store) Close() {
	s.cancel()
	s.changes.Close()
}

func (s *Store) changeLocked(previous domain.Address) Change {
	list := s.sortedLocked()
	return Change{
		Account:   s.account,
		Previous:  previous,
		Shipments: list,
		Stats:     domain.ComputeStats(list),
		At:        time.Now(),
	}
}

func (s *Store) sortedLocked() []domain.Shipment {
	out := make([]domain.Shipment, 0, len(s.entries))
	for _, sh := range s.entries {
		out = append(out, sh.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func cloneAll(in []domain.Shipment) []domain.Shipment {
	out := make([]domain.Shipment, len(in))
	for i, sh := range in {
		out[i] = sh.Clone()
	}
	return out
}
