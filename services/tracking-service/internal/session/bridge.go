package session

import (
	"sync"

	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/domain"
	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/notify"
	"github.com/quangdang46/shipment-tracker/shared/logging"
	"github.com/quangdang46/shipment-tracker/shared/metrics"
)

// EventKind classifies a provider account notification
type EventKind int

const (
	AccountChanged EventKind = iota
	AccountsCleared
)

func (k EventKind) String() string {
	if k == AccountsCleared {
		return "accounts_cleared"
	}
	return "account_changed"
}

// ProviderEvent is one normalized accountsChanged notification
type ProviderEvent struct {
	Seq     uint64
	Kind    EventKind
	Account domain.Address
}

// Bridge turns the provider's accountsChanged callbacks into an ordered
// stream of ProviderEvents. Nothing is coalesced or dropped while the
// bridge is running; callbacks after Stop are ignored.
type Bridge struct {
	provider domain.Provider
	logger   *logging.Logger
	metrics  *metrics.Metrics

	mu      sync.Mutex
	sub     domain.Subscription
	seq     uint64
	stopped bool
	queue   *notify.Queue[ProviderEvent]
}

func NewBridge(provider domain.Provider, logger *logging.Logger, m *metrics.Metrics) *Bridge {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Bridge{
		provider: provider,
		logger:   logger.WithField("component", "provider_bridge"),
		metrics:  m,
		queue:    notify.NewQueue[ProviderEvent](),
	}
}

// Start registers with the provider
func (b *Bridge) Start() error {
	sub, err := b.provider.Subscribe(domain.EventAccountsChanged, b.handle)
	if err != nil {
		b.Stop()
		return err
	}

	b.mu.Lock()
	stopped := b.stopped
	if !stopped {
		b.sub = sub
	}
	b.mu.Unlock()

	if stopped {
		sub.Unsubscribe()
	}
	return nil
}

func (b *Bridge) handle(accounts []domain.Address) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}

	b.seq++
	ev := ProviderEvent{Seq: b.seq, Kind: AccountsCleared}
	// A blank first account means the provider no longer exposes one.
	if len(accounts) > 0 {
		if account := domain.NormalizeAddress(accounts[0]); account != "" {
			ev.Kind = AccountChanged
			ev.Account = account
		}
	}

	b.logger.WithFields(map[string]interface{}{
		"seq":     ev.Seq,
		"kind":    ev.Kind.String(),
		"account": ev.Account,
	}).Debug("Provider event received")
	b.metrics.RecordProviderEvent(ev.Kind.String())

	b.queue.Push(ev)
}

// Events delivers events in provider order; closed after Stop once the
// backlog is drained.
func (b *Bridge) Events() <-chan ProviderEvent {
	return b.queue.Out()
}

// Stop unsubscribes from the provider. Safe to call more than once and from
// the goroutine reading Events.
func (b *Bridge) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	sub := b.sub
	b.sub = nil
	b.queue.Close()
	b.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
}
