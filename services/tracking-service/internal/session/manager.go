// Package session owns the wallet session: connecting to the signing
// provider, following its account notifications and disconnecting.
package session

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/domain"
	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/notify"
	"github.com/quangdang46/shipment-tracker/shared/logging"
	"github.com/quangdang46/shipment-tracker/shared/metrics"
	"github.com/quangdang46/shipment-tracker/shared/recovery"
	"github.com/quangdang46/shipment-tracker/shared/timeout"
)

// Config controls connection behaviour
type Config struct {
	ConnectTimeout time.Duration
	// SupportedChainIDs is enforced when the provider reports a chain id.
	// Empty accepts any network.
	SupportedChainIDs []uint64
}

// DefaultConfig returns the connection defaults
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:    30 * time.Second,
		SupportedChainIDs: []uint64{1, 3, 4, 5, 42},
	}
}

// Manager is the single writer of the WalletSession.
// Transitions are applied one at a time under mu; subscribers are notified
// asynchronously, in transition order.
type Manager struct {
	provider domain.Provider
	config   Config
	logger   *logging.Logger
	metrics  *metrics.Metrics
	panics   *recovery.PanicHandler
	now      func() time.Time

	mu         sync.Mutex
	session    domain.WalletSession
	attempt    uint64
	connecting bool
	bridge     *Bridge
	bridgeGen  uint64

	changes *notify.Broadcaster[domain.WalletSession]
}

// NewManager creates a manager in the Disconnected state. provider may be
// nil, in which case every Connect fails with ErrProviderUnavailable.
func NewManager(provider domain.Provider, config Config, logger *logging.Logger, m *metrics.Metrics) *Manager {
	if logger == nil {
		logger = logging.Nop()
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = DefaultConfig().ConnectTimeout
	}
	logger = logger.WithField("component", "session_manager")

	return &Manager{
		provider: provider,
		config:   config,
		logger:   logger,
		metrics:  m,
		panics:   recovery.NewPanicHandler(logger),
		now:      time.Now,
		session:  domain.WalletSession{State: domain.StateDisconnected, UpdatedAt: time.Now()},
		changes:  notify.NewBroadcaster[domain.WalletSession](),
	}
}

// CurrentSession returns a snapshot of the session
func (m *Manager) CurrentSession() domain.WalletSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Subscribe registers fn for session changes (state or account).
// It returns the unsubscribe function.
func (m *Manager) Subscribe(fn func(domain.WalletSession)) func() {
	return m.changes.Subscribe(fn)
}

type connectResult struct {
	accounts []domain.Address
	chainID  uint64
}

// Connect asks the provider for its accounts and connects with the first
// one. It is a no-op when already connected and fails with
// ErrConnectInProgress when another Connect is running.
func (m *Manager) Connect(ctx context.Context) (domain.WalletSession, error) {
	m.mu.Lock()
	switch {
	case m.session.State == domain.StateConnected:
		snap := m.session
		m.mu.Unlock()
		return snap, nil
	case m.connecting:
		snap := m.session
		m.mu.Unlock()
		return snap, domain.ErrConnectInProgress
	case m.provider == nil:
		err := domain.ErrProviderUnavailable
		m.transitionLocked(domain.StateError, "", err)
		snap := m.session
		m.mu.Unlock()
		return snap, err
	}

	m.attempt++
	attempt := m.attempt
	m.connecting = true
	m.transitionLocked(domain.StateConnecting, "", nil)
	m.mu.Unlock()

	start := m.now()
	res, err := timeout.Run(ctx, m.config.ConnectTimeout, m.requestAccounts)
	m.metrics.ObserveConnect(m.now().Sub(start))

	var bridge *Bridge
	var account domain.Address
	if err == nil {
		err = m.checkResult(res)
	}
	if err == nil {
		account = domain.NormalizeAddress(res.accounts[0])
		bridge = NewBridge(m.provider, m.logger, m.metrics)
		if subErr := bridge.Start(); subErr != nil {
			bridge = nil
			err = domain.ErrConnectFailed.WithCause(subErr)
		}
	} else {
		err = classifyConnectError(err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if attempt != m.attempt {
		if bridge != nil {
			bridge.Stop()
		}
		m.logger.WithField("attempt", attempt).Info("Connect result discarded after disconnect")
		return m.session, domain.ErrConnectSuperseded
	}
	m.connecting = false

	if err != nil {
		m.transitionLocked(domain.StateError, "", err)
		return m.session, err
	}

	m.bridge = bridge
	m.bridgeGen++
	m.session.ChainID = res.chainID
	m.transitionLocked(domain.StateConnected, account, nil)

	gen := m.bridgeGen
	m.panics.Go("session.consume", func() { m.consume(bridge, gen) })

	return m.session, nil
}

func (m *Manager) requestAccounts(ctx context.Context) (connectResult, error) {
	accounts, err := m.provider.RequestAccounts(ctx)
	if err != nil {
		return connectResult{}, err
	}

	res := connectResult{accounts: accounts}
	if reader, ok := m.provider.(domain.ChainIDReader); ok && len(accounts) > 0 {
		id, err := reader.ChainID(ctx)
		if err != nil {
			return connectResult{}, err
		}
		res.chainID = id
	}
	return res, nil
}

func (m *Manager) checkResult(res connectResult) error {
	if len(res.accounts) == 0 || res.accounts[0] == "" {
		return domain.ErrNoAccounts
	}
	if res.chainID == 0 || len(m.config.SupportedChainIDs) == 0 {
		return nil
	}
	for _, id := range m.config.SupportedChainIDs {
		if id == res.chainID {
			return nil
		}
	}
	return domain.ErrUnsupportedChain.
		WithDetails("chain_id", res.chainID).
		WithDetails("supported", m.config.SupportedChainIDs)
}

func classifyConnectError(err error) error {
	switch {
	case timeout.IsDeadline(err):
		return domain.ErrConnectTimeout.WithCause(err)
	case stderrors.Is(err, domain.ErrProviderRejected):
		return domain.ErrConnectRejected.WithCause(err)
	default:
		return domain.ErrConnectFailed.WithCause(err)
	}
}

// Restore reconnects at startup when the provider still authorizes an
// account. A failed restore is logged and leaves the session in Error.
func (m *Manager) Restore(ctx context.Context) domain.WalletSession {
	s, err := m.Connect(ctx)
	if err != nil {
		m.logger.WithError(err).Warn("Session restore failed")
	}
	return s
}

// Disconnect ends the session. It supersedes an in-flight Connect, tears
// down the provider subscription and clears the provider's cached
// authorization. Idempotent; provider failures are only logged.
func (m *Manager) Disconnect(ctx context.Context) domain.WalletSession {
	m.mu.Lock()
	m.attempt++
	m.connecting = false
	bridge := m.endBridgeLocked()
	m.transitionLocked(domain.StateDisconnected, "", nil)
	snap := m.session
	m.mu.Unlock()

	if bridge != nil {
		bridge.Stop()
	}
	m.clearAuthorization(ctx)
	return snap
}

func (m *Manager) endBridgeLocked() *Bridge {
	b := m.bridge
	m.bridge = nil
	m.bridgeGen++
	return b
}

func (m *Manager) clearAuthorization(ctx context.Context) {
	if m.provider == nil {
		return
	}
	_, err := timeout.Run(ctx, m.config.ConnectTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, m.provider.ClearCachedAuthorization(ctx)
	})
	if err != nil {
		m.logger.WithError(err).Warn("Failed to clear cached provider authorization")
	}
}

// consume applies provider events of one connection, in order
func (m *Manager) consume(bridge *Bridge, gen uint64) {
	for ev := range bridge.Events() {
		if m.apply(ev, gen) {
			bridge.Stop()
			m.clearAuthorization(context.Background())
		}
	}
}

// apply reports whether the event ended the session
func (m *Manager) apply(ev ProviderEvent, gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.bridgeGen || m.session.State != domain.StateConnected {
		return false
	}

	switch ev.Kind {
	case AccountChanged:
		if ev.Account == "" {
			return false
		}
		m.transitionLocked(domain.StateConnected, ev.Account, nil)
		return false
	case AccountsCleared:
		m.attempt++
		m.endBridgeLocked()
		m.transitionLocked(domain.StateDisconnected, "", nil)
		return true
	}
	return false
}

// transitionLocked is the only place the session is written
func (m *Manager) transitionLocked(state domain.SessionState, account domain.Address, err error) {
	prev := m.session

	next := prev
	next.State = state
	next.Account = account
	next.LastError = err
	next.UpdatedAt = m.now()
	if state != domain.StateConnected {
		next.Account = ""
		next.ChainID = 0
	}
	m.session = next

	if prev.State == next.State && prev.Account == next.Account {
		return
	}

	m.metrics.RecordTransition(prev.State.String(), next.State.String())
	fields := map[string]interface{}{
		"from":    prev.State.String(),
		"to":      next.State.String(),
		"account": next.Account,
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	m.logger.Audit("session_transition", fields)

	m.changes.Publish(next)
}

// Close disconnects and stops change delivery
func (m *Manager) Close(ctx context.Context) {
	m.Disconnect(ctx)
	m.changes.Close()
}
