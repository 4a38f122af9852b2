package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/domain"
)

// Memory is an in-process signing provider for local runs and tests.
// Switching accounts with SetAccounts notifies subscribers the way a
// browser wallet does.
type Memory struct {
	mu         sync.Mutex
	accounts   []domain.Address
	chainID    uint64
	requestErr error
	gate       chan struct{}
	handlers   map[uint64]func([]domain.Address)
	nextID     uint64
	clearCalls int
	authorized bool
}

func NewMemory(chainID uint64, accounts ...domain.Address) *Memory {
	return &Memory{
		accounts: append([]domain.Address(nil), accounts...),
		chainID:  chainID,
		handlers: make(map[uint64]func([]domain.Address)),
	}
}

// RequestAccounts returns the configured accounts. While a gate is set it
// blocks until the gate is released, ignoring ctx.
func (m *Memory) RequestAccounts(ctx context.Context) ([]domain.Address, error) {
	m.mu.Lock()
	gate := m.gate
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.requestErr != nil {
		return nil, m.requestErr
	}
	m.authorized = len(m.accounts) > 0
	return append([]domain.Address(nil), m.accounts...), nil
}

func (m *Memory) ChainID(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chainID, nil
}

type memorySubscription struct {
	once   sync.Once
	remove func()
}

func (s *memorySubscription) Unsubscribe() {
	s.once.Do(s.remove)
}

func (m *Memory) Subscribe(event string, handler func([]domain.Address)) (domain.Subscription, error) {
	if event != domain.EventAccountsChanged {
		return nil, fmt.Errorf("unsupported provider event %q", event)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.handlers[id] = handler

	return &memorySubscription{remove: func() {
		m.mu.Lock()
		delete(m.handlers, id)
		m.mu.Unlock()
	}}, nil
}

func (m *Memory) ClearCachedAuthorization(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearCalls++
	m.authorized = false
	return nil
}

// SetAccounts replaces the account list and emits accountsChanged
func (m *Memory) SetAccounts(accounts ...domain.Address) {
	m.mu.Lock()
	m.accounts = append([]domain.Address(nil), accounts...)
	handlers := m.sortedHandlers()
	m.mu.Unlock()

	for _, h := range handlers {
		h(append([]domain.Address(nil), accounts...))
	}
}

func (m *Memory) sortedHandlers() []func([]domain.Address) {
	ids := make([]uint64, 0, len(m.handlers))
	for id := range m.handlers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]func([]domain.Address), len(ids))
	for i, id := range ids {
		out[i] = m.handlers[id]
	}
	return out
}

// SetRequestError makes RequestAccounts fail, e.g. with domain.ErrProviderRejected
func (m *Memory) SetRequestError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestErr = err
}

// Hold makes RequestAccounts block until the returned release func is called
func (m *Memory) Hold() (release func()) {
	gate := make(chan struct{})
	m.mu.Lock()
	m.gate = gate
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			if m.gate == gate {
				m.gate = nil
			}
			m.mu.Unlock()
			close(gate)
		})
	}
}

func (m *Memory) SetChainID(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chainID = id
}

func (m *Memory) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handlers)
}

func (m *Memory) ClearCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clearCalls
}

func (m *Memory) Authorized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authorized
}
