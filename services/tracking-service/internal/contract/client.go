// Package contract is the typed boundary over the shipment contract gateway.
package contract

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/domain"
	"github.com/quangdang46/shipment-tracker/shared/errors"
	"github.com/quangdang46/shipment-tracker/shared/logging"
	"github.com/quangdang46/shipment-tracker/shared/metrics"
	"github.com/quangdang46/shipment-tracker/shared/resilience"
	"github.com/quangdang46/shipment-tracker/shared/timeout"
)

// SessionSource exposes the current wallet session
type SessionSource interface {
	CurrentSession() domain.WalletSession
}

// Config bounds gateway calls
type Config struct {
	QueryTimeout time.Duration
	WriteTimeout time.Duration
	Retry        *resilience.RetryConfig
	Breaker      *resilience.CircuitBreakerConfig
}

func DefaultConfig() Config {
	t := timeout.DefaultTimeoutConfig()
	return Config{
		QueryTimeout: t.Query,
		WriteTimeout: t.Write,
		Retry:        resilience.DefaultRetryConfig(),
		Breaker:      resilience.DefaultCircuitBreakerConfig("contract"),
	}
}

// Client wraps a ContractGateway with session checks, timeouts, retries
// and the error taxonomy.
type Client struct {
	gateway  domain.ContractGateway
	sessions SessionSource
	config   Config
	retry    *resilience.RetryConfig
	breaker  *resilience.CircuitBreaker
	logger   *logging.Logger
	metrics  *metrics.Metrics
}

func NewClient(gateway domain.ContractGateway, sessions SessionSource, config Config, logger *logging.Logger, m *metrics.Metrics) *Client {
	if logger == nil {
		logger = logging.Nop()
	}
	defaults := DefaultConfig()
	if config.QueryTimeout <= 0 {
		config.QueryTimeout = defaults.QueryTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if config.Retry == nil {
		config.Retry = defaults.Retry
	}
	if config.Breaker == nil {
		config.Breaker = defaults.Breaker
	}

	retry := *config.Retry
	retry.RetryableErrors = isRetryable

	breakerCfg := *config.Breaker
	breakerCfg.IsFailure = isBreakerFailure
	logger = logger.WithField("component", "contract_client")
	breakerCfg.OnStateChange = func(name string, from, to resilience.State) {
		logger.WithFields(map[string]interface{}{
			"breaker": name,
			"from":    from.String(),
			"to":      to.String(),
		}).Warn("Contract circuit breaker changed state")
		m.SetBreakerState(name, int(to))
	}

	return &Client{
		gateway:  gateway,
		sessions: sessions,
		config:   config,
		retry:    &retry,
		breaker:  resilience.NewCircuitBreaker(&breakerCfg),
		logger:   logger,
		metrics:  m,
	}
}

// Health fails while the circuit breaker rejects gateway calls
func (c *Client) Health(ctx context.Context) error {
	if c.breaker.GetState() != resilience.StateOpen {
		return nil
	}
	stats := c.breaker.GetStats()
	return fmt.Errorf("circuit %s open since %s after %d failures",
		stats.Name, stats.LastStateChange.UTC().Format(time.RFC3339), stats.Failures)
}

func isRetryable(err error) bool {
	return !stderrors.Is(err, domain.ErrNoSuchShipment) &&
		!stderrors.Is(err, resilience.ErrCircuitOpen) &&
		!stderrors.Is(err, context.Canceled)
}

func isBreakerFailure(err error) bool {
	return !stderrors.Is(err, domain.ErrNoSuchShipment) &&
		!stderrors.Is(err, domain.ErrNotPermitted) &&
		!stderrors.Is(err, context.Canceled)
}

// ListShipments returns the shipments visible to account. It requires a
// connected session.
func (c *Client) ListShipments(ctx context.Context, account domain.Address) ([]domain.Shipment, error) {
	if !c.sessions.CurrentSession().Connected() || account == "" {
		return nil, domain.ErrSessionUnavailable
	}

	shipments, err := read(ctx, c, "list_shipments", func(ctx context.Context) ([]domain.Shipment, error) {
		return c.gateway.ListShipments(ctx, account)
	})
	if err != nil {
		return nil, c.queryError(err, "list_shipments").WithDetails("account", account)
	}

	out := make([]domain.Shipment, len(shipments))
	for i, s := range shipments {
		out[i] = s.Clone()
	}
	return out, nil
}

// GetShipment returns the raw state of one shipment and its unordered
// events. Unknown ids fail with ErrShipmentNotFound.
func (c *Client) GetShipment(ctx context.Context, id domain.ShipmentID) (*domain.ShipmentRecord, error) {
	if id == "" {
		return nil, errors.InvalidInput("id", "must not be empty")
	}

	record, err := read(ctx, c, "get_shipment", func(ctx context.Context) (*domain.ShipmentRecord, error) {
		return c.gateway.GetShipment(ctx, id)
	})
	if err != nil {
		if stderrors.Is(err, domain.ErrNoSuchShipment) {
			return nil, domain.ErrShipmentNotFound.WithDetails("id", id)
		}
		return nil, c.queryError(err, "get_shipment").WithDetails("id", id)
	}
	if record == nil {
		return nil, domain.ErrShipmentNotFound.WithDetails("id", id)
	}
	return record, nil
}

// UpdateStatus submits a status change signed by the session account.
// Without a connected session the gateway is never contacted. Writes are
// not retried.
func (c *Client) UpdateStatus(ctx context.Context, id domain.ShipmentID, status domain.ShipmentStatus) (*domain.WriteReceipt, error) {
	session := c.sessions.CurrentSession()
	if !session.Connected() {
		return nil, domain.ErrSessionUnavailable
	}
	if id == "" {
		return nil, errors.InvalidInput("id", "must not be empty")
	}
	if !status.Valid() {
		return nil, domain.ErrInvalidStatus.WithDetails("status", status.String())
	}

	start := time.Now()
	var receipt *domain.WriteReceipt
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		receipt, err = timeout.Run(ctx, c.config.WriteTimeout, func(ctx context.Context) (*domain.WriteReceipt, error) {
			return c.gateway.SubmitStatusUpdate(ctx, session.Account, id, status)
		})
		return err
	})
	c.metrics.RecordContractCall("update_status", outcome(err), time.Since(start))

	if err != nil {
		c.logger.WithError(err).WithFields(map[string]interface{}{
			"id":      id,
			"status":  status.String(),
			"account": session.Account,
		}).Warn("Status update failed")
		return nil, writeError(err).WithDetails("id", id)
	}
	if receipt == nil {
		receipt = &domain.WriteReceipt{}
	}
	if receipt.SubmittedAt.IsZero() {
		receipt.SubmittedAt = time.Now()
	}
	return receipt, nil
}

// read runs fn with the query timeout, behind the breaker and the retry
// policy. A timed out attempt is abandoned, never awaited.
func read[T any](ctx context.Context, c *Client, op string, fn func(context.Context) (T, error)) (T, error) {
	start := time.Now()
	var result T
	err := resilience.RetryWithConfig(ctx, c.retry, func(ctx context.Context) error {
		return c.breaker.Execute(ctx, func(ctx context.Context) error {
			v, err := timeout.Run(ctx, c.config.QueryTimeout, fn)
			if err == nil {
				result = v
			}
			return err
		})
	})
	c.metrics.RecordContractCall(op, outcome(err), time.Since(start))
	if err != nil && !stderrors.Is(err, domain.ErrNoSuchShipment) {
		c.logger.WithError(err).WithField("operation", op).Warn("Contract read failed")
	}
	return result, err
}

func (c *Client) queryError(err error, op string) *errors.Error {
	if timeout.IsDeadline(err) {
		return domain.ErrQueryTimeout.WithCause(err).WithDetails("operation", op)
	}
	return domain.ErrQueryFailed.WithCause(err).WithDetails("operation", op)
}

func writeError(err error) *errors.Error {
	switch {
	case stderrors.Is(err, domain.ErrNotPermitted):
		return domain.ErrWriteUnauthorized.WithCause(err)
	case stderrors.Is(err, domain.ErrNoSuchShipment):
		return domain.ErrShipmentNotFound.WithCause(err)
	case timeout.IsDeadline(err):
		return domain.ErrWriteTimeout.WithCause(err)
	default:
		return domain.ErrWriteFailed.WithCause(err)
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case stderrors.Is(err, domain.ErrNoSuchShipment):
		return "not_found"
	case stderrors.Is(err, domain.ErrNotPermitted):
		return "unauthorized"
	case timeout.IsDeadline(err):
		return "timeout"
	case stderrors.Is(err, resilience.ErrCircuitOpen):
		return "circuit_open"
	default:
		return "error"
	}
}
