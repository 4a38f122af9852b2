// Package app assembles the tracking service from its configuration.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/config"
	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/contract"
	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/domain"
	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/infrastructure/blockchain"
	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/infrastructure/cache"
	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/infrastructure/events"
	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/infrastructure/httpapi"
	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/infrastructure/provider"
	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/infrastructure/websocket"
	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/service"
	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/session"
	"github.com/quangdang46/shipment-tracker/shared/contracts"
	"github.com/quangdang46/shipment-tracker/shared/logging"
	"github.com/quangdang46/shipment-tracker/shared/messaging"
	"github.com/quangdang46/shipment-tracker/shared/metrics"
	"github.com/quangdang46/shipment-tracker/shared/monitoring"
	"github.com/quangdang46/shipment-tracker/shared/redis"
)

// App holds the wired tracker and the adapters it owns
type App struct {
	Config  *config.Config
	Logger  *logging.Logger
	Metrics *metrics.Metrics
	Tracker *service.Tracker
	Hub     *websocket.Hub
	// Ledger is set only for the in-memory gateway
	Ledger *blockchain.MemoryLedger

	healthChecks map[string]httpapi.HealthCheck
	closers      []func()
}

// New builds every adapter selected by cfg. On error, whatever was already
// opened is closed again.
func New(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = logging.Nop()
	}

	a := &App{
		Config:       cfg,
		Logger:       logger,
		Metrics:      metrics.NewMetrics("shiptrack", "tracking"),
		healthChecks: make(map[string]httpapi.HealthCheck),
	}

	if err := a.build(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config

	if enabled, err := monitoring.InitSentry(&cfg.Sentry); err != nil {
		a.Logger.WithError(err).Warn("Sentry initialization failed")
	} else if enabled {
		a.onClose(func() { monitoring.FlushSentry(2 * time.Second) })
	}

	wallet, signer, err := a.buildProvider(ctx)
	if err != nil {
		return err
	}

	gateway, err := a.buildGateway(ctx, signer)
	if err != nil {
		return err
	}

	var mirror domain.SnapshotMirror
	if cfg.RedisConfig.RedisHost != "" {
		client, err := redis.NewRedis(cfg.RedisConfig)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		a.onClose(func() { _ = client.Close() })
		if err := client.HealthCheck(ctx); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		a.healthChecks["redis"] = client.HealthCheck
		mirror = cache.NewSnapshotMirror(client, cfg.SnapshotTTL, a.Logger)
	}

	var amqpClient contracts.AMQPClient
	if cfg.RabbitMQ.Enabled() {
		rmq, err := messaging.NewRabbitMQ(cfg.RabbitMQ)
		if err != nil {
			return fmt.Errorf("connect to rabbitmq: %w", err)
		}
		a.onClose(func() { _ = rmq.Close() })
		amqpClient = rmq
	}
	publisher := events.NewEventPublisher(amqpClient, a.Logger)

	a.Hub = websocket.NewHub(cfg.HTTP.MaxWebSocketClients, a.Logger, a.Metrics)

	a.Tracker = service.NewTracker(service.Dependencies{
		Provider:  wallet,
		Gateway:   gateway,
		Publisher: publisher,
		Mirror:    mirror,
		Pusher:    a.Hub,
		Logger:    a.Logger,
		Metrics:   a.Metrics,
		Session: session.Config{
			ConnectTimeout:    cfg.Session.ConnectTimeout,
			SupportedChainIDs: cfg.Session.SupportedChainIDs,
		},
		Contract: contractConfig(cfg.Gateway),
	})
	a.healthChecks["contract"] = a.Tracker.ContractHealth

	a.Hub.SetSnapshot(func() []websocket.Frame {
		return []websocket.Frame{
			{Kind: service.PushSession, Payload: service.NewSessionView(a.Tracker.Session())},
			{Kind: service.PushShipments, Payload: service.NewShipmentViews(a.Tracker.Shipments())},
		}
	})
	return nil
}

func contractConfig(g config.GatewayConfig) contract.Config {
	c := contract.DefaultConfig()
	c.QueryTimeout = g.QueryTimeout
	c.WriteTimeout = g.WriteTimeout
	return c
}

func (a *App) buildProvider(ctx context.Context) (domain.Provider, blockchain.Signer, error) {
	p := a.Config.Provider

	switch p.Kind {
	case config.ProviderKeystore:
		ks := provider.NewKeystore(p.KeystoreDir, p.KeystorePassphrase, p.ChainID, p.LightKDF)
		a.Logger.WithField("dir", p.KeystoreDir).Info("Using keystore provider")
		return ks, ks, nil

	case config.ProviderRPC:
		rpcProvider, err := provider.DialRPC(ctx, p.WalletRPCURL)
		if err != nil {
			return nil, nil, fmt.Errorf("dial wallet rpc: %w", err)
		}
		a.onClose(rpcProvider.Close)
		a.Logger.WithField("endpoint", p.WalletRPCURL).Info("Using wallet rpc provider")
		return rpcProvider, rpcProvider, nil

	default:
		accounts := make([]domain.Address, 0, len(p.MemoryAccounts))
		for _, acc := range p.MemoryAccounts {
			accounts = append(accounts, domain.NormalizeAddress(acc))
		}
		a.Logger.WithField("accounts", len(accounts)).Info("Using in-memory provider")
		return provider.NewMemory(p.ChainID, accounts...), nil, nil
	}
}

func (a *App) buildGateway(ctx context.Context, signer blockchain.Signer) (domain.ContractGateway, error) {
	g := a.Config.Gateway

	if g.Kind == config.GatewayEthereum {
		gateway, closeFn, err := blockchain.DialEthGateway(ctx, g.ChainRPCURL, g.ContractAddress, signer, a.Logger)
		if err != nil {
			return nil, fmt.Errorf("dial chain rpc: %w", err)
		}
		a.onClose(closeFn)
		return gateway, nil
	}

	ledger := blockchain.NewMemoryLedger(g.MemoryWriteLag)
	var owners []domain.Address
	if a.Config.Provider.Kind == config.ProviderMemory {
		for _, acc := range a.Config.Provider.MemoryAccounts {
			owners = append(owners, domain.NormalizeAddress(acc))
		}
	}
	ledger.SeedDemo(owners...)
	a.Ledger = ledger
	return ledger, nil
}

func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// HTTPServer returns the API server over the tracker and the websocket hub
func (a *App) HTTPServer() *httpapi.Server {
	h := a.Config.HTTP
	return httpapi.NewServer(a.Tracker, a.Hub, httpapi.Config{
		RateLimit: httpapi.RateLimiterConfig{
			RatePerSecond: h.RateLimitRPS,
			Burst:         h.RateLimitBurst,
			IdleTimeout:   10 * time.Minute,
		},
		HealthChecks: a.healthChecks,
	}, a.Logger, a.Metrics)
}

// Close disconnects the session and releases adapters in reverse order
func (a *App) Close(ctx context.Context) {
	if a.Tracker != nil {
		a.Tracker.Close(ctx)
	}
	if a.Hub != nil {
		a.Hub.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
