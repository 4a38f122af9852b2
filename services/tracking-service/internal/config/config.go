package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/domain"
	"github.com/quangdang46/shipment-tracker/shared/env"
	"github.com/quangdang46/shipment-tracker/shared/messaging"
	"github.com/quangdang46/shipment-tracker/shared/monitoring"
	"github.com/quangdang46/shipment-tracker/shared/redis"
	"github.com/quangdang46/shipment-tracker/shared/timeout"
)

// Provider kinds
const (
	ProviderKeystore = "keystore"
	ProviderRPC      = "rpc"
	ProviderMemory   = "memory"
)

// Gateway kinds
const (
	GatewayEthereum = "ethereum"
	GatewayMemory   = "memory"
)

// DemoAccount owns the seeded demo shipment of the in-memory ledger
const DemoAccount = "0xAB00000000000000000000000000000000000012"

// HTTPConfig holds the API server configuration
type HTTPConfig struct {
	Addr                string
	ShutdownTimeout     time.Duration
	MaxWebSocketClients int
	RateLimitRPS        float64
	RateLimitBurst      int
}

// ProviderConfig selects and configures the signing provider
type ProviderConfig struct {
	Kind               string
	KeystoreDir        string
	KeystorePassphrase string
	LightKDF           bool
	WalletRPCURL       string
	MemoryAccounts     []string
	ChainID            uint64
}

// GatewayConfig selects and configures the contract gateway
type GatewayConfig struct {
	Kind            string
	ChainRPCURL     string
	ContractAddress string
	MemoryWriteLag  time.Duration
	QueryTimeout    time.Duration
	WriteTimeout    time.Duration
}

// SessionConfig holds wallet session behaviour
type SessionConfig struct {
	ConnectTimeout    time.Duration
	SupportedChainIDs []uint64
	AutoConnect       bool
}

// Config contains configuration for the tracking service
type Config struct {
	ServiceName string
	Environment string
	LogLevel    string

	HTTP        HTTPConfig
	Provider    ProviderConfig
	Gateway     GatewayConfig
	Session     SessionConfig
	RedisConfig redis.RedisConfig
	SnapshotTTL time.Duration
	RabbitMQ    messaging.RabbitMQConfig
	Sentry      monitoring.SentryConfig
}

// NewConfig loads configuration from the environment
func NewConfig() (*Config, error) {
	chainIDs, err := parseChainIDs(env.GetStringSlice("SUPPORTED_CHAIN_IDS", []string{"1", "3", "4", "5", "42"}))
	if err != nil {
		return nil, err
	}
	t := timeout.DefaultTimeoutConfig()

	serviceName := env.GetString("SERVICE_NAME", "tracking-service")
	environment := env.GetString("ENVIRONMENT", "development")

	return &Config{
		ServiceName: serviceName,
		Environment: environment,
		LogLevel:    env.GetString("LOG_LEVEL", "info"),
		HTTP: HTTPConfig{
			Addr:                env.GetString("HTTP_ADDR", ":8080"),
			ShutdownTimeout:     env.GetDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
			MaxWebSocketClients: env.GetInt("WS_MAX_CLIENTS", 1000),
			RateLimitRPS:        env.GetFloat("RATE_LIMIT_RPS", 10),
			RateLimitBurst:      env.GetInt("RATE_LIMIT_BURST", 20),
		},
		Provider: ProviderConfig{
			Kind:               env.GetString("PROVIDER_KIND", ProviderMemory),
			KeystoreDir:        env.GetString("KEYSTORE_DIR", "./keystore"),
			KeystorePassphrase: env.GetString("KEYSTORE_PASSPHRASE", ""),
			LightKDF:           env.GetBool("KEYSTORE_LIGHT_KDF", false),
			WalletRPCURL:       env.GetString("WALLET_RPC_URL", ""),
			MemoryAccounts:     env.GetStringSlice("MEMORY_ACCOUNTS", []string{DemoAccount}),
			ChainID:            uint64(env.GetInt64("CHAIN_ID", 1)),
		},
		Gateway: GatewayConfig{
			Kind:            env.GetString("GATEWAY_KIND", GatewayMemory),
			ChainRPCURL:     env.GetString("CHAIN_RPC_URL", ""),
			ContractAddress: env.GetString("CONTRACT_ADDRESS", ""),
			MemoryWriteLag:  env.GetDuration("MEMORY_WRITE_LAG", 0),
			QueryTimeout:    env.GetDuration("QUERY_TIMEOUT", t.Query),
			WriteTimeout:    env.GetDuration("WRITE_TIMEOUT", t.Write),
		},
		Session: SessionConfig{
			ConnectTimeout:    env.GetDuration("CONNECT_TIMEOUT", t.Connect),
			SupportedChainIDs: chainIDs,
			AutoConnect:       env.GetBool("AUTO_CONNECT", true),
		},
		RedisConfig: redis.RedisConfig{
			RedisHost:     env.GetString("REDIS_HOST", ""),
			RedisPort:     env.GetInt("REDIS_PORT", 6379),
			RedisPassword: env.GetString("REDIS_PASSWORD", ""),
			RedisDB:       env.GetInt("REDIS_DB", 0),
			DialTimeout:   t.Redis,
		},
		SnapshotTTL: env.GetDuration("SNAPSHOT_TTL", 24*time.Hour),
		RabbitMQ: messaging.RabbitMQConfig{
			RabbitMQHost:     env.GetString("RABBITMQ_HOST", ""),
			RabbitMQPort:     env.GetInt("RABBITMQ_PORT", 5672),
			RabbitMQUser:     env.GetString("RABBITMQ_USER", "guest"),
			RabbitMQPassword: env.GetString("RABBITMQ_PASSWORD", "guest"),
			RabbitMQExchange: env.GetString("RABBITMQ_EXCHANGE", ""),
		},
		Sentry: monitoring.SentryConfig{
			DSN:              env.GetString("SENTRY_DSN", ""),
			Environment:      environment,
			Release:          env.GetString("RELEASE_VERSION", ""),
			ServiceName:      serviceName,
			SampleRate:       1.0,
			TracesSampleRate: 0.1,
			Debug:            env.GetBool("SENTRY_DEBUG", false),
		},
	}, nil
}

func parseChainIDs(raw []string) ([]uint64, error) {
	out := make([]uint64, 0, len(raw))
	for _, r := range raw {
		id, err := strconv.ParseUint(r, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid SUPPORTED_CHAIN_IDS entry %q: %w", r, err)
		}
		out = append(out, id)
	}
	return out, nil
}

// Validate checks that the selected adapters have what they need
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return fmt.Errorf("HTTP_ADDR is required")
	}

	switch c.Provider.Kind {
	case ProviderKeystore:
		if c.Provider.KeystoreDir == "" {
			return fmt.Errorf("KEYSTORE_DIR is required for the keystore provider")
		}
	case ProviderRPC:
		if c.Provider.WalletRPCURL == "" {
			return fmt.Errorf("WALLET_RPC_URL is required for the rpc provider")
		}
	case ProviderMemory:
		for _, a := range c.Provider.MemoryAccounts {
			if !domain.IsHexAddress(a) {
				return fmt.Errorf("invalid MEMORY_ACCOUNTS entry %q", a)
			}
		}
	default:
		return fmt.Errorf("unknown PROVIDER_KIND %q", c.Provider.Kind)
	}

	switch c.Gateway.Kind {
	case GatewayEthereum:
		if c.Gateway.ChainRPCURL == "" {
			return fmt.Errorf("CHAIN_RPC_URL is required for the ethereum gateway")
		}
		if !domain.IsHexAddress(c.Gateway.ContractAddress) {
			return fmt.Errorf("CONTRACT_ADDRESS %q is not a valid address", c.Gateway.ContractAddress)
		}
		if c.Provider.Kind == ProviderMemory {
			return fmt.Errorf("the ethereum gateway needs a signing provider (keystore or rpc)")
		}
	case GatewayMemory:
	default:
		return fmt.Errorf("unknown GATEWAY_KIND %q", c.Gateway.Kind)
	}

	if c.Session.ConnectTimeout <= 0 {
		return fmt.Errorf("CONNECT_TIMEOUT must be positive")
	}
	if c.Gateway.QueryTimeout <= 0 || c.Gateway.WriteTimeout <= 0 {
		return fmt.Errorf("QUERY_TIMEOUT and WRITE_TIMEOUT must be positive")
	}
	if c.HTTP.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must not be negative")
	}
	return nil
}
