package domain

import (
	stderrors "errors"

	"github.com/quangdang46/shipment-tracker/shared/errors"
)

// Raw boundary errors reported by providers and gateways
var (
	ErrProviderRejected = stderrors.New("provider rejected the request")
	ErrNoSuchShipment   = stderrors.New("shipment does not exist")
	ErrNotPermitted     = stderrors.New("account is not permitted to update shipment")
)

// Connection errors
var (
	ErrProviderUnavailable = errors.New(errors.ErrorTypeConnection, "PROVIDER_UNAVAILABLE", "no signing provider is available")
	ErrConnectInProgress   = errors.New(errors.ErrorTypeConnection, "CONNECT_IN_PROGRESS", "a connection attempt is already in progress")
	ErrConnectRejected     = errors.New(errors.ErrorTypeConnection, "CONNECT_REJECTED", "the user rejected the connection request")
	ErrNoAccounts          = errors.New(errors.ErrorTypeConnection, "NO_ACCOUNTS", "the provider returned no accounts")
	ErrUnsupportedChain    = errors.New(errors.ErrorTypeConnection, "UNSUPPORTED_CHAIN", "the provider is on an unsupported network")
	ErrConnectFailed       = errors.New(errors.ErrorTypeConnection, "CONNECT_FAILED", "failed to connect to the signing provider")
	ErrConnectSuperseded   = errors.New(errors.ErrorTypeConnection, "CONNECT_SUPERSEDED", "the connection attempt was cancelled by a disconnect")
	ErrConnectTimeout      = errors.New(errors.ErrorTypeTimeout, "CONNECT_TIMEOUT", "the signing provider did not answer in time")
)

// Session errors
var (
	ErrSessionUnavailable = errors.New(errors.ErrorTypeSession, "SESSION_UNAVAILABLE", "no wallet session is connected")
)

// Contract errors
var (
	ErrQueryFailed       = errors.New(errors.ErrorTypeQuery, "QUERY_FAILED", "contract query failed")
	ErrQueryTimeout      = errors.New(errors.ErrorTypeQuery, "QUERY_TIMEOUT", "contract query timed out")
	ErrWriteFailed       = errors.New(errors.ErrorTypeWrite, "WRITE_FAILED", "status update was not accepted")
	ErrWriteUnauthorized = errors.New(errors.ErrorTypeWrite, "WRITE_UNAUTHORIZED", "account is not allowed to update this shipment")
	ErrWriteTimeout      = errors.New(errors.ErrorTypeWrite, "WRITE_TIMEOUT", "status update was not acknowledged in time")
	ErrShipmentNotFound  = errors.New(errors.ErrorTypeNotFound, "SHIPMENT_NOT_FOUND", "shipment not found")
	ErrInvalidStatus     = errors.New(errors.ErrorTypeInvalidInput, "INVALID_STATUS", "status is not a contract status")
)
