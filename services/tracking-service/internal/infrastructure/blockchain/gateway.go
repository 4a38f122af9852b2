package blockchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/domain"
	"github.com/quangdang46/shipment-tracker/shared/logging"
)

// Backend is the part of an Ethereum node the gateway needs.
// *ethclient.Client satisfies it.
type Backend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	ChainID(ctx context.Context) (*big.Int, error)
}

// Signer signs transactions on behalf of a wallet account
type Signer interface {
	SignTx(ctx context.Context, account domain.Address, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// EthGateway reads the shipment contract with eth_call and submits status
// updates as signed legacy transactions.
type EthGateway struct {
	backend  Backend
	contract common.Address
	abi      abi.ABI
	signer   Signer
	logger   *logging.Logger
	now      func() time.Time
}

func NewEthGateway(backend Backend, contractAddress string, signer Signer, logger *logging.Logger) (*EthGateway, error) {
	if !common.IsHexAddress(contractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", contractAddress)
	}
	parsed, err := abi.JSON(strings.NewReader(ShipmentRegistryABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse contract ABI: %w", err)
	}
	if logger == nil {
		logger = logging.Nop()
	}

	return &EthGateway{
		backend:  backend,
		contract: common.HexToAddress(contractAddress),
		abi:      parsed,
		signer:   signer,
		logger:   logger.WithField("component", "eth_gateway"),
		now:      time.Now,
	}, nil
}

// DialEthGateway connects to a node over JSON-RPC
func DialEthGateway(ctx context.Context, rpcURL, contractAddress string, signer Signer, logger *logging.Logger) (*EthGateway, func(), error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to chain RPC: %w", err)
	}
	gw, err := NewEthGateway(client, contractAddress, signer, logger)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return gw, client.Close, nil
}

func (g *EthGateway) call(ctx context.Context, from common.Address, method string, args ...interface{}) ([]interface{}, error) {
	data, err := g.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	out, err := g.backend.CallContract(ctx, ethereum.CallMsg{
		From: from,
		To:   &g.contract,
		Data: data,
	}, nil)
	if err != nil {
		return nil, classifyRevert(err)
	}

	values, err := g.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

func (g *EthGateway) ListShipments(ctx context.Context, viewer domain.Address) ([]domain.Shipment, error) {
	if !common.IsHexAddress(viewer) {
		return nil, fmt.Errorf("invalid viewer address %q", viewer)
	}
	from := common.HexToAddress(viewer)

	values, err := g.call(ctx, from, methodListShipments, from)
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("unexpected %s output count %d", methodListShipments, len(values))
	}

	tuples := *abi.ConvertType(values[0], new([]ShipmentTuple)).(*[]ShipmentTuple)
	out := make([]domain.Shipment, len(tuples))
	for i, t := range tuples {
		out[i] = t.toDomain()
	}
	return out, nil
}

func (g *EthGateway) GetShipment(ctx context.Context, id domain.ShipmentID) (*domain.ShipmentRecord, error) {
	values, err := g.call(ctx, common.Address{}, methodGetShipment, id)
	if err != nil {
		return nil, err
	}
	if len(values) != 3 {
		return nil, fmt.Errorf("unexpected %s output count %d", methodGetShipment, len(values))
	}

	exists, ok := values[0].(bool)
	if !ok {
		return nil, fmt.Errorf("unexpected %s exists type %T", methodGetShipment, values[0])
	}
	if !exists {
		return nil, domain.ErrNoSuchShipment
	}

	shipment := *abi.ConvertType(values[1], new(ShipmentTuple)).(*ShipmentTuple)
	events := *abi.ConvertType(values[2], new([]EventTuple)).(*[]EventTuple)

	record := &domain.ShipmentRecord{
		Shipment: shipment.toDomain(),
		Events:   make([]domain.TimelineEvent, len(events)),
	}
	for i, e := range events {
		record.Events[i] = e.toDomain()
	}
	return record, nil
}

func (g *EthGateway) SubmitStatusUpdate(ctx context.Context, from domain.Address, id domain.ShipmentID, status domain.ShipmentStatus) (*domain.WriteReceipt, error) {
	if g.signer == nil {
		return nil, errors.New("no transaction signer configured")
	}
	if !common.IsHexAddress(from) {
		return nil, fmt.Errorf("invalid sender address %q", from)
	}
	sender := common.HexToAddress(from)

	data, err := g.abi.Pack(methodUpdateStatus, id, uint8(status))
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", methodUpdateStatus, err)
	}

	msg := ethereum.CallMsg{From: sender, To: &g.contract, Data: data}
	gas, err := g.backend.EstimateGas(ctx, msg)
	if err != nil {
		return nil, classifyRevert(err)
	}
	nonce, err := g.backend.PendingNonceAt(ctx, sender)
	if err != nil {
		return nil, fmt.Errorf("get nonce: %w", err)
	}
	gasPrice, err := g.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}
	chainID, err := g.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("get chain id: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &g.contract,
		Value:    big.NewInt(0),
		Data:     data,
	})
	signed, err := g.signer.SignTx(ctx, from, tx, chainID)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	if err := g.backend.SendTransaction(ctx, signed); err != nil {
		return nil, classifyRevert(err)
	}

	g.logger.WithFields(map[string]interface{}{
		"tx_hash": signed.Hash().Hex(),
		"id":      id,
		"status":  status.String(),
		"nonce":   nonce,
	}).Info("Status update submitted")

	return &domain.WriteReceipt{
		TxHash:      signed.Hash().Hex(),
		SubmittedAt: g.now(),
	}, nil
}

// classifyRevert maps contract reverts to the gateway's sentinel errors
func classifyRevert(err error) error {
	reason := err.Error()

	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if hexData, ok := dataErr.ErrorData().(string); ok {
			if raw, decodeErr := hexutil.Decode(hexData); decodeErr == nil {
				if unpacked, unpackErr := abi.UnpackRevert(raw); unpackErr == nil {
					reason = unpacked
				}
			}
		}
	}

	lower := strings.ToLower(reason)
	switch {
	case strings.Contains(lower, "unauthorized"), strings.Contains(lower, "not permitted"):
		return fmt.Errorf("%w: %s", domain.ErrNotPermitted, reason)
	case strings.Contains(lower, "unknown shipment"), strings.Contains(lower, "shipment not found"):
		return fmt.Errorf("%w: %s", domain.ErrNoSuchShipment, reason)
	default:
		return err
	}
}
