package blockchain

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/suite"

	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/domain"
)

const contractAddress = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

type fakeBackend struct {
	abi       abi.ABI
	chainID   *big.Int
	shipments []ShipmentTuple
	record    *ShipmentTuple
	events    []EventTuple
	lastCall  ethereum.CallMsg
	estimate  error
	sent      []*types.Transaction
}

func (b *fakeBackend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	b.lastCall = call
	method, err := b.abi.MethodById(call.Data[:4])
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case methodListShipments:
		return method.Outputs.Pack(b.shipments)
	case methodGetShipment:
		if b.record == nil {
			return method.Outputs.Pack(false, ShipmentTuple{}, []EventTuple{})
		}
		return method.Outputs.Pack(true, *b.record, b.events)
	}
	return nil, errors.New("unexpected method " + method.Name)
}

func (b *fakeBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return 7, nil
}

func (b *fakeBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (b *fakeBackend) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	if b.estimate != nil {
		return 0, b.estimate
	}
	return 60_000, nil
}

func (b *fakeBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	b.sent = append(b.sent, tx)
	return nil
}

func (b *fakeBackend) ChainID(ctx context.Context) (*big.Int, error) {
	return b.chainID, nil
}

type keySigner struct {
	key *ecdsa.PrivateKey
}

func (s keySigner) SignTx(ctx context.Context, account domain.Address, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return types.SignTx(tx, types.NewEIP155Signer(chainID), s.key)
}

type revertError struct {
	data string
}

func (e revertError) Error() string          { return "execution reverted" }
func (e revertError) ErrorData() interface{} { return e.data }

func encodeRevert(reason string) string {
	stringType, _ := abi.NewType("string", "", nil)
	packed, _ := abi.Arguments{{Type: stringType}}.Pack(reason)
	selector := crypto.Keccak256([]byte("Error(string)"))[:4]
	return hexutil.Encode(append(selector, packed...))
}

// EthGatewayTestSuite drives the gateway against a fake node
type EthGatewayTestSuite struct {
	suite.Suite
	ctx     context.Context
	backend *fakeBackend
	key     *ecdsa.PrivateKey
	sender  domain.Address
	gateway *EthGateway
}

func (suite *EthGatewayTestSuite) SetupTest() {
	suite.ctx = context.Background()

	parsed, err := abi.JSON(strings.NewReader(ShipmentRegistryABI))
	suite.Require().NoError(err)
	suite.backend = &fakeBackend{abi: parsed, chainID: big.NewInt(5)}

	suite.key, err = crypto.GenerateKey()
	suite.Require().NoError(err)
	suite.sender = crypto.PubkeyToAddress(suite.key.PublicKey).Hex()

	suite.gateway, err = NewEthGateway(suite.backend, contractAddress, keySigner{key: suite.key}, nil)
	suite.Require().NoError(err)
}

func (suite *EthGatewayTestSuite) TestRejectsInvalidContractAddress() {
	_, err := NewEthGateway(suite.backend, "not-an-address", nil, nil)
	suite.Error(err)
}

func (suite *EthGatewayTestSuite) TestListShipmentsDecodesTuples() {
	updated := time.Date(2024, 3, 12, 10, 30, 0, 0, time.UTC)
	suite.backend.shipments = []ShipmentTuple{
		NewShipmentTuple(domain.Shipment{
			ID:            "TRK3000",
			Status:        domain.StatusInTransit,
			Location:      &domain.Location{Lat: 48.8566, Lng: 2.3522},
			LastUpdate:    updated,
			RFIDTag:       "RFID123",
			DeliveryPoint: &domain.Location{Lat: 45.764, Lng: 4.8357},
		}),
		{Id: "TRK3001", Status: 9, LastUpdate: uint64(updated.Unix())},
	}

	list, err := suite.gateway.ListShipments(suite.ctx, suite.sender)

	suite.Require().NoError(err)
	suite.Require().Len(list, 2)
	suite.Equal("TRK3000", list[0].ID)
	suite.Equal(domain.StatusInTransit, list[0].Status)
	suite.Require().NotNil(list[0].Location)
	suite.InDelta(48.8566, list[0].Location.Lat, 1e-6)
	suite.InDelta(2.3522, list[0].Location.Lng, 1e-6)
	suite.True(updated.Equal(list[0].LastUpdate))
	suite.Equal("RFID123", list[0].RFIDTag)
	suite.Require().NotNil(list[0].DeliveryPoint)
	suite.InDelta(45.764, list[0].DeliveryPoint.Lat, 1e-6)
	suite.InDelta(4.8357, list[0].DeliveryPoint.Lng, 1e-6)
	suite.Nil(list[1].Location)
	suite.Nil(list[1].DeliveryPoint)
	suite.Empty(list[1].RFIDTag)
	suite.Equal(domain.StatusUnknown, list[1].Status)
	suite.Equal(common.HexToAddress(suite.sender), suite.backend.lastCall.From)
	suite.Equal(common.HexToAddress(contractAddress), *suite.backend.lastCall.To)
}

func (suite *EthGatewayTestSuite) TestListShipmentsRejectsBadViewer() {
	_, err := suite.gateway.ListShipments(suite.ctx, "nobody")
	suite.Error(err)
}

func (suite *EthGatewayTestSuite) TestGetShipmentWithEvents() {
	at := time.Date(2024, 3, 11, 8, 0, 0, 0, time.UTC)
	record := NewShipmentTuple(domain.Shipment{ID: "TRK3000", Status: domain.StatusPickedUp, LastUpdate: at})
	suite.backend.record = &record
	suite.backend.events = []EventTuple{
		NewEventTuple(domain.TimelineEvent{
			Status:    domain.StatusPickedUp,
			Location:  &domain.Location{Lat: 48.8566, Lng: 2.3522},
			Timestamp: at,
			Details:   "Colis réceptionné au centre de tri",
		}),
	}

	got, err := suite.gateway.GetShipment(suite.ctx, "TRK3000")

	suite.Require().NoError(err)
	suite.Equal("TRK3000", got.Shipment.ID)
	suite.Require().Len(got.Events, 1)
	suite.Equal(domain.StatusPickedUp, got.Events[0].Status)
	suite.Equal("Colis réceptionné au centre de tri", got.Events[0].Details)
	suite.True(at.Equal(got.Events[0].Timestamp))
}

func (suite *EthGatewayTestSuite) TestGetShipmentMissing() {
	_, err := suite.gateway.GetShipment(suite.ctx, "TRK9999")
	suite.ErrorIs(err, domain.ErrNoSuchShipment)
}

func (suite *EthGatewayTestSuite) TestSubmitStatusUpdateSignsAndSends() {
	receipt, err := suite.gateway.SubmitStatusUpdate(suite.ctx, suite.sender, "TRK3000", domain.StatusDelivered)

	suite.Require().NoError(err)
	suite.Require().Len(suite.backend.sent, 1)
	tx := suite.backend.sent[0]
	suite.Equal(tx.Hash().Hex(), receipt.TxHash)
	suite.Equal(uint64(7), tx.Nonce())
	suite.Equal(uint64(60_000), tx.Gas())
	suite.Equal(common.HexToAddress(contractAddress), *tx.To())

	from, err := types.Sender(types.NewEIP155Signer(big.NewInt(5)), tx)
	suite.Require().NoError(err)
	suite.Equal(crypto.PubkeyToAddress(suite.key.PublicKey), from)

	expected, err := suite.backend.abi.Pack(methodUpdateStatus, "TRK3000", uint8(domain.StatusDelivered))
	suite.Require().NoError(err)
	suite.True(bytes.Equal(expected, tx.Data()))
}

func (suite *EthGatewayTestSuite) TestSubmitStatusUpdateUnauthorized() {
	suite.backend.estimate = errors.New("execution reverted: Unauthorized")

	_, err := suite.gateway.SubmitStatusUpdate(suite.ctx, suite.sender, "TRK3000", domain.StatusDelivered)

	suite.ErrorIs(err, domain.ErrNotPermitted)
	suite.Empty(suite.backend.sent)
}

func (suite *EthGatewayTestSuite) TestSubmitStatusUpdateDecodesRevertData() {
	suite.backend.estimate = revertError{data: encodeRevert("unknown shipment")}

	_, err := suite.gateway.SubmitStatusUpdate(suite.ctx, suite.sender, "TRK9999", domain.StatusDelivered)

	suite.ErrorIs(err, domain.ErrNoSuchShipment)
}

func (suite *EthGatewayTestSuite) TestSubmitStatusUpdateWithoutSigner() {
	gw, err := NewEthGateway(suite.backend, contractAddress, nil, nil)
	suite.Require().NoError(err)

	_, err = gw.SubmitStatusUpdate(suite.ctx, suite.sender, "TRK3000", domain.StatusDelivered)

	suite.Error(err)
	suite.Empty(suite.backend.sent)
}

func TestEthGatewayTestSuite(t *testing.T) {
	suite.Run(t, new(EthGatewayTestSuite))
}
