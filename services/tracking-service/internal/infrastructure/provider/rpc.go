package provider

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/domain"
)

// userRejectedCode is the EIP-1193 code for a request the user declined
const userRejectedCode = 4001

// RPC talks to a wallet daemon over JSON-RPC using the EIP-1193 method set.
// accountsChanged is delivered through a wallet_subscribe subscription,
// which needs a websocket or IPC endpoint.
type RPC struct {
	client *rpc.Client
}

func DialRPC(ctx context.Context, endpoint string) (*RPC, error) {
	client, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to wallet RPC: %w", err)
	}
	return NewRPC(client), nil
}

func NewRPC(client *rpc.Client) *RPC {
	return &RPC{client: client}
}

func (p *RPC) Close() {
	p.client.Close()
}

func mapRPCError(err error) error {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == userRejectedCode {
		return fmt.Errorf("%w: %s", domain.ErrProviderRejected, rpcErr.Error())
	}
	return err
}

func (p *RPC) RequestAccounts(ctx context.Context) ([]domain.Address, error) {
	var accs []common.Address
	if err := p.client.CallContext(ctx, &accs, "eth_requestAccounts"); err != nil {
		return nil, mapRPCError(err)
	}
	out := make([]domain.Address, len(accs))
	for i, a := range accs {
		out[i] = a.Hex()
	}
	return out, nil
}

func (p *RPC) ChainID(ctx context.Context) (uint64, error) {
	var id hexutil.Uint64
	if err := p.client.CallContext(ctx, &id, "eth_chainId"); err != nil {
		return 0, err
	}
	return uint64(id), nil
}

type rpcSubscription struct {
	once sync.Once
	sub  *rpc.ClientSubscription
	quit chan struct{}
}

func (s *rpcSubscription) Unsubscribe() {
	s.once.Do(func() {
		close(s.quit)
		s.sub.Unsubscribe()
	})
}

func (p *RPC) Subscribe(event string, handler func([]domain.Address)) (domain.Subscription, error) {
	if event != domain.EventAccountsChanged {
		return nil, fmt.Errorf("unsupported provider event %q", event)
	}

	ch := make(chan []common.Address, 16)
	sub, err := p.client.Subscribe(context.Background(), "wallet", ch, event)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", event, err)
	}
	s := &rpcSubscription{sub: sub, quit: make(chan struct{})}

	go func() {
		for {
			select {
			case accs := <-ch:
				out := make([]domain.Address, len(accs))
				for i, a := range accs {
					out[i] = a.Hex()
				}
				handler(out)
			case <-sub.Err():
				return
			case <-s.quit:
				return
			}
		}
	}()

	return s, nil
}

func (p *RPC) ClearCachedAuthorization(ctx context.Context) error {
	permissions := map[string]struct{}{"eth_accounts": {}}
	return p.client.CallContext(ctx, nil, "wallet_revokePermissions", permissions)
}

// SendTxArgs is the eth_signTransaction request object
type SendTxArgs struct {
	From     common.Address  `json:"from"`
	To       *common.Address `json:"to,omitempty"`
	Gas      hexutil.Uint64  `json:"gas"`
	GasPrice *hexutil.Big    `json:"gasPrice"`
	Value    *hexutil.Big    `json:"value"`
	Nonce    hexutil.Uint64  `json:"nonce"`
	Data     hexutil.Bytes   `json:"data"`
	ChainID  *hexutil.Big    `json:"chainId"`
}

// SignTxResult is the eth_signTransaction response
type SignTxResult struct {
	Raw hexutil.Bytes `json:"raw"`
}

// SignTx asks the wallet to sign a legacy transaction
func (p *RPC) SignTx(ctx context.Context, account domain.Address, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	args := SendTxArgs{
		From:     common.HexToAddress(account),
		To:       tx.To(),
		Gas:      hexutil.Uint64(tx.Gas()),
		GasPrice: (*hexutil.Big)(tx.GasPrice()),
		Value:    (*hexutil.Big)(tx.Value()),
		Nonce:    hexutil.Uint64(tx.Nonce()),
		Data:     tx.Data(),
		ChainID:  (*hexutil.Big)(chainID),
	}

	var res SignTxResult
	if err := p.client.CallContext(ctx, &res, "eth_signTransaction", args); err != nil {
		return nil, mapRPCError(err)
	}

	signed := new(types.Transaction)
	if err := signed.UnmarshalBinary(res.Raw); err != nil {
		return nil, fmt.Errorf("decode signed transaction: %w", err)
	}
	return signed, nil
}
