package provider

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/domain"
)

// Keystore is a signing provider backed by an encrypted key directory.
// RequestAccounts unlocks the keys with the configured passphrase and
// ClearCachedAuthorization locks them again.
type Keystore struct {
	ks         *keystore.KeyStore
	passphrase string
	chainID    uint64

	mu         sync.Mutex
	authorized bool
}

// NewKeystore opens dir. lightKDF trades key security for fast unlocks.
func NewKeystore(dir, passphrase string, chainID uint64, lightKDF bool) *Keystore {
	scryptN, scryptP := keystore.StandardScryptN, keystore.StandardScryptP
	if lightKDF {
		scryptN, scryptP = keystore.LightScryptN, keystore.LightScryptP
	}
	return &Keystore{
		ks:         keystore.NewKeyStore(dir, scryptN, scryptP),
		passphrase: passphrase,
		chainID:    chainID,
	}
}

func (k *Keystore) addresses() []domain.Address {
	accs := k.ks.Accounts()
	out := make([]domain.Address, len(accs))
	for i, a := range accs {
		out[i] = a.Address.Hex()
	}
	return out
}

func (k *Keystore) RequestAccounts(ctx context.Context) ([]domain.Address, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	accs := k.ks.Accounts()
	for _, a := range accs {
		if err := k.ks.Unlock(a, k.passphrase); err != nil {
			if errors.Is(err, keystore.ErrDecrypt) {
				return nil, fmt.Errorf("%w: %v", domain.ErrProviderRejected, err)
			}
			return nil, fmt.Errorf("unlock %s: %w", a.Address.Hex(), err)
		}
	}

	k.mu.Lock()
	k.authorized = len(accs) > 0
	k.mu.Unlock()

	return k.addresses(), nil
}

func (k *Keystore) ChainID(ctx context.Context) (uint64, error) {
	return k.chainID, nil
}

type keystoreSubscription struct {
	once sync.Once
	quit chan struct{}
}

func (s *keystoreSubscription) Unsubscribe() {
	s.once.Do(func() { close(s.quit) })
}

// Subscribe reports key arrivals and removals as accountsChanged while the
// keystore is authorized.
func (k *Keystore) Subscribe(event string, handler func([]domain.Address)) (domain.Subscription, error) {
	if event != domain.EventAccountsChanged {
		return nil, fmt.Errorf("unsupported provider event %q", event)
	}

	sink := make(chan accounts.WalletEvent, 16)
	sub := k.ks.Subscribe(sink)
	s := &keystoreSubscription{quit: make(chan struct{})}

	go func() {
		defer sub.Unsubscribe()
		for {
			select {
			case <-sink:
				k.mu.Lock()
				authorized := k.authorized
				k.mu.Unlock()
				if authorized {
					handler(k.addresses())
				}
			case <-sub.Err():
				return
			case <-s.quit:
				return
			}
		}
	}()

	return s, nil
}

func (k *Keystore) ClearCachedAuthorization(ctx context.Context) error {
	k.mu.Lock()
	k.authorized = false
	k.mu.Unlock()

	var errs []error
	for _, a := range k.ks.Accounts() {
		if err := k.ks.Lock(a.Address); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SignTx signs with an unlocked key
func (k *Keystore) SignTx(ctx context.Context, account domain.Address, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return k.ks.SignTx(accounts.Account{Address: common.HexToAddress(account)}, tx, chainID)
}

// ImportKey stores key in the directory under the provider's passphrase
func (k *Keystore) ImportKey(key *ecdsa.PrivateKey) (domain.Address, error) {
	acc, err := k.ks.ImportECDSA(key, k.passphrase)
	if err != nil {
		return "", err
	}
	return acc.Address.Hex(), nil
}

// NewAccount generates a fresh key in the directory
func (k *Keystore) NewAccount() (domain.Address, error) {
	acc, err := k.ks.NewAccount(k.passphrase)
	if err != nil {
		return "", err
	}
	return acc.Address.Hex(), nil
}

// RemoveAccount deletes a key, emitting accountsChanged to subscribers
func (k *Keystore) RemoveAccount(account domain.Address) error {
	return k.ks.Delete(accounts.Account{Address: common.HexToAddress(account)}, k.passphrase)
}
