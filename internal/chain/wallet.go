package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"farmrent/internal/apperr"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Wallet signs registry transactions on behalf of an account. Implementations
// that ask a person to approve should return ErrUserRejected when declined.
type Wallet interface {
	Address() common.Address
	SignTx(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// KeyWallet signs with an in-process ECDSA key. Operator tooling only.
type KeyWallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewKeyWallet parses a hex encoded secp256k1 private key.
func NewKeyWallet(hexKey string) (*KeyWallet, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrConfiguration, err, "invalid wallet key")
	}
	return NewKeyWalletFromKey(key), nil
}

// NewKeyWalletFromKey wraps an existing key
func NewKeyWalletFromKey(key *ecdsa.PrivateKey) *KeyWallet {
	return &KeyWallet{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}
}

// Address returns the signing account
func (w *KeyWallet) Address() common.Address {
	return w.address
}

// SignTx signs tx for chainID
func (w *KeyWallet) SignTx(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), w.key)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return signed, nil
}
