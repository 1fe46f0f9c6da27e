package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"farmrent/internal/apperr"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

var settlementEvents = map[common.Hash]string{
	registryABI.Events["MachineryRented"].ID: "MachineryRented",
	registryABI.Events["MachineryShared"].ID: "MachineryShared",
}

// Verifier checks client supplied transaction hashes against the chain before
// a booking is confirmed.
type Verifier struct {
	registry *Registry
}

// NewVerifier creates a settlement verifier backed by the registry's node
func NewVerifier(registry *Registry) *Verifier {
	return &Verifier{registry: registry}
}

// VerifySettlement succeeds when txHash is a successful, sufficiently confirmed
// transaction that emitted MachineryRented or MachineryShared for index from
// the registry contract.
func (v *Verifier) VerifySettlement(ctx context.Context, txHash string, index uint64) error {
	raw, err := hexutil.Decode(strings.TrimSpace(txHash))
	if err != nil || len(raw) != common.HashLength {
		return apperr.New(apperr.ErrValidation, "malformed transaction hash %q", txHash)
	}
	hash := common.BytesToHash(raw)
	r := v.registry

	receipt, err := r.receipt(ctx, hash)
	if err != nil {
		return err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%w: %s", ErrReverted, hash.Hex())
	}

	ok, err := r.confirmed(ctx, receipt)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s has fewer than %d confirmations", ErrTxNotMined, hash.Hex(), r.confirmations)
	}

	want := new(big.Int).SetUint64(index)
	for _, log := range receipt.Logs {
		if log == nil || log.Address != r.address || len(log.Topics) == 0 {
			continue
		}
		name, ok := settlementEvents[log.Topics[0]]
		if !ok {
			continue
		}
		values, err := registryABI.Unpack(name, log.Data)
		if err != nil || len(values) == 0 {
			continue
		}
		if id, ok := values[0].(*big.Int); ok && id.Cmp(want) == 0 {
			return nil
		}
	}
	return apperr.Wrap(apperr.ErrOnChainRejected, ErrTxMismatch, "%s does not settle entry %d", hash.Hex(), index)
}
