package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"farmrent/internal/apperr"
)

// Registry failure modes.
var (
	ErrUserRejected      = apperr.Define(apperr.ErrOnChainRejected, "transaction rejected by signer")
	ErrInsufficientFunds = apperr.Define(apperr.ErrOnChainRejected, "insufficient funds for transaction")
	ErrReverted          = apperr.Define(apperr.ErrOnChainRejected, "execution reverted")
	ErrValueMismatch     = apperr.Define(apperr.ErrOnChainRejected, "value does not match registry price")
	ErrTxMismatch        = apperr.Define(apperr.ErrOnChainRejected, "transaction does not settle this entry")
	ErrUnavailable       = apperr.Define(apperr.ErrExternalUnavailable, "registry unavailable")
	ErrEntryNotFound     = apperr.Define(apperr.ErrNotFound, "registry entry not found")
	ErrTxNotMined        = apperr.Define(apperr.ErrPreconditionFailed, "transaction not mined")
)

// classify maps a node or transport error onto the registry failure modes.
// Anything it does not recognise is treated as the node being unreachable.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if apperr.KindOf(err) != nil {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient funds"):
		return fmt.Errorf("%w: %w", ErrInsufficientFunds, err)
	case strings.Contains(msg, "execution reverted"), strings.Contains(msg, "revert"):
		return fmt.Errorf("%w: %w", ErrReverted, err)
	case strings.Contains(msg, "user denied"), strings.Contains(msg, "user rejected"):
		return fmt.Errorf("%w: %w", ErrUserRejected, err)
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
