// Package chain talks to the FarmMachinery rental registry deployed on an EVM
// network: reads entries, submits listings and rentals, and verifies that a
// transaction really settled a given entry.
package chain

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"farmrent/internal/apperr"
	"farmrent/internal/util"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

//go:embed farm_machinery.abi.json
var registryABIJSON string

var registryABI = mustParseABI(registryABIJSON)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("chain: invalid registry abi: %v", err))
	}
	return parsed
}

// Backend is the subset of the Ethereum RPC used by the registry client.
// *ethclient.Client satisfies it.
type Backend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// Dial opens an RPC connection to the node at endpoint.
func Dial(endpoint string) (*ethclient.Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, apperr.New(apperr.ErrConfiguration, "chain rpc endpoint required")
	}
	return ethclient.Dial(trimmed)
}

// Config describes the deployed registry.
type Config struct {
	Address       common.Address
	ChainID       *big.Int
	Timeout       time.Duration
	Confirmations uint64
	PollInterval  time.Duration
}

// Entry is one machinery record held by the registry.
type Entry struct {
	ID         *big.Int       `json:"id"`
	Name       string         `json:"name"`
	RentPrice  *big.Int       `json:"rent_price"`
	SharePrice *big.Int       `json:"share_price"`
	Owner      common.Address `json:"owner"`
}

// Price returns the amount a rentOrShare call must carry for this entry.
func (e *Entry) Price(isRent bool) *big.Int {
	if isRent {
		return e.RentPrice
	}
	return e.SharePrice
}

// machineryTuple mirrors the Machinery struct returned by getMachineries.
type machineryTuple struct {
	Id         *big.Int
	Name       string
	RentPrice  *big.Int
	SharePrice *big.Int
	Owner      common.Address
}

// Registry is a client for the FarmMachinery contract.
type Registry struct {
	backend       Backend
	address       common.Address
	chainID       *big.Int
	timeout       time.Duration
	confirmations uint64
	pollInterval  time.Duration
}

// NewRegistry creates a registry client
func NewRegistry(backend Backend, cfg Config) (*Registry, error) {
	if backend == nil {
		return nil, apperr.New(apperr.ErrConfiguration, "chain backend required")
	}
	if (cfg.Address == common.Address{}) {
		return nil, apperr.New(apperr.ErrConfiguration, "registry address required")
	}
	if cfg.ChainID == nil || cfg.ChainID.Sign() <= 0 {
		return nil, apperr.New(apperr.ErrConfiguration, "chain id required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}

	return &Registry{
		backend:       backend,
		address:       cfg.Address,
		chainID:       new(big.Int).Set(cfg.ChainID),
		timeout:       cfg.Timeout,
		confirmations: cfg.Confirmations,
		pollInterval:  cfg.PollInterval,
	}, nil
}

// Address returns the registry contract address
func (r *Registry) Address() common.Address {
	return r.address
}

// ChainID returns the chain the registry is deployed on
func (r *Registry) ChainID() *big.Int {
	return new(big.Int).Set(r.chainID)
}

// EntryCount returns machineryCounter().
func (r *Registry) EntryCount(ctx context.Context) (uint64, error) {
	out, err := r.call(ctx, "machineryCounter")
	if err != nil {
		return 0, err
	}
	count, ok := out[0].(*big.Int)
	if !ok || !count.IsUint64() {
		return 0, fmt.Errorf("%w: unexpected machineryCounter result", ErrUnavailable)
	}
	return count.Uint64(), nil
}

// GetEntry returns machineries(index).
func (r *Registry) GetEntry(ctx context.Context, index uint64) (*Entry, error) {
	count, err := r.EntryCount(ctx)
	if err != nil {
		return nil, err
	}
	if index >= count {
		return nil, apperr.Wrap(apperr.ErrNotFound, ErrEntryNotFound, "index %d of %d", index, count)
	}

	out, err := r.call(ctx, "machineries", new(big.Int).SetUint64(index))
	if err != nil {
		return nil, err
	}
	if len(out) != 5 {
		return nil, fmt.Errorf("%w: unexpected machineries result", ErrUnavailable)
	}

	entry := &Entry{
		ID:         *abi.ConvertType(out[0], new(*big.Int)).(**big.Int),
		Name:       *abi.ConvertType(out[1], new(string)).(*string),
		RentPrice:  *abi.ConvertType(out[2], new(*big.Int)).(**big.Int),
		SharePrice: *abi.ConvertType(out[3], new(*big.Int)).(**big.Int),
		Owner:      *abi.ConvertType(out[4], new(common.Address)).(*common.Address),
	}
	return entry, nil
}

// GetEntries returns getMachineries().
func (r *Registry) GetEntries(ctx context.Context) ([]Entry, error) {
	out, err := r.call(ctx, "getMachineries")
	if err != nil {
		return nil, err
	}

	tuples := *abi.ConvertType(out[0], new([]machineryTuple)).(*[]machineryTuple)
	entries := make([]Entry, 0, len(tuples))
	for _, t := range tuples {
		entries = append(entries, Entry{
			ID:         t.Id,
			Name:       t.Name,
			RentPrice:  t.RentPrice,
			SharePrice: t.SharePrice,
			Owner:      t.Owner,
		})
	}
	return entries, nil
}

// Create submits listMachinery(name, rent, share) signed by wallet.
func (r *Registry) Create(ctx context.Context, w Wallet, name string, rentPrice, sharePrice *big.Int) (*PendingTx, error) {
	if strings.TrimSpace(name) == "" {
		return nil, apperr.New(apperr.ErrValidation, "machinery name required")
	}
	if rentPrice == nil || rentPrice.Sign() < 0 || sharePrice == nil || sharePrice.Sign() < 0 {
		return nil, apperr.New(apperr.ErrValidation, "prices must be non-negative")
	}

	data, err := registryABI.Pack("listMachinery", name, rentPrice, sharePrice)
	if err != nil {
		return nil, fmt.Errorf("pack listMachinery: %w", err)
	}
	return r.transact(ctx, w, data, big.NewInt(0))
}

// RentOrShare submits rentOrShareMachinery(index, isRent) carrying value.
// The entry is read first so that a wrong value is refused before signing.
func (r *Registry) RentOrShare(ctx context.Context, w Wallet, index uint64, isRent bool, value *big.Int) (*PendingTx, error) {
	entry, err := r.GetEntry(ctx, index)
	if err != nil {
		return nil, err
	}
	if value == nil || value.Cmp(entry.Price(isRent)) != 0 {
		return nil, apperr.Wrap(apperr.ErrOnChainRejected, ErrValueMismatch,
			"entry %d expects %s wei, got %v", index, entry.Price(isRent), value)
	}

	data, err := registryABI.Pack("rentOrShareMachinery", new(big.Int).SetUint64(index), isRent)
	if err != nil {
		return nil, fmt.Errorf("pack rentOrShareMachinery: %w", err)
	}
	return r.transact(ctx, w, data, value)
}

func (r *Registry) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	data, err := registryABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	start := time.Now()
	raw, err := r.backend.CallContract(ctx, ethereum.CallMsg{To: &r.address, Data: data}, nil)
	util.RegistryCallDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		util.RegistryErrorsTotal.WithLabelValues(method).Inc()
		return nil, classify(err)
	}

	out, err := registryABI.Unpack(method, raw)
	if err != nil {
		util.RegistryErrorsTotal.WithLabelValues(method).Inc()
		return nil, fmt.Errorf("%w: unpack %s: %v", ErrUnavailable, method, err)
	}
	return out, nil
}

func (r *Registry) transact(ctx context.Context, w Wallet, data []byte, value *big.Int) (*PendingTx, error) {
	if w == nil {
		return nil, apperr.New(apperr.ErrConfiguration, "wallet required")
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	from := w.Address()
	nonce, err := r.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, classify(err)
	}
	gasPrice, err := r.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, classify(err)
	}
	// Estimation executes the call, so reverts and balance problems show up here.
	gas, err := r.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &r.address,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return nil, classify(err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &r.address,
		Value:    value,
		Data:     data,
	})
	signed, err := w.SignTx(ctx, tx, r.chainID)
	if err != nil {
		switch {
		case errors.Is(err, ErrUserRejected):
			return nil, err
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			return nil, classify(err)
		}
		return nil, fmt.Errorf("%w: %w", ErrUserRejected, err)
	}

	if err := r.backend.SendTransaction(ctx, signed); err != nil {
		util.RegistryErrorsTotal.WithLabelValues("send").Inc()
		return nil, classify(err)
	}

	return &PendingTx{Hash: signed.Hash(), registry: r}, nil
}

// PendingTx is a submitted transaction awaiting inclusion.
type PendingTx struct {
	Hash     common.Hash
	registry *Registry
}

// Wait polls until the transaction is mined with the configured number of
// confirmations. A mined but failed transaction returns ErrReverted.
func (p *PendingTx) Wait(ctx context.Context) (*types.Receipt, error) {
	r := p.registry
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := r.receipt(ctx, p.Hash)
		switch {
		case err == nil:
			if receipt.Status != types.ReceiptStatusSuccessful {
				return receipt, fmt.Errorf("%w: %s", ErrReverted, p.Hash.Hex())
			}
			ok, err := r.confirmed(ctx, receipt)
			if err != nil {
				return nil, err
			}
			if ok {
				return receipt, nil
			}
		case !errors.Is(err, ErrTxNotMined):
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ErrTxNotMined, p.Hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

func (r *Registry) receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	receipt, err := r.backend.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) || (err == nil && receipt == nil) {
		return nil, ErrTxNotMined
	}
	if err != nil {
		return nil, classify(err)
	}
	return receipt, nil
}

// confirmed reports whether the receipt's block is buried deep enough.
func (r *Registry) confirmed(ctx context.Context, receipt *types.Receipt) (bool, error) {
	if r.confirmations == 0 {
		return true, nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	head, err := r.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return false, classify(err)
	}
	if head == nil || head.Number == nil || receipt.BlockNumber == nil {
		return false, fmt.Errorf("%w: block metadata unavailable", ErrUnavailable)
	}
	if head.Number.Cmp(receipt.BlockNumber) < 0 {
		return false, nil
	}
	depth := new(big.Int).Sub(head.Number, receipt.BlockNumber)
	depth.Add(depth, big.NewInt(1))
	return depth.Cmp(new(big.Int).SetUint64(r.confirmations)) >= 0, nil
}
