// Command registryctl inspects and drives the on-chain machinery registry.
//
//	registryctl list
//	registryctl seed -name "Mahindra 575" -rent 1000000000000000 -share 400000000000000
//	registryctl rent -index 0 -mode share
//
// Connection settings come from the same environment as the server. Signing
// commands read the key from REGISTRY_PRIVATE_KEY or -key.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"farmrent/config"
	"farmrent/internal/chain"
	"farmrent/internal/idmap"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	cfg, err := config.Load()
	if err != nil {
		exitf("load config: %v", err)
	}
	if !cfg.Chain.Enabled() {
		exitf("CHAIN_RPC_URL is not set")
	}
	if !common.IsHexAddress(cfg.Chain.RegistryAddress) {
		exitf("REGISTRY_ADDRESS is not a hex address")
	}

	client, err := chain.Dial(cfg.Chain.RPCURL)
	if err != nil {
		exitf("dial chain: %v", err)
	}
	defer client.Close()

	registry, err := chain.NewRegistry(client, chain.Config{
		Address:       common.HexToAddress(cfg.Chain.RegistryAddress),
		ChainID:       big.NewInt(cfg.Chain.ChainID),
		Timeout:       cfg.Chain.Timeout,
		Confirmations: cfg.Chain.Confirmations,
	})
	if err != nil {
		exitf("configure registry: %v", err)
	}

	ctx := context.Background()
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "list":
		runList(ctx, registry)
	case "seed":
		runSeed(ctx, registry, args)
	case "rent":
		runRent(ctx, client, registry, args)
	default:
		usage()
	}
}

func runList(ctx context.Context, registry *chain.Registry) {
	entries, err := registry.GetEntries(ctx)
	if err != nil {
		exitf("list entries: %v", err)
	}

	type row struct {
		Index      int    `json:"index"`
		OnChainID  int64  `json:"on_chain_id"`
		Name       string `json:"name"`
		RentPrice  string `json:"rent_price_wei"`
		SharePrice string `json:"share_price_wei"`
		Owner      string `json:"owner"`
	}
	rows := make([]row, 0, len(entries))
	for i, e := range entries {
		rows = append(rows, row{
			Index:      i,
			OnChainID:  idmap.ToOnChainID(uint64(i)),
			Name:       e.Name,
			RentPrice:  e.RentPrice.String(),
			SharePrice: e.SharePrice.String(),
			Owner:      e.Owner.Hex(),
		})
	}
	printJSON(rows)
}

func runSeed(ctx context.Context, registry *chain.Registry, args []string) {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	var (
		name  = fs.String("name", "", "Machinery name")
		rent  = fs.String("rent", "", "Rent price in wei")
		share = fs.String("share", "", "Share price in wei")
		key   = fs.String("key", os.Getenv("REGISTRY_PRIVATE_KEY"), "Hex private key of the owner")
		wait  = fs.Duration("wait", 2*time.Minute, "How long to wait for the receipt")
	)
	_ = fs.Parse(args)

	rentPrice := parseWei("rent", *rent)
	sharePrice := parseWei("share", *share)
	wallet := loadWallet(*key)

	pending, err := registry.Create(ctx, wallet, *name, rentPrice, sharePrice)
	if err != nil {
		exitf("create entry: %v", err)
	}
	awaitReceipt(ctx, pending, *wait)
}

func runRent(ctx context.Context, client *ethclient.Client, registry *chain.Registry, args []string) {
	fs := flag.NewFlagSet("rent", flag.ExitOnError)
	var (
		index = fs.Uint64("index", 0, "Registry index (listing on_chain_id - 1)")
		mode  = fs.String("mode", "rent", "rent or share")
		key   = fs.String("key", os.Getenv("REGISTRY_PRIVATE_KEY"), "Hex private key of the payer")
		wait  = fs.Duration("wait", 2*time.Minute, "How long to wait for the receipt")
	)
	_ = fs.Parse(args)

	isRent := true
	switch strings.ToLower(*mode) {
	case "rent":
	case "share":
		isRent = false
	default:
		exitf("-mode must be rent or share")
	}

	entry, err := registry.GetEntry(ctx, *index)
	if err != nil {
		exitf("read entry %d: %v", *index, err)
	}

	wallet := loadWallet(*key)
	balance, err := client.BalanceAt(ctx, wallet.Address(), nil)
	if err != nil {
		exitf("read balance: %v", err)
	}
	if balance.Cmp(entry.Price(isRent)) < 0 {
		exitf("balance %s wei is below the price of %s wei", balance, entry.Price(isRent))
	}

	pending, err := registry.RentOrShare(ctx, wallet, *index, isRent, entry.Price(isRent))
	if err != nil {
		exitf("settle entry %d: %v", *index, err)
	}
	awaitReceipt(ctx, pending, *wait)
}

func awaitReceipt(ctx context.Context, pending *chain.PendingTx, wait time.Duration) {
	fmt.Fprintf(os.Stderr, "sent %s, waiting for receipt\n", pending.Hash.Hex())

	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	receipt, err := pending.Wait(ctx)
	if err != nil {
		exitf("wait for %s: %v", pending.Hash.Hex(), err)
	}
	printJSON(map[string]interface{}{
		"tx_hash":  receipt.TxHash.Hex(),
		"block":    receipt.BlockNumber.String(),
		"gas_used": receipt.GasUsed,
	})
}

func loadWallet(key string) *chain.KeyWallet {
	if strings.TrimSpace(key) == "" {
		exitf("a private key is required (-key or REGISTRY_PRIVATE_KEY)")
	}
	wallet, err := chain.NewKeyWallet(key)
	if err != nil {
		exitf("load key: %v", err)
	}
	return wallet
}

func parseWei(field, raw string) *big.Int {
	v, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || v.Sign() <= 0 {
		exitf("-%s must be a positive integer amount of wei", field)
	}
	return v
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		exitf("encode output: %v", err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: registryctl list | seed [flags] | rent [flags]")
	os.Exit(2)
}

func exitf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "registryctl: "+format+"\n", args...)
	os.Exit(1)
}
