package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Network identifies one chain/environment pair.
type Network string

// ChainName is the network family name used in configuration (e.g. "arbitrum").
type ChainName string

// Environment is either mainnet or testnet.
type Environment string

// Family groups networks that share a ledger model.
type Family string

const (
	EnvMainnet Environment = "mainnet"
	EnvTestnet Environment = "testnet"
)

const (
	FamilyEVM      Family = "evm"
	FamilySolana   Family = "solana"
	FamilyPolkadot Family = "polkadot"
)

const (
	ChainArbitrum ChainName = "arbitrum"
	ChainOptimism ChainName = "optimism"
	ChainBase     ChainName = "base"
	ChainSolana   ChainName = "solana"
	ChainPolkadot ChainName = "polkadot"
)

const (
	ArbitrumMainnet Network = "arbitrum-mainnet"
	ArbitrumTestnet Network = "arbitrum-testnet"
	OptimismMainnet Network = "optimism-mainnet"
	OptimismTestnet Network = "optimism-testnet"
	BaseMainnet     Network = "base-mainnet"
	BaseTestnet     Network = "base-testnet"
	SolanaMainnet   Network = "solana-mainnet"
	SolanaTestnet   Network = "solana-testnet"
	PolkadotMainnet Network = "polkadot-mainnet"
	PolkadotTestnet Network = "polkadot-testnet"
)

// NetworkInfo is the static metadata of a network.
type NetworkInfo struct {
	Network     Network
	Chain       ChainName
	Environment Environment
	Family      Family
	DisplayName string

	// ChainID is the identifier the connected signer must report: the decimal
	// EIP-155 id for EVM chains, the genesis hash for Solana, the runtime chain
	// name for Polkadot.
	ChainID string

	ExplorerURL string
	TxPath      string
	AddressPath string

	NativeSymbol   string
	NativeDecimals int32
}

// IsEVM reports whether the network speaks the Ethereum JSON-RPC dialect.
func (i NetworkInfo) IsEVM() bool {
	return i.Family == FamilyEVM
}

// IsTestnet reports whether the network is a test environment.
func (i NetworkInfo) IsTestnet() bool {
	return i.Environment == EnvTestnet
}

var registry = map[Network]NetworkInfo{
	ArbitrumMainnet: {
		Network: ArbitrumMainnet, Chain: ChainArbitrum, Environment: EnvMainnet, Family: FamilyEVM,
		DisplayName: "Arbitrum One", ChainID: "42161",
		ExplorerURL: "https://arbiscan.io", TxPath: "tx", AddressPath: "address",
		NativeSymbol: "ETH", NativeDecimals: 18,
	},
	ArbitrumTestnet: {
		Network: ArbitrumTestnet, Chain: ChainArbitrum, Environment: EnvTestnet, Family: FamilyEVM,
		DisplayName: "Arbitrum Sepolia", ChainID: "421614",
		ExplorerURL: "https://sepolia.arbiscan.io", TxPath: "tx", AddressPath: "address",
		NativeSymbol: "ETH", NativeDecimals: 18,
	},
	OptimismMainnet: {
		Network: OptimismMainnet, Chain: ChainOptimism, Environment: EnvMainnet, Family: FamilyEVM,
		DisplayName: "OP Mainnet", ChainID: "10",
		ExplorerURL: "https://optimistic.etherscan.io", TxPath: "tx", AddressPath: "address",
		NativeSymbol: "ETH", NativeDecimals: 18,
	},
	OptimismTestnet: {
		Network: OptimismTestnet, Chain: ChainOptimism, Environment: EnvTestnet, Family: FamilyEVM,
		DisplayName: "OP Sepolia", ChainID: "11155420",
		ExplorerURL: "https://sepolia-optimism.etherscan.io", TxPath: "tx", AddressPath: "address",
		NativeSymbol: "ETH", NativeDecimals: 18,
	},
	BaseMainnet: {
		Network: BaseMainnet, Chain: ChainBase, Environment: EnvMainnet, Family: FamilyEVM,
		DisplayName: "Base", ChainID: "8453",
		ExplorerURL: "https://basescan.org", TxPath: "tx", AddressPath: "address",
		NativeSymbol: "ETH", NativeDecimals: 18,
	},
	BaseTestnet: {
		Network: BaseTestnet, Chain: ChainBase, Environment: EnvTestnet, Family: FamilyEVM,
		DisplayName: "Base Sepolia", ChainID: "84532",
		ExplorerURL: "https://sepolia.basescan.org", TxPath: "tx", AddressPath: "address",
		NativeSymbol: "ETH", NativeDecimals: 18,
	},
	SolanaMainnet: {
		Network: SolanaMainnet, Chain: ChainSolana, Environment: EnvMainnet, Family: FamilySolana,
		DisplayName: "Solana", ChainID: "5eykt4UsFv8P8NJdTREpY1vzqKqZKvdpKuc147dw2N9d",
		ExplorerURL: "https://explorer.solana.com", TxPath: "tx", AddressPath: "address",
		NativeSymbol: "SOL", NativeDecimals: 9,
	},
	SolanaTestnet: {
		Network: SolanaTestnet, Chain: ChainSolana, Environment: EnvTestnet, Family: FamilySolana,
		DisplayName: "Solana Devnet", ChainID: "EtWTRABZaYq6iMfeYKouRu166VU2xqa1wcaWoxPkrZBG",
		ExplorerURL: "https://explorer.solana.com?cluster=devnet", TxPath: "tx", AddressPath: "address",
		NativeSymbol: "SOL", NativeDecimals: 9,
	},
	PolkadotMainnet: {
		Network: PolkadotMainnet, Chain: ChainPolkadot, Environment: EnvMainnet, Family: FamilyPolkadot,
		DisplayName: "Polkadot", ChainID: "Polkadot",
		ExplorerURL: "https://polkadot.subscan.io", TxPath: "extrinsic", AddressPath: "account",
		NativeSymbol: "DOT", NativeDecimals: 10,
	},
	PolkadotTestnet: {
		Network: PolkadotTestnet, Chain: ChainPolkadot, Environment: EnvTestnet, Family: FamilyPolkadot,
		DisplayName: "Westend", ChainID: "Westend",
		ExplorerURL: "https://westend.subscan.io", TxPath: "extrinsic", AddressPath: "account",
		NativeSymbol: "WND", NativeDecimals: 12,
	},
}

// Lookup returns the registry entry for n.
func Lookup(n Network) (NetworkInfo, bool) {
	info, ok := registry[n]
	return info, ok
}

// Info returns the registry entry for n, or the zero value for unknown networks.
func (n Network) Info() NetworkInfo {
	return registry[n]
}

// Valid reports whether n is one of the supported networks.
func (n Network) Valid() bool {
	_, ok := registry[n]
	return ok
}

func (n Network) String() string {
	return string(n)
}

// NetworkFor builds the network for a chain name and environment.
func NetworkFor(chain ChainName, env Environment) (Network, error) {
	n := Network(fmt.Sprintf("%s-%s", chain, env))
	if !n.Valid() {
		return "", fmt.Errorf("unknown network %s/%s", chain, env)
	}
	return n, nil
}

// ParseNetwork accepts either "chain-env" or "chain/env".
func ParseNetwork(s string) (Network, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "/", "-")
	n := Network(s)
	if !n.Valid() {
		return "", fmt.Errorf("unknown network %q", s)
	}
	return n, nil
}

// AllNetworks returns every supported network in name order.
func AllNetworks() []Network {
	out := make([]Network, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// JoinExplorerURL joins an explorer base, a path segment and an identifier. A query
// string on the base (e.g. "?cluster=devnet") is moved after the path.
func JoinExplorerURL(explorerBase, path, id string) string {
	base, query, _ := strings.Cut(explorerBase, "?")
	u := strings.TrimRight(base, "/") + "/" + path + "/" + id
	if query != "" {
		u += "?" + query
	}
	return u
}
