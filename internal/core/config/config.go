package config

import (
	"fmt"
	"sort"
	"time"

	"github.com/vietddude/todochain/internal/core/domain"
	"github.com/vietddude/todochain/internal/infra/storage"
	"github.com/vietddude/todochain/internal/infra/telemetry"
	"github.com/vietddude/todochain/internal/monitor"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Logging LoggingConfig    `yaml:"logging"`
	Metrics MetricsConfig    `yaml:"metrics"`
	Tracing telemetry.Config `yaml:"tracing"`
	Storage storage.Config   `yaml:"storage"`

	// Monitor applies to every network before its own monitor block.
	Monitor monitor.Options `yaml:"monitor"`

	// Networks is keyed by chain name, then environment:
	//   networks: {arbitrum: {mainnet: {...}, testnet: {...}}}
	Networks map[string]map[string]NetworkConfig `yaml:"networks"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// MetricsConfig holds the Prometheus listener settings.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the server
}

// NetworkConfig holds the connection parameters of one network.
type NetworkConfig struct {
	RPCURL       string   `yaml:"rpc_url"`
	FallbackURLs []string `yaml:"fallback_urls"`

	// ChainID overrides the registry identifier (e.g. a local devnet).
	ChainID string `yaml:"chain_id"`

	ContractAddress string `yaml:"contract_address"` // evm
	ProgramID       string `yaml:"program_id"`       // solana
	Commitment      string `yaml:"commitment"`       // solana
	Pallet          string `yaml:"pallet"`           // polkadot

	ExplorerURL string          `yaml:"explorer_url"`
	Timeout     time.Duration   `yaml:"timeout"`
	Monitor     monitor.Options `yaml:"monitor"`
}

// Validate checks the fields required by the network's family.
func (c NetworkConfig) Validate(n domain.Network) error {
	if c.RPCURL == "" {
		return fmt.Errorf("%s: rpc_url is required", n)
	}
	switch n.Info().Family {
	case domain.FamilyEVM:
		if c.ContractAddress == "" {
			return fmt.Errorf("%s: contract_address is required", n)
		}
	case domain.FamilySolana:
		if c.ProgramID == "" {
			return fmt.Errorf("%s: program_id is required", n)
		}
	}
	return nil
}

// NetworkConfigs flattens the nested networks block. Unknown chain or
// environment names are an error.
func (c *AppConfig) NetworkConfigs() (map[domain.Network]NetworkConfig, error) {
	out := make(map[domain.Network]NetworkConfig)
	chains := make([]string, 0, len(c.Networks))
	for chain := range c.Networks {
		chains = append(chains, chain)
	}
	sort.Strings(chains)

	for _, chain := range chains {
		for env, nc := range c.Networks[chain] {
			n, err := domain.NetworkFor(domain.ChainName(chain), domain.Environment(env))
			if err != nil {
				return nil, err
			}
			out[n] = nc
		}
	}
	return out, nil
}
