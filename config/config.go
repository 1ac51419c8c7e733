package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/dobfi/dobswap/internal/domain"
)

// Known network environments. The selected environment only matters here;
// the core services receive a resolved endpoint and passphrase.
const (
	NetworkTestnet = "testnet"
	NetworkMainnet = "mainnet"
)

var networkDefaults = map[string]struct {
	rpcEndpoint string
	passphrase  string
}{
	NetworkTestnet: {
		rpcEndpoint: "https://soroban-testnet.stellar.org",
		passphrase:  "Test SDF Network ; September 2015",
	},
	NetworkMainnet: {
		rpcEndpoint: "https://soroban.stellar.org",
		passphrase:  "Public Global Stellar Network ; September 2015",
	},
}

// Config is the explicit environment handed to the lifecycle manager and
// synchronizer at construction. No ambient network selection exists
// anywhere else.
type Config struct {
	Network           string              `yaml:"network"`
	RPCEndpoint       string              `yaml:"rpc_endpoint"`
	NetworkPassphrase string              `yaml:"network_passphrase"`
	Contracts         domain.ContractRefs `yaml:"contracts"`
	UserAddress       string              `yaml:"user_address"`

	RefreshInterval        time.Duration `yaml:"refresh_interval"`
	ConfirmInitialInterval time.Duration `yaml:"confirm_initial_interval"`
	ConfirmMaxInterval     time.Duration `yaml:"confirm_max_interval"`
	ConfirmCeiling         time.Duration `yaml:"confirm_ceiling"`

	WebAddr string `yaml:"web_addr"`
	WALDir  string `yaml:"wal_dir"`
}

// Load reads and validates a yaml config file.
func Load(path string) (Config, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config")
	}

	var cfg Config
	if err := yaml.Unmarshal(f, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "parse config")
	}

	if err := cfg.fillDefaults(); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) fillDefaults() error {
	if c.Network == "" {
		c.Network = NetworkTestnet
	}
	defaults, ok := networkDefaults[c.Network]
	if !ok {
		return errors.Errorf("unknown network %q", c.Network)
	}
	if c.RPCEndpoint == "" {
		c.RPCEndpoint = defaults.rpcEndpoint
	}
	if c.NetworkPassphrase == "" {
		c.NetworkPassphrase = defaults.passphrase
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = 30 * time.Second
	}
	if c.ConfirmInitialInterval <= 0 {
		c.ConfirmInitialInterval = time.Second
	}
	if c.ConfirmMaxInterval <= 0 {
		c.ConfirmMaxInterval = 10 * time.Second
	}
	if c.ConfirmCeiling <= 0 {
		c.ConfirmCeiling = 90 * time.Second
	}
	if c.WebAddr == "" {
		c.WebAddr = ":8080"
	}
	if c.WALDir == "" {
		c.WALDir = "./wal/submissions"
	}
	return nil
}

func (c *Config) validate() error {
	if c.Contracts.Oracle == "" || c.Contracts.Pool == "" {
		return errors.New("oracle and pool contract addresses are required")
	}
	if c.Contracts.Token == "" || c.Contracts.USDC == "" {
		return errors.New("token and usdc contract addresses are required")
	}
	return nil
}
