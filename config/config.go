package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// CollateralConfig describes one collateral asset the engine accepts,
// together with the price feed that values it.
type CollateralConfig struct {
	Symbol           string `toml:"Symbol"`
	FeedDecimals     uint8  `toml:"FeedDecimals"`
	InitialPriceUsd  string `toml:"InitialPriceUsd"`
	HeartbeatSeconds int64  `toml:"HeartbeatSeconds"`
}

type Config struct {
	ListenAddress string             `toml:"ListenAddress"`
	Environment   string             `toml:"Environment"`
	DataDir       string             `toml:"DataDir"`
	StableSymbol  string             `toml:"StableSymbol"`
	StableName    string             `toml:"StableName"`
	Collateral    []CollateralConfig `toml:"Collateral"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = ":8080"
	}
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = "local"
	}
	if strings.TrimSpace(c.StableSymbol) == "" {
		c.StableSymbol = "DSC"
	}
	if strings.TrimSpace(c.StableName) == "" {
		c.StableName = "Decentralized Stable Coin"
	}
}

// Validate checks the configuration for settings the node cannot start with.
func (c *Config) Validate() error {
	if len(c.Collateral) == 0 {
		return fmt.Errorf("config: at least one collateral asset is required")
	}
	seen := make(map[string]struct{}, len(c.Collateral))
	for i := range c.Collateral {
		entry := &c.Collateral[i]
		symbol := strings.ToUpper(strings.TrimSpace(entry.Symbol))
		if symbol == "" {
			return fmt.Errorf("config: collateral entry %d is missing a symbol", i)
		}
		if _, dup := seen[symbol]; dup {
			return fmt.Errorf("config: duplicate collateral symbol %q", symbol)
		}
		seen[symbol] = struct{}{}
		entry.Symbol = symbol
		if entry.FeedDecimals == 0 {
			entry.FeedDecimals = 8
		}
		if _, err := entry.InitialPrice(); err != nil {
			return err
		}
		if entry.HeartbeatSeconds < 0 {
			return fmt.Errorf("config: collateral %s has a negative heartbeat", symbol)
		}
	}
	return nil
}

// InitialPrice parses the configured price into feed units.
func (c *CollateralConfig) InitialPrice() (*big.Int, error) {
	raw := strings.TrimSpace(c.InitialPriceUsd)
	if raw == "" {
		return nil, fmt.Errorf("config: collateral %s is missing InitialPriceUsd", c.Symbol)
	}
	price, ok := new(big.Int).SetString(raw, 10)
	if !ok || price.Sign() <= 0 {
		return nil, fmt.Errorf("config: collateral %s has invalid InitialPriceUsd %q", c.Symbol, raw)
	}
	return price, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress: ":8080",
		Environment:   "local",
		DataDir:       "./stable-data",
		StableSymbol:  "DSC",
		StableName:    "Decentralized Stable Coin",
		Collateral: []CollateralConfig{
			{
				Symbol:          "WETH",
				FeedDecimals:    8,
				InitialPriceUsd: "200000000000",
			},
			{
				Symbol:          "WBTC",
				FeedDecimals:    8,
				InitialPriceUsd: "6000000000000",
			},
		},
	}

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
