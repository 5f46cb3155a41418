package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"transfersafe/crypto"
	"transfersafe/native/access"
)

// Config is the node configuration loaded from TOML.
type Config struct {
	ChainID    uint64 `toml:"ChainID"`
	RPCAddress string `toml:"RPCAddress"`
	DataDir    string `toml:"DataDir"`
	Env        string `toml:"Env"`
	LogFile    string `toml:"LogFile"`

	// GenesisAdmin is the deployer address (bech32 or 0x-hex) that receives
	// the super-admin and admin roles on a fresh database.
	GenesisAdmin string `toml:"GenesisAdmin"`
	// DefaultFee is the initial per-mille fee rate. Zero keeps the built-in
	// default.
	DefaultFee uint32 `toml:"DefaultFee"`
	// GenesisAlloc seeds native balances on a fresh database. Values are
	// decimal strings so arbitrary precision survives the TOML round trip.
	GenesisAlloc map[string]string `toml:"GenesisAlloc"`
}

// Load loads the configuration from the given path, creating a default file
// and a matching admin key when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field ranges and address syntax.
func (c *Config) Validate() error {
	if c.ChainID == 0 {
		return fmt.Errorf("config: ChainID must be set")
	}
	if c.DefaultFee > access.MaxFee {
		return fmt.Errorf("config: DefaultFee %d exceeds %d", c.DefaultFee, access.MaxFee)
	}
	if strings.TrimSpace(c.GenesisAdmin) == "" {
		return fmt.Errorf("config: GenesisAdmin must be set")
	}
	if _, err := crypto.ParseAddress(c.GenesisAdmin); err != nil {
		return fmt.Errorf("config: GenesisAdmin: %w", err)
	}
	for addr, amount := range c.GenesisAlloc {
		if _, err := crypto.ParseAddress(addr); err != nil {
			return fmt.Errorf("config: GenesisAlloc address %q: %w", addr, err)
		}
		if _, ok := new(big.Int).SetString(strings.TrimSpace(amount), 10); !ok {
			return fmt.Errorf("config: GenesisAlloc amount %q is not a decimal integer", amount)
		}
	}
	return nil
}

// Alloc parses the genesis allocation into big integers.
func (c *Config) Alloc() (map[string]*big.Int, error) {
	alloc := make(map[string]*big.Int, len(c.GenesisAlloc))
	for addr, amount := range c.GenesisAlloc {
		value, ok := new(big.Int).SetString(strings.TrimSpace(amount), 10)
		if !ok {
			return nil, fmt.Errorf("config: GenesisAlloc amount %q is not a decimal integer", amount)
		}
		alloc[addr] = value
	}
	return alloc, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = "127.0.0.1:8645"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./data"
	}
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "local"
	}
}

func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("config: generating genesis admin key: %w", err)
	}
	admin := key.PubKey().Address()

	cfg := &Config{
		ChainID:      123,
		GenesisAdmin: admin.String(),
		DefaultFee:   access.DefaultFee,
		GenesisAlloc: map[string]string{},
	}
	applyDefaults(cfg)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return nil, err
	}

	// The generated admin key lands next to the config so the operator can
	// use it with the CLI.
	keyPath := path + ".admin.key"
	if err := os.WriteFile(keyPath, []byte(fmt.Sprintf("%x\n", key.Bytes())), 0o600); err != nil {
		return nil, err
	}
	return cfg, nil
}
