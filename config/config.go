package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DataDir            string      `toml:"DataDir" yaml:"dataDir"`
	KeystoreDir        string      `toml:"KeystoreDir" yaml:"keystoreDir"`
	ChainID            uint64      `toml:"ChainID" yaml:"chainId"`
	DomainName         string      `toml:"DomainName" yaml:"domainName"`
	DomainVersion      string      `toml:"DomainVersion" yaml:"domainVersion"`
	WrappedNativeToken string      `toml:"WrappedNativeToken" yaml:"wrappedNativeToken"`
	Treasury           string      `toml:"Treasury" yaml:"treasury"`
	FeeBPS             uint32      `toml:"FeeBPS" yaml:"feeBps"`
	Logging            Logging     `toml:"logging" yaml:"logging"`
	Telemetry          Telemetry   `toml:"telemetry" yaml:"telemetry"`
	Arbitration        Arbitration `toml:"arbitration" yaml:"arbitration"`
	Splits             Splits      `toml:"splits" yaml:"splits"`
}

// Load loads the configuration from the given path. A missing file is
// created with defaults. Files ending in .yaml or .yml are decoded as YAML,
// everything else as TOML.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if isYAML(path) {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	} else {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config file %s has unknown field %s", path, undecoded[0].String())
		}
	}

	cfg.applyDefaults(path)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration written on first use.
func Default() *Config {
	return &Config{
		DataDir:       "./escrow-data",
		KeystoreDir:   "./keys",
		ChainID:       1,
		DomainName:    "SmartEscrow",
		DomainVersion: "1",
		Logging: Logging{
			Level:      "info",
			Env:        "local",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
		Telemetry: Telemetry{
			ServiceName: "escrowctl",
			Endpoint:    "localhost:4318",
			Insecure:    true,
		},
		Arbitration: Arbitration{
			Address: "0x00000000000000000000000000000000000a4b17",
			CaseFee: "1000000000000000",
		},
		Splits: Splits{
			Address: "0x0000000000000000000000000000000000005917",
		},
	}
}

func (c *Config) applyDefaults(path string) {
	defaults := Default()
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = defaults.DataDir
	}
	if strings.TrimSpace(c.KeystoreDir) == "" {
		c.KeystoreDir = filepath.Join(filepath.Dir(path), "keys")
	}
	if c.ChainID == 0 {
		c.ChainID = defaults.ChainID
	}
	if strings.TrimSpace(c.DomainName) == "" {
		c.DomainName = defaults.DomainName
	}
	if strings.TrimSpace(c.DomainVersion) == "" {
		c.DomainVersion = defaults.DomainVersion
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = defaults.Logging.Level
	}
	if strings.TrimSpace(c.Telemetry.ServiceName) == "" {
		c.Telemetry.ServiceName = defaults.Telemetry.ServiceName
	}
	if strings.TrimSpace(c.Arbitration.Address) == "" {
		c.Arbitration.Address = defaults.Arbitration.Address
	}
	if strings.TrimSpace(c.Arbitration.CaseFee) == "" {
		c.Arbitration.CaseFee = defaults.Arbitration.CaseFee
	}
	if strings.TrimSpace(c.Splits.Address) == "" {
		c.Splits.Address = defaults.Splits.Address
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	cfg.KeystoreDir = filepath.Join(filepath.Dir(path), "keys")
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

	if isYAML(path) {
		enc := yaml.NewEncoder(f)
		if err := enc.Encode(cfg); err != nil {
			enc.Close()
			return err
		}
		return enc.Close()
	}
	return toml.NewEncoder(f).Encode(cfg)
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// KeystorePath returns the keystore file holding the key called name.
func (c *Config) KeystorePath(name string) string {
	return filepath.Join(c.KeystoreDir, name+".keystore")
}

// ChainIDBig returns the chain id as used in unlock signatures.
func (c *Config) ChainIDBig() *big.Int {
	return new(big.Int).SetUint64(c.ChainID)
}

// TreasuryAddress returns the configured default fee treasury, if any.
func (c *Config) TreasuryAddress() (common.Address, error) {
	return parseOptionalAddress("Treasury", c.Treasury)
}

// WrappedNative returns the configured wrapped-native token, if any.
func (c *Config) WrappedNative() (common.Address, error) {
	return parseOptionalAddress("WrappedNativeToken", c.WrappedNativeToken)
}

// ArbitratorAddress returns the identity of the local court.
func (c *Config) ArbitratorAddress() (common.Address, error) {
	return parseRequiredAddress("arbitration.Address", c.Arbitration.Address)
}

// SplitsAddress returns the identity of the pull payout warehouse.
func (c *Config) SplitsAddress() (common.Address, error) {
	return parseRequiredAddress("splits.Address", c.Splits.Address)
}

// CaseFee parses the per-juror arbitration fee.
func (c *Config) CaseFee() (*big.Int, error) {
	fee, err := parseUintAmount(c.Arbitration.CaseFee)
	if err != nil {
		return nil, fmt.Errorf("invalid arbitration.CaseFee: %w", err)
	}
	return fee, nil
}

func parseOptionalAddress(field, value string) (common.Address, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("invalid %s: %q is not a hex address", field, trimmed)
	}
	return common.HexToAddress(trimmed), nil
}

func parseRequiredAddress(field, value string) (common.Address, error) {
	addr, err := parseOptionalAddress(field, value)
	if err != nil {
		return common.Address{}, err
	}
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%s is required", field)
	}
	return addr, nil
}

func parseUintAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("%q is not a base-10 integer", trimmed)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("%q is negative", trimmed)
	}
	return amount, nil
}
