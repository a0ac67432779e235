package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// MaxFeeBPS caps the default engagement fee at 10%.
	MaxFeeBPS = uint32(1000)
)

var validLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

// Validate rejects configurations the operator tooling cannot run with.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil configuration")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return fmt.Errorf("config: DataDir is required")
	}
	if cfg.ChainID == 0 {
		return fmt.Errorf("config: ChainID must be positive")
	}
	if cfg.FeeBPS > MaxFeeBPS {
		return fmt.Errorf("config: FeeBPS %d exceeds %d", cfg.FeeBPS, MaxFeeBPS)
	}
	treasury, err := cfg.TreasuryAddress()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.FeeBPS > 0 && treasury == (common.Address{}) {
		return fmt.Errorf("config: Treasury is required when FeeBPS > 0")
	}
	if _, err := cfg.WrappedNative(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := cfg.ArbitratorAddress(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := cfg.SplitsAddress(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := cfg.CaseFee(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	level := strings.ToLower(strings.TrimSpace(cfg.Logging.Level))
	if _, ok := validLogLevels[level]; !ok {
		return fmt.Errorf("config: logging.Level %q is not one of debug, info, warn, error", cfg.Logging.Level)
	}
	if cfg.Logging.MaxSizeMB < 0 || cfg.Logging.MaxBackups < 0 {
		return fmt.Errorf("config: logging rotation limits must not be negative")
	}
	if cfg.Telemetry.Enabled() && strings.TrimSpace(cfg.Telemetry.ServiceName) == "" {
		return fmt.Errorf("config: telemetry.ServiceName is required when exporters are enabled")
	}
	return nil
}
