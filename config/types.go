package config

// Logging controls the structured logger of the operator tooling.
type Logging struct {
	Level      string `toml:"Level" yaml:"level"`
	Env        string `toml:"Env" yaml:"env"`
	File       string `toml:"File" yaml:"file"`
	MaxSizeMB  int    `toml:"MaxSizeMB" yaml:"maxSizeMB"`
	MaxBackups int    `toml:"MaxBackups" yaml:"maxBackups"`
}

// Telemetry configures the OTLP exporters.
type Telemetry struct {
	ServiceName string `toml:"ServiceName" yaml:"serviceName"`
	Endpoint    string `toml:"Endpoint" yaml:"endpoint"`
	Headers     string `toml:"Headers" yaml:"headers"`
	Insecure    bool   `toml:"Insecure" yaml:"insecure"`
	Traces      bool   `toml:"Traces" yaml:"traces"`
	Metrics     bool   `toml:"Metrics" yaml:"metrics"`
}

// Enabled reports whether any exporter is switched on.
func (t Telemetry) Enabled() bool { return t.Traces || t.Metrics }

// Arbitration describes the local arbitration court.
type Arbitration struct {
	Address string `toml:"Address" yaml:"address"`
	// CaseFee is charged per juror, in base units of the native asset.
	CaseFee string `toml:"CaseFee" yaml:"caseFee"`
}

// Splits describes the pull payout warehouse.
type Splits struct {
	Address string `toml:"Address" yaml:"address"`
}
