// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"
)

// Config is loaded once at startup and passed explicitly to constructors.
// Swap logic never reads the environment on its own.
type Config struct {
	RPCURL       string `mapstructure:"rpc_url"`
	RegistryURL  string `mapstructure:"registry_url"`
	PrivateKey   string `mapstructure:"private_key"`
	DebugLogging bool   `mapstructure:"debug_logging"`
	LogFile      string `mapstructure:"log_file"`

	// direct submission
	ComputeUnitLimit uint32 `mapstructure:"compute_unit_limit"`
	ComputeUnitPrice uint64 `mapstructure:"compute_unit_price"`
	SimulateOnly     bool   `mapstructure:"simulate_only"`

	// default slippage tolerance, basis points
	SlippageBPS uint64 `mapstructure:"slippage_bps"`

	// tipped submission
	RelayURL      string  `mapstructure:"relay_url"`
	TipStreamURL  string  `mapstructure:"tip_stream_url"`
	TipPercentile int     `mapstructure:"tip_percentile"`
	TipOverride   float64 `mapstructure:"tip_override"`

	// daemon shell
	ListenAddr string `mapstructure:"listen_addr"`
}

const (
	DefaultComputeUnitLimit = 200_000
	DefaultComputeUnitPrice = 20_000
	DefaultSlippageBPS      = 300
	DefaultTipPercentile    = 50
	DefaultListenAddr       = ":8080"
	DefaultLogFile          = "logs/trader.log"
)

// Load reads the config file at path, overlays SWAP_* environment variables
// and validates the result. path may be empty when everything comes from the
// environment.
func Load(path string) (*Config, error) {
	v := viper.New()

	defaults := map[string]interface{}{
		"compute_unit_limit": DefaultComputeUnitLimit,
		"compute_unit_price": DefaultComputeUnitPrice,
		"slippage_bps":       DefaultSlippageBPS,
		"tip_percentile":     DefaultTipPercentile,
		"listen_addr":        DefaultListenAddr,
		"log_file":           DefaultLogFile,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix("SWAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key := range defaults {
		_ = v.BindEnv(key)
	}
	for _, key := range []string{
		"rpc_url", "registry_url", "private_key", "debug_logging",
		"simulate_only", "relay_url", "tip_stream_url", "tip_override",
	} {
		_ = v.BindEnv(key)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, cfg.Validate()
}

// Validate checks the loaded configuration for internal consistency.
func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return errors.New("rpc_url is required")
	}
	if err := checkScheme(c.RPCURL, "http"); err != nil {
		return fmt.Errorf("rpc_url: %w", err)
	}
	if c.PrivateKey == "" {
		return errors.New("private_key is required")
	}
	if c.RegistryURL != "" {
		if err := checkScheme(c.RegistryURL, "http"); err != nil {
			return fmt.Errorf("registry_url: %w", err)
		}
	}
	if c.RelayURL != "" {
		if err := checkScheme(c.RelayURL, "http"); err != nil {
			return fmt.Errorf("relay_url: %w", err)
		}
	}
	if c.TipStreamURL != "" {
		if err := checkScheme(c.TipStreamURL, "ws"); err != nil {
			return fmt.Errorf("tip_stream_url: %w", err)
		}
	}
	switch c.TipPercentile {
	case 25, 50, 75, 95, 99:
	default:
		return fmt.Errorf("tip_percentile must be one of 25/50/75/95/99, got %d", c.TipPercentile)
	}
	if c.TipOverride < 0 {
		return errors.New("tip_override cannot be negative")
	}
	if c.SlippageBPS > 10_000 {
		return errors.New("slippage_bps cannot exceed 10000")
	}
	if c.ComputeUnitLimit == 0 {
		return errors.New("compute_unit_limit cannot be zero")
	}
	return nil
}

func checkScheme(rawURL, scheme string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL")
	}
	if !strings.HasPrefix(parsed.Scheme, scheme) {
		return fmt.Errorf("URL scheme must be %s(s)", scheme)
	}
	return nil
}
