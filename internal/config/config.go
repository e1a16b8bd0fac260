// Package config loads ledgerd settings with viper: a YAML file found in
// configs/ or the working directory, overridden by environment variables
// (dots become underscores, so mina.prover_url reads MINA_PROVER_URL).
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Required lists the keys the plugin cannot run without.
var Required = []string{
	"mina.network_url",
	"mina.network",
	"mina.deployer_key",
	"mina.public_key",
	"mina.contract_address",
	"mina.default_fee",
	"mina.character_contract_address",
	"mina.memory_contract_address",
	"mina.prover_url",
	"mina.verification_key",
}

// Networks accepted for mina.network.
var Networks = []string{"berkeley", "mainnet"}

// Mina holds the plugin settings.
type Mina struct {
	NetworkURL               string `mapstructure:"network_url"`
	Network                  string `mapstructure:"network"`
	DeployerKey              string `mapstructure:"deployer_key"`
	PublicKey                string `mapstructure:"public_key"`
	ContractAddress          string `mapstructure:"contract_address"`
	DefaultFee               string `mapstructure:"default_fee"`
	CharacterContractAddress string `mapstructure:"character_contract_address"`
	MemoryContractAddress    string `mapstructure:"memory_contract_address"`
	ProverURL                string `mapstructure:"prover_url"`
	VerificationKey          string `mapstructure:"verification_key"`
}

// Server holds the listener settings.
type Server struct {
	Port                int           `mapstructure:"port"`
	GRPCPort            int           `mapstructure:"grpc_port"`
	RateLimitRPS        int           `mapstructure:"rate_limit_rps"`
	CORSOrigins         []string      `mapstructure:"cors_origins"`
	VerificationTimeout time.Duration `mapstructure:"verification_timeout"`
}

// Config is the full ledgerd configuration.
type Config struct {
	Mina   Mina   `mapstructure:"mina"`
	Server Server `mapstructure:"server"`

	Database struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"database"`

	Prover struct {
		Key string `mapstructure:"key"`
	} `mapstructure:"prover"`

	Health struct {
		Interval time.Duration `mapstructure:"interval"`
	} `mapstructure:"health"`

	missing []string
}

// SetDefaults registers default values on v. Required keys are bound to the
// environment without a default so that Missing can tell them apart.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.grpc_port", 9090)
	v.SetDefault("server.rate_limit_rps", 20)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.verification_timeout", "10s")
	v.SetDefault("database.url", "")
	v.SetDefault("prover.key", "")
	v.SetDefault("health.interval", "30s")
	for _, k := range Required {
		_ = v.BindEnv(k)
	}
}

// Load reads the named config file (without extension) and the environment
// into a Config. A missing file is not an error.
func Load(v *viper.Viper, name string) (*Config, error) {
	v.SetConfigName(name)
	v.SetConfigType("yaml")
	v.AddConfigPath("configs")
	v.AddConfigPath(".")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return FromViper(v)
}

// FromViper decodes the settings already present in v.
func FromViper(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	for _, k := range Required {
		if strings.TrimSpace(v.GetString(k)) == "" {
			c.missing = append(c.missing, k)
		}
	}
	return &c, nil
}

// Missing returns the required keys that are unset or blank.
func (c *Config) Missing() []string { return c.missing }

// Validate checks the values of the plugin settings. It does not report
// missing keys; see Missing.
func (m Mina) Validate() error {
	var errs []error
	if m.Network != "" && !contains(Networks, m.Network) {
		errs = append(errs, fmt.Errorf("mina.network %q: want one of %s", m.Network, strings.Join(Networks, ", ")))
	}
	if m.DefaultFee != "" {
		if fee, err := strconv.ParseFloat(m.DefaultFee, 64); err != nil || fee <= 0 {
			errs = append(errs, fmt.Errorf("mina.default_fee %q: want a positive number", m.DefaultFee))
		}
	}
	return errors.Join(errs...)
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
