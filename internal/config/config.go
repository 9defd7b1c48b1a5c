// Package config loads this agency's boot configuration via
// spf13/viper: a YAML file plus environment variable overrides,
// matching a registry-style config loader adapted to this module's
// forward-agent/wallet fields instead of HTTP-registry fields.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is this agency's complete boot configuration.
type Config struct {
	ListenAddr string

	WalletBaseDir string
	WalletID string
	DIDSeed []byte
	Endpoint string
	RestoreOnDemand bool

	RequestTimeoutSeconds int
	MaxRetries int
	BreakerTimeoutSeconds int
}

// Load reads name (searched under "configs" then the working
// directory) and overlays environment variables prefixed AGENCY_, with
// "." replaced by "_" so nested keys like wallet.base_dir map to
// AGENCY_WALLET_BASE_DIR.
func Load(name string) (Config, error) {
	viper.SetConfigName(name)
	viper.SetConfigType("yaml")
	viper.AddConfigPath("configs")
	viper.AddConfigPath(".")
	viper.SetEnvPrefix("AGENCY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("listen_addr", ":8080")
	viper.SetDefault("wallet.base_dir", "./data/wallets")
	viper.SetDefault("wallet.id", "agency")
	viper.SetDefault("wallet.did_seed_hex", "")
	viper.SetDefault("wallet.restore_on_demand", false)
	viper.SetDefault("endpoint", "http://localhost:8080")
	viper.SetDefault("requester.timeout_seconds", 10)
	viper.SetDefault("requester.max_retries", 3)
	viper.SetDefault("requester.breaker_timeout_seconds", 30)

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("config: read %s: %w", name, err)
		}
	}

	seed, err := decodeSeed(viper.GetString("wallet.did_seed_hex"))
	if err != nil {
		return Config{}, err
	}

	return Config{
		ListenAddr: viper.GetString("listen_addr"),
		WalletBaseDir: viper.GetString("wallet.base_dir"),
		WalletID: viper.GetString("wallet.id"),
		DIDSeed: seed,
		Endpoint: viper.GetString("endpoint"),
		RestoreOnDemand: viper.GetBool("wallet.restore_on_demand"),
		RequestTimeoutSeconds: viper.GetInt("requester.timeout_seconds"),
		MaxRetries: viper.GetInt("requester.max_retries"),
		BreakerTimeoutSeconds: viper.GetInt("requester.breaker_timeout_seconds"),
	}, nil
}

func decodeSeed(hexSeed string) ([]byte, error) {
	if hexSeed == "" {
		return nil, nil
	}
	seed, err := hex.DecodeString(hexSeed)
	if err != nil {
		return nil, fmt.Errorf("config: wallet.did_seed_hex: %w", err)
	}
	if len(seed) != 32 {
		return nil, fmt.Errorf("config: wallet.did_seed_hex: want 32 bytes, got %d", len(seed))
	}
	return seed, nil
}
