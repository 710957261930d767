package config

import (
	"time"

	"github.com/spf13/viper"
)

// EngineConfig holds the deposit engine tunables.
type EngineConfig struct {
	// CardFeeBps is the card processing fee in basis points of the deposit.
	CardFeeBps int64
	// DefaultDepositAmount (minor units) applies when a location has no
	// configured amount.
	DefaultDepositAmount int64
	Currency             string

	GatewayBaseURL        string
	GatewaySecretKey      string
	GatewayPublishableKey string

	// StatusBaseURL prefixes public pay-later status links.
	StatusBaseURL string
	// MagicTokenTTL bounds how long a status link stays redeemable.
	MagicTokenTTL time.Duration

	ReturnMaxRetries   int
	ReturnInitialDelay time.Duration
}

// LoadEngineConfig reads the engine configuration from viper with defaults.
func LoadEngineConfig() *EngineConfig {
	viper.SetDefault("engine.card_fee_bps", 300)
	viper.SetDefault("engine.default_deposit_amount", 2000)
	viper.SetDefault("engine.currency", "usd")
	viper.SetDefault("engine.status_base_url", "http://localhost:8080")
	viper.SetDefault("engine.magic_token_ttl", 30*24*time.Hour)
	viper.SetDefault("engine.return_max_retries", 3)
	viper.SetDefault("engine.return_initial_delay", time.Second)
	viper.SetDefault("gateway.base_url", "https://api.cardprocessor.example.com/v1")

	return &EngineConfig{
		CardFeeBps:            viper.GetInt64("engine.card_fee_bps"),
		DefaultDepositAmount:  viper.GetInt64("engine.default_deposit_amount"),
		Currency:              viper.GetString("engine.currency"),
		GatewayBaseURL:        viper.GetString("gateway.base_url"),
		GatewaySecretKey:      viper.GetString("gateway.secret_key"),
		GatewayPublishableKey: viper.GetString("gateway.publishable_key"),
		StatusBaseURL:         viper.GetString("engine.status_base_url"),
		MagicTokenTTL:         viper.GetDuration("engine.magic_token_ttl"),
		ReturnMaxRetries:      viper.GetInt("engine.return_max_retries"),
		ReturnInitialDelay:    viper.GetDuration("engine.return_initial_delay"),
	}
}
