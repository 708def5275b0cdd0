/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * The BANKS variable declares the ledgers bootstrapped at startup. Each entry
 * is "BIC,bankCode,branchCode,currency,decimals[,operator]" and entries are
 * separated by semicolons; the operator defaults to the BIC when omitted.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the settlement-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort           string `mapstructure:"SERVER_PORT"`
	DatabaseURL          string `mapstructure:"DATABASE_URL"`
	RedisURL             string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RateLimitPerMinute   int    `mapstructure:"RATE_LIMIT_PER_MINUTE"`
	RabbitMQURL          string `mapstructure:"RABBITMQ_URL"`
	JWTSecret            string `mapstructure:"JWT_SECRET"`
	Banks                string `mapstructure:"BANKS"`
	HTLCSweepSchedule    string `mapstructure:"HTLC_SWEEP_SCHEDULE"`
}

// BankEntry is one parsed bank declaration from the BANKS variable.
type BankEntry struct {
	BIC        string
	BankCode   string
	BranchCode string
	Currency   string
	Decimals   int
	Operator   string
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "settlement:rate_limit")
	viper.SetDefault("RATE_LIMIT_PER_MINUTE", 120)
	viper.SetDefault("HTLC_SWEEP_SCHEDULE", "@every 1m")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("BANKS")
	_ = viper.BindEnv("HTLC_SWEEP_SCHEDULE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "settlement:rate_limit"
	}
	if config.RateLimitPerMinute <= 0 {
		config.RateLimitPerMinute = 120
	}
	if strings.TrimSpace(config.HTLCSweepSchedule) == "" {
		config.HTLCSweepSchedule = "@every 1m"
	}

	return
}

// ParseBanks parses the BANKS declaration string into bank entries.
func ParseBanks(raw string) ([]BankEntry, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var entries []BankEntry
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Split(part, ",")
		if len(fields) != 5 && len(fields) != 6 {
			return nil, fmt.Errorf("invalid bank declaration %q: want 5 or 6 comma-separated fields", part)
		}
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		decimals, perr := strconv.Atoi(fields[4])
		if perr != nil {
			return nil, fmt.Errorf("invalid bank declaration %q: decimals: %w", part, perr)
		}
		entry := BankEntry{
			BIC:        fields[0],
			BankCode:   fields[1],
			BranchCode: fields[2],
			Currency:   fields[3],
			Decimals:   decimals,
			Operator:   fields[0],
		}
		if len(fields) == 6 && fields[5] != "" {
			entry.Operator = fields[5]
		}
		if entry.BIC == "" || entry.BankCode == "" || entry.BranchCode == "" || entry.Currency == "" {
			return nil, fmt.Errorf("invalid bank declaration %q: empty field", part)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
