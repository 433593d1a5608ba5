// Copyright (c) 2025 Justin Cranford

// Package config loads the closed Config record the core runs from: six
// 64-byte HMAC keys, token lifetimes, and the HTTP bind settings. It is
// populated once at process startup from the environment (via Viper) with
// an optional YAML overlay for non-secret operational knobs, validated
// once, and never reparsed per request.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/spf13/viper"

	"github.com/arkaitz-dev/hashrand-sub003/internal/apperr"
)

// Environment is the deployment mode (NODE_ENV).
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
)

// HMACKeySize is the length every server HMAC key is normalized to.
// 64 bytes, everywhere, no exceptions.
const HMACKeySize = 64

// Config is the closed record every component is constructed from. Secrets
// live as fixed-size byte arrays so a stray log.Printf("%+v", cfg) can never
// accidentally dump key material as a readable string.
type Config struct {
	JWTSecret               [HMACKeySize]byte
	MagicLinkHMACKey        [HMACKeySize]byte
	UserIDHMACKey           [HMACKeySize]byte
	Argon2Salt              [HMACKeySize]byte
	UserIDArgon2Compression [HMACKeySize]byte
	ChaChaEncryptionKey     [HMACKeySize]byte

	AccessTokenDuration  time.Duration
	RefreshTokenDuration time.Duration
	MagicLinkDuration    time.Duration

	Environment Environment

	BindAddress string
	Port        int

	DatabaseType string
	DatabaseURL  string
}

// Load reads configuration from the environment (and an optional YAML
// overlay file for bind address / port) and validates it. yamlPath may be
// empty.
func Load(yamlPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("")
	v.AutomaticEnv()

	v.SetDefault("BIND_ADDRESS", "0.0.0.0")
	v.SetDefault("PORT", 8080)
	v.SetDefault("ACCESS_TOKEN_DURATION_MINUTES", 15)
	v.SetDefault("REFRESH_TOKEN_DURATION_MINUTES", 43200) // 30 days
	v.SetDefault("MAGIC_LINK_DURATION_MINUTES", 15)
	v.SetDefault("NODE_ENV", string(EnvDevelopment))
	v.SetDefault("DATABASE_TYPE", "sqlite")
	v.SetDefault("DATABASE_URL", "file:hashrand.db")

	if yamlPath != "" {
		raw, err := os.ReadFile(yamlPath)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindConfigError, "config: read yaml overlay", err)
		}
		var overlay map[string]interface{}
		if err := yaml.Unmarshal(raw, &overlay); err != nil {
			return nil, apperr.Wrap(apperr.KindConfigError, "config: parse yaml overlay", err)
		}
		for k, val := range overlay {
			v.Set(k, val)
		}
	}

	cfg := &Config{
		AccessTokenDuration:  time.Duration(v.GetInt64("ACCESS_TOKEN_DURATION_MINUTES")) * time.Minute,
		RefreshTokenDuration: time.Duration(v.GetInt64("REFRESH_TOKEN_DURATION_MINUTES")) * time.Minute,
		MagicLinkDuration:    time.Duration(v.GetInt64("MAGIC_LINK_DURATION_MINUTES")) * time.Minute,
		Environment:          Environment(v.GetString("NODE_ENV")),
		BindAddress:          v.GetString("BIND_ADDRESS"),
		Port:                 v.GetInt("PORT"),
		DatabaseType:         v.GetString("DATABASE_TYPE"),
		DatabaseURL:          v.GetString("DATABASE_URL"),
	}

	keyFields := []struct {
		name string
		dst  *[HMACKeySize]byte
	}{
		{"JWT_SECRET", &cfg.JWTSecret},
		{"MAGIC_LINK_HMAC_KEY", &cfg.MagicLinkHMACKey},
		{"USER_ID_HMAC_KEY", &cfg.UserIDHMACKey},
		{"ARGON2_SALT", &cfg.Argon2Salt},
		{"USER_ID_ARGON2_COMPRESSION", &cfg.UserIDArgon2Compression},
		{"CHACHA_ENCRYPTION_KEY", &cfg.ChaChaEncryptionKey},
	}

	for _, kf := range keyFields {
		hexVal := v.GetString(kf.name)
		if hexVal == "" {
			return nil, apperr.New(apperr.KindConfigError, fmt.Sprintf("config: %s is required", kf.name))
		}
		decoded, err := hex.DecodeString(hexVal)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindConfigError, fmt.Sprintf("config: %s is not valid hex", kf.name), err)
		}
		if len(decoded) != HMACKeySize {
			return nil, apperr.New(apperr.KindConfigError, fmt.Sprintf("config: %s must decode to %d bytes, got %d", kf.name, HMACKeySize, len(decoded)))
		}
		copy(kf.dst[:], decoded)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the invariants Load cannot express via defaults alone:
// positive durations, a known environment, and a valid port.
func (c *Config) Validate() error {
	if c.Environment != EnvDevelopment && c.Environment != EnvProduction {
		return apperr.New(apperr.KindConfigError, "config: environment must be development or production")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return apperr.New(apperr.KindConfigError, "config: port must be between 1 and 65535")
	}
	if c.BindAddress == "" {
		return apperr.New(apperr.KindConfigError, "config: bind address is required")
	}
	if c.AccessTokenDuration <= 0 {
		return apperr.New(apperr.KindConfigError, "config: access token duration must be positive")
	}
	if c.RefreshTokenDuration <= 0 {
		return apperr.New(apperr.KindConfigError, "config: refresh token duration must be positive")
	}
	if c.MagicLinkDuration <= 0 {
		return apperr.New(apperr.KindConfigError, "config: magic link duration must be positive")
	}
	if c.RefreshTokenDuration <= c.AccessTokenDuration {
		return apperr.New(apperr.KindConfigError, "config: refresh token duration must exceed access token duration")
	}
	if c.DatabaseType != "sqlite" && c.DatabaseType != "postgres" {
		return apperr.New(apperr.KindConfigError, "config: database type must be sqlite or postgres")
	}
	if c.DatabaseURL == "" {
		return apperr.New(apperr.KindConfigError, "config: database url is required")
	}
	return nil
}

// IsProduction reports whether the process is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}
