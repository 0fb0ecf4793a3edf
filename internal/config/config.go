package config

import (
	"encoding/base64"
	"fmt"

	"github.com/caarlos0/env/v11"
)

type envConfig struct {
	ServerAddr       string   `env:"CHAT_ADDR" envDefault:"localhost:8000"`
	DatabaseDSN      string   `env:"CHAT_DATABASE_DSN" envDefault:"host=localhost user=postgres password=postgres dbname=postgres sslmode=disable"`
	SigningSecret    string   `env:"CHAT_SIGNING_KEY"`
	AllowedOrigins   []string `env:"CHAT_ALLOWED_ORIGINS" envSeparator:","`
	MaxMessageLength int      `env:"CHAT_MAX_MESSAGE_LENGTH" envDefault:"2000"`
}

type Config struct {
	ServerAddr       string
	DatabaseDSN      string
	SigningKey       []byte
	AllowedOrigins   []string
	MaxMessageLength int
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(serverAddr, databaseDSN, base64Secret string, allowedOrigins []string, maxMessageLength int) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if maxMessageLength <= 0 {
		return nil, fmt.Errorf("max message length must be positive")
	}

	// Decode the base64 encoded signing secret
	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &Config{
		ServerAddr:       serverAddr,
		DatabaseDSN:      databaseDSN,
		SigningKey:       signingKey,
		AllowedOrigins:   allowedOrigins,
		MaxMessageLength: maxMessageLength,
	}, nil
}

// FromEnv builds a Config from the CHAT_* environment variables.
func FromEnv() (*Config, error) {
	var ec envConfig
	if err := env.Parse(&ec); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	return NewConfig(ec.ServerAddr, ec.DatabaseDSN, ec.SigningSecret, ec.AllowedOrigins, ec.MaxMessageLength)
}
