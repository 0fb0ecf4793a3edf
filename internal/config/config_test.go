package config

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="

func TestNewConfig(t *testing.T) {
	tests := []struct {
		name             string
		serverAddr       string
		databaseDSN      string
		secret           string
		maxMessageLength int
		wantErr          bool
	}{
		{
			name:             "valid config",
			serverAddr:       "localhost:8000",
			databaseDSN:      "host=localhost",
			secret:           testSecret,
			maxMessageLength: 2000,
			wantErr:          false,
		},
		{
			name:             "empty server address",
			serverAddr:       "",
			databaseDSN:      "host=localhost",
			secret:           testSecret,
			maxMessageLength: 2000,
			wantErr:          true,
		},
		{
			name:             "empty dsn",
			serverAddr:       "localhost:8000",
			databaseDSN:      "",
			secret:           testSecret,
			maxMessageLength: 2000,
			wantErr:          true,
		},
		{
			name:             "empty secret",
			serverAddr:       "localhost:8000",
			databaseDSN:      "host=localhost",
			secret:           "",
			maxMessageLength: 2000,
			wantErr:          true,
		},
		{
			name:             "invalid base64 secret",
			serverAddr:       "localhost:8000",
			databaseDSN:      "host=localhost",
			secret:           "not base64!!!",
			maxMessageLength: 2000,
			wantErr:          true,
		},
		{
			name:             "zero max message length",
			serverAddr:       "localhost:8000",
			databaseDSN:      "host=localhost",
			secret:           testSecret,
			maxMessageLength: 0,
			wantErr:          true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := NewConfig(tc.serverAddr, tc.databaseDSN, tc.secret, []string{"http://localhost:3000"}, tc.maxMessageLength)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.serverAddr, cfg.ServerAddr)
			assert.Equal(t, tc.databaseDSN, cfg.DatabaseDSN)
			assert.Equal(t, tc.maxMessageLength, cfg.MaxMessageLength)

			wantKey, err := base64.StdEncoding.DecodeString(tc.secret)
			require.NoError(t, err)
			assert.Equal(t, wantKey, cfg.SigningKey)
		})
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("CHAT_ADDR", "0.0.0.0:9000")
	t.Setenv("CHAT_DATABASE_DSN", "host=db user=chat")
	t.Setenv("CHAT_SIGNING_KEY", testSecret)
	t.Setenv("CHAT_ALLOWED_ORIGINS", "http://a.example,http://b.example")
	t.Setenv("CHAT_MAX_MESSAGE_LENGTH", "500")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.ServerAddr)
	assert.Equal(t, "host=db user=chat", cfg.DatabaseDSN)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 500, cfg.MaxMessageLength)
}

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("CHAT_SIGNING_KEY", testSecret)

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "localhost:8000", cfg.ServerAddr)
	assert.Equal(t, 2000, cfg.MaxMessageLength)
}

func TestFromEnv_MissingSecret(t *testing.T) {
	t.Setenv("CHAT_SIGNING_KEY", "")

	_, err := FromEnv()
	assert.Error(t, err)
}
