package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.LoadDefaults()

	assert.Equal(t, "http://127.0.0.1:8080", cfg.ServerBaseURL)
	assert.Equal(t, "kaltrack.db", cfg.DatabasePath)
	assert.Equal(t, 30*time.Minute, cfg.SyncInterval)
	assert.Equal(t, 15*time.Second, cfg.OnlineCheckInterval)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 8, cfg.MaxRetries)
}
