package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJsonConfig_DurationsAsStringsOrNanoseconds(t *testing.T) {
	data := []byte(`{
		"server_base_url": "https://api.example.com",
		"database_path": "/tmp/k.db",
		"sync_interval": "45m",
		"online_check_interval": 5000000000,
		"max_retries": 3
	}`)

	var jc JsonConfig
	require.NoError(t, json.Unmarshal(data, &jc))

	assert.Equal(t, "https://api.example.com", jc.ServerBaseURL)
	assert.Equal(t, "/tmp/k.db", jc.DatabasePath)
	assert.Equal(t, 45*time.Minute, jc.SyncInterval.Duration)
	assert.Equal(t, 5*time.Second, jc.OnlineCheckInterval.Duration)
	assert.Equal(t, 3, jc.MaxRetries)
}

func TestJsonConfig_AbsentFieldsKeepDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.LoadDefaults()

	var jc JsonConfig
	require.NoError(t, json.Unmarshal([]byte(`{"max_retries": 2}`), &jc))

	applyJson(cfg, jc)

	assert.Equal(t, "http://127.0.0.1:8080", cfg.ServerBaseURL)
	assert.Equal(t, 30*time.Minute, cfg.SyncInterval)
	assert.Equal(t, 2, cfg.MaxRetries)
}
