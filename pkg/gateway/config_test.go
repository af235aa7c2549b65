package gateway

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("CALL_API_BASE_URL", "https://api.example.com")
	t.Setenv("CALL_API_TOKEN", "secret")
	t.Setenv("CALL_API_TIMEOUT", "3s")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com", cfg.BaseURL)
	assert.Equal(t, "secret", cfg.AuthToken)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("CALL_API_BASE_URL", "https://api.example.com")
	// t.Setenv регистрирует откат, реальное значение снимаем
	t.Setenv("CALL_API_TOKEN", "")
	os.Unsetenv("CALL_API_TOKEN")
	t.Setenv("CALL_API_TIMEOUT", "")
	os.Unsetenv("CALL_API_TIMEOUT")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.Timeout, "дефолтный таймаут")
}

func TestLoadConfigRequiresBaseURL(t *testing.T) {
	t.Setenv("CALL_API_BASE_URL", "")
	os.Unsetenv("CALL_API_BASE_URL")

	_, err := LoadConfig()
	require.Error(t, err)
}
