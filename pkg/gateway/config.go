package gateway

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config конфигурация клиента backend API
type Config struct {
	// BaseURL корень backend API, например https://api.example.com
	BaseURL string `env:"CALL_API_BASE_URL"`

	// AuthToken bearer токен для Authorization заголовка
	AuthToken string `env:"CALL_API_TOKEN"`

	// Timeout лимит одного HTTP запроса
	Timeout time.Duration `env:"CALL_API_TIMEOUT" envDefault:"10s"`
}

// LoadConfig читает конфигурацию из переменных окружения
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("gateway: разбор окружения: %w", err)
	}
	if cfg.BaseURL == "" {
		return Config{}, fmt.Errorf("gateway: CALL_API_BASE_URL обязателен")
	}
	return cfg, nil
}
