package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr string     `env:"HTTP_ADDR" envDefault:":8080"`
	DBPath   string     `env:"DB_PATH" envDefault:":memory:"`
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`

	BackendURL     string        `env:"BACKEND_URL" envDefault:"http://localhost:8081"`
	BackendTimeout time.Duration `env:"BACKEND_TIMEOUT" envDefault:"15s"`
	OAuthClient    string        `env:"OAUTH_CLIENT" envDefault:"campus"`
	UIDir          string        `env:"UI_DIR"`

	GeoTimeout        time.Duration `env:"GEO_TIMEOUT" envDefault:"3s"`
	ScanTimeout       time.Duration `env:"SCAN_TIMEOUT" envDefault:"10s"`
	PhotoReadyTimeout time.Duration `env:"PHOTO_READY_TIMEOUT" envDefault:"5s"`
	FrameRate         int           `env:"FRAME_RATE" envDefault:"30"`
}

// Load reads an optional .env file and then parses the environment.
// Variables already set in the environment win over the file.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", f, err)
		}
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if cfg.FrameRate <= 0 {
		return nil, fmt.Errorf("FRAME_RATE must be positive, got %d", cfg.FrameRate)
	}
	return &cfg, nil
}
