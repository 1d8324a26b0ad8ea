package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// ServerConfig extends the base Config with HTTP server settings.
type ServerConfig struct {
	*Config
	ListenAddr        string
	CORSOrigins       []string
	RateLimitRPS      float64
	RateLimitBurst    int
	ShutdownTimeout   time.Duration
	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration
}

// LoadServer loads server configuration from environment variables.
// DATABASE_URL is optional here: clients name their database per request.
func LoadServer() (*ServerConfig, error) {
	base, err := Load()
	if err != nil {
		return nil, err
	}

	cfg := &ServerConfig{
		Config:            base,
		ListenAddr:        ":8000",
		CORSOrigins:       []string{"*"},
		RateLimitRPS:      20,
		RateLimitBurst:    40,
		ShutdownTimeout:   15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}

	if v, ok := os.LookupEnv("CORS_ORIGINS"); ok {
		cfg.CORSOrigins = splitList(v)
	}

	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			return nil, fmt.Errorf("invalid RATE_LIMIT_RPS value %q: must be a non-negative number", v)
		}
		cfg.RateLimitRPS = f
	}

	if err := positiveInt("RATE_LIMIT_BURST", &cfg.RateLimitBurst); err != nil {
		return nil, err
	}

	if err := duration("SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout); err != nil {
		return nil, err
	}

	return cfg, nil
}

// MaxUploadBytes bounds one multipart upload request.
func (c *ServerConfig) MaxUploadBytes() int64 {
	return c.MaxFileSize*maxFilesPerUpload + 1<<20
}

const maxFilesPerUpload = 20
