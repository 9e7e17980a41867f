// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package origin

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is read from the environment.
type Config struct {
	Port         int           `env:"PORT" envDefault:"5000"`
	StaticDir    string        `env:"SHELLCACHE_STATIC_DIR" envDefault:"static"`
	WorkDir      string        `env:"SHELLCACHE_WORK_DIR"`
	CleanupAfter time.Duration `env:"SHELLCACHE_CLEANUP_AFTER" envDefault:"1h"`
}

// LoadConfig parses the environment. WorkDir defaults to freqshift_pwa under
// the system temp dir.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = filepath.Join(os.TempDir(), "freqshift_pwa")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return Config{}, fmt.Errorf("invalid PORT %d", cfg.Port)
	}
	if cfg.CleanupAfter <= 0 {
		return Config{}, fmt.Errorf("SHELLCACHE_CLEANUP_AFTER must be positive, got %s", cfg.CleanupAfter)
	}
	return cfg, nil
}

// Addr is the listen address on all interfaces.
func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}
