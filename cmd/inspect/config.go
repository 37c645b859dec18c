package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config describes one library to load and the interface to bind against
// it.
type Config struct {
	// Library is the path to the wasm image, relative to the config file.
	Library string `toml:"library"`
	// Name identifies the library instance. Defaults to the file name.
	Name string `toml:"name"`
	// Signatures is a path to WIT-style signature text declaring the
	// methods to bind.
	Signatures string `toml:"signatures"`

	Engine  EngineConfig   `toml:"engine"`
	Symbols []SymbolConfig `toml:"symbols"`
	Verbose bool           `toml:"verbose"`
}

type EngineConfig struct {
	MemoryLimitPages uint32 `toml:"memory_limit_pages"`
	Alloc            string `toml:"alloc"`
	Free             string `toml:"free"`
}

type SymbolConfig struct {
	Name     string `toml:"name"`
	Optional bool   `toml:"optional"`
}

func loadConfig(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Library == "" {
		return nil, fmt.Errorf("config %s declares no library", path)
	}

	dir := filepath.Dir(path)
	if !filepath.IsAbs(cfg.Library) {
		cfg.Library = filepath.Join(dir, cfg.Library)
	}
	if cfg.Signatures != "" && !filepath.IsAbs(cfg.Signatures) {
		cfg.Signatures = filepath.Join(dir, cfg.Signatures)
	}
	if cfg.Name == "" {
		cfg.Name = filepath.Base(cfg.Library)
	}
	return &cfg, nil
}

func (c *Config) signatureText() (string, error) {
	if c.Signatures == "" {
		return "", nil
	}
	data, err := os.ReadFile(c.Signatures)
	if err != nil {
		return "", fmt.Errorf("read signatures: %w", err)
	}
	return string(data), nil
}
