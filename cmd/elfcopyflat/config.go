package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/xyproto/env/v2"
	"gopkg.in/yaml.v3"
)

const (
	envConfig = "ELFCOPYFLAT_CONFIG"
	envOutDir = "ELFCOPYFLAT_OUT_DIR"
)

// Config represents the elfcopyflat configuration file
// (~/.config/elfcopyflat/config.yaml). Pointer fields distinguish "not set"
// from false.
type Config struct {
	AllowOverlaps *bool `yaml:"allow_overlaps"`
	ZeroFill      *bool `yaml:"zero_fill"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	ServerAddress string `yaml:"server_address"`
	MaxBodySize   string `yaml:"max_body_size"`
	MaxImageSize  string `yaml:"max_image_size"`
}

func configPath(override string) string {
	if override != "" {
		return override
	}
	if p := env.Str(envConfig); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "elfcopyflat", "config.yaml")
}

// LoadConfig reads the config file. A missing file yields a zero Config.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// applyBool sets *dst from the config value unless the flag was given.
func applyBool(isSet bool, v *bool, dst *bool) {
	if v != nil && !isSet {
		*dst = *v
	}
}

type configKey struct{}

func withConfig(ctx context.Context, cfg Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

func configFrom(ctx context.Context) Config {
	cfg, _ := ctx.Value(configKey{}).(Config)
	return cfg
}
