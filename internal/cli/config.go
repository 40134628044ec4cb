package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultConfigFile is read from the working directory when --config is not
// given and the file exists.
const DefaultConfigFile = "nestc.toml"

// Config is the optional TOML configuration. Command flags override it.
//
//	[target]
//	vector_bits = 256
//
//	[runtime]
//	workers = 8
//
//	[store]
//	db = "nestc.db"
type Config struct {
	Target  TargetConfig  `toml:"target"`
	Runtime RuntimeConfig `toml:"runtime"`
	Store   StoreConfig   `toml:"store"`
}

// TargetConfig describes the code generation target.
type TargetConfig struct {
	VectorBits int `toml:"vector_bits"`
}

// RuntimeConfig configures compiled artifacts.
type RuntimeConfig struct {
	Workers int `toml:"workers"`
}

// StoreConfig locates the artifact registry.
type StoreConfig struct {
	DB string `toml:"db"`
}

// LoadConfig decodes a TOML config file. Unknown keys are errors.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if cfg.Target.VectorBits < 0 {
		return Config{}, fmt.Errorf("%s: target.vector_bits must be non-negative", path)
	}
	if cfg.Runtime.Workers < 0 {
		return Config{}, fmt.Errorf("%s: runtime.workers must be non-negative", path)
	}
	return cfg, nil
}

// resolveConfig loads the explicit config file, or DefaultConfigFile when
// present. A missing default file is not an error.
func resolveConfig(path string) (Config, error) {
	if path != "" {
		return LoadConfig(path)
	}
	if _, err := os.Stat(DefaultConfigFile); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, err
	}
	return LoadConfig(DefaultConfigFile)
}
