// Package config loads viewer configuration with the usual precedence:
// command-line flags over environment over config file over defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix is the prefix for environment overrides, e.g.
// PARQUETGRIP_LISTEN=:9090.
const EnvPrefix = "PARQUETGRIP_"

// Config is the resolved viewer configuration.
type Config struct {
	Listen       string        `koanf:"listen"`
	StateFile    string        `koanf:"state_file"`
	PageSize     int           `koanf:"page_size"`
	SaveDebounce time.Duration `koanf:"save_debounce"`
	Watch        bool          `koanf:"watch"`
	LogLevel     string        `koanf:"log_level"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"listen":        "127.0.0.1:8765",
		"state_file":    defaultStateFile(),
		"page_size":     1000,
		"save_debounce": "500ms",
		"watch":         true,
		"log_level":     "info",
	}
}

func defaultStateFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".parquetgrip/state.json"
	}
	return filepath.Join(home, ".parquetgrip", "state.json")
}

// Load resolves configuration. configFile may be empty; a missing
// explicit file is an error, a missing default file is not. flags may be
// nil.
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	path := configFile
	explicit := path != ""
	if !explicit {
		if _, err := os.Stat("parquetgrip.yaml"); err == nil {
			path = "parquetgrip.yaml"
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if explicit {
				return nil, fmt.Errorf("loading config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	if flags != nil {
		// Flag names use dashes; config keys use underscores. Only flags
		// the user actually set override the lower layers.
		p := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		})
		if err := k.Load(p, nil); err != nil {
			return nil, fmt.Errorf("loading flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}
